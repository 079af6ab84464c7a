package wire

import (
	"fmt"
	"net"
	"sync"
)

// Conn is a client-side wrapper around a unix-socket connection to the
// broker. It multiplexes concurrent requests over one connection by
// request id, and routes unsolicited id=0 frames (inject) to a
// caller-supplied handler instead of a pending request.
//
// Both clippy-wrap and clippyctl use Conn; the broker's server side
// talks frames directly since it owns the accept loop and the
// per-connection session table.
type Conn struct {
	nc net.Conn

	mu      sync.Mutex
	nextID  uint32
	pending map[uint32]chan map[string]any
	onUnsolicited func(map[string]any)

	writeMu sync.Mutex

	done chan struct{}
}

// Dial connects to addr (a unix socket path) and starts the read loop.
// onUnsolicited is invoked from the read-loop goroutine for every frame
// with id == UnsolicitedID; it must not block.
func Dial(addr string, onUnsolicited func(map[string]any)) (*Conn, error) {
	nc, err := net.Dial("unix", addr)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		nc:            nc,
		pending:       make(map[uint32]chan map[string]any),
		onUnsolicited: onUnsolicited,
		done:          make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		payload, err := ReadFrame(c.nc)
		if err != nil {
			c.failPending()
			return
		}
		id := idOf(payload["id"])
		if id == UnsolicitedID && payload["type"] != nil {
			if c.onUnsolicited != nil {
				c.onUnsolicited(payload)
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()
		if ok {
			ch <- payload
			close(ch)
		}
	}
}

func (c *Conn) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Request sends payload (type and any fields) with a freshly allocated
// id and blocks for the matching response. The broker always answers a
// request with the same id it was given.
func (c *Conn) Request(msgType string, fields map[string]any) (map[string]any, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	if id == UnsolicitedID {
		c.nextID++
		id = c.nextID
	}
	ch := make(chan map[string]any, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	payload := map[string]any{"type": msgType, "id": id}
	for k, v := range fields {
		payload[k] = v
	}

	c.writeMu.Lock()
	err := WriteFrame(c.nc, payload)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}

	resp, ok := <-ch
	if !ok {
		return nil, fmt.Errorf("wire: connection closed waiting for response to %s", msgType)
	}
	return resp, nil
}

// Close closes the underlying connection and waits for the read loop to
// exit.
func (c *Conn) Close() error {
	err := c.nc.Close()
	<-c.done
	return err
}

// idOf normalizes the integer types msgpack produces on decode
// (int8/int16/int32/int64/uint64 depending on magnitude) to uint32.
func idOf(v any) uint32 {
	switch n := v.(type) {
	case uint32:
		return n
	case int8:
		return uint32(n)
	case int16:
		return uint32(n)
	case int32:
		return uint32(n)
	case int64:
		return uint32(n)
	case uint64:
		return uint32(n)
	case int:
		return uint32(n)
	default:
		return 0
	}
}

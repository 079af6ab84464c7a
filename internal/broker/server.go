package broker

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/clippyhq/clippy/internal/wire"
	"github.com/prometheus/client_golang/prometheus"
)

// Broker is the daemon's runtime: the session table, the relay buffer,
// and the connection-handling loop that serves requests against them
// under the single serialization domain required by §4.3.
//
// Per §5, I/O to clients is multiplexed (one goroutine per connection)
// but every operation that reads or writes the table or relay goes
// through Table and Relay's own locks, which together are the
// serialization domain — there is no separate global broker mutex.
type Broker struct {
	table   *Table
	relay   *Relay
	metrics *Metrics
	log     *slog.Logger

	ln net.Listener

	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

// New constructs a Broker bound to ln. Callers obtain ln via Listen.
func New(ln net.Listener, reg prometheus.Registerer, log *slog.Logger) *Broker {
	if log == nil {
		log = slog.Default()
	}
	return &Broker{
		table:   NewTable(),
		relay:   NewRelay(),
		metrics: NewMetrics(reg),
		log:     log,
		ln:      ln,
		done:    make(chan struct{}),
	}
}

// Serve runs the accept loop until Shutdown is called or the listener
// fails. It blocks until every in-flight connection has been closed.
func (b *Broker) Serve() error {
	if addr, ok := b.ln.Addr().(*net.UnixAddr); ok && addr.Name != "" {
		go b.watchSocket(addr.Name)
	}

	for {
		conn, err := b.ln.Accept()
		if err != nil {
			select {
			case <-b.done:
				b.wg.Wait()
				return nil
			default:
			}
			return err
		}
		b.metrics.connections.Inc()
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.handleConn(conn)
		}()
	}
}

// Shutdown stops accepting new connections, closes the listener, and
// unlinks the socket. It does not close connections already accepted:
// closing the listener does not interrupt their reads, so each handler
// returns only when its peer disconnects or the process exits, and
// Serve waits for those handlers before returning.
func (b *Broker) Shutdown() {
	b.once.Do(func() {
		close(b.done)
		b.ln.Close()
		if addr, ok := b.ln.Addr().(*net.UnixAddr); ok && addr.Name != "" {
			_ = removeIfExists(addr.Name)
		}
	})
}

func (b *Broker) handleConn(conn net.Conn) {
	defer conn.Close()
	writer := newConnWriter(conn)

	role, ok := b.handshake(conn, writer)
	if !ok {
		return
	}

	// Implicit deregister (§4.3): whether or not this connection ever
	// registered a session, DeregisterByConn is a correct no-op for
	// client connections and cleans up wrapper connections that drop
	// without an explicit deregister.
	defer func() {
		if _, removed := b.table.DeregisterByConn(conn); removed {
			b.metrics.registeredSessions.Set(float64(b.table.Count()))
		}
	}()

	for {
		payload, err := wire.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, wire.ErrFrameTooLarge) {
				_ = writer.WriteFrame(wire.NewError(wire.ErrPayloadTooLarge))
			} else if !errors.Is(err, io.EOF) {
				b.log.Debug("connection read failed", "error", err)
			}
			return
		}

		msgType, _ := asString(payload, "type")
		id, _ := asInt(payload, "id")

		resp, fatal := b.dispatch(role, writer, msgType, payload)
		if resp != nil {
			resp["id"] = uint32(id)
			resp["type"] = wire.TypeResponse
			if err := writer.WriteFrame(resp); err != nil {
				b.log.Debug("connection write failed", "error", err)
				return
			}
		}
		if fatal {
			return
		}
	}
}

// handshake enforces §6: the first message on any connection must be
// hello with a matching version. It replies hello_ack and reports the
// asserted role, or closes the connection on mismatch.
func (b *Broker) handshake(conn net.Conn, writer *connWriter) (role string, ok bool) {
	payload, err := wire.ReadFrame(conn)
	if err != nil {
		return "", false
	}
	msgType, _ := asString(payload, "type")
	id, _ := asInt(payload, "id")
	version, _ := asInt(payload, "version")
	role, _ = asString(payload, "role")

	if msgType != wire.TypeHello || version != wire.ProtocolVersion ||
		(role != wire.RoleWrapper && role != wire.RoleClient) {
		_ = writer.WriteFrame(map[string]any{
			"type": wire.TypeHelloAck, "id": uint32(id),
			"status": "error", "error": wire.ErrVersionMismatch,
		})
		return "", false
	}

	_ = writer.WriteFrame(map[string]any{
		"type": wire.TypeHelloAck, "id": uint32(id), "status": "ok",
	})
	return role, true
}

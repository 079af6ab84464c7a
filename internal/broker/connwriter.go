package broker

import (
	"net"
	"sync"

	"github.com/clippyhq/clippy/internal/wire"
)

// connWriter serializes every frame written to one connection behind a
// single mutex. handleConn's response path and handlePaste's unsolicited
// inject path both reach the same wrapper connection independently — one
// from the connection's own goroutine, the other from whichever client
// goroutine issued the paste — and wire.WriteFrame's header-then-body
// writes would otherwise interleave into a desynced stream. Every writer
// of a given connection goes through its connWriter instead of the raw
// net.Conn.
type connWriter struct {
	mu sync.Mutex
	nc net.Conn
}

func newConnWriter(nc net.Conn) *connWriter {
	return &connWriter{nc: nc}
}

func (w *connWriter) WriteFrame(payload map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return wire.WriteFrame(w.nc, payload)
}

// Conn returns the underlying connection, for identity comparisons
// (DeregisterByConn) and for reading, which is never concurrent with
// itself since each connection has exactly one reader.
func (w *connWriter) Conn() net.Conn {
	return w.nc
}

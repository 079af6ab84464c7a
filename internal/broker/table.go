// Package broker implements the long-running daemon: the in-memory
// session table, the global relay buffer, and the framed request/response
// server that arbitrates them, as described in §4.3.
package broker

import (
	"net"
	"sync"

	"github.com/clippyhq/clippy/internal/session"
)

// Entry is the broker's mirror of a registered session: everything the
// broker needs to serve capture/paste/list_sessions without touching the
// wrapper's own state.
type Entry struct {
	ID      session.ID
	PID     int
	Pattern session.Descriptor
	Writer  *connWriter

	turn    session.Turn
	hasTurn bool
}

// Table is the broker's session table. Safe for concurrent use; every
// method takes the table's lock for the duration of the call, which is
// the serialization domain required by §4.3.
type Table struct {
	mu      sync.Mutex
	entries map[session.ID]*Entry
}

// NewTable returns an empty session table.
func NewTable() *Table {
	return &Table{entries: make(map[session.ID]*Entry)}
}

// ErrDuplicateSession is returned by Register when id is already present.
type ErrDuplicateSession struct{ ID session.ID }

func (e ErrDuplicateSession) Error() string { return "broker: duplicate session " + string(e.ID) }

// Register inserts a new entry. Fails if id is already present — a
// wrapper process never registers twice for the same session.
func (t *Table) Register(id session.ID, pid int, pattern session.Descriptor, writer *connWriter) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; ok {
		return ErrDuplicateSession{ID: id}
	}
	t.entries[id] = &Entry{ID: id, PID: pid, Pattern: pattern, Writer: writer}
	return nil
}

// Deregister removes id if present. Idempotent: removing an absent id is
// not an error (§4.3 register/deregister table).
func (t *Table) Deregister(id session.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// DeregisterByConn removes whichever entry (if any) owns conn. Used when
// a connection drops without an explicit deregister — the implicit
// deregister path described in §4.3.
func (t *Table) DeregisterByConn(conn net.Conn) (session.ID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, e := range t.entries {
		if e.Writer.Conn() == conn {
			delete(t.entries, id)
			return id, true
		}
	}
	return "", false
}

// Get returns a snapshot copy of the entry for id, if present. The
// returned Entry's turn is cloned so the caller cannot observe a later
// overwrite.
func (t *Table) Get(id session.ID) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return Entry{}, false
	}
	snap := *e
	if snap.hasTurn {
		snap.turn = snap.turn.Clone()
	}
	return snap, true
}

// SetTurn replaces id's latest-turn buffer atomically with turn. Returns
// false if id is not registered.
func (t *Table) SetTurn(id session.ID, turn session.Turn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return false
	}
	e.turn = turn
	e.hasTurn = true
	return true
}

// Turn returns id's latest completed turn, if any.
func (t *Table) Turn(id session.ID) (session.Turn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok || !e.hasTurn {
		return session.Turn{}, false
	}
	return e.turn.Clone(), true
}

// Writer returns the connection writer registered for id, for
// synthesizing an inject. Returns false if id is unknown.
func (t *Table) Writer(id session.ID) (*connWriter, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	return e.Writer, true
}

// Listing is one row of a list_sessions response.
type Listing struct {
	ID      session.ID
	PID     int
	HasTurn bool
}

// List returns a snapshot of every registered session. Order is
// unspecified — §4.3 makes no ordering promise for list_sessions.
func (t *Table) List() []Listing {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Listing, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, Listing{ID: e.ID, PID: e.PID, HasTurn: e.hasTurn})
	}
	return out
}

// Count returns the number of registered sessions, for metrics.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

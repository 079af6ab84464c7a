package broker

import (
	"sync"

	"github.com/clippyhq/clippy/internal/session"
)

// Relay is the broker's single global relay buffer (§3 Relay buffer):
// one slot of bytes plus the session it was captured from. Written only
// by capture, read only by paste, never implicitly cleared.
type Relay struct {
	mu      sync.Mutex
	content []byte
	source  session.ID
	full    bool
}

// NewRelay returns an empty relay buffer.
func NewRelay() *Relay {
	return &Relay{}
}

// Capture overwrites the relay with content, recording source for
// informational purposes. The prior content, if any, is discarded — the
// slot holds at most one value by construction.
func (r *Relay) Capture(source session.ID, content []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := make([]byte, len(content))
	copy(c, content)
	r.content = c
	r.source = source
	r.full = true
}

// Paste returns a copy of the relay's current content. Ok is false if
// the relay has never been captured into.
func (r *Relay) Paste() (content []byte, source session.ID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return nil, "", false
	}
	c := make([]byte, len(r.content))
	copy(c, r.content)
	return c, r.source, true
}

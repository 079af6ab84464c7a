package session

// Turn is a single completed turn: the agent's raw output between two
// prompt detections, with the prompt line and echoed user input already
// excluded by the detector.
//
// Content is byte-exact and opaque — clippy never inspects or mutates it.
//
// ID is assigned at creation rather than deferred to a later protocol
// version. The detector gives each turn it emits an ID, but the wrapper
// does not send it; the broker assigns its own ID when it accepts
// turn_completed, and that ID is the turn_id returned by both the
// turn_completed and capture responses, so a client can correlate the
// two even across a buffer replacement.
type Turn struct {
	ID          ID
	Content     []byte
	Interrupted bool
	Truncated   bool
}

// Size returns the byte length of the turn's content.
func (t Turn) Size() int {
	return len(t.Content)
}

// Empty reports whether the turn carries no bytes. The detector must
// never emit one of these (see turn.Detector), but callers that receive
// a Turn from an untrusted boundary (the wire) should still guard on it.
func (t Turn) Empty() bool {
	return len(t.Content) == 0
}

// Clone returns a Turn holding an independent copy of Content, so that a
// caller overwriting its own buffer cannot tear a copy held elsewhere.
func (t Turn) Clone() Turn {
	c := make([]byte, len(t.Content))
	copy(c, t.Content)
	return Turn{ID: t.ID, Content: c, Interrupted: t.Interrupted, Truncated: t.Truncated}
}

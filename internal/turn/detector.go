// Package turn implements the in-line turn detector: a small streaming
// state machine that segments an agent's output into completed turns by
// watching for prompt lines on an ANSI-stripped projection of the stream,
// while preserving raw bytes (ANSI included) for the emitted turn content.
package turn

import (
	"github.com/clippyhq/clippy/internal/session"
)

// DefaultMaxTurnSize is the recommended cap on a turn's accumulator
// before truncation kicks in (§4.2 Memory discipline).
const DefaultMaxTurnSize = 4 * 1024 * 1024

// state is the detector's position in the pre-ready / idle / responding
// machine described in the contract.
type state int

const (
	statePreReady state = iota
	stateIdle
	stateResponding
)

// Detector segments a live byte stream into completed turns. A Detector
// is owned by exactly one session and is not safe for concurrent use —
// callers serialize access the same way the wrapper serializes PTY reads.
type Detector struct {
	pattern session.Pattern
	maxSize int

	state state
	ansi  ansiStripper

	rawLine     []byte // raw bytes of the in-progress line, ANSI included
	strippedLine []byte // ANSI-stripped projection of the in-progress line

	accumulator []byte
	truncated   bool
	interrupt   bool

	onReady func()
}

// NewDetector creates a Detector for the given prompt pattern. maxSize
// bounds the turn accumulator; a value <= 0 selects DefaultMaxTurnSize.
func NewDetector(pattern session.Pattern, maxSize int) *Detector {
	if maxSize <= 0 {
		maxSize = DefaultMaxTurnSize
	}
	return &Detector{pattern: pattern, maxSize: maxSize, state: statePreReady}
}

// OnReady registers a callback invoked exactly once, the first time a
// prompt is recognized (the pre-ready -> idle transition). The wrapper
// uses this as the session-ready signal.
func (d *Detector) OnReady(fn func()) {
	d.onReady = fn
}

// InputSubmitted tells the detector the user submitted input, opening a
// new response window. Ignored unless the detector is idle: a session
// that hasn't seen its first prompt yet has nothing to respond to, and a
// detector already responding is already in the window it would open.
func (d *Detector) InputSubmitted() {
	if d.state != stateIdle {
		return
	}
	d.state = stateResponding
	d.accumulator = d.accumulator[:0]
	d.truncated = false
	d.interrupt = false
}

// Interrupt records that the user sent an interrupt character. If a turn
// is later emitted from the response window open at the time, it carries
// Interrupted=true. Calling it outside a response window is harmless —
// per the contract, interrupting before any prompt has been seen (or
// between turns) produces no turn, so the flag is simply never consumed.
func (d *Detector) Interrupt() {
	d.interrupt = true
}

// Write feeds raw child-output bytes to the detector in master-read
// order. It returns every turn completed by this call, in emission
// order, or nil if none. Write accepts chunks of any size (down to one
// byte); the same stream split differently yields the same turns.
func (d *Detector) Write(p []byte) []session.Turn {
	var turns []session.Turn
	for _, b := range p {
		if t, ok := d.writeByte(b); ok {
			turns = append(turns, t)
		}
	}
	return turns
}

func (d *Detector) writeByte(b byte) (session.Turn, bool) {
	d.rawLine = append(d.rawLine, b)

	ch, ok := d.ansi.filter(b)
	if !ok {
		return session.Turn{}, false
	}
	if ch == '\n' {
		lineRaw := d.rawLine
		line := d.strippedLine
		d.strippedLine = nil
		d.rawLine = nil
		return d.onLine(d.pattern.Match(line), lineRaw)
	}

	d.strippedLine = append(d.strippedLine, ch)

	// Prompts are usually left without a trailing newline — the cursor
	// just sits after them waiting for input — so a line that never
	// sees '\n' would otherwise never be tested. Check the un-terminated
	// tail on every byte instead of only at line boundaries.
	if d.pattern.Match(d.strippedLine) {
		lineRaw := d.rawLine
		d.strippedLine = nil
		d.rawLine = nil
		return d.onLine(true, lineRaw)
	}

	return session.Turn{}, false
}

func (d *Detector) onLine(isPrompt bool, lineRaw []byte) (session.Turn, bool) {
	switch d.state {
	case statePreReady:
		if isPrompt {
			d.state = stateIdle
			if d.onReady != nil {
				d.onReady()
				d.onReady = nil
			}
		}
		return session.Turn{}, false

	case stateIdle:
		// A prompt with nothing accumulated must not produce an empty
		// turn; a non-prompt line seen before any input was submitted
		// belongs to no turn and is discarded.
		return session.Turn{}, false

	case stateResponding:
		if !isPrompt {
			d.appendLine(lineRaw)
			return session.Turn{}, false
		}

		turn := session.Turn{
			ID:          session.NewID(),
			Content:     d.accumulator,
			Interrupted: d.interrupt,
			Truncated:   d.truncated,
		}
		d.accumulator = nil
		d.truncated = false
		d.interrupt = false
		d.state = stateIdle

		if turn.Empty() {
			return session.Turn{}, false
		}
		return turn, true

	default:
		return session.Turn{}, false
	}
}

func (d *Detector) appendLine(lineRaw []byte) {
	if d.truncated {
		return
	}
	room := d.maxSize - len(d.accumulator)
	if room <= 0 {
		d.truncated = true
		return
	}
	if len(lineRaw) > room {
		d.accumulator = append(d.accumulator, lineRaw[:room]...)
		d.truncated = true
		return
	}
	d.accumulator = append(d.accumulator, lineRaw...)
}

// Ready reports whether the detector has observed its first prompt.
func (d *Detector) Ready() bool {
	return d.state != statePreReady
}

// Responding reports whether the detector currently believes a response
// window is open (input was submitted and no closing prompt has arrived
// yet).
func (d *Detector) Responding() bool {
	return d.state == stateResponding
}

package turn

// ansiState tracks progress through an ANSI escape sequence so the
// stripper can resume correctly no matter how the byte stream is chunked
// — one byte at a time or the whole buffer at once yield the same result.
type ansiState int

const (
	ansiNormal ansiState = iota
	ansiEscape
	ansiCSI
	ansiOSC
	ansiOSCEscape
)

// ansiStripper produces a parallel, ANSI-free projection of a byte stream
// for prompt matching. It never buffers more than the current escape
// sequence, so it adds no meaningful memory overhead to the detector.
type ansiStripper struct {
	state ansiState
}

// filter consumes one raw byte and reports the stripped byte (ok=true) if
// the byte belongs to plain text, or ok=false if it was absorbed into a
// control sequence.
func (s *ansiStripper) filter(b byte) (ch byte, ok bool) {
	switch s.state {
	case ansiNormal:
		if b == 0x1b {
			s.state = ansiEscape
			return 0, false
		}
		return b, true

	case ansiEscape:
		switch b {
		case '[':
			s.state = ansiCSI
		case ']':
			s.state = ansiOSC
		default:
			// Two-byte escape (ESC followed by a single final byte), or
			// something we don't recognize — either way, consumed.
			s.state = ansiNormal
		}
		return 0, false

	case ansiCSI:
		// CSI parameter/intermediate bytes are 0x20-0x3F; the sequence
		// closes on the first final byte, 0x40-0x7E.
		if b >= 0x40 && b <= 0x7e {
			s.state = ansiNormal
		}
		return 0, false

	case ansiOSC:
		switch b {
		case 0x07: // BEL terminator
			s.state = ansiNormal
		case 0x1b:
			s.state = ansiOSCEscape
		}
		return 0, false

	case ansiOSCEscape:
		if b == '\\' {
			s.state = ansiNormal
		} else {
			// Not a valid ST (ESC \\); stay inside the OSC body.
			s.state = ansiOSC
		}
		return 0, false

	default:
		s.state = ansiNormal
		return 0, false
	}
}

// reset returns the stripper to its initial state. Nothing calls it
// between response windows: the stripper's state simply carries over
// from one window to the next.
func (s *ansiStripper) reset() {
	s.state = ansiNormal
}

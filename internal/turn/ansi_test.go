package turn

import "testing"

func stripAll(t *testing.T, chunks ...[]byte) string {
	t.Helper()
	var s ansiStripper
	var out []byte
	for _, chunk := range chunks {
		for _, b := range chunk {
			if ch, ok := s.filter(b); ok {
				out = append(out, ch)
			}
		}
	}
	return string(out)
}

func TestAnsiStripper_PlainText(t *testing.T) {
	got := stripAll(t, []byte("hello world\n"))
	if got != "hello world\n" {
		t.Fatalf("got %q", got)
	}
}

func TestAnsiStripper_CSISequence(t *testing.T) {
	input := []byte("\x1b[31mred\x1b[0m\n")
	got := stripAll(t, input)
	if got != "red\n" {
		t.Fatalf("got %q", got)
	}
}

func TestAnsiStripper_OSCSequenceBEL(t *testing.T) {
	input := []byte("\x1b]0;title\x07prompt\n")
	got := stripAll(t, input)
	if got != "prompt\n" {
		t.Fatalf("got %q", got)
	}
}

func TestAnsiStripper_OSCSequenceST(t *testing.T) {
	input := []byte("\x1b]0;title\x1b\\prompt\n")
	got := stripAll(t, input)
	if got != "prompt\n" {
		t.Fatalf("got %q", got)
	}
}

func TestAnsiStripper_IdempotentAcrossChunking(t *testing.T) {
	input := []byte("\x1b[1;32m> \x1b[0m\n")

	whole := stripAll(t, input)

	var oneByteAtATime [][]byte
	for _, b := range input {
		oneByteAtATime = append(oneByteAtATime, []byte{b})
	}
	chunked := stripAll(t, oneByteAtATime...)

	if whole != chunked {
		t.Fatalf("chunking changed result: whole=%q chunked=%q", whole, chunked)
	}
}

package turn

import (
	"testing"

	"github.com/clippyhq/clippy/internal/session"
	"github.com/stretchr/testify/require"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	p, err := session.CompilePattern(`^> $`, "generic")
	require.NoError(t, err)
	return NewDetector(p, 0)
}

func feed(d *Detector, s string) []session.Turn {
	return d.Write([]byte(s))
}

func TestDetector_FirstPromptIsReadySignalNotATurn(t *testing.T) {
	d := newTestDetector(t)

	var readyCalled bool
	d.OnReady(func() { readyCalled = true })

	turns := feed(d, "welcome banner\n> \n")
	require.Empty(t, turns)
	require.True(t, readyCalled)
	require.True(t, d.Ready())
}

func TestDetector_BasicTurn(t *testing.T) {
	d := newTestDetector(t)
	feed(d, "> \n") // reach idle

	d.InputSubmitted()
	turns := feed(d, "hello\n> \n")
	require.Len(t, turns, 1)
	require.Equal(t, "hello\n", string(turns[0].Content))
	require.False(t, turns[0].Interrupted)
	require.False(t, turns[0].Truncated)
}

func TestDetector_NoEmptyTurnsOnConsecutivePrompts(t *testing.T) {
	d := newTestDetector(t)
	feed(d, "> \n")

	d.InputSubmitted()
	turns := feed(d, "> \n") // prompt again immediately, nothing accumulated
	require.Empty(t, turns)
	require.True(t, d.Responding() == false)
}

func TestDetector_PromptLineAndEchoExcluded(t *testing.T) {
	d := newTestDetector(t)
	feed(d, "> \n")

	d.InputSubmitted()
	turns := feed(d, "line one\nline two\n> \n")
	require.Len(t, turns, 1)
	require.Equal(t, "line one\nline two\n", string(turns[0].Content))
}

func TestDetector_Interrupted(t *testing.T) {
	d := newTestDetector(t)
	feed(d, "> \n")

	d.InputSubmitted()
	feed(d, "partial output")
	d.Interrupt()
	turns := feed(d, "\n> \n")
	require.Len(t, turns, 1)
	require.True(t, turns[0].Interrupted)
	require.Equal(t, "partial output\n", string(turns[0].Content))
}

func TestDetector_InterruptBeforeAnyPromptProducesNoTurn(t *testing.T) {
	d := newTestDetector(t)
	d.Interrupt()
	turns := feed(d, "some startup noise\n")
	require.Empty(t, turns)
	require.False(t, d.Ready())
}

func TestDetector_Replacement(t *testing.T) {
	d := newTestDetector(t)
	feed(d, "> \n")

	d.InputSubmitted()
	turnsA := feed(d, "aaa\n> \n")
	require.Len(t, turnsA, 1)
	require.Equal(t, "aaa\n", string(turnsA[0].Content))

	d.InputSubmitted()
	turnsB := feed(d, "bbb\n> \n")
	require.Len(t, turnsB, 1)
	require.Equal(t, "bbb\n", string(turnsB[0].Content))
}

func TestDetector_TruncationCapsAccumulator(t *testing.T) {
	p, err := session.CompilePattern(`^> $`, "generic")
	require.NoError(t, err)
	d := NewDetector(p, 8)
	feed(d, "> \n")

	d.InputSubmitted()
	turns := feed(d, "0123456789\n> \n")
	require.Len(t, turns, 1)
	require.True(t, turns[0].Truncated)
	require.LessOrEqual(t, len(turns[0].Content), 8)
}

func TestDetector_UnterminatedPromptLineClosesTurn(t *testing.T) {
	d := newTestDetector(t)
	feed(d, "> \n")
	d.InputSubmitted()

	// The prompt reappears with no trailing newline — the real-world case
	// for every agent that leaves the cursor sitting right after "> ".
	turns := feed(d, "hello\n> ")
	require.Len(t, turns, 1)
	require.Equal(t, "hello\n", string(turns[0].Content))
	require.False(t, d.Responding())
}

func TestDetector_UnterminatedPromptDuringFirstReady(t *testing.T) {
	d := newTestDetector(t)

	var readyCalled bool
	d.OnReady(func() { readyCalled = true })

	turns := feed(d, "welcome banner\n> ") // no trailing newline either
	require.Empty(t, turns)
	require.True(t, readyCalled)
	require.True(t, d.Ready())
}

func TestDetector_ByteAtATimeMatchesWholeChunk(t *testing.T) {
	input := "hello\nworld\n> \n"

	dWhole := newTestDetector(t)
	feed(dWhole, "> \n")
	dWhole.InputSubmitted()
	wholeTurns := feed(dWhole, input)

	dByte := newTestDetector(t)
	feed(dByte, "> \n")
	dByte.InputSubmitted()
	var byteTurns []session.Turn
	for i := 0; i < len(input); i++ {
		byteTurns = append(byteTurns, dByte.Write([]byte{input[i]})...)
	}

	// Every emitted turn gets a freshly minted ID, so IDs are cleared
	// before comparing the rest of each turn.
	for i := range wholeTurns {
		wholeTurns[i].ID = ""
	}
	for i := range byteTurns {
		byteTurns[i].ID = ""
	}
	require.Equal(t, wholeTurns, byteTurns)
}

func TestCompilePattern_RejectsMultiline(t *testing.T) {
	_, err := session.CompilePattern("a\nb", "custom")
	require.ErrorIs(t, err, session.ErrMultilinePattern)
}

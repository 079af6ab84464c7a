// Package wrapper implements clippy-wrap: the per-session process that
// allocates a pseudoterminal, spawns the agent on its slave, mediates
// bytes between the user's terminal and the child, and feeds a parallel
// copy of the child's output to a turn detector (§4.1).
package wrapper

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// startPTY spawns cmd attached to a freshly allocated PTY, with initial
// dimensions copied from the user's terminal (stdin) at launch.
func startPTY(cmd *exec.Cmd) (*os.File, error) {
	size, err := pty.GetsizeFull(os.Stdin)
	if err != nil {
		// Stdin may not be a terminal (e.g. under a test harness or a
		// pipe) — fall back to pty.Start's own default size.
		f, startErr := pty.Start(cmd)
		if startErr != nil {
			return nil, fmt.Errorf("wrapper: start pty: %w", startErr)
		}
		return f, nil
	}
	f, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return nil, fmt.Errorf("wrapper: start pty: %w", err)
	}
	return f, nil
}

// rawTerminal snapshots the current terminal state of fd and switches it
// to raw mode. The returned restore function must be called on every
// exit path (§4.1 Terminal discipline); if fd was not a terminal to
// begin with, it is a no-op that returns nil.
func rawTerminal(fd int) (restore func() error, err error) {
	if !term.IsTerminal(fd) {
		return func() error { return nil }, nil
	}
	prev, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("wrapper: enter raw mode: %w", err)
	}
	return func() error { return term.Restore(fd, prev) }, nil
}

// resizePTY propagates the user terminal's current dimensions to the
// child's PTY master, in response to SIGWINCH.
func resizePTY(master *os.File) error {
	size, err := pty.GetsizeFull(os.Stdin)
	if err != nil {
		return fmt.Errorf("wrapper: read terminal size: %w", err)
	}
	return pty.Setsize(master, size)
}

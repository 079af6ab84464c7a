package wrapper

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/clippyhq/clippy/internal/session"
	"github.com/clippyhq/clippy/internal/turn"
)

// state is the lifecycle state machine from §4.1's table.
type state int

const (
	stateStarting state = iota
	stateRunning
	stateDraining
	stateClosing
	stateExited
)

// Wrapper mediates one agent invocation under a PTY. It owns the PTY
// master exclusively (§5 Shared resources) and is not shared across
// goroutines beyond the ones it starts itself.
type Wrapper struct {
	id     session.ID
	cmd    *exec.Cmd
	master *os.File

	detector *turn.Detector
	detMu    sync.Mutex // serializes detector access from the output and input goroutines
	broker   *BrokerClient

	log *slog.Logger

	mu        sync.Mutex
	state     state
	restoreFn func() error

	done chan struct{}
	errs chan error

	exitCode int
	exitSig  syscall.Signal
	hadSig   bool
}

// Options configures a new Wrapper.
type Options struct {
	Command []string
	Pattern session.Pattern
	MaxTurnBytes int
	Broker  *BrokerClient
	Log     *slog.Logger
}

// New constructs a Wrapper in the starting state. It does not yet spawn
// the child — call Run for that.
func New(opts Options) (*Wrapper, error) {
	if len(opts.Command) == 0 {
		return nil, errors.New("wrapper: no command given")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	w := &Wrapper{
		id:       session.NewID(),
		log:      log,
		detector: turn.NewDetector(opts.Pattern, opts.MaxTurnBytes),
		broker:   opts.Broker,
		done:     make(chan struct{}),
		errs:     make(chan error, 8),
		state:    stateStarting,
	}

	w.cmd = exec.Command(opts.Command[0], opts.Command[1:]...)
	w.cmd.Env = os.Environ()
	w.cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	return w, nil
}

// Errors returns the channel operational faults (§7) are reported on.
// Callers should drain it; cleanup failures appear here too without
// halting shutdown.
func (w *Wrapper) Errors() <-chan error {
	return w.errs
}

func (w *Wrapper) reportError(err error) {
	select {
	case w.errs <- err:
	default:
		w.log.Warn("dropped wrapper error, channel full", "error", err)
	}
}

func (w *Wrapper) setState(s state) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// State reports the wrapper's current lifecycle state, for tests and
// diagnostics.
func (w *Wrapper) State() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case stateStarting:
		return "starting"
	case stateRunning:
		return "running"
	case stateDraining:
		return "draining"
	case stateClosing:
		return "closing"
	default:
		return "exited"
	}
}

// Run spawns the child, mediates I/O until it exits, and tears down
// cleanly. It blocks until the exited state is reached and returns the
// same error exec.Cmd.Wait would, if any.
func (w *Wrapper) Run() error {
	restore, err := rawTerminal(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("wrapper: %w", err)
	}
	w.restoreFn = restore

	master, err := startPTY(w.cmd)
	if err != nil {
		_ = restore()
		return err
	}
	w.master = master

	if w.broker != nil {
		w.broker.SetInjectWriter(func(data []byte) error {
			_, err := w.master.Write(data)
			return err
		})
		w.broker.Connect(w.sessionID())
	}

	w.setState(stateRunning)
	w.detector.OnReady(func() {
		if w.broker != nil {
			w.broker.NotifyReady()
		}
	})

	go w.signalLoop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.copyUserInput()
	}()
	go func() {
		defer wg.Done()
		w.copyChildOutput()
	}()

	waitErr := w.cmd.Wait()
	w.setState(stateDraining)
	close(w.done)
	wg.Wait()

	w.setState(stateClosing)
	w.teardown()
	w.setState(stateExited)

	w.recordExit(waitErr)
	return waitErr
}

func (w *Wrapper) sessionID() session.ID {
	return w.id
}

// copyChildOutput is the output path (§4.1): every byte read from the
// PTY master goes to the user's terminal unmodified and, independently,
// into the turn detector. Detector work can never stall the user-visible
// stream because it only ever mutates in-memory state — there is no
// blocking call between the two writes.
func (w *Wrapper) copyChildOutput() {
	buf := make([]byte, 32*1024)
	for {
		n, err := w.master.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, werr := os.Stdout.Write(chunk); werr != nil {
				w.reportError(fmt.Errorf("wrapper: write to user terminal: %w", werr))
			}
			w.detMu.Lock()
			turns := w.detector.Write(chunk)
			w.detMu.Unlock()
			for _, t := range turns {
				w.publishTurn(t)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				w.reportError(fmt.Errorf("wrapper: read pty master: %w", err))
			}
			return
		}
	}
}

// copyUserInput is the input path (§4.1): every byte read from the
// user's terminal is written to the PTY master unmodified. It also marks
// input submission on newline so the detector can open a response
// window without inspecting echoed PTY output.
func (w *Wrapper) copyUserInput() {
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, werr := w.master.Write(chunk); werr != nil {
				w.reportError(fmt.Errorf("wrapper: write to pty master: %w", werr))
				return
			}
			w.observeInput(chunk)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				w.reportError(fmt.Errorf("wrapper: read user terminal: %w", err))
			}
			return
		}
		select {
		case <-w.done:
			return
		default:
		}
	}
}

// observeInput watches raw user keystrokes for submission and interrupt
// characters. This is the "tracking bytes written to the PTY master"
// mechanism §4.2 calls out as one acceptable option for input-submission
// detection: a carriage return or linefeed opens a response window, and
// Ctrl-C (0x03) marks the window interrupted.
func (w *Wrapper) observeInput(chunk []byte) {
	w.detMu.Lock()
	defer w.detMu.Unlock()
	for _, b := range chunk {
		switch b {
		case '\r', '\n':
			w.detector.InputSubmitted()
		case 0x03:
			w.detector.Interrupt()
		}
	}
}

func (w *Wrapper) publishTurn(t session.Turn) {
	if w.broker != nil {
		w.broker.PublishTurn(t)
	}
}

func (w *Wrapper) beginShutdown() {
	w.setState(stateDraining)
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Signal(syscall.SIGTERM)
	}
}

func (w *Wrapper) teardown() {
	if w.broker != nil {
		w.broker.Deregister(w.sessionID())
		w.broker.Close()
	}
	if w.restoreFn != nil {
		if err := w.restoreFn(); err != nil {
			w.reportError(fmt.Errorf("wrapper: restore terminal: %w", err))
		}
	}
	if w.master != nil {
		_ = w.master.Close()
	}
}

func (w *Wrapper) recordExit(waitErr error) {
	if waitErr == nil {
		w.exitCode = 0
		return
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				w.hadSig = true
				w.exitSig = ws.Signal()
				return
			}
			w.exitCode = ws.ExitStatus()
			return
		}
		w.exitCode = exitErr.ExitCode()
	}
}

// ExitCode returns the child's exit code, valid when ExitSignal reports
// no signal.
func (w *Wrapper) ExitCode() int { return w.exitCode }

// ExitSignal reports the signal the child died by, if any (§4.1 Exit
// code: the wrapper re-raises it after cleanup).
func (w *Wrapper) ExitSignal() (syscall.Signal, bool) { return w.exitSig, w.hadSig }

// Reraise sends the child's terminating signal to the wrapper's own
// process after cleanup, so the parent shell observes the correct
// disposition (§4.1). No-op if the child exited normally.
func (w *Wrapper) Reraise() {
	if !w.hadSig {
		return
	}
	signal.Reset(w.exitSig)
	_ = syscall.Kill(os.Getpid(), w.exitSig)
}

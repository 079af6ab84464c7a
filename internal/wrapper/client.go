package wrapper

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clippyhq/clippy/internal/session"
	"github.com/clippyhq/clippy/internal/wire"
)

// BrokerClient manages the wrapper's persistent connection to the
// broker: registration, turn publication, and receipt of unsolicited
// inject commands. Per §4.1 Broker unreachability, publication failures
// are never fatal — a turn that cannot be sent is held in a single-slot
// local buffer and retried opportunistically.
type BrokerClient struct {
	addr    string
	pattern session.Pattern
	pid     int
	log     *slog.Logger
	backoff []int // milliseconds, indexed by consecutive failed dial attempts

	mu          sync.Mutex
	conn        *wire.Conn
	id          session.ID
	pending     *session.Turn // single-slot local buffer, overwritten on each new completion
	attempt     int
	nextAttempt time.Time

	injectMu sync.Mutex
	inject   func([]byte) error
}

// NewBrokerClient constructs a client for the broker at addr (a unix
// socket path). pattern is reported to the broker as informational
// metadata only; it never governs broker-side behavior. backoffMs is the
// reconnect-delay schedule (config's broker.reconnect_backoff_ms); the
// last entry repeats once exhausted. A nil or empty schedule means retry
// immediately on every call, with no backoff.
func NewBrokerClient(addr string, pattern session.Pattern, pid int, log *slog.Logger, backoffMs []int) *BrokerClient {
	if log == nil {
		log = slog.Default()
	}
	return &BrokerClient{addr: addr, pattern: pattern, pid: pid, log: log, backoff: backoffMs}
}

// SetInjectWriter registers the function used to deliver unsolicited
// inject payloads to the PTY master. Must be called before Connect.
func (b *BrokerClient) SetInjectWriter(fn func([]byte) error) {
	b.injectMu.Lock()
	b.inject = fn
	b.injectMu.Unlock()
}

// Connect attempts to dial and register id with the broker. A failure
// here is non-fatal (§7 Broker-unreachability in the wrapper) — it logs
// and leaves the client to retry opportunistically on the next publish.
func (b *BrokerClient) Connect(id session.ID) {
	b.mu.Lock()
	b.id = id
	b.mu.Unlock()

	if err := b.dial(); err != nil {
		b.log.Warn("broker unreachable at startup, buffering turns locally", "error", err)
		return
	}
	b.flushPending()
}

// dial connects and registers, unless a prior failed attempt has not yet
// cleared its backoff delay — §4.1 Broker unreachability describes
// opportunistic reconnection, which without a delay would mean one dial
// attempt per completed turn against a broker that is actually down.
func (b *BrokerClient) dial() error {
	b.mu.Lock()
	if wait := time.Until(b.nextAttempt); wait > 0 {
		b.mu.Unlock()
		return fmt.Errorf("broker: reconnect backoff in effect, %s remaining", wait.Round(time.Millisecond))
	}
	b.mu.Unlock()

	conn, err := wire.Dial(b.addr, b.handleUnsolicited)
	if err != nil {
		b.recordDialFailure()
		return err
	}

	ack, err := conn.Request(wire.TypeHello, map[string]any{
		"version": wire.ProtocolVersion, "role": wire.RoleWrapper,
	})
	if err != nil {
		conn.Close()
		b.recordDialFailure()
		return err
	}
	if status, _ := ack["status"].(string); status != "ok" {
		conn.Close()
		b.recordDialFailure()
		return fmt.Errorf("broker: handshake failed: %v", ack["error"])
	}

	resp, err := conn.Request(wire.TypeRegister, map[string]any{
		"session": string(b.id), "pid": b.pid, "pattern": b.pattern.Source, "preset": b.pattern.Preset,
	})
	if err != nil {
		conn.Close()
		b.recordDialFailure()
		return err
	}
	if ok, _ := resp["ok"].(bool); !ok {
		conn.Close()
		b.recordDialFailure()
		return fmt.Errorf("broker: register failed: %v", resp["error"])
	}

	b.mu.Lock()
	b.conn = conn
	b.attempt = 0
	b.nextAttempt = time.Time{}
	b.mu.Unlock()
	return nil
}

// recordDialFailure schedules the next permitted dial attempt using the
// backoff schedule, advancing one step (capped at the schedule's last
// entry) per consecutive failure.
func (b *BrokerClient) recordDialFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.backoff) == 0 {
		return
	}
	idx := b.attempt
	if idx >= len(b.backoff) {
		idx = len(b.backoff) - 1
	}
	b.nextAttempt = time.Now().Add(time.Duration(b.backoff[idx]) * time.Millisecond)
	if b.attempt < len(b.backoff) {
		b.attempt++
	}
}

func (b *BrokerClient) handleUnsolicited(payload map[string]any) {
	if payload["type"] != wire.TypeInject {
		return
	}
	data, _ := payload["data"].([]byte)
	if len(data) == 0 {
		return
	}
	b.injectMu.Lock()
	fn := b.inject
	b.injectMu.Unlock()
	if fn != nil {
		if err := fn(data); err != nil {
			b.log.Warn("failed to write injected bytes to pty master", "error", err)
		}
	}
}

// NotifyReady is a hook for the session-ready signal; clippy-wrap has no
// separate ready notification to the broker in v0 (registration itself
// is the signal other wrappers and clients observe via list_sessions),
// so this only logs for operators watching the process.
func (b *BrokerClient) NotifyReady() {
	b.log.Info("session ready", "session", string(b.id))
}

// PublishTurn reports a completed turn. If the connection is down, the
// turn replaces whatever was previously buffered and publication is
// retried on the next PublishTurn call or reconnect.
func (b *BrokerClient) PublishTurn(t session.Turn) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	if conn == nil {
		if err := b.dial(); err != nil {
			b.bufferLocally(t)
			return
		}
		b.flushPending()
		b.mu.Lock()
		conn = b.conn
		b.mu.Unlock()
	}

	if err := b.send(conn, t); err != nil {
		b.log.Warn("publish turn failed, buffering locally", "error", err)
		b.mu.Lock()
		b.conn = nil
		b.mu.Unlock()
		b.bufferLocally(t)
	}
}

func (b *BrokerClient) send(conn *wire.Conn, t session.Turn) error {
	resp, err := conn.Request(wire.TypeTurnCompleted, map[string]any{
		"session": string(b.id), "content": t.Content, "interrupted": t.Interrupted, "truncated": t.Truncated,
	})
	if err != nil {
		return err
	}
	if ok, _ := resp["ok"].(bool); !ok {
		return fmt.Errorf("broker: turn_completed failed: %v", resp["error"])
	}
	return nil
}

func (b *BrokerClient) bufferLocally(t session.Turn) {
	clone := t.Clone()
	b.mu.Lock()
	b.pending = &clone
	b.mu.Unlock()
}

func (b *BrokerClient) flushPending() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	conn := b.conn
	b.mu.Unlock()

	if pending == nil || conn == nil {
		return
	}
	if err := b.send(conn, *pending); err != nil {
		b.log.Warn("failed to flush buffered turn", "error", err)
		b.bufferLocally(*pending)
	}
}

// Deregister tells the broker this session is going away. Best effort —
// §4.1 closing state calls deregistration best-effort only.
func (b *BrokerClient) Deregister(id session.ID) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return
	}
	_, _ = conn.Request(wire.TypeDeregister, map[string]any{"session": string(id)})
}

// Close closes the broker connection, if any.
func (b *BrokerClient) Close() {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

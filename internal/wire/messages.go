package wire

// ProtocolVersion is the version advertised in hello and checked by the
// broker against the connecting peer's hello. A mismatch is a protocol
// fault: the broker replies hello_ack{status:"error"} and closes.
const ProtocolVersion = 1

// Message type strings (§6 Message catalogue).
const (
	TypeHello         = "hello"
	TypeHelloAck      = "hello_ack"
	TypeRegister      = "register"
	TypeDeregister    = "deregister"
	TypeTurnCompleted = "turn_completed"
	TypeCapture       = "capture"
	TypePaste         = "paste"
	TypeListSessions  = "list_sessions"
	TypeInject        = "inject"
	// TypeDeliver is the v1+ sink-directed delivery request mentioned in
	// §6 Forward compatibility. Only the file sink is implemented here —
	// clipboard delivery needs a platform-specific adapter, which §1
	// defers to v2+.
	TypeDeliver = "deliver"
	TypeResponse = "response"
)

// Connection roles asserted by hello (§6 Handshake).
const (
	RoleWrapper = "wrapper"
	RoleClient  = "client"
)

// Error codes (§6 Error catalogue).
const (
	ErrSessionNotFound     = "session_not_found"
	ErrNoTurn              = "no_turn"
	ErrBufferEmpty         = "buffer_empty"
	ErrSessionDisconnected = "session_disconnected"
	ErrDuplicateSession    = "duplicate_session"
	ErrVersionMismatch     = "version_mismatch"
	ErrUnknownType         = "unknown_type"
	ErrPayloadTooLarge     = "payload_too_large"
	ErrFileWriteFailed     = "file_write_failed"
	ErrInvalidRequest      = "invalid_request"
	ErrForbiddenRole       = "forbidden_role"
)

// UnsolicitedID is the request id reserved for the initial handshake and
// for broker-initiated unsolicited messages (inject). Conn never
// allocates it to a request, so a hello sent through Conn.Request
// carries a nonzero id; the broker echoes whatever id the hello carries.
const UnsolicitedID = 0

// Error is a structured protocol-level error, distinct from a Go error,
// that a handler attaches to a response payload.
type Error struct {
	Code string
}

func (e Error) Error() string { return e.Code }

// NewError builds an {"ok": false, "error": code} fragment merged into a
// response payload by the caller.
func NewError(code string) map[string]any {
	return map[string]any{"ok": false, "error": code}
}

// NewOK builds an {"ok": true, ...extra} fragment.
func NewOK(extra map[string]any) map[string]any {
	out := map[string]any{"ok": true}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

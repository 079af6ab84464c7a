package broker

import (
	"github.com/clippyhq/clippy/internal/session"
	"github.com/clippyhq/clippy/internal/wire"
)

// dispatch executes one request against the table and relay and returns
// the payload to send back (nil suppresses a response, used only for the
// unsolicited inject path which never appears here) and whether the
// connection must be closed afterward (protocol faults per §7).
//
// register/deregister/turn_completed mutate a session's identity and
// turn content on the wrapper's behalf; only a connection that asserted
// the wrapper role at handshake may issue them (§6 Handshake).
func (b *Broker) dispatch(role string, writer *connWriter, msgType string, payload map[string]any) (map[string]any, bool) {
	switch msgType {
	case wire.TypeRegister:
		if role != wire.RoleWrapper {
			return wire.NewError(wire.ErrForbiddenRole), false
		}
		return b.handleRegister(writer, payload), false
	case wire.TypeDeregister:
		if role != wire.RoleWrapper {
			return wire.NewError(wire.ErrForbiddenRole), false
		}
		return b.handleDeregister(payload), false
	case wire.TypeTurnCompleted:
		if role != wire.RoleWrapper {
			return wire.NewError(wire.ErrForbiddenRole), false
		}
		return b.handleTurnCompleted(payload), false
	case wire.TypeCapture:
		return b.handleCapture(payload), false
	case wire.TypePaste:
		return b.handlePaste(payload), false
	case wire.TypeListSessions:
		return b.handleListSessions(), false
	case wire.TypeDeliver:
		return b.handleDeliver(payload), false
	default:
		return wire.NewError(wire.ErrUnknownType), false
	}
}

func (b *Broker) handleRegister(writer *connWriter, payload map[string]any) map[string]any {
	sid, _ := asString(payload, "session")
	pid, _ := asInt(payload, "pid")
	patternSrc, _ := asString(payload, "pattern")
	preset, _ := asString(payload, "preset")

	desc := session.Descriptor{Source: patternSrc, Preset: preset}
	if err := b.table.Register(session.ID(sid), pid, desc, writer); err != nil {
		return wire.NewError(wire.ErrDuplicateSession)
	}
	b.metrics.registeredSessions.Set(float64(b.table.Count()))
	return wire.NewOK(nil)
}

func (b *Broker) handleDeregister(payload map[string]any) map[string]any {
	sid, _ := asString(payload, "session")
	b.table.Deregister(session.ID(sid))
	b.metrics.registeredSessions.Set(float64(b.table.Count()))
	return wire.NewOK(nil)
}

func (b *Broker) handleTurnCompleted(payload map[string]any) map[string]any {
	sid, _ := asString(payload, "session")
	content, _ := asBytes(payload, "content")
	interrupted := asBool(payload, "interrupted")
	truncated := asBool(payload, "truncated")

	turn := session.Turn{
		ID:          session.NewID(),
		Content:     content,
		Interrupted: interrupted,
		Truncated:   truncated,
	}
	if !b.table.SetTurn(session.ID(sid), turn) {
		return wire.NewError(wire.ErrSessionNotFound)
	}
	b.metrics.turnsCompleted.Inc()
	return wire.NewOK(map[string]any{"turn_id": string(turn.ID)})
}

func (b *Broker) handleCapture(payload map[string]any) map[string]any {
	sid, _ := asString(payload, "session")
	turn, ok := b.table.Turn(session.ID(sid))
	if !ok {
		if _, present := b.table.Get(session.ID(sid)); !present {
			return wire.NewError(wire.ErrSessionNotFound)
		}
		return wire.NewError(wire.ErrNoTurn)
	}
	b.relay.Capture(session.ID(sid), turn.Content)
	b.metrics.captures.Inc()
	b.metrics.bytesRelayed.Add(float64(len(turn.Content)))
	return wire.NewOK(map[string]any{"size": len(turn.Content), "turn_id": string(turn.ID)})
}

func (b *Broker) handlePaste(payload map[string]any) map[string]any {
	sid, _ := asString(payload, "session")
	targetWriter, ok := b.table.Writer(session.ID(sid))
	if !ok {
		b.metrics.pasteErrors.WithLabelValues(wire.ErrSessionNotFound).Inc()
		return wire.NewError(wire.ErrSessionNotFound)
	}

	content, _, ok := b.relay.Paste()
	if !ok {
		b.metrics.pasteErrors.WithLabelValues(wire.ErrBufferEmpty).Inc()
		return wire.NewError(wire.ErrBufferEmpty)
	}

	// Respond to the client only after the inject has been enqueued on
	// the target's connection, per §4.3 — not after the child consumes
	// it, which the broker has no visibility into. Going through the
	// target's connWriter (rather than writing to its net.Conn directly)
	// keeps this write from interleaving with that connection's own
	// response-writing goroutine.
	err := targetWriter.WriteFrame(map[string]any{
		"type": wire.TypeInject,
		"id":   uint32(wire.UnsolicitedID),
		"data": content,
	})
	if err != nil {
		b.metrics.pasteErrors.WithLabelValues(wire.ErrSessionDisconnected).Inc()
		return wire.NewError(wire.ErrSessionDisconnected)
	}

	b.metrics.pastes.Inc()
	return wire.NewOK(nil)
}

func (b *Broker) handleListSessions() map[string]any {
	rows := b.table.List()
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, map[string]any{
			"session":  string(r.ID),
			"pid":      r.PID,
			"has_turn": r.HasTurn,
		})
	}
	return wire.NewOK(map[string]any{"sessions": out})
}

package broker

import (
	"os"

	"github.com/clippyhq/clippy/internal/wire"
)

// handleDeliver implements the v1+ deliver request mentioned in §6
// Forward compatibility, scoped to the file sink only. It writes the
// relay buffer's current content to the path named by the "path" field.
// Clipboard delivery needs a platform-specific adapter and stays out of
// scope per §1.
func (b *Broker) handleDeliver(payload map[string]any) map[string]any {
	path, ok := asString(payload, "path")
	if !ok || path == "" {
		return wire.NewError(wire.ErrInvalidRequest)
	}

	content, _, ok := b.relay.Paste()
	if !ok {
		return wire.NewError(wire.ErrBufferEmpty)
	}

	if err := os.WriteFile(path, content, 0o600); err != nil {
		return wire.NewError(wire.ErrFileWriteFailed)
	}
	return wire.NewOK(map[string]any{"size": len(content)})
}

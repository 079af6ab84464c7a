// Package wire implements the broker/wrapper/client IPC: length-prefixed
// frames carrying a MessagePack map payload, as specified in §6.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize is the maximum payload size in bytes (§5 Backpressure).
// Frames whose declared length exceeds this are rejected without being
// read into memory.
const MaxFrameSize = 16 * 1024 * 1024

// lengthPrefixSize is the width of the big-endian frame-length header.
const lengthPrefixSize = 4

// ErrFrameTooLarge is returned by ReadFrame when a frame's declared
// length exceeds MaxFrameSize.
var ErrFrameTooLarge = fmt.Errorf("wire: frame exceeds %d byte limit", MaxFrameSize)

// WriteFrame encodes payload as MessagePack and writes it to w as a
// length-prefixed frame. It returns ErrFrameTooLarge if the encoded
// payload would exceed MaxFrameSize — callers should treat this as a
// protocol fault (§7) and close the connection.
func WriteFrame(w io.Writer, payload map[string]any) error {
	body, err := msgpack.Marshal(payload)
	if err != nil {
		return fmt.Errorf("wire: marshal payload: %w", err)
	}
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	var header [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r and decodes its
// MessagePack payload into a map. It returns ErrFrameTooLarge without
// consuming the body if the declared length is oversize.
func ReadFrame(r io.Reader) (map[string]any, error) {
	var header [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("wire: read frame body: %w", err)
	}

	var payload map[string]any
	if err := msgpack.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("wire: unmarshal payload: %w", err)
	}
	return payload, nil
}

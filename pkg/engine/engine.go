// Package engine defines the contract between the room coordinator and the
// Room State Engine that owns document records.
//
// The coordinator never interprets frames. It hands raw inbound frames to
// Engine.OnRawMessage and gives the engine a Socket per session so the engine
// can deliver outbound frames itself.
//
// The contract is fixed: every method is always present. Implementations must
// be safe for concurrent use, since frames from different connections arrive
// on different goroutines.
package engine

import "fmt"

// FrameKind distinguishes text and binary transport frames.
type FrameKind uint8

const (
	// FrameText is a UTF-8 text frame.
	FrameText FrameKind = iota + 1

	// FrameBinary is an opaque binary frame.
	FrameBinary
)

// String returns the frame kind name.
func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	default:
		return fmt.Sprintf("FrameKind(%d)", k)
	}
}

// Frame is a single transport message, passed through verbatim.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Text returns a text frame carrying s.
func Text(s string) Frame {
	return Frame{Kind: FrameText, Data: []byte(s)}
}

// Socket is the outbound half of a connection as seen by the engine.
// Send must not block; implementations queue or fail fast.
type Socket interface {
	Send(f Frame) error
	Close(code int, reason string) error
}

// Schema identifies the record schema an engine is constructed with.
type Schema struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

// Engine is the Room State Engine capability.
type Engine interface {
	// OnSessionJoin registers a session and the socket used to reach it.
	OnSessionJoin(sessionID string, sock Socket)

	// OnSessionLeave releases per-session resources.
	OnSessionLeave(sessionID string)

	// OnRawMessage applies one inbound frame from a session.
	OnRawMessage(sessionID string, f Frame)

	// CurrentSnapshot serializes the full document state.
	CurrentSnapshot() ([]byte, error)

	// SetChangeCallback installs the function called after state changes.
	SetChangeCallback(fn func())
}

// Factory constructs an engine. A nil initial snapshot yields an empty document.
type Factory func(schema Schema, initial []byte) (Engine, error)

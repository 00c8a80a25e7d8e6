package room

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrMissingSession is returned when a connection carries no session id.
	ErrMissingSession = errors.New("room: missing session id")

	// ErrRoomNotIdentified is returned when the engine is requested before
	// any room id has been fixed for the instance.
	ErrRoomNotIdentified = errors.New("room: room not identified")

	// ErrRoomMismatch is returned when a connection names a room other than
	// the one the instance already serves.
	ErrRoomMismatch = errors.New("room: room id does not match instance")

	// ErrInvalidRoomID is returned for empty or malformed room ids.
	ErrInvalidRoomID = errors.New("room: invalid room id")

	// ErrSessionReplaced is returned by Accept when a newer connection took
	// over the session while this one was still joining.
	ErrSessionReplaced = errors.New("room: session replaced")

	// ErrRoomClosed is returned by Accept once the room has shut down.
	ErrRoomClosed = errors.New("room: room closed")
)

// MaxRoomIDLength bounds room ids, which end up in storage keys.
const MaxRoomIDLength = 128

// ValidateRoomID reports whether id can name a room.
func ValidateRoomID(id string) error {
	if id == "" || len(id) > MaxRoomIDLength {
		return ErrInvalidRoomID
	}
	if strings.ContainsAny(id, "/\\") {
		return ErrInvalidRoomID
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return ErrInvalidRoomID
		}
	}
	return nil
}

// PersistError wraps a failed snapshot or identity write.
type PersistError struct {
	Room string
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *PersistError) Error() string {
	return fmt.Sprintf("room %s: %s: %v", e.Room, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistError) Unwrap() error {
	return e.Err
}

package room

import (
	"context"
	"fmt"
	"sync"

	"github.com/vango-dev/roomsync/pkg/storage"
)

// identityKey is where an instance records the room it serves.
const identityKey = "roomId"

// Identity is the room id an instance serves. Once fixed it never changes.
type Identity struct {
	mu    sync.Mutex
	id    string
	state storage.Store
}

// NewIdentity creates an unfixed identity persisted to state.
func NewIdentity(state storage.Store) *Identity {
	return &Identity{state: state}
}

// Load reads a previously fixed id from state. Called once at cold start.
func (i *Identity) Load(ctx context.Context) error {
	data, err := i.state.Get(ctx, identityKey)
	if err != nil {
		return fmt.Errorf("room: load identity: %w", err)
	}
	if data == nil {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.id == "" {
		i.id = string(data)
	}
	return nil
}

// Fix sets the id on first use and confirms it afterwards.
func (i *Identity) Fix(ctx context.Context, roomID string) error {
	if err := ValidateRoomID(roomID); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.id != "" {
		if i.id != roomID {
			return fmt.Errorf("%w: serving %q, got %q", ErrRoomMismatch, i.id, roomID)
		}
		return nil
	}

	if err := i.state.Put(ctx, identityKey, []byte(roomID)); err != nil {
		return &PersistError{Room: roomID, Op: "store identity", Err: err}
	}
	i.id = roomID
	return nil
}

// ID returns the fixed id.
func (i *Identity) ID() (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.id, i.id != ""
}

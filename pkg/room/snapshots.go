package room

import (
	"context"

	"github.com/vango-dev/roomsync/pkg/storage"
)

// SnapshotStore reads and writes room snapshots keyed by room id.
type SnapshotStore struct {
	store storage.Store
}

// NewSnapshotStore adapts a key/value store.
func NewSnapshotStore(store storage.Store) *SnapshotStore {
	return &SnapshotStore{store: store}
}

// SnapshotKey returns the storage key for a room's snapshot.
func SnapshotKey(roomID string) string {
	return "rooms/" + roomID
}

// Load returns the stored snapshot, or nil if the room has none.
func (s *SnapshotStore) Load(ctx context.Context, roomID string) ([]byte, error) {
	return s.store.Get(ctx, SnapshotKey(roomID))
}

// Save replaces the room's snapshot with blob.
func (s *SnapshotStore) Save(ctx context.Context, roomID string, blob []byte) error {
	return s.store.Put(ctx, SnapshotKey(roomID), blob)
}

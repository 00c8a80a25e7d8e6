package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/vango-dev/roomsync/pkg/engine"
)

// Snapshot is the serialized form of a room's full state.
type Snapshot struct {
	Clock      int64            `json:"clock"`
	Schema     engine.Schema    `json:"schema"`
	Documents  []Document       `json:"documents"`
	Tombstones map[string]int64 `json:"tombstones,omitempty"`

	// TombstoneHistoryStart is the oldest clock for which removals are still
	// known. Clients behind it must rehydrate.
	TombstoneHistoryStart int64 `json:"tombstoneHistoryStart,omitempty"`
}

// Document is one stored record.
type Document struct {
	State            json.RawMessage `json:"state"`
	LastChangedClock int64           `json:"lastChangedClock"`
}

var errMissingID = errors.New("records: record has no id")

// recordID extracts the "id" field of a record.
func recordID(state json.RawMessage) (string, error) {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(state, &head); err != nil {
		return "", fmt.Errorf("records: decode record: %w", err)
	}
	if head.ID == "" {
		return "", errMissingID
	}
	return head.ID, nil
}

// decodeSnapshot parses a snapshot blob into documents keyed by id.
func decodeSnapshot(data []byte) (*Snapshot, map[string]*Document, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, nil, fmt.Errorf("records: decode snapshot: %w", err)
	}
	docs := make(map[string]*Document, len(snap.Documents))
	for i := range snap.Documents {
		d := snap.Documents[i]
		id, err := recordID(d.State)
		if err != nil {
			return nil, nil, err
		}
		docs[id] = &d
	}
	return &snap, docs, nil
}

// encodeSnapshot writes documents sorted by id so equal states encode equally.
func encodeSnapshot(snap Snapshot, docs map[string]*Document) ([]byte, error) {
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	snap.Documents = make([]Document, 0, len(ids))
	for _, id := range ids {
		snap.Documents = append(snap.Documents, *docs[id])
	}
	return json.Marshal(snap)
}

func errIDMismatch(key, id string) error {
	return fmt.Errorf("records: put key %q does not match record id %q", key, id)
}

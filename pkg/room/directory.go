package room

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vango-dev/roomsync/pkg/storage"
)

// Directory maps room ids to room instances, creating each one on first use.
type Directory struct {
	store  storage.Store
	opts   Options
	logger *slog.Logger

	group singleflight.Group

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewDirectory creates a directory whose rooms share store. Each room keeps
// its own state under "instances/<roomID>/".
func NewDirectory(store storage.Store, opts Options) *Directory {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	return &Directory{
		store:  store,
		opts:   opts,
		logger: opts.Logger.With("component", "directory"),
		rooms:  make(map[string]*Room),
	}
}

// Room returns the instance for roomID, creating it if needed. Creation
// reads the room's stored identity; concurrent callers for one id share
// that read and callers for other ids never wait on it.
func (d *Directory) Room(ctx context.Context, roomID string) (*Room, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}

	if r, ok := d.lookup(roomID); ok {
		return r, nil
	}

	ch := d.group.DoChan(roomID, func() (any, error) {
		return d.create(context.WithoutCancel(ctx), roomID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Room), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Directory) lookup(roomID string) (*Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rooms[roomID]
	return r, ok
}

func (d *Directory) create(ctx context.Context, roomID string) (*Room, error) {
	// A flight that finished just before this one started already stored it.
	if r, ok := d.lookup(roomID); ok {
		return r, nil
	}

	state := storage.WithPrefix(d.store, "instances/"+roomID+"/")
	r, err := New(ctx, d.store, state, d.opts)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.rooms[roomID] = r
	d.mu.Unlock()

	d.logger.Debug("room instance created", "room", roomID)
	return r, nil
}

// Metrics returns the metrics shared by every room.
func (d *Directory) Metrics() *Metrics {
	return d.opts.Metrics
}

// IDs returns the ids of instantiated rooms, sorted.
func (d *Directory) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.rooms))
	for id := range d.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of instantiated rooms.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

// Shutdown disconnects and flushes every room.
func (d *Directory) Shutdown(ctx context.Context) error {
	d.mu.RLock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.RUnlock()

	var errs []error
	for _, r := range rooms {
		if err := r.Shutdown(ctx); err != nil {
			d.logger.Error("room shutdown failed", "room", r.String(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

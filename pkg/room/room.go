package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/roomsync/pkg/engine"
	"github.com/vango-dev/roomsync/pkg/storage"
)

// Options configures a Room.
type Options struct {
	// Factory constructs the room engine. Required.
	Factory engine.Factory

	// Schema is passed to Factory.
	Schema engine.Schema

	// PersistInterval is the snapshot throttle window.
	// Default: DefaultPersistInterval.
	PersistInterval time.Duration

	// WriteTimeout bounds one snapshot write. Zero means no bound.
	WriteTimeout time.Duration

	// LoadTimeout bounds reading the room identity and, separately, one
	// engine load. Zero means no bound.
	LoadTimeout time.Duration

	Metrics *Metrics
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

// Room is one room instance: its identity, engine, persistence pipeline
// and connections.
type Room struct {
	identity  *Identity
	snapshots *SnapshotStore
	loader    *Loader
	scheduler *Scheduler
	bridge    *Bridge

	metrics *Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// New creates a room instance. Snapshots go to snapshots; the instance's own
// state (its room id) goes to state. A previously fixed id is read from
// state before New returns.
func New(ctx context.Context, snapshots, state storage.Store, opts Options) (*Room, error) {
	if opts.Factory == nil {
		return nil, errors.New("room: engine factory is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Tracer == nil {
		opts.Tracer = defaultTracer()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Room{
		identity:  NewIdentity(state),
		snapshots: NewSnapshotStore(snapshots),
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		logger:    opts.Logger.With("component", "room"),
	}
	if err := r.loadIdentity(ctx, opts.LoadTimeout); err != nil {
		return nil, err
	}
	if id, ok := r.identity.ID(); ok {
		r.logger = r.logger.With("room", id)
	}

	r.scheduler = NewScheduler(opts.PersistInterval, opts.WriteTimeout, r.persist, r.logger)
	r.loader = NewLoader(LoaderConfig{
		Identity:  r.identity,
		Snapshots: r.snapshots,
		Factory:   opts.Factory,
		Schema:    opts.Schema,
		OnChange:  r.scheduler.NotifyChanged,
		Timeout:   opts.LoadTimeout,
		Metrics:   r.metrics,
		Tracer:    r.tracer,
		Logger:    r.logger,
	})
	r.bridge = NewBridge(r.identity, r.loader, r.metrics, r.logger)
	return r, nil
}

func (r *Room) loadIdentity(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return r.identity.Load(ctx)
}

// ID returns the room id, once fixed.
func (r *Room) ID() (string, bool) {
	return r.identity.ID()
}

// Engine returns the room engine, loading it on first use.
func (r *Room) Engine(ctx context.Context) (engine.Engine, error) {
	return r.loader.Engine(ctx)
}

// Accept joins a connection. See Bridge.Accept.
func (r *Room) Accept(ctx context.Context, roomID, sessionID string, conn engine.Socket) error {
	return r.bridge.Accept(ctx, roomID, sessionID, conn)
}

// Message forwards an inbound frame. See Bridge.Message.
func (r *Room) Message(conn engine.Socket, f engine.Frame) {
	r.bridge.Message(conn, f)
}

// Close handles a closed connection. See Bridge.Close.
func (r *Room) Close(conn engine.Socket, code int, reason string) {
	r.bridge.Close(conn, code, reason)
}

// Error handles a failed connection. See Bridge.Error.
func (r *Room) Error(conn engine.Socket, err error) {
	r.bridge.Error(conn, err)
}

// Sessions returns the number of joined sessions.
func (r *Room) Sessions() int {
	return r.bridge.Sessions()
}

// Flush writes a pending snapshot now.
func (r *Room) Flush(ctx context.Context) error {
	return r.scheduler.Flush(ctx)
}

// Shutdown closes every connection and then writes a pending snapshot.
// Once connections are closed no frame reaches the engine, so the snapshot
// written here is the room's final state.
func (r *Room) Shutdown(ctx context.Context) error {
	r.bridge.CloseAll(CloseGoingAway, "server shutting down")
	return r.scheduler.Flush(ctx)
}

// persist writes the engine's current snapshot.
func (r *Room) persist(ctx context.Context) (err error) {
	roomID, ok := r.identity.ID()
	if !ok {
		return ErrRoomNotIdentified
	}
	eng := r.loader.Loaded()
	if eng == nil {
		return nil
	}

	ctx, span := startSpan(ctx, r.tracer, "room.persist_snapshot", roomID)
	defer func() { endSpan(span, err) }()

	start := time.Now()
	defer func() { r.metrics.observeWrite(start, err) }()

	blob, err := eng.CurrentSnapshot()
	if err != nil {
		return &PersistError{Room: roomID, Op: "encode snapshot", Err: err}
	}
	span.SetAttributes(attribute.Int("room.snapshot_bytes", len(blob)))

	if err := r.snapshots.Save(ctx, roomID, blob); err != nil {
		return &PersistError{Room: roomID, Op: "write snapshot", Err: err}
	}
	r.logger.Debug("snapshot written", "bytes", len(blob), "duration", time.Since(start))
	return nil
}

// String implements fmt.Stringer.
func (r *Room) String() string {
	if id, ok := r.ID(); ok {
		return fmt.Sprintf("room(%s)", id)
	}
	return "room(unidentified)"
}

package room

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/vango-dev/roomsync/pkg/engine"
)

// Loader owns an instance's single engine. The first call to Engine loads
// the room snapshot and constructs it; concurrent callers share that load.
type Loader struct {
	identity  *Identity
	snapshots *SnapshotStore
	factory   engine.Factory
	schema    engine.Schema
	onChange  func()
	timeout   time.Duration

	metrics *Metrics
	tracer  trace.Tracer
	logger  *slog.Logger

	group singleflight.Group

	mu  sync.RWMutex
	eng engine.Engine
}

// LoaderConfig wires a Loader.
type LoaderConfig struct {
	Identity  *Identity
	Snapshots *SnapshotStore
	Factory   engine.Factory
	Schema    engine.Schema

	// OnChange is installed as the engine's change callback.
	OnChange func()

	// Timeout bounds one load. Zero means no bound.
	Timeout time.Duration

	Metrics *Metrics
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

// NewLoader creates a loader. Nothing is loaded until Engine is called.
func NewLoader(cfg LoaderConfig) *Loader {
	l := &Loader{
		identity:  cfg.Identity,
		snapshots: cfg.Snapshots,
		factory:   cfg.Factory,
		schema:    cfg.Schema,
		onChange:  cfg.OnChange,
		timeout:   cfg.Timeout,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger,
	}
	if l.metrics == nil {
		l.metrics = NewMetrics(nil)
	}
	if l.tracer == nil {
		l.tracer = defaultTracer()
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Engine returns the instance's engine, loading it on first use.
//
// A failed load is not remembered; the next call tries again. Cancelling ctx
// abandons the wait but not the load, which other callers may share.
func (l *Loader) Engine(ctx context.Context) (engine.Engine, error) {
	if eng := l.Loaded(); eng != nil {
		return eng, nil
	}

	roomID, ok := l.identity.ID()
	if !ok {
		return nil, ErrRoomNotIdentified
	}

	ch := l.group.DoChan(roomID, func() (any, error) {
		return l.load(context.WithoutCancel(ctx), roomID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(engine.Engine), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Loaded returns the engine if it has been constructed, or nil.
func (l *Loader) Loaded() engine.Engine {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.eng
}

func (l *Loader) load(ctx context.Context, roomID string) (eng engine.Engine, err error) {
	// A flight that finished just before this one started already stored it.
	if eng := l.Loaded(); eng != nil {
		return eng, nil
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	ctx, span := startSpan(ctx, l.tracer, "room.load_engine", roomID)
	defer func() { endSpan(span, err) }()

	start := time.Now()
	initial, err := l.snapshots.Load(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("room %s: load snapshot: %w", roomID, err)
	}

	source := "empty"
	if initial != nil {
		source = "snapshot"
	}
	span.SetAttributes(
		attribute.String("room.snapshot_source", source),
		attribute.Int("room.snapshot_bytes", len(initial)),
	)

	eng, err = l.factory(l.schema, initial)
	if err != nil {
		return nil, fmt.Errorf("room %s: construct engine: %w", roomID, err)
	}
	if l.onChange != nil {
		eng.SetChangeCallback(l.onChange)
	}

	l.mu.Lock()
	l.eng = eng
	l.mu.Unlock()

	l.metrics.engineLoads.WithLabelValues(source).Inc()
	l.logger.Info("engine loaded",
		"room", roomID,
		"source", source,
		"bytes", len(initial),
		"duration", time.Since(start))
	return eng, nil
}

package room

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vango-dev/roomsync/pkg/engine"
	"github.com/vango-dev/roomsync/pkg/session"
)

// WebSocket close codes used by the bridge.
const (
	CloseGoingAway       = 1001
	CloseInternalError   = 1011
	CloseSessionReplaced = 4000
)

// Bridge turns transport lifecycle events into engine calls.
//
// Every event looks its connection up in the registry; events for
// connections that are not joined are dropped. The transport must deliver
// one connection's messages in order and must not start delivering them
// until Accept has returned. After CloseAll the bridge is closed: no
// connection is registered and Accept fails with ErrRoomClosed.
type Bridge struct {
	identity *Identity
	loader   *Loader
	registry *session.Registry[engine.Socket]
	metrics  *Metrics
	logger   *slog.Logger

	// mu orders registration changes with the engine calls that follow
	// them, so a leave for an old connection never lands after a rejoin.
	// Message holds it from lookup to forward: a frame from a replaced
	// connection is either forwarded before the replacement or dropped.
	mu     sync.Mutex
	closed bool
}

// NewBridge creates a bridge over loader.
func NewBridge(identity *Identity, loader *Loader, metrics *Metrics, logger *slog.Logger) *Bridge {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		identity: identity,
		loader:   loader,
		registry: session.NewRegistry[engine.Socket](),
		metrics:  metrics,
		logger:   logger,
	}
}

// Accept registers conn for sessionID and joins it to the engine.
// On error nothing stays registered and the caller should close conn.
//
// A session id already held by another connection moves to conn; the old
// connection is closed with CloseSessionReplaced.
func (b *Bridge) Accept(ctx context.Context, roomID, sessionID string, conn engine.Socket) error {
	if sessionID == "" {
		return ErrMissingSession
	}
	if err := b.identity.Fix(ctx, roomID); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrRoomClosed
	}
	replaced, hadOld := b.registry.HandleFor(sessionID)
	if hadOld {
		if prev, ok := b.registry.Remove(replaced); ok && prev.State == session.StateJoined {
			b.metrics.activeSessions.Dec()
		}
	}
	b.registry.Add(conn, sessionID)
	b.mu.Unlock()

	if hadOld {
		b.logger.Info("session replaced", "room", roomID, "session_id", sessionID)
		replaced.Close(CloseSessionReplaced, "session replaced")
	}

	eng, err := b.loader.Engine(ctx)
	if err != nil {
		b.mu.Lock()
		b.registry.Remove(conn)
		b.mu.Unlock()
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.registry.Lookup(conn); !ok {
		if b.closed {
			return ErrRoomClosed
		}
		return ErrSessionReplaced
	}
	eng.OnSessionJoin(sessionID, conn)
	b.registry.MarkJoined(conn)
	b.metrics.activeSessions.Inc()

	b.logger.Debug("session joined", "room", roomID, "session_id", sessionID)
	return nil
}

// Message forwards one inbound frame to the engine.
func (b *Bridge) Message(conn engine.Socket, f engine.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.registry.Lookup(conn)
	if !ok || s.State != session.StateJoined {
		b.stale("message", s.ID)
		return
	}
	eng := b.loader.Loaded()
	if eng == nil {
		b.stale("message", s.ID)
		return
	}
	eng.OnRawMessage(s.ID, f)
	b.metrics.framesForwarded.Inc()
}

// Close handles a closed connection. A second close is a no-op.
func (b *Bridge) Close(conn engine.Socket, code int, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.leaveLocked(conn)
	if !ok {
		b.stale("close", "")
		return
	}
	b.logger.Debug("session closed",
		"session_id", s.ID,
		"code", code,
		"reason", reason)
}

// Error handles a failed connection: it is closed with CloseInternalError
// and its session removed. Other sessions are unaffected.
func (b *Bridge) Error(conn engine.Socket, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.leaveLocked(conn)
	if ok {
		b.logger.Error("transport error", "session_id", s.ID, "error", err)
	} else {
		b.stale("error", "")
	}
	conn.Close(CloseInternalError, "internal error")
}

// CloseAll closes the bridge: every registered connection leaves the engine
// and is closed with code. Their later transport events are stale.
func (b *Bridge) CloseAll(code int, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, s := range b.registry.Snapshot() {
		b.leaveLocked(s.Handle)
		s.Handle.Close(code, reason)
	}
}

// Sessions returns the number of joined sessions.
func (b *Bridge) Sessions() int {
	return b.registry.Count(session.StateJoined)
}

// Connections returns the number of registered connections in any state.
func (b *Bridge) Connections() int {
	return b.registry.Len()
}

func (b *Bridge) leaveLocked(conn engine.Socket) (session.Session[engine.Socket], bool) {
	s, ok := b.registry.Remove(conn)
	if !ok {
		return s, false
	}
	if s.State == session.StateJoined {
		b.metrics.activeSessions.Dec()
		if eng := b.loader.Loaded(); eng != nil {
			eng.OnSessionLeave(s.ID)
		}
	}
	return s, true
}

func (b *Bridge) stale(event, sessionID string) {
	b.metrics.staleEvents.WithLabelValues(event).Inc()
	b.logger.Debug("stale event dropped", "event", event, "session_id", sessionID)
}

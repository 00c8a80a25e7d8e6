package records

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/vango-dev/roomsync/pkg/engine"
)

// DefaultMaxTombstones bounds the removal history kept for incremental catch-up.
const DefaultMaxTombstones = 10000

// Engine is a last-writer-wins record store.
type Engine struct {
	mu sync.Mutex

	schema       engine.Schema
	clock        int64
	docs         map[string]*Document
	tombstones   map[string]int64
	historyStart int64

	sessions map[string]*member

	onChange      func()
	maxTombstones int
	logger        *slog.Logger
}

type member struct {
	sock      engine.Socket
	connected bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMaxTombstones sets how many removals are remembered.
func WithMaxTombstones(n int) Option {
	return func(e *Engine) {
		e.maxTombstones = n
	}
}

// New creates an engine, loading initial when it is non-nil.
func New(schema engine.Schema, initial []byte, opts ...Option) (*Engine, error) {
	e := &Engine{
		schema:        schema,
		docs:          make(map[string]*Document),
		tombstones:    make(map[string]int64),
		sessions:      make(map[string]*member),
		maxTombstones: DefaultMaxTombstones,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "records")

	if initial != nil {
		snap, docs, err := decodeSnapshot(initial)
		if err != nil {
			return nil, err
		}
		e.clock = snap.Clock
		e.docs = docs
		e.historyStart = snap.TombstoneHistoryStart
		for id, c := range snap.Tombstones {
			e.tombstones[id] = c
		}
	}
	return e, nil
}

// Factory returns an engine.Factory building records engines.
func Factory(opts ...Option) engine.Factory {
	return func(schema engine.Schema, initial []byte) (engine.Engine, error) {
		return New(schema, initial, opts...)
	}
}

// SetChangeCallback installs fn, called after each applied change.
func (e *Engine) SetChangeCallback(fn func()) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// OnSessionJoin registers a session. It receives state after sending connect.
func (e *Engine) OnSessionJoin(sessionID string, sock engine.Socket) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A rejoin under the same id replaces the socket and restarts the handshake.
	e.sessions[sessionID] = &member{sock: sock}
	e.broadcastPresenceLocked()
}

// OnSessionLeave forgets a session.
func (e *Engine) OnSessionLeave(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sessions[sessionID]; !ok {
		return
	}
	delete(e.sessions, sessionID)
	e.broadcastPresenceLocked()
}

// OnRawMessage decodes and applies one client message.
func (e *Engine) OnRawMessage(sessionID string, f engine.Frame) {
	var changed bool
	func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		m, ok := e.sessions[sessionID]
		if !ok {
			return
		}
		if f.Kind != engine.FrameText {
			e.sendLocked(m, ServerMessage{Type: TypeError, Reason: "binary frames are not supported"})
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			e.sendLocked(m, ServerMessage{Type: TypeError, Reason: "malformed message"})
			return
		}

		switch msg.Type {
		case TypeConnect:
			m.connected = true
			e.sendLocked(m, e.connectReplyLocked(msg.LastServerClock))
		case TypePush:
			changed = e.handlePushLocked(sessionID, m, msg)
		case TypePing:
			e.sendLocked(m, ServerMessage{Type: TypePong})
		default:
			e.sendLocked(m, ServerMessage{Type: TypeError, Reason: "unknown message type " + msg.Type})
		}
	}()

	if changed {
		e.notifyChanged()
	}
}

// CurrentSnapshot serializes the full state.
func (e *Engine) CurrentSnapshot() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Clock:                 e.clock,
		Schema:                e.schema,
		TombstoneHistoryStart: e.historyStart,
	}
	if len(e.tombstones) > 0 {
		snap.Tombstones = make(map[string]int64, len(e.tombstones))
		for id, c := range e.tombstones {
			snap.Tombstones[id] = c
		}
	}
	return encodeSnapshot(snap, e.docs)
}

// Clock returns the current server clock.
func (e *Engine) Clock() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock
}

// Record returns the stored state of id.
func (e *Engine) Record(id string) (json.RawMessage, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.docs[id]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), d.State...), true
}

// Sessions returns the joined session ids, sorted.
func (e *Engine) Sessions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionIDsLocked()
}

func (e *Engine) handlePushLocked(sessionID string, m *member, msg ClientMessage) bool {
	if !m.connected {
		e.sendLocked(m, ServerMessage{Type: TypeError, Reason: "push before connect"})
		return false
	}
	result := ServerMessage{Type: TypePushResult, ClientClock: msg.ClientClock}

	diff, err := e.normalizeDiffLocked(msg.Diff)
	if err != nil {
		e.logger.Debug("push rejected", "session_id", sessionID, "error", err)
		result.Action = ActionDiscard
		result.ServerClock = e.clock
		result.Reason = err.Error()
		e.sendLocked(m, result)
		return false
	}
	if diff.Empty() {
		result.Action = ActionDiscard
		result.ServerClock = e.clock
		e.sendLocked(m, result)
		return false
	}

	e.clock++
	for id, state := range diff.Put {
		e.docs[id] = &Document{State: state, LastChangedClock: e.clock}
		delete(e.tombstones, id)
	}
	for _, id := range diff.Remove {
		delete(e.docs, id)
		e.tombstones[id] = e.clock
	}
	e.pruneTombstonesLocked()

	result.Action = ActionCommit
	result.ServerClock = e.clock
	e.sendLocked(m, result)

	patch := ServerMessage{Type: TypePatch, ServerClock: e.clock, Diff: diff}
	for id, other := range e.sessions {
		if id == sessionID || !other.connected {
			continue
		}
		e.sendLocked(other, patch)
	}
	return true
}

// normalizeDiffLocked validates ids and drops removals of unknown records.
func (e *Engine) normalizeDiffLocked(d *Diff) (*Diff, error) {
	out := &Diff{}
	if d == nil {
		return out, nil
	}
	for key, state := range d.Put {
		id, err := recordID(state)
		if err != nil {
			return nil, err
		}
		if id != key {
			return nil, errIDMismatch(key, id)
		}
		if out.Put == nil {
			out.Put = make(map[string]json.RawMessage, len(d.Put))
		}
		out.Put[id] = state
	}
	for _, id := range d.Remove {
		if _, ok := e.docs[id]; !ok {
			continue
		}
		if _, alsoPut := out.Put[id]; alsoPut {
			continue
		}
		out.Remove = append(out.Remove, id)
	}
	return out, nil
}

func (e *Engine) connectReplyLocked(lastServerClock int64) ServerMessage {
	reply := ServerMessage{
		Type:            TypeConnect,
		ProtocolVersion: ProtocolVersion,
		ServerClock:     e.clock,
		Diff:            &Diff{},
	}

	incremental := lastServerClock > 0 &&
		lastServerClock >= e.historyStart &&
		lastServerClock <= e.clock
	if !incremental {
		reply.Hydrate = true
	}

	for id, d := range e.docs {
		if incremental && d.LastChangedClock <= lastServerClock {
			continue
		}
		if reply.Diff.Put == nil {
			reply.Diff.Put = make(map[string]json.RawMessage)
		}
		reply.Diff.Put[id] = d.State
	}
	if incremental {
		for id, c := range e.tombstones {
			if c > lastServerClock {
				reply.Diff.Remove = append(reply.Diff.Remove, id)
			}
		}
		sort.Strings(reply.Diff.Remove)
	}
	return reply
}

// pruneTombstonesLocked drops the oldest half of the removal history once it
// exceeds the limit.
func (e *Engine) pruneTombstonesLocked() {
	if e.maxTombstones <= 0 || len(e.tombstones) <= e.maxTombstones {
		return
	}
	clocks := make([]int64, 0, len(e.tombstones))
	for _, c := range e.tombstones {
		clocks = append(clocks, c)
	}
	sort.Slice(clocks, func(i, j int) bool { return clocks[i] < clocks[j] })
	cutoff := clocks[len(clocks)/2]
	for id, c := range e.tombstones {
		if c <= cutoff {
			delete(e.tombstones, id)
		}
	}
	e.historyStart = cutoff + 1
}

func (e *Engine) broadcastPresenceLocked() {
	msg := ServerMessage{Type: TypePresence, Sessions: e.sessionIDsLocked()}
	for _, m := range e.sessions {
		e.sendLocked(m, msg)
	}
}

func (e *Engine) sessionIDsLocked() []string {
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) sendLocked(m *member, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		e.logger.Error("encode message", "type", msg.Type, "error", err)
		return
	}
	if err := m.sock.Send(engine.Frame{Kind: engine.FrameText, Data: data}); err != nil {
		e.logger.Debug("send failed", "type", msg.Type, "error", err)
	}
}

func (e *Engine) notifyChanged() {
	e.mu.Lock()
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

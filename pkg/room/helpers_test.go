package room

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vango-dev/roomsync/pkg/engine"
	"github.com/vango-dev/roomsync/pkg/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSocket records frames and closes.
type fakeSocket struct {
	mu     sync.Mutex
	frames []engine.Frame
	closed bool
	code   int
	reason string
}

func (s *fakeSocket) Send(f engine.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("closed")
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSocket) Close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.code = code
		s.reason = reason
	}
	return nil
}

func (s *fakeSocket) closeCode() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, s.closed
}

func (s *fakeSocket) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		out = append(out, string(f.Data))
	}
	return out
}

// fakeEngine records the calls it receives. Each raw message is treated
// as a change.
type fakeEngine struct {
	mu       sync.Mutex
	initial  []byte
	joins    []string
	leaves   []string
	messages []string
	onChange func()
	snapshot []byte
}

func (e *fakeEngine) OnSessionJoin(sessionID string, sock engine.Socket) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.joins = append(e.joins, sessionID)
}

func (e *fakeEngine) OnSessionLeave(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leaves = append(e.leaves, sessionID)
}

func (e *fakeEngine) OnRawMessage(sessionID string, f engine.Frame) {
	e.mu.Lock()
	e.messages = append(e.messages, sessionID+":"+string(f.Data))
	e.snapshot = append([]byte(nil), f.Data...)
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (e *fakeEngine) CurrentSnapshot() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.snapshot...), nil
}

func (e *fakeEngine) SetChangeCallback(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = fn
}

func (e *fakeEngine) calls() (joins, leaves, messages []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.joins...),
		append([]string(nil), e.leaves...),
		append([]string(nil), e.messages...)
}

// countingFactory builds fakeEngines and counts constructions.
type countingFactory struct {
	n    atomic.Int32
	last atomic.Pointer[fakeEngine]
}

func (f *countingFactory) build(schema engine.Schema, initial []byte) (engine.Engine, error) {
	f.n.Add(1)
	e := &fakeEngine{initial: initial, snapshot: initial}
	f.last.Store(e)
	return e, nil
}

// recordingStore wraps a MemoryStore, counting puts and optionally
// blocking gets or failing puts.
type recordingStore struct {
	*storage.MemoryStore

	mu      sync.Mutex
	puts    []string
	putErr  error
	getErr  error
	gate    chan struct{}
	getHits atomic.Int32
	putCh   chan string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		MemoryStore: storage.NewMemoryStore(),
		putCh:       make(chan string, 64),
	}
}

func (s *recordingStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.getHits.Add(1)
	s.mu.Lock()
	gate, getErr := s.gate, s.getErr
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if getErr != nil {
		return nil, getErr
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *recordingStore) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	err := s.putErr
	s.puts = append(s.puts, key)
	s.mu.Unlock()
	select {
	case s.putCh <- key:
	default:
	}
	if err != nil {
		return err
	}
	return s.MemoryStore.Put(ctx, key, data)
}

func (s *recordingStore) setPutErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putErr = err
}

func (s *recordingStore) putCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range s.puts {
		if k == key {
			n++
		}
	}
	return n
}

func (s *recordingStore) waitPut(t *testing.T, key string, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case k := <-s.putCh:
			if k == key {
				return
			}
		case <-deadline:
			t.Fatalf("no put of %q within %v", key, within)
		}
	}
}

// eventually polls cond until it holds or the timeout passes.
func eventually(t *testing.T, within time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", within, msg)
}

func textFrame(s string) engine.Frame {
	return engine.Frame{Kind: engine.FrameText, Data: []byte(s)}
}

package room

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// writeLog captures what each persist call saw.
type writeLog struct {
	mu     sync.Mutex
	values []int64
	err    error
	calls  chan struct{}
}

func newWriteLog() *writeLog {
	return &writeLog{calls: make(chan struct{}, 16)}
}

func (w *writeLog) persist(state *atomic.Int64) func(context.Context) error {
	return func(context.Context) error {
		w.mu.Lock()
		w.values = append(w.values, state.Load())
		err := w.err
		w.mu.Unlock()
		w.calls <- struct{}{}
		return err
	}
}

func (w *writeLog) snapshot() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int64(nil), w.values...)
}

func (w *writeLog) wait(t *testing.T) {
	t.Helper()
	select {
	case <-w.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("no write happened")
	}
}

func TestScheduler_CoalescesWindow(t *testing.T) {
	var state atomic.Int64
	log := newWriteLog()
	s := NewScheduler(50*time.Millisecond, 0, log.persist(&state), discardLogger())

	for i := 1; i <= 100; i++ {
		state.Store(int64(i))
		s.NotifyChanged()
	}
	if !s.Armed() {
		t.Fatal("scheduler not armed after notify")
	}

	log.wait(t)
	time.Sleep(120 * time.Millisecond)

	got := log.snapshot()
	if len(got) != 1 {
		t.Fatalf("writes = %v, want exactly one", got)
	}
	if got[0] != 100 {
		t.Errorf("write saw state %d, want 100 (state at expiry)", got[0])
	}
	if s.Armed() {
		t.Error("scheduler still armed after write")
	}
}

func TestScheduler_WriteReflectsStateAtExpiry(t *testing.T) {
	var state atomic.Int64
	log := newWriteLog()
	s := NewScheduler(60*time.Millisecond, 0, log.persist(&state), discardLogger())

	state.Store(1)
	s.NotifyChanged()
	time.Sleep(10 * time.Millisecond)
	// Changed after the triggering notification, inside the window.
	state.Store(2)

	log.wait(t)
	if got := log.snapshot(); got[0] != 2 {
		t.Errorf("write saw state %d, want 2", got[0])
	}
}

func TestScheduler_FailureReturnsToIdle(t *testing.T) {
	var state atomic.Int64
	log := newWriteLog()
	log.err = errors.New("bucket down")
	s := NewScheduler(20*time.Millisecond, 0, log.persist(&state), discardLogger())

	s.NotifyChanged()
	log.wait(t)
	eventually(t, time.Second, func() bool { return !s.Armed() }, "idle after failed write")

	// No retry is scheduled on its own.
	time.Sleep(60 * time.Millisecond)
	if n := len(log.snapshot()); n != 1 {
		t.Fatalf("writes after failure = %d, want 1 (no retry)", n)
	}

	log.mu.Lock()
	log.err = nil
	log.mu.Unlock()

	s.NotifyChanged()
	log.wait(t)
	if n := len(log.snapshot()); n != 2 {
		t.Errorf("writes after re-arm = %d, want 2", n)
	}
}

func TestScheduler_ChangeDuringWriteArmsNextWindow(t *testing.T) {
	release := make(chan struct{})
	var writes atomic.Int32
	var s *Scheduler
	s = NewScheduler(20*time.Millisecond, 0, func(context.Context) error {
		if writes.Add(1) == 1 {
			// The scheduler is already Idle while the write runs.
			s.NotifyChanged()
			<-release
		}
		return nil
	}, discardLogger())

	s.NotifyChanged()
	eventually(t, time.Second, func() bool { return writes.Load() == 1 }, "first write started")
	if !s.Armed() {
		t.Error("change during write did not arm a new window")
	}
	close(release)
	eventually(t, time.Second, func() bool { return writes.Load() == 2 }, "second write")
}

func TestScheduler_Flush(t *testing.T) {
	var state atomic.Int64
	log := newWriteLog()
	s := NewScheduler(time.Hour, 0, log.persist(&state), discardLogger())

	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() idle error = %v", err)
	}
	if n := len(log.snapshot()); n != 0 {
		t.Fatalf("Flush() on idle scheduler wrote %d times", n)
	}

	state.Store(7)
	s.NotifyChanged()
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := log.snapshot(); len(got) != 1 || got[0] != 7 {
		t.Fatalf("writes = %v, want [7]", got)
	}
	if s.Armed() {
		t.Error("still armed after Flush")
	}
}

func TestScheduler_FlushWaitsForInflightWrite(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	s := NewScheduler(10*time.Millisecond, 0, func(context.Context) error {
		close(started)
		<-release
		finished.Store(true)
		return nil
	}, discardLogger())

	s.NotifyChanged()
	<-started

	done := make(chan struct{})
	go func() {
		s.Flush(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Flush() returned while a write was in flight")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)
	<-done
	if !finished.Load() {
		t.Error("Flush() returned before the in-flight write finished")
	}
}

package room

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPersistInterval is the default throttle window.
const DefaultPersistInterval = 10 * time.Second

// Scheduler coalesces change notifications into at most one write per
// interval. It is Idle until notified, then Armed until its timer fires.
//
// On expiry it returns to Idle before writing, so changes made during the
// write arm a new window. Writes never overlap.
type Scheduler struct {
	interval time.Duration
	timeout  time.Duration
	persist  func(ctx context.Context) error
	logger   *slog.Logger

	mu       sync.Mutex
	done     *sync.Cond // signalled when inflight drops
	armed    bool
	gen      uint64
	timer    *time.Timer
	inflight int

	writeMu sync.Mutex
}

// NewScheduler creates an idle scheduler. persist is called with a context
// bounded by timeout (zero means unbounded).
func NewScheduler(interval, timeout time.Duration, persist func(ctx context.Context) error, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultPersistInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		interval: interval,
		timeout:  timeout,
		persist:  persist,
		logger:   logger,
	}
	s.done = sync.NewCond(&s.mu)
	return s
}

// NotifyChanged arms the timer if idle. It never blocks on I/O.
func (s *Scheduler) NotifyChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armed {
		return
	}
	s.armed = true
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.interval, func() { s.fire(gen) })
}

// Armed reports whether a write is due.
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Flush writes now if a write is due and waits for in-flight writes.
// It is used on graceful shutdown.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	due := s.disarmLocked(0)
	s.mu.Unlock()

	var err error
	if due {
		err = s.write(ctx)
	}

	s.mu.Lock()
	for s.inflight > 0 {
		s.done.Wait()
	}
	s.mu.Unlock()
	return err
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	due := s.disarmLocked(gen)
	s.mu.Unlock()
	if !due {
		return
	}

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	s.write(ctx)
}

// disarmLocked moves Armed to Idle and reserves a write. A non-zero gen must
// match the current window, so a stopped timer that fires late is ignored.
func (s *Scheduler) disarmLocked(gen uint64) bool {
	if !s.armed || (gen != 0 && gen != s.gen) {
		return false
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armed = false
	s.inflight++
	return true
}

func (s *Scheduler) write(ctx context.Context) error {
	s.writeMu.Lock()
	err := s.persist(ctx)
	s.writeMu.Unlock()

	if err != nil {
		s.logger.Error("snapshot write failed", "error", err)
	}

	s.mu.Lock()
	s.inflight--
	s.done.Broadcast()
	s.mu.Unlock()
	return err
}

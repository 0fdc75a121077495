package flush

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the coalescing window used when none is configured.
const DefaultInterval = 200 * time.Millisecond

// shutdownTimeout bounds the final flush performed when Run returns.
const shutdownTimeout = 10 * time.Second

// Flusher is the durability side of a store.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Stats summarizes the scheduler activity.
type Stats struct {
	Flushes   uint64    `json:"flushes"`
	Failures  uint64    `json:"failures"`
	LastFlush time.Time `json:"last_flush,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler flushes a store in the background when its tracker is dirty.
type Scheduler struct {
	store    Flusher
	tracker  *Tracker
	interval time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewScheduler returns a scheduler; call Run to start it. A non-positive
// interval selects DefaultInterval and a nil logger selects slog.Default.
func NewScheduler(store Flusher, tracker *Tracker, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    store,
		tracker:  tracker,
		interval: interval,
		logger:   logger,
	}
}

// Run waits for mutations and flushes them until ctx is canceled. Writes
// arriving within one interval of each other share a flush. When ctx is
// canceled pending writes get one last flush, whose error is returned.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Started flush scheduler", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			return s.shutdown(ctx)
		case <-s.tracker.Wake():
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return s.shutdown(ctx)
		case <-timer.C:
		}
		// Errors are recorded and retried on the next cycle.
		_ = s.FlushNow(ctx)
	}
}

func (s *Scheduler) shutdown(ctx context.Context) error {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	err := s.FlushNow(fctx)
	s.logger.InfoContext(ctx, "Stopped flush scheduler", "err", err)
	if err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}

// FlushNow runs one cycle in the calling goroutine: if the tracker is dirty,
// flush the store. On failure the tracker is marked dirty again.
func (s *Scheduler) FlushNow(ctx context.Context) error {
	if !s.tracker.TakeIfDirty() {
		return nil
	}
	start := time.Now()
	err := s.store.Flush(ctx)

	s.mu.Lock()
	if err != nil {
		s.stats.Failures++
		s.stats.LastError = err.Error()
	} else {
		s.stats.Flushes++
		s.stats.LastFlush = start
		s.stats.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.tracker.MarkDirty()
		s.logger.WarnContext(ctx, "Flush failed, will retry", "err", err)
		return err
	}
	s.logger.DebugContext(ctx, "Flushed store", "duration", time.Since(start))
	return nil
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Interval returns the coalescing window.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// CycleFunc runs one full fetch cycle and reports whether any region ended up
// unhealthy, which drives the next interval choice.
type CycleFunc func(ctx context.Context) (unhealthy bool)

// Scheduler owns the polling cadence. It runs cycles serially: the interval
// timer, manual triggers, and change-notification triggers all funnel into
// one loop, and a trigger arriving while a cycle is in flight is absorbed
// rather than queued. Interval changes take effect on the next wait.
type Scheduler struct {
	normal   time.Duration
	elevated time.Duration
	cycle    CycleFunc
	logger   *zap.Logger

	trigger chan struct{}
	running int32

	mu      sync.Mutex
	current time.Duration
}

func New(normal, elevated time.Duration, cycle CycleFunc, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		normal:   normal,
		elevated: elevated,
		cycle:    cycle,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		current:  normal,
	}
}

// Interval returns the cadence the next cycle will be scheduled at.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Trigger requests an immediate cycle. No-op when a cycle is already in
// flight; never cancels one.
func (s *Scheduler) Trigger() {
	if atomic.LoadInt32(&s.running) == 1 {
		return
	}
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, executing one cycle immediately and then
// on every interval elapse or trigger. The pending timer is always released
// on shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Scheduler started",
		zap.Duration("normal_interval", s.normal),
		zap.Duration("elevated_interval", s.elevated),
	)

	s.runOnce(ctx)

	timer := time.NewTimer(s.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-timer.C:
		case <-s.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		s.runOnce(ctx)
		timer.Reset(s.Interval())
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&s.running, 0)

	unhealthy := s.cycle(ctx)

	next := s.normal
	if unhealthy {
		next = s.elevated
	}

	s.mu.Lock()
	changed := s.current != next
	s.current = next
	s.mu.Unlock()

	if changed {
		s.logger.Info("Polling interval changed", zap.Duration("interval", next))
	}
}

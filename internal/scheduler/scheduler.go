// Package scheduler runs collection cycles on a fixed interval.
//
// Intervals are measured start to start. Cycles never overlap: a tick
// that fires while a cycle is still running is dropped, and an on-demand
// trigger during a cycle is coalesced into it.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	agenterrors "github.com/Schera-ole/fleetagent/internal/errors"
)

type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// CycleFunc runs one collection cycle.
type CycleFunc func(ctx context.Context) error

// Status is a snapshot of the scheduler.
type Status struct {
	State       State     `json:"state"`
	Cycles      int       `json:"cycles"`
	Failures    int       `json:"failures"`
	LastRun     time.Time `json:"last_run"`
	LastSuccess time.Time `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`
}

type Scheduler struct {
	interval time.Duration
	cycle    CycleFunc
	logger   *zap.SugaredLogger
	metrics  *Metrics
	now      func() time.Time

	mu        sync.Mutex
	state     State
	runCtx    context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	abandoned bool
	status    Status
	stopped   chan struct{}
}

// New returns an idle scheduler. metrics may be nil.
func New(interval time.Duration, cycle CycleFunc, logger *zap.SugaredLogger, metrics *Metrics) *Scheduler {
	return &Scheduler{
		interval: interval,
		cycle:    cycle,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		state:    StateIdle,
		stopped:  make(chan struct{}),
	}
}

// Run starts a cycle immediately and then one per interval until ctx is
// done or Stop is called. Cycles run on a context detached from ctx, so
// cancelling ctx does not abort an in-flight cycle; Stop bounds that wait.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return agenterrors.ErrSchedulerStopped
	}
	s.runCtx = ctx
	s.mu.Unlock()

	s.Trigger()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopped:
			return nil
		case <-ticker.C:
			if !s.Trigger() {
				s.logger.Warnw("previous cycle still running, tick skipped", "interval", s.interval)
			}
		}
	}
}

// Trigger starts a cycle unless one is already running. It reports
// whether a new cycle was started.
func (s *Scheduler) Trigger() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle || s.runCtx == nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(s.runCtx))
	done := make(chan struct{})
	s.state = StateRunning
	s.cancel = cancel
	s.done = done
	s.status.LastRun = s.now()

	go s.execute(ctx, cancel, done)
	return true
}

func (s *Scheduler) execute(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()

	start := s.now()
	err := s.safeCycle(ctx)
	elapsed := s.now().Sub(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		s.state = StateIdle
	}
	s.cancel = nil
	if s.abandoned {
		return
	}

	s.status.Cycles++
	result := "ok"
	if err != nil {
		result = "error"
		s.status.Failures++
		s.status.LastError = err.Error()
		s.logger.Errorw("cycle failed", "error", err, "duration", elapsed)
	} else {
		s.status.LastSuccess = start
		s.status.LastError = ""
		s.logger.Debugw("cycle finished", "duration", elapsed)
	}
	if s.metrics != nil {
		s.metrics.Cycles.WithLabelValues(result).Inc()
		s.metrics.CycleDuration.Observe(elapsed.Seconds())
	}
}

func (s *Scheduler) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()
	return s.cycle(ctx)
}

// Stop prevents further cycles and waits up to grace for the in-flight
// one. A cycle still running after grace is canceled, its outcome is
// discarded, and ErrCycleAbandoned is returned. Stop is idempotent.
func (s *Scheduler) Stop(grace time.Duration) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	running := s.state == StateRunning
	s.state = StateStopped
	done := s.done
	close(s.stopped)
	s.mu.Unlock()

	if !running {
		return nil
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
	}

	s.mu.Lock()
	select {
	case <-done:
		s.mu.Unlock()
		return nil
	default:
	}
	s.abandoned = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.logger.Warnw("in-flight cycle abandoned", "grace", grace)
	return agenterrors.ErrCycleAbandoned
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.State = s.state
	return st
}

// File: internal/concurrency/local.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// LocalScheduler: the thread-per-core unit. One worker goroutine
// (optionally pinned to a core) drains its own ring, falls back to the
// inject queue fed by external Submit calls, and parks briefly when
// idle. Lifecycle is a forward-only atomic state machine:
// Running -> ShuttingDown -> Stopped.

package concurrency

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/nexio/api"
)

// Config tunes a scheduler instance.
type Config struct {
	// QueueSize is the per-worker ring capacity, rounded up to a power
	// of two.
	QueueSize int

	// ThreadName labels worker log entries.
	ThreadName string

	// PinCPU binds the worker to a core; -1 disables pinning. For the
	// work-stealing scheduler this is the first worker's core and
	// subsequent workers take consecutive cores.
	PinCPU int

	// ParkInterval bounds the idle sleep between queue scans.
	ParkInterval time.Duration
}

// DefaultConfig returns the baseline scheduler tuning.
func DefaultConfig() Config {
	return Config{
		QueueSize:    256,
		ThreadName:   "nexio-worker",
		PinCPU:       -1,
		ParkInterval: time.Millisecond,
	}
}

var _ api.Scheduler = (*LocalScheduler)(nil)

// LocalScheduler runs tasks on exactly one worker thread.
type LocalScheduler struct {
	cfg Config
	log *zap.Logger

	state    atomic.Int32
	local    *LocalQueue
	inject   *injectQueue
	registry *WakerRegistry
	parker   *parker
	done     chan struct{}

	submitted atomic.Uint64
	completed atomic.Uint64
}

// NewLocalScheduler spawns the worker and returns the running scheduler.
func NewLocalScheduler(cfg Config, log *zap.Logger) *LocalScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.ParkInterval <= 0 {
		cfg.ParkInterval = DefaultConfig().ParkInterval
	}
	s := &LocalScheduler{
		cfg:      cfg,
		log:      log,
		local:    NewLocalQueue(cfg.QueueSize),
		inject:   newInjectQueue(cfg.QueueSize * 4),
		registry: NewWakerRegistry(),
		parker:   newParker(),
		done:     make(chan struct{}),
	}
	s.state.Store(int32(api.SchedulerRunning))
	go s.run()
	return s
}

func (s *LocalScheduler) run() {
	if s.cfg.PinCPU >= 0 {
		if err := PinCurrentThread(s.cfg.PinCPU); err != nil {
			s.log.Warn("worker pinning failed",
				zap.String("worker", s.cfg.ThreadName),
				zap.Int("cpu", s.cfg.PinCPU),
				zap.Error(err))
		}
	}
	s.log.Debug("worker started", zap.String("worker", s.cfg.ThreadName))

	for api.SchedulerState(s.state.Load()) == api.SchedulerRunning {
		if t := s.local.Pop(); t != nil {
			s.runTask(t)
			continue
		}
		if t := s.inject.pop(); t != nil {
			s.runTask(t)
			continue
		}
		s.parker.park(s.cfg.ParkInterval)
	}

	s.state.Store(int32(api.SchedulerStopped))
	s.log.Debug("worker stopped",
		zap.String("worker", s.cfg.ThreadName),
		zap.Uint64("completed", s.completed.Load()))
	close(s.done)
}

// runTask polls the task once. A pending task suspends: its future has
// registered a waker, and a later Wake resubmits it.
func (s *LocalScheduler) runTask(t *api.RawTask) {
	cx := api.NewContext(&resubmitWaker{s: s, t: t})
	if t.Poll(cx) == api.PollReady {
		s.completed.Add(1)
	}
}

// resubmitWaker re-enqueues a suspended task when its completion fires.
type resubmitWaker struct {
	s *LocalScheduler
	t *api.RawTask
}

func (w *resubmitWaker) Wake() {
	if err := w.s.Submit(w.t); err != nil {
		w.s.log.Warn("wake resubmit failed",
			zap.Uint64("task", w.t.ID()),
			zap.Error(err))
	}
}

// Submit enqueues a task. A full queue returns ErrQueueFull and the
// caller keeps the task; it is never dropped.
func (s *LocalScheduler) Submit(t *api.RawTask) error {
	if api.SchedulerState(s.state.Load()) != api.SchedulerRunning {
		return api.ErrStopped
	}
	if !s.local.Push(t) && !s.inject.push(t) {
		return api.ErrQueueFull
	}
	s.submitted.Add(1)
	s.parker.unpark()
	return nil
}

func (s *LocalScheduler) RegisterTaskWaker(id uint64, w api.Waker) {
	s.registry.Register(id, w)
}

func (s *LocalScheduler) GetTaskWaker(id uint64) (api.Waker, bool) {
	return s.registry.Get(id)
}

func (s *LocalScheduler) RemoveTaskWaker(id uint64) {
	s.registry.Remove(id)
}

// DispatchCompletion wakes the task registered for id, if any.
func (s *LocalScheduler) DispatchCompletion(id uint64) bool {
	return s.registry.Dispatch(id)
}

func (s *LocalScheduler) State() api.SchedulerState {
	return api.SchedulerState(s.state.Load())
}

// Shutdown flips Running to ShuttingDown and wakes the worker.
// Idempotent; later states are never rolled back.
func (s *LocalScheduler) Shutdown() {
	if s.state.CompareAndSwap(int32(api.SchedulerRunning), int32(api.SchedulerShuttingDown)) {
		s.parker.unpark()
	}
}

// Join blocks until the worker observed the stop and exited.
func (s *LocalScheduler) Join() {
	<-s.done
}

func (s *LocalScheduler) Stats() api.SchedulerStats {
	return api.SchedulerStats{
		Submitted: s.submitted.Load(),
		Completed: s.completed.Load(),
	}
}

// File: internal/concurrency/stealing.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WorkStealingScheduler: N workers, each with its own ring. A worker
// drains its own queue first, then scans the peers round-robin starting
// at (id+1) and steals the first available task, then falls back to the
// shared inject queue, then parks. External Submit round-robins across
// the rings with one full retry pass before reporting backpressure.

package concurrency

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/momentics/nexio/api"
)

var _ api.Scheduler = (*WorkStealingScheduler)(nil)

// WorkStealingScheduler balances tasks across several worker threads.
type WorkStealingScheduler struct {
	cfg     Config
	log     *zap.Logger
	workers int

	state    atomic.Int32
	queues   []*LocalQueue
	parkers  []*parker
	inject   *injectQueue
	registry *WakerRegistry
	wg       sync.WaitGroup
	alive    atomic.Int32
	next     atomic.Uint64

	submitted atomic.Uint64
	completed atomic.Uint64
	stolen    atomic.Uint64
}

// NewWorkStealingScheduler spawns workers worker threads.
func NewWorkStealingScheduler(workers int, cfg Config, log *zap.Logger) *WorkStealingScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if workers <= 0 {
		workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.ParkInterval <= 0 {
		cfg.ParkInterval = DefaultConfig().ParkInterval
	}
	s := &WorkStealingScheduler{
		cfg:      cfg,
		log:      log,
		workers:  workers,
		queues:   make([]*LocalQueue, workers),
		parkers:  make([]*parker, workers),
		inject:   newInjectQueue(cfg.QueueSize * workers),
		registry: NewWakerRegistry(),
	}
	for i := 0; i < workers; i++ {
		s.queues[i] = NewLocalQueue(cfg.QueueSize)
		s.parkers[i] = newParker()
	}
	s.state.Store(int32(api.SchedulerRunning))
	s.alive.Store(int32(workers))
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.run(i)
	}
	return s
}

func (s *WorkStealingScheduler) run(id int) {
	defer func() {
		// The last worker out commits the Stopped transition.
		if s.alive.Add(-1) == 0 {
			s.state.Store(int32(api.SchedulerStopped))
		}
		s.wg.Done()
	}()
	if s.cfg.PinCPU >= 0 {
		if err := PinCurrentThread(s.cfg.PinCPU + id); err != nil {
			s.log.Warn("worker pinning failed", zap.Int("worker", id), zap.Error(err))
		}
	}
	name := fmt.Sprintf("%s-%d", s.cfg.ThreadName, id)
	s.log.Debug("worker started", zap.String("worker", name))

	for api.SchedulerState(s.state.Load()) == api.SchedulerRunning {
		if t := s.queues[id].Pop(); t != nil {
			s.runTask(t)
			continue
		}
		if t := s.steal(id); t != nil {
			s.stolen.Add(1)
			s.runTask(t)
			continue
		}
		if t := s.inject.pop(); t != nil {
			s.runTask(t)
			continue
		}
		s.parkers[id].park(s.cfg.ParkInterval)
	}
	s.log.Debug("worker stopped", zap.String("worker", name))
}

// steal scans the other rings round-robin starting at (id+1).
func (s *WorkStealingScheduler) steal(id int) *api.RawTask {
	for i := 1; i < s.workers; i++ {
		victim := (id + i) % s.workers
		if t := s.queues[victim].Pop(); t != nil {
			return t
		}
	}
	return nil
}

func (s *WorkStealingScheduler) runTask(t *api.RawTask) {
	cx := api.NewContext(&stealResubmitWaker{s: s, t: t})
	if t.Poll(cx) == api.PollReady {
		s.completed.Add(1)
	}
}

type stealResubmitWaker struct {
	s *WorkStealingScheduler
	t *api.RawTask
}

func (w *stealResubmitWaker) Wake() {
	if err := w.s.Submit(w.t); err != nil {
		w.s.log.Warn("wake resubmit failed",
			zap.Uint64("task", w.t.ID()),
			zap.Error(err))
	}
}

// Submit round-robins across the worker rings. If the chosen ring is
// full, one retry pass covers every other ring, then the inject queue;
// only when all are full does the caller get ErrQueueFull back.
func (s *WorkStealingScheduler) Submit(t *api.RawTask) error {
	if api.SchedulerState(s.state.Load()) != api.SchedulerRunning {
		return api.ErrStopped
	}
	start := int(s.next.Add(1)) % s.workers
	if !s.queues[start].Push(t) {
		pushed := false
		for i := 1; i < s.workers; i++ {
			if s.queues[(start+i)%s.workers].Push(t) {
				pushed = true
				break
			}
		}
		if !pushed && !s.inject.push(t) {
			return api.ErrQueueFull
		}
	}
	s.submitted.Add(1)
	for _, p := range s.parkers {
		p.unpark()
	}
	return nil
}

func (s *WorkStealingScheduler) RegisterTaskWaker(id uint64, w api.Waker) {
	s.registry.Register(id, w)
}

func (s *WorkStealingScheduler) GetTaskWaker(id uint64) (api.Waker, bool) {
	return s.registry.Get(id)
}

func (s *WorkStealingScheduler) RemoveTaskWaker(id uint64) {
	s.registry.Remove(id)
}

// DispatchCompletion wakes the task registered for id, if any.
func (s *WorkStealingScheduler) DispatchCompletion(id uint64) bool {
	return s.registry.Dispatch(id)
}

func (s *WorkStealingScheduler) State() api.SchedulerState {
	return api.SchedulerState(s.state.Load())
}

// Shutdown flips the state and wakes every parked worker. Idempotent.
func (s *WorkStealingScheduler) Shutdown() {
	if s.state.CompareAndSwap(int32(api.SchedulerRunning), int32(api.SchedulerShuttingDown)) {
		for _, p := range s.parkers {
			p.unpark()
		}
	}
}

// Join waits for every worker, not just the first.
func (s *WorkStealingScheduler) Join() {
	s.wg.Wait()
}

func (s *WorkStealingScheduler) Stats() api.SchedulerStats {
	return api.SchedulerStats{
		Submitted: s.submitted.Load(),
		Completed: s.completed.Load(),
		Stolen:    s.stolen.Load(),
	}
}

// File: runtime/runtime.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime is the composition root: one Driver, one Scheduler, one
// global timer wheel. BlockOn is the only blocking call exposed to the
// embedding application; one iteration of its loop submits pending I/O,
// waits for completions, dispatches each completion to its registered
// waker in driver order, and advances the wheel by the wall-clock delta.

package runtime

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/nexio/api"
	"github.com/momentics/nexio/driver"
	"github.com/momentics/nexio/internal/concurrency"
	"github.com/momentics/nexio/timer"
)

// scheduler unifies the two scheduler variants with the completion
// dispatch hook the event loop needs.
type scheduler interface {
	api.Scheduler
	DispatchCompletion(id uint64) bool
}

// Runtime owns the driver, the scheduler and the timer wheel.
type Runtime struct {
	cfg   Config
	log   *zap.Logger
	drv   api.Driver
	sched scheduler
	wheel *timer.Wheel

	taskIDs  atomic.Uint64
	lastTick time.Time

	resMu   sync.Mutex
	results map[uint64]api.CompletionEntry
}

// New builds a runtime from cfg. Construction errors (unsupported
// backend, bad platform) are permanent and surface here.
func New(cfg Config) (*Runtime, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.WorkerThreads <= 0 {
		cfg.WorkerThreads = 1
	}
	if cfg.ParkTimeout <= 0 {
		cfg.ParkTimeout = DefaultConfig().ParkTimeout
	}

	drv := cfg.Driver
	if drv == nil {
		drvCfg := api.NewDriverConfigBuilder().Entries(cfg.IoEntries).Build()
		var err error
		drv, err = driver.NewFactory(log).CreateWithConfig(cfg.DriverType, drvCfg)
		if err != nil {
			return nil, err
		}
	}

	schedCfg := concurrency.Config{
		QueueSize:    cfg.QueueSize,
		ThreadName:   cfg.ThreadName,
		PinCPU:       -1,
		ParkInterval: cfg.ParkTimeout,
	}
	var sched scheduler
	if cfg.WorkerThreads == 1 {
		sched = concurrency.NewLocalScheduler(schedCfg, log)
	} else {
		sched = concurrency.NewWorkStealingScheduler(cfg.WorkerThreads, schedCfg, log)
	}

	log.Info("runtime started",
		zap.Int("workers", cfg.WorkerThreads),
		zap.Stringer("driver", drv.Type()))

	return &Runtime{
		cfg:     cfg,
		log:     log,
		drv:     drv,
		sched:   sched,
		wheel:   timer.NewWheel(),
		results: make(map[uint64]api.CompletionEntry),
	}, nil
}

// Driver returns the I/O backend.
func (r *Runtime) Driver() api.Driver { return r.drv }

// Scheduler returns the task scheduler.
func (r *Runtime) Scheduler() api.Scheduler { return r.sched }

// Wheel returns the global timer wheel.
func (r *Runtime) Wheel() *timer.Wheel { return r.wheel }

// Handle returns a lightweight accessor for application tasks.
func (r *Runtime) Handle() *Handle { return &Handle{rt: r} }

// NextTaskID hands out unique task/operation correlation tokens.
func (r *Runtime) NextTaskID() uint64 { return r.taskIDs.Add(1) }

// Spawn submits fut as a background task and returns its id. A full
// scheduler surfaces backpressure; the future is not lost.
func (r *Runtime) Spawn(fut api.Future) (uint64, error) {
	id := r.NextTaskID()
	if err := r.sched.Submit(api.NewRawTask(id, fut)); err != nil {
		return 0, err
	}
	return id, nil
}

// BlockOn drives fut to completion, running the event loop between
// polls. The calling thread blocks; nothing else in the core does.
func (r *Runtime) BlockOn(fut api.Future) error {
	var notified atomic.Bool
	cx := api.NewContext(api.WakeFunc(func() {
		notified.Store(true)
		_ = r.drv.Wakeup()
	}))

	r.lastTick = time.Now()
	for {
		notified.Store(false)
		if fut.Poll(cx) == api.PollReady {
			return r.flush()
		}
		if err := r.drv.Submit(); err != nil {
			return err
		}
		if !notified.Load() {
			if r.cfg.EnableParking {
				if _, _, err := r.drv.WaitTimeout(r.cfg.ParkTimeout); err != nil {
					return err
				}
			} else {
				if _, err := r.drv.Wait(); err != nil {
					return err
				}
			}
		}
		r.drainCompletions()
		r.advanceWheel()
	}
}

// flush performs the final non-blocking drain after the root future
// resolved: one submit, a zero-timeout wait, and completion dispatch.
func (r *Runtime) flush() error {
	if err := r.drv.Submit(); err != nil {
		return err
	}
	if _, _, err := r.drv.WaitTimeout(0); err != nil {
		return err
	}
	r.drainCompletions()
	return nil
}

// drainCompletions dispatches ready completions to their registered
// wakers in the order the driver reports them. Each completion is
// stashed before its waker fires so the woken task can claim the
// result with TakeResult.
func (r *Runtime) drainCompletions() {
	for {
		c, ok := r.drv.GetCompletion()
		if !ok {
			return
		}
		r.drv.AdvanceCompletion()
		r.resMu.Lock()
		r.results[c.UserData] = c
		r.resMu.Unlock()
		if !r.sched.DispatchCompletion(c.UserData) {
			// Waiter vanished (task dropped): tolerated as a no-op.
			r.log.Debug("completion without waiter", zap.Uint64("user_data", c.UserData))
			r.discardResult(c.UserData)
		}
	}
}

// TakeResult claims the completion stored for userData, removing it.
// Typically called from a task's Poll right after its waker fired.
func (r *Runtime) TakeResult(userData uint64) (api.CompletionEntry, bool) {
	r.resMu.Lock()
	defer r.resMu.Unlock()
	c, ok := r.results[userData]
	if ok {
		delete(r.results, userData)
	}
	return c, ok
}

func (r *Runtime) discardResult(userData uint64) {
	r.resMu.Lock()
	delete(r.results, userData)
	r.resMu.Unlock()
}

// advanceWheel converts elapsed wall-clock time into ticks (one tick
// per millisecond) and advances the wheel once per loop iteration.
func (r *Runtime) advanceWheel() {
	now := time.Now()
	elapsed := now.Sub(r.lastTick)
	ticks := uint64(elapsed / time.Millisecond)
	if ticks == 0 {
		return
	}
	r.wheel.Advance(ticks)
	r.lastTick = r.lastTick.Add(time.Duration(ticks) * time.Millisecond)
}

// Shutdown stops the scheduler, waits for its workers and closes the
// driver. The runtime is unusable afterwards.
func (r *Runtime) Shutdown() error {
	r.sched.Shutdown()
	_ = r.drv.Wakeup()
	r.sched.Join()
	err := r.drv.Close()
	r.log.Info("runtime stopped",
		zap.Uint64("completed", r.sched.Stats().Completed))
	return err
}

// File: internal/concurrency/scheduler_test.go
// Scheduler contract: task execution, suspension/wake, backpressure,
// shutdown/join for both the local and work-stealing variants.

package concurrency

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/nexio/api"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestLocalScheduler_RunsSubmittedTask(t *testing.T) {
	s := NewLocalScheduler(DefaultConfig(), nil)
	defer func() { s.Shutdown(); s.Join() }()

	var ran atomic.Bool
	task := api.NewRawTask(1, api.FutureFunc(func(*api.Context) api.Poll {
		ran.Store(true)
		return api.PollReady
	}))
	require.NoError(t, s.Submit(task))
	waitFor(t, ran.Load)
	waitFor(t, func() bool { return s.Stats().Completed == 1 })
}

func TestLocalScheduler_SuspendAndWake(t *testing.T) {
	s := NewLocalScheduler(DefaultConfig(), nil)
	defer func() { s.Shutdown(); s.Join() }()

	var polls atomic.Int32
	var done atomic.Bool
	task := api.NewRawTask(42, api.FutureFunc(func(cx *api.Context) api.Poll {
		if polls.Add(1) == 1 {
			// Suspend: park the waker in the registry, as an I/O future
			// awaiting its completion would.
			s.RegisterTaskWaker(42, cx.Waker())
			return api.PollPending
		}
		done.Store(true)
		return api.PollReady
	}))
	require.NoError(t, s.Submit(task))
	waitFor(t, func() bool { return polls.Load() == 1 })

	// The completion arrives: dispatch wakes and resubmits the task.
	assert.True(t, s.DispatchCompletion(42))
	waitFor(t, done.Load)
	assert.Equal(t, int32(2), polls.Load())
}

func TestLocalScheduler_Backpressure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueSize = 8
	s := NewLocalScheduler(cfg, nil)

	gate := make(chan struct{})
	blocker := func(*api.Context) api.Poll {
		<-gate
		return api.PollReady
	}

	var full int
	for i := 0; i < 200; i++ {
		err := s.Submit(api.NewRawTask(uint64(i), api.FutureFunc(blocker)))
		if err != nil {
			require.True(t, errors.Is(err, api.ErrQueueFull))
			full++
		}
	}
	assert.Greater(t, full, 0, "submitting beyond capacity must surface backpressure")

	close(gate)
	s.Shutdown()
	s.Join()
	assert.Equal(t, api.SchedulerStopped, s.State())
}

func TestLocalScheduler_SubmitAfterShutdown(t *testing.T) {
	s := NewLocalScheduler(DefaultConfig(), nil)
	s.Shutdown()
	s.Join()

	err := s.Submit(api.NewRawTask(1, noopFuture()))
	assert.True(t, errors.Is(err, api.ErrStopped))
	assert.Equal(t, api.SchedulerStopped, s.State())
}

func TestLocalScheduler_StateForwardOnly(t *testing.T) {
	s := NewLocalScheduler(DefaultConfig(), nil)
	assert.Equal(t, api.SchedulerRunning, s.State())
	s.Shutdown()
	s.Shutdown() // idempotent
	s.Join()
	assert.Equal(t, api.SchedulerStopped, s.State())
}

func TestWorkStealing_RunsAcrossWorkers(t *testing.T) {
	s := NewWorkStealingScheduler(4, DefaultConfig(), nil)
	defer func() { s.Shutdown(); s.Join() }()

	const tasks = 100
	var ran atomic.Int32
	for i := 0; i < tasks; i++ {
		task := api.NewRawTask(uint64(i), api.FutureFunc(func(*api.Context) api.Poll {
			ran.Add(1)
			return api.PollReady
		}))
		require.NoError(t, s.Submit(task))
	}
	waitFor(t, func() bool { return ran.Load() == tasks })
	assert.Equal(t, uint64(tasks), s.Stats().Completed)
}

func TestWorkStealing_StealsFromLoadedPeer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueSize = 256
	s := NewWorkStealingScheduler(4, cfg, nil)
	defer func() { s.Shutdown(); s.Join() }()

	// Uneven CPU-bound load: with round-robin placement and four
	// workers draining, steals occur once some rings empty first.
	var ran atomic.Int32
	const tasks = 400
	for i := 0; i < tasks; i++ {
		task := api.NewRawTask(uint64(i), api.FutureFunc(func(*api.Context) api.Poll {
			ran.Add(1)
			return api.PollReady
		}))
		require.NoError(t, s.Submit(task))
	}
	waitFor(t, func() bool { return ran.Load() == tasks })
}

func TestWorkStealing_BackpressureNeverDrops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueSize = 4
	s := NewWorkStealingScheduler(2, cfg, nil)

	gate := make(chan struct{})
	blocker := func(*api.Context) api.Poll {
		<-gate
		return api.PollReady
	}

	var accepted, rejected int
	for i := 0; i < 100; i++ {
		err := s.Submit(api.NewRawTask(uint64(i), api.FutureFunc(blocker)))
		if err != nil {
			require.True(t, errors.Is(err, api.ErrQueueFull))
			rejected++
		} else {
			accepted++
		}
	}
	assert.Greater(t, rejected, 0)

	close(gate)
	waitFor(t, func() bool { return int(s.Stats().Completed) == accepted })
	s.Shutdown()
	s.Join()
	assert.Equal(t, api.SchedulerStopped, s.State())
}

func TestWorkStealing_JoinWaitsForAllWorkers(t *testing.T) {
	s := NewWorkStealingScheduler(8, DefaultConfig(), nil)
	s.Shutdown()
	s.Join()
	assert.Equal(t, api.SchedulerStopped, s.State())
}

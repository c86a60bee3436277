//go:build linux

// File: runtime/runtime_linux_test.go
// End-to-end event loop behavior over the epoll backend.

package runtime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/nexio/api"
	"github.com/momentics/nexio/channel"
)

func newTestRuntime(t *testing.T, workers int) *Runtime {
	t.Helper()
	rt, err := NewBuilder().
		WorkerThreads(workers).
		DriverType(api.DriverEpoll).
		ParkTimeout(2 * time.Millisecond).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Shutdown() })
	return rt
}

func TestBlockOn_ImmediatelyReady(t *testing.T) {
	rt := newTestRuntime(t, 1)
	var polls int
	err := rt.BlockOn(api.FutureFunc(func(*api.Context) api.Poll {
		polls++
		return api.PollReady
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, polls)
}

func TestBlockOn_ResolvesViaTimerWheel(t *testing.T) {
	rt := newTestRuntime(t, 1)

	var fired atomic.Bool
	_, err := rt.Wheel().Schedule(20, func() { fired.Store(true) })
	require.NoError(t, err)

	start := time.Now()
	err = rt.BlockOn(api.FutureFunc(func(*api.Context) api.Poll {
		if fired.Load() {
			return api.PollReady
		}
		return api.PollPending
	}))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	assert.GreaterOrEqual(t, rt.Wheel().CurrentTicks(), uint64(20))
}

func TestBlockOn_ChannelBetweenTasks(t *testing.T) {
	rt := newTestRuntime(t, 1)
	tx, rx := channel.Unbounded[int]()

	_, err := rt.Spawn(api.FutureFunc(func(*api.Context) api.Poll {
		for i := 1; i <= 3; i++ {
			if err := tx.Send(i * 10); err != nil {
				return api.PollReady
			}
		}
		tx.Close()
		return api.PollReady
	}))
	require.NoError(t, err)

	var got []int
	var fut *channel.RecvFuture[int]
	err = rt.BlockOn(api.FutureFunc(func(cx *api.Context) api.Poll {
		for {
			if fut == nil {
				fut = rx.Recv()
			}
			if fut.Poll(cx) == api.PollPending {
				return api.PollPending
			}
			if fut.Err() != nil {
				return api.PollReady // stream ended
			}
			got = append(got, fut.Value())
			fut = nil
		}
	}))
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 30}, got)
}

func TestRuntime_SpawnOnWorkStealing(t *testing.T) {
	rt := newTestRuntime(t, 4)

	const tasks = 50
	var done atomic.Int32
	for i := 0; i < tasks; i++ {
		_, err := rt.Spawn(api.FutureFunc(func(*api.Context) api.Poll {
			done.Add(1)
			return api.PollReady
		}))
		require.NoError(t, err)
	}

	err := rt.BlockOn(api.FutureFunc(func(*api.Context) api.Poll {
		if done.Load() == tasks {
			return api.PollReady
		}
		return api.PollPending
	}))
	require.NoError(t, err)
}

func TestRuntime_TaskIDsAreUnique(t *testing.T) {
	rt := newTestRuntime(t, 1)
	seen := map[uint64]bool{}
	for i := 0; i < 100; i++ {
		id := rt.NextTaskID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}

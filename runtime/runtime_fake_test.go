// File: runtime/runtime_fake_test.go
// Event-loop behavior over the in-memory driver, runnable on any
// platform.

package runtime_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/nexio/api"
	"github.com/momentics/nexio/fake"
	"github.com/momentics/nexio/runtime"
)

func newFakeRuntime(t *testing.T) (*runtime.Runtime, *fake.Driver) {
	t.Helper()
	drv := fake.NewDriver()
	rt, err := runtime.NewBuilder().
		Driver(drv).
		ParkTimeout(2 * time.Millisecond).
		Build()
	require.NoError(t, err)
	return rt, drv
}

// ioFuture submits one entry on its first poll and resolves when the
// completion is dispatched back to it.
type ioFuture struct {
	rt        *runtime.Runtime
	token     uint64
	submitted bool
	done      bool
	result    api.CompletionEntry
}

func (f *ioFuture) Poll(cx *api.Context) api.Poll {
	if f.done {
		return api.PollReady
	}
	if !f.submitted {
		f.rt.Scheduler().RegisterTaskWaker(f.token, cx.Waker())
		entry := api.SubmitEntry{Opcode: api.OpNop, UserData: f.token}
		f.rt.Driver().Prepare(&entry)
		f.submitted = true
		return api.PollPending
	}
	if ce, ok := f.rt.TakeResult(f.token); ok {
		f.result = ce
	}
	f.done = true
	return api.PollReady
}

func TestBlockOn_SubmitsAndDispatchesCompletion(t *testing.T) {
	rt, drv := newFakeRuntime(t)
	defer rt.Shutdown()

	f := &ioFuture{rt: rt, token: rt.NextTaskID()}
	require.NoError(t, rt.BlockOn(f))
	assert.True(t, f.done)
	assert.Equal(t, f.token, f.result.UserData, "completion was claimable via TakeResult")
	assert.GreaterOrEqual(t, drv.Submits(), 1, "pending entries were flushed")
}

func TestBlockOn_WakerWakesParkedLoop(t *testing.T) {
	rt, drv := newFakeRuntime(t)
	defer rt.Shutdown()

	var fired atomic.Bool
	wakerCh := make(chan api.Waker, 1)
	polls := 0
	fut := api.FutureFunc(func(cx *api.Context) api.Poll {
		polls++
		if fired.Load() {
			return api.PollReady
		}
		select {
		case wakerCh <- cx.Waker():
		default:
		}
		return api.PollPending
	})

	go func() {
		w := <-wakerCh
		time.Sleep(5 * time.Millisecond)
		fired.Store(true)
		w.Wake()
	}()

	require.NoError(t, rt.BlockOn(fut))
	assert.GreaterOrEqual(t, polls, 2)
	assert.GreaterOrEqual(t, drv.Wakeups(), 1, "external wake interrupted the wait")
}

func TestBlockOn_ReadinessRegistration(t *testing.T) {
	rt, drv := newFakeRuntime(t)
	defer rt.Shutdown()

	token := rt.NextTaskID()
	registered := false
	woken := false
	fut := api.FutureFunc(func(cx *api.Context) api.Poll {
		if woken {
			return api.PollReady
		}
		if !registered {
			rt.Scheduler().RegisterTaskWaker(token, cx.Waker())
			require.NoError(t, rt.Driver().Register(41, api.Interest(0).WithReadable(), token))
			registered = true
			go func() {
				time.Sleep(3 * time.Millisecond)
				drv.FireReadiness(41)
			}()
			return api.PollPending
		}
		woken = true
		return api.PollReady
	})

	require.NoError(t, rt.BlockOn(fut))
	assert.True(t, woken)
}

func TestShutdown_ClosesInjectedDriver(t *testing.T) {
	rt, drv := newFakeRuntime(t)
	require.NoError(t, rt.Shutdown())
	err := drv.Wakeup()
	assert.ErrorIs(t, err, api.ErrStopped)
}

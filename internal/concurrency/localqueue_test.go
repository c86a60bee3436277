// File: internal/concurrency/localqueue_test.go
// Ring semantics: FIFO order, nil on empty, full queue refuses pushes.

package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/nexio/api"
)

func noopFuture() api.Future {
	return api.FutureFunc(func(*api.Context) api.Poll { return api.PollReady })
}

func TestLocalQueue_FIFO(t *testing.T) {
	q := NewLocalQueue(16)
	t1 := api.NewRawTask(1, noopFuture())
	t2 := api.NewRawTask(2, noopFuture())

	require.True(t, q.Push(t1))
	require.True(t, q.Push(t2))
	assert.Equal(t, 2, q.Len())

	assert.Same(t, t1, q.Pop())
	assert.Same(t, t2, q.Pop())
	assert.Nil(t, q.Pop())
	assert.Equal(t, 0, q.Len())
}

func TestLocalQueue_FullHandsTaskBack(t *testing.T) {
	q := NewLocalQueue(4)
	for i := 0; i < q.Cap(); i++ {
		require.True(t, q.Push(api.NewRawTask(uint64(i), noopFuture())))
	}
	extra := api.NewRawTask(99, noopFuture())
	assert.False(t, q.Push(extra), "full queue must refuse, not drop")
	// Task is still usable by the caller.
	assert.Equal(t, uint64(99), extra.ID())
}

func TestLocalQueue_CapacityRounding(t *testing.T) {
	assert.Equal(t, 16, NewLocalQueue(16).Cap())
	assert.Equal(t, 16, NewLocalQueue(9).Cap())
	assert.Equal(t, 2, NewLocalQueue(0).Cap())
}

func TestLocalQueue_ConcurrentPushPop(t *testing.T) {
	q := NewLocalQueue(1024)
	const producers = 4
	const perProducer = 500

	var pushed, popped atomic.Int64
	var stop atomic.Bool
	var wg, cg sync.WaitGroup

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if q.Push(api.NewRawTask(uint64(base+i), noopFuture())) {
					pushed.Add(1)
				}
			}
		}(p * perProducer)
	}

	cg.Add(2)
	for c := 0; c < 2; c++ {
		go func() {
			defer cg.Done()
			for !stop.Load() {
				if q.Pop() != nil {
					popped.Add(1)
				}
			}
		}()
	}

	wg.Wait()
	stop.Store(true)
	cg.Wait()
	for q.Pop() != nil {
		popped.Add(1)
	}
	assert.Equal(t, pushed.Load(), popped.Load(), "every pushed task is popped exactly once")
}

// File: internal/concurrency/localqueue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// LocalQueue is a bounded ring of runnable task handles, one per worker
// thread. The owning worker pops, external submitters push, and peer
// workers steal, so the ring uses per-cell sequence numbers (Dmitry
// Vyukov's MPMC pattern) instead of a plain SPSC head/tail pair.
// Push never drops: a full queue hands the task back to the caller.

package concurrency

import (
	"sync/atomic"

	"github.com/momentics/nexio/api"
)

const cacheLinePad = 64

type taskCell struct {
	sequence atomic.Uint64
	task     *api.RawTask
}

// LocalQueue is a fixed-capacity MPMC ring of *api.RawTask.
type LocalQueue struct {
	head  uint64
	_     [cacheLinePad]byte
	tail  uint64
	_     [cacheLinePad]byte
	mask  uint64
	cells []taskCell
}

// NewLocalQueue allocates a queue with capacity rounded up to a power
// of two. Capacity is fixed for the queue's lifetime.
func NewLocalQueue(capacity int) *LocalQueue {
	if capacity < 2 {
		capacity = 2
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	q := &LocalQueue{
		mask:  uint64(size - 1),
		cells: make([]taskCell, size),
	}
	for i := range q.cells {
		q.cells[i].sequence.Store(uint64(i))
	}
	return q
}

// Push appends a task; returns false when full, leaving the task with
// the caller.
func (q *LocalQueue) Push(t *api.RawTask) bool {
	for {
		tail := atomic.LoadUint64(&q.tail)
		c := &q.cells[tail&q.mask]
		seq := c.sequence.Load()
		dif := int64(seq) - int64(tail)
		if dif == 0 {
			if atomic.CompareAndSwapUint64(&q.tail, tail, tail+1) {
				c.task = t
				c.sequence.Store(tail + 1)
				return true
			}
		} else if dif < 0 {
			return false
		}
		// Another producer claimed the cell; retry.
	}
}

// Pop removes the oldest task, or returns nil when empty. Safe to call
// from the owner and from stealing peers concurrently.
func (q *LocalQueue) Pop() *api.RawTask {
	for {
		head := atomic.LoadUint64(&q.head)
		c := &q.cells[head&q.mask]
		seq := c.sequence.Load()
		dif := int64(seq) - int64(head+1)
		if dif == 0 {
			if atomic.CompareAndSwapUint64(&q.head, head, head+1) {
				t := c.task
				c.task = nil
				c.sequence.Store(head + q.mask + 1)
				return t
			}
		} else if dif < 0 {
			return nil
		}
	}
}

// Len returns the number of queued tasks. Approximate under contention.
func (q *LocalQueue) Len() int {
	head := atomic.LoadUint64(&q.head)
	tail := atomic.LoadUint64(&q.tail)
	if tail < head {
		return 0
	}
	return int(tail - head)
}

// Cap returns the fixed capacity.
func (q *LocalQueue) Cap() int { return len(q.cells) }

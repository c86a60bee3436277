// File: internal/concurrency/inject.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// injectQueue is the overflow path fed by external Submit calls when a
// worker's local ring is full. Multi-writer, mutex-guarded FIFO; the
// bound keeps backpressure observable instead of buffering unboundedly.

package concurrency

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/nexio/api"
)

type injectQueue struct {
	mu    sync.Mutex
	fifo  *queue.Queue
	limit int
}

func newInjectQueue(limit int) *injectQueue {
	return &injectQueue{fifo: queue.New(), limit: limit}
}

// push appends a task; returns false at the configured bound.
func (q *injectQueue) push(t *api.RawTask) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && q.fifo.Length() >= q.limit {
		return false
	}
	q.fifo.Add(t)
	return true
}

// pop removes the oldest task, or nil when empty.
func (q *injectQueue) pop() *api.RawTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fifo.Length() == 0 {
		return nil
	}
	return q.fifo.Remove().(*api.RawTask)
}

func (q *injectQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fifo.Length()
}

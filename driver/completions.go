// File: driver/completions.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Backend-shared bookkeeping: the ready-completion queue with
// peek/advance semantics and the in-flight operation table that leases
// submit buffers for the lifetime of their operations.

//go:build unix

package driver

import (
	"sync"

	"github.com/momentics/nexio/api"
	"golang.org/x/sys/unix"
)

const ecanceled = unix.ECANCELED

// completionQueue holds drained kernel completions until the consumer
// commits them. GetCompletion peeks; AdvanceCompletion consumes.
type completionQueue struct {
	mu    sync.Mutex
	ready []api.CompletionEntry
	pos   int
}

func (q *completionQueue) push(c api.CompletionEntry) {
	q.mu.Lock()
	q.ready = append(q.ready, c)
	q.mu.Unlock()
}

func (q *completionQueue) peek() (api.CompletionEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pos >= len(q.ready) {
		return api.CompletionEntry{}, false
	}
	return q.ready[q.pos], true
}

func (q *completionQueue) advance() {
	q.mu.Lock()
	if q.pos < len(q.ready) {
		q.pos++
	}
	// Compact once fully drained to keep the backing array bounded.
	if q.pos == len(q.ready) {
		q.ready = q.ready[:0]
		q.pos = 0
	}
	q.mu.Unlock()
}

func (q *completionQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) - q.pos
}

// inflightOp is one submitted operation awaiting its completion. The
// entry reference keeps the caller's buffer (and sockaddr payload)
// reachable until the completion is recorded.
type inflightOp struct {
	entry *api.SubmitEntry
	state api.IoState
}

// opTable tracks in-flight operations by UserData and enforces the
// per-fd concurrency bound.
type opTable struct {
	mu       sync.Mutex
	ops      map[uint64]*inflightOp
	perFd    map[int32]int
	maxPerFd int
}

func newOpTable(maxPerFd int) *opTable {
	return &opTable{
		ops:      make(map[uint64]*inflightOp),
		perFd:    make(map[int32]int),
		maxPerFd: maxPerFd,
	}
}

// add admits an operation, or reports false when the fd already has the
// maximum number of operations in flight.
func (t *opTable) add(e *api.SubmitEntry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.maxPerFd > 0 && t.perFd[e.Fd] >= t.maxPerFd {
		return false
	}
	t.ops[e.UserData] = &inflightOp{entry: e, state: api.IoSubmitted}
	t.perFd[e.Fd]++
	return true
}

func (t *opTable) markInProgress(userData uint64) {
	t.mu.Lock()
	if op, ok := t.ops[userData]; ok && op.state == api.IoSubmitted {
		op.state = api.IoInProgress
	}
	t.mu.Unlock()
}

// finish removes the operation and releases its buffer lease. The final
// state is Completed, Failed or Cancelled depending on the result.
func (t *opTable) finish(userData uint64, result int32) {
	t.mu.Lock()
	if op, ok := t.ops[userData]; ok {
		switch {
		case result >= 0:
			op.state = api.IoCompleted
		case result == -int32(ecanceled):
			op.state = api.IoCancelled
		default:
			op.state = api.IoFailed
		}
		if t.perFd[op.entry.Fd] > 1 {
			t.perFd[op.entry.Fd]--
		} else {
			delete(t.perFd, op.entry.Fd)
		}
		delete(t.ops, userData)
	}
	t.mu.Unlock()
}

// withdraw releases an admitted operation that was never handed to the
// kernel, without recording a terminal state. The operation stays
// logically Submitted from the caller's point of view; finish is for
// operations the kernel actually saw.
func (t *opTable) withdraw(userData uint64) {
	t.mu.Lock()
	if op, ok := t.ops[userData]; ok {
		if t.perFd[op.entry.Fd] > 1 {
			t.perFd[op.entry.Fd]--
		} else {
			delete(t.perFd, op.entry.Fd)
		}
		delete(t.ops, userData)
	}
	t.mu.Unlock()
}

// byFd returns the user data of every in-flight operation on fd.
// Map iteration order is not stable; callers retry each op independently.
func (t *opTable) byFd(fd int32) []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []uint64
	for ud, op := range t.ops {
		if op.entry.Fd == fd {
			ids = append(ids, ud)
		}
	}
	return ids
}

func (t *opTable) get(userData uint64) (*api.SubmitEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[userData]
	if !ok {
		return nil, false
	}
	return op.entry, true
}

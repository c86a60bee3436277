// File: api/task.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Cooperative task model. A Future is an explicit state machine driven
// by Poll; a Waker re-enqueues its suspended task when invoked. RawTask
// binds a stable 64-bit identity to a pollable unit so schedulers and
// the completion dispatch path can refer to it without owning it.

package api

// Poll is the outcome of a single Future poll.
type Poll uint8

const (
	PollPending Poll = iota
	PollReady
)

// Waker re-enqueues a suspended task for polling. Implementations must
// be safe to invoke from any thread and tolerate spurious wakes.
type Waker interface {
	Wake()
}

// WakeFunc adapts a plain function to the Waker interface.
type WakeFunc func()

func (f WakeFunc) Wake() { f() }

// Context carries the waker handed to a Future during Poll. A Future
// that returns PollPending must arrange for the waker to fire when it
// can make progress.
type Context struct {
	waker Waker
}

// NewContext wraps a waker for polling.
func NewContext(w Waker) *Context { return &Context{waker: w} }

// Waker returns the waker for the task being polled.
func (c *Context) Waker() Waker { return c.waker }

// Future is a cooperatively scheduled unit of work.
type Future interface {
	Poll(cx *Context) Poll
}

// FutureFunc adapts a function to the Future interface.
type FutureFunc func(cx *Context) Poll

func (f FutureFunc) Poll(cx *Context) Poll { return f(cx) }

// RawTask is the opaque handle queued by schedulers: a stable identity
// plus the future it drives. Pointer identity is the queue currency;
// a RawTask is never copied once submitted.
type RawTask struct {
	id  uint64
	fut Future
}

// NewRawTask binds id to fut.
func NewRawTask(id uint64, fut Future) *RawTask {
	return &RawTask{id: id, fut: fut}
}

// ID returns the stable 64-bit task identity.
func (t *RawTask) ID() uint64 { return t.id }

// Poll drives the underlying future once.
func (t *RawTask) Poll(cx *Context) Poll { return t.fut.Poll(cx) }

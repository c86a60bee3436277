// File: channel/mpsc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Multi-producer single-consumer channel, independent of the driver.
// Send is synchronous and never suspends; Recv is the async suspension
// point. The shared core is a mutex-guarded FIFO plus an atomic sender
// count, an atomic receiver-alive flag, and a single pending receiver
// waker slot. FIFO order across all senders is observed by the one
// consumer.

package channel

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/nexio/api"
)

// SendError is returned when the receiver is gone. It carries the value
// back so a failed send never loses data.
type SendError[T any] struct {
	Value T
}

func (e *SendError[T]) Error() string {
	return fmt.Sprintf("send on closed channel: %v", any(e.Value))
}

func (e *SendError[T]) Unwrap() error { return api.ErrClosed }

// shared is the state common to all Sender clones and the Receiver.
type shared[T any] struct {
	mu        sync.Mutex
	buf       *queue.Queue
	capacity  int // 0 = unbounded
	senders   atomic.Int64
	recvAlive atomic.Bool
	recvWaker api.Waker // guarded by mu, single pending receiver
}

// wakeReceiver takes and fires the parked waker, if any.
func (s *shared[T]) wakeReceiver() {
	s.mu.Lock()
	w := s.recvWaker
	s.recvWaker = nil
	s.mu.Unlock()
	if w != nil {
		w.Wake()
	}
}

// Sender is the producing half. Clone for additional producers.
type Sender[T any] struct {
	sh     *shared[T]
	closed atomic.Bool
}

// Receiver is the single consuming half.
type Receiver[T any] struct {
	sh     *shared[T]
	closed atomic.Bool
}

// Unbounded creates a channel with no capacity limit.
func Unbounded[T any]() (*Sender[T], *Receiver[T]) {
	return newChannel[T](0)
}

// Bounded creates a channel that refuses sends past cap.
func Bounded[T any](capacity int) (*Sender[T], *Receiver[T]) {
	if capacity < 1 {
		capacity = 1
	}
	return newChannel[T](capacity)
}

func newChannel[T any](capacity int) (*Sender[T], *Receiver[T]) {
	sh := &shared[T]{buf: queue.New(), capacity: capacity}
	sh.senders.Store(1)
	sh.recvAlive.Store(true)
	return &Sender[T]{sh: sh}, &Receiver[T]{sh: sh}
}

// Send enqueues a value without suspending. When the receiver has been
// dropped the value comes back inside *SendError so ownership returns
// to the caller; a bounded channel at capacity reports api.ErrQueueFull
// with the value likewise untouched.
func (s *Sender[T]) Send(v T) error {
	s.sh.mu.Lock()
	// Checked under the buffer lock: a concurrently dropped receiver
	// either sees this value or the send sees the drop, never neither.
	if !s.sh.recvAlive.Load() {
		s.sh.mu.Unlock()
		return &SendError[T]{Value: v}
	}
	if s.sh.capacity > 0 && s.sh.buf.Length() >= s.sh.capacity {
		s.sh.mu.Unlock()
		return api.ErrQueueFull
	}
	s.sh.buf.Add(v)
	s.sh.mu.Unlock()
	s.sh.wakeReceiver()
	return nil
}

// Clone adds a producer handle. The sender count is atomic; the
// receiver observes end-of-stream only after every clone closed.
func (s *Sender[T]) Clone() *Sender[T] {
	s.sh.senders.Add(1)
	return &Sender[T]{sh: s.sh}
}

// Close drops this producer handle. The last close wakes a parked
// receiver so it can observe end-of-stream. Idempotent.
func (s *Sender[T]) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.sh.senders.Add(-1) == 0 {
		s.sh.wakeReceiver()
	}
}

// SenderCount returns the number of live producer handles.
func (s *Sender[T]) SenderCount() int64 { return s.sh.senders.Load() }

// Len returns the number of buffered values.
func (r *Receiver[T]) Len() int {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	return r.sh.buf.Length()
}

// SenderCount returns the number of live producer handles.
func (r *Receiver[T]) SenderCount() int64 { return r.sh.senders.Load() }

// TryRecv pops without suspending: api.ErrEmpty when senders remain but
// no value is buffered, api.ErrClosed once the stream ended.
func (r *Receiver[T]) TryRecv() (T, error) {
	var zero T
	r.sh.mu.Lock()
	if r.sh.buf.Length() > 0 {
		v := r.sh.buf.Remove().(T)
		r.sh.mu.Unlock()
		return v, nil
	}
	r.sh.mu.Unlock()
	if r.sh.senders.Load() == 0 {
		return zero, api.ErrClosed
	}
	return zero, api.ErrEmpty
}

// Recv returns the suspension point for the next value. Poll pops a
// buffered value; an empty buffer with zero senders resolves closed
// immediately; otherwise the waker parks until a send or the last
// sender's close fires it.
func (r *Receiver[T]) Recv() *RecvFuture[T] {
	return &RecvFuture[T]{r: r}
}

// Close marks the receiver dead so further sends fail with
// SendError. Idempotent.
func (r *Receiver[T]) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	// Drop any parked waker under the lock: nothing will ever deliver
	// to it, and a queued waker must not outlive the receiver.
	r.sh.mu.Lock()
	r.sh.recvAlive.Store(false)
	r.sh.recvWaker = nil
	r.sh.mu.Unlock()
}

// RecvFuture resolves to the next channel value.
type RecvFuture[T any] struct {
	r     *Receiver[T]
	value T
	err   error
	done  bool
}

var _ api.Future = (*RecvFuture[int])(nil)

// Poll drives the receive. After PollReady the outcome is stable in
// Value/Err.
func (f *RecvFuture[T]) Poll(cx *api.Context) api.Poll {
	if f.done {
		return api.PollReady
	}
	sh := f.r.sh
	sh.mu.Lock()
	if sh.buf.Length() > 0 {
		f.value = sh.buf.Remove().(T)
		sh.mu.Unlock()
		f.done = true
		return api.PollReady
	}
	if sh.senders.Load() == 0 {
		sh.mu.Unlock()
		f.err = api.ErrClosed
		f.done = true
		return api.PollReady
	}
	// Park: register the waker before releasing the lock so a racing
	// send cannot miss it.
	sh.recvWaker = cx.Waker()
	sh.mu.Unlock()
	return api.PollPending
}

// Value returns the received value after PollReady.
func (f *RecvFuture[T]) Value() T { return f.value }

// Err reports api.ErrClosed when the stream ended with no value.
func (f *RecvFuture[T]) Err() error { return f.err }

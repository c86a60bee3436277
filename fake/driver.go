// File: fake/driver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// In-memory api.Driver for testing schedulers and the runtime loop
// without syscalls. Submitted entries complete according to a
// scriptable result function; registrations are recorded and fire on
// demand.

package fake

import (
	"sync"
	"time"

	"github.com/momentics/nexio/api"
)

// ResultFunc maps a submitted entry to its completion. The default
// reports success with the buffer length as the transfer count.
type ResultFunc func(api.SubmitEntry) api.CompletionEntry

// Driver is a fake implementation of api.Driver.
type Driver struct {
	mu      sync.Mutex
	pending []api.SubmitEntry
	ready   []api.CompletionEntry
	regs    map[int32]uint64
	result  ResultFunc
	closed  bool
	wake    chan struct{}
	submits int
	wakeups int
}

var _ api.Driver = (*Driver)(nil)

// NewDriver creates a fake driver with the default result function.
func NewDriver() *Driver {
	return &Driver{
		regs: make(map[int32]uint64),
		wake: make(chan struct{}, 1),
		result: func(e api.SubmitEntry) api.CompletionEntry {
			return api.CompletionEntry{
				UserData: e.UserData,
				Result:   int32(len(e.Buf)),
			}
		},
	}
}

// Script replaces the result function for subsequent submits.
func (d *Driver) Script(fn ResultFunc) {
	d.mu.Lock()
	d.result = fn
	d.mu.Unlock()
}

// Prepare queues an entry without completing it.
func (d *Driver) Prepare(e *api.SubmitEntry) {
	d.mu.Lock()
	d.pending = append(d.pending, *e)
	d.mu.Unlock()
}

// Submit completes every queued entry through the result function.
func (d *Driver) Submit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return api.ErrStopped
	}
	d.submits++
	for _, e := range d.pending {
		d.ready = append(d.ready, d.result(e))
	}
	d.pending = d.pending[:0]
	if len(d.ready) > 0 {
		d.signalLocked()
	}
	return nil
}

// Wait blocks until a completion or a wakeup arrives.
func (d *Driver) Wait() (int, error) {
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return 0, api.ErrStopped
		}
		if n := len(d.ready); n > 0 {
			d.mu.Unlock()
			return n, nil
		}
		d.mu.Unlock()
		<-d.wake
	}
}

// WaitTimeout bounds the wait; the bool reports whether it timed out.
func (d *Driver) WaitTimeout(timeout time.Duration) (int, bool, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, false, api.ErrStopped
	}
	if n := len(d.ready); n > 0 {
		d.mu.Unlock()
		return n, false, nil
	}
	d.mu.Unlock()

	if timeout <= 0 {
		return 0, true, nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-d.wake:
		d.mu.Lock()
		n := len(d.ready)
		d.mu.Unlock()
		return n, false, nil
	case <-t.C:
		return 0, true, nil
	}
}

// GetCompletion peeks the oldest undrained completion.
func (d *Driver) GetCompletion() (api.CompletionEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.ready) == 0 {
		return api.CompletionEntry{}, false
	}
	return d.ready[0], true
}

// AdvanceCompletion consumes the completion returned by GetCompletion.
func (d *Driver) AdvanceCompletion() {
	d.mu.Lock()
	if len(d.ready) > 0 {
		d.ready = d.ready[1:]
	}
	d.mu.Unlock()
}

// Register records interest for fd under userData.
func (d *Driver) Register(fd int, interest api.Interest, userData uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return api.ErrStopped
	}
	d.regs[int32(fd)] = userData
	return nil
}

// Deregister removes a recorded registration.
func (d *Driver) Deregister(fd int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.regs, int32(fd))
	return nil
}

// FireReadiness delivers a readiness completion for a registered fd.
// It reports whether fd had a registration.
func (d *Driver) FireReadiness(fd int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	userData, ok := d.regs[int32(fd)]
	if !ok {
		return false
	}
	d.ready = append(d.ready, api.CompletionEntry{UserData: userData})
	d.signalLocked()
	return true
}

// Wakeup unblocks a concurrent Wait or WaitTimeout.
func (d *Driver) Wakeup() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return api.ErrStopped
	}
	d.wakeups++
	d.signalLocked()
	return nil
}

// Type identifies the backend.
func (d *Driver) Type() api.DriverType { return api.DriverAuto }

// Close rejects further use and unblocks waiters.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.signalLocked()
	return nil
}

// Submits reports how many Submit calls have been made.
func (d *Driver) Submits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submits
}

// Wakeups reports how many Wakeup calls have been made.
func (d *Driver) Wakeups() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wakeups
}

func (d *Driver) signalLocked() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

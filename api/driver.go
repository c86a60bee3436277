// File: api/driver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Driver is the single interface over the platform readiness/completion
// backends (epoll, io_uring, kqueue). One backend is selected at
// construction time; per-operation failures surface only as negative
// CompletionEntry results, never as driver-wide errors.

package api

import "time"

// DriverType selects a concrete backend.
type DriverType int

const (
	DriverAuto DriverType = iota
	DriverEpoll
	DriverIoUring
	DriverKqueue
)

func (t DriverType) String() string {
	switch t {
	case DriverAuto:
		return "auto"
	case DriverEpoll:
		return "epoll"
	case DriverIoUring:
		return "io_uring"
	case DriverKqueue:
		return "kqueue"
	default:
		return "unknown"
	}
}

// Driver is the kernel-facing I/O backend.
type Driver interface {
	// Prepare queues an entry locally. The entry's Buf is leased to the
	// driver until the matching completion is drained.
	Prepare(entry *SubmitEntry)

	// Submit flushes all locally queued entries to the kernel.
	// Non-blocking unless the config requested SubmitWait.
	Submit() error

	// Wait blocks until at least one completion is ready and returns
	// the number of ready completions.
	Wait() (int, error)

	// WaitTimeout is Wait bounded by d. The bool reports a timeout,
	// which is not an error.
	WaitTimeout(d time.Duration) (int, bool, error)

	// GetCompletion peeks at the next ready completion without
	// consuming it. AdvanceCompletion commits the read.
	GetCompletion() (CompletionEntry, bool)
	AdvanceCompletion()

	// Register adds a readiness registration for fd. UserData is echoed
	// on every completion generated by this registration.
	Register(fd int, interest Interest, userData uint64) error

	// Deregister removes the registration for fd.
	Deregister(fd int) error

	// Wakeup interrupts a concurrent Wait from another thread.
	Wakeup() error

	// Type reports the selected backend.
	Type() DriverType

	Close() error
}

// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error values shared across the nexio runtime.

package api

import "errors"

// Sentinel errors used across the library. Callers compare with errors.Is.
var (
	// ErrUnsupported is returned when a driver backend cannot run on the
	// host platform or kernel. Permanent, never retried internally.
	ErrUnsupported = errors.New("driver not supported on this platform")

	// ErrQueueFull is returned by Scheduler.Submit when every candidate
	// queue is at capacity. The task remains owned by the caller.
	ErrQueueFull = errors.New("scheduler queue full")

	// ErrStopped is returned when submitting to a scheduler that has
	// left the Running state.
	ErrStopped = errors.New("scheduler stopped")

	// ErrClosed signals that the other end of a channel is gone.
	ErrClosed = errors.New("channel closed")

	// ErrEmpty is returned by non-suspending receives on an empty channel.
	ErrEmpty = errors.New("channel empty")
)

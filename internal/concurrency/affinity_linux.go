//go:build linux

// File: internal/concurrency/affinity_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pure-Go Linux CPU affinity via sched_setaffinity. The calling
// goroutine is locked to its OS thread first so the mask stays attached
// to the worker that asked for it.

package concurrency

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// PinCurrentThread binds the calling OS thread to cpuID.
func PinCurrentThread(cpuID int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	return unix.SchedSetaffinity(0, &set)
}

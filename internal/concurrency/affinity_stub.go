//go:build !linux

// File: internal/concurrency/affinity_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import "runtime"

// PinCurrentThread locks the goroutine to its OS thread; no portable
// affinity syscall exists outside Linux.
func PinCurrentThread(cpuID int) error {
	runtime.LockOSThread()
	return nil
}

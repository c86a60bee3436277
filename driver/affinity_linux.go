//go:build linux

// File: driver/affinity_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pure-Go CPU pinning for the driver wait loop via sched_setaffinity.

package driver

import (
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// pinThread binds the calling OS thread to the given core. Pinning is
// best-effort: failure is logged, not fatal.
func pinThread(core int, log *zap.Logger) {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		log.Warn("cpu pinning failed", zap.Int("core", core), zap.Error(err))
	}
}

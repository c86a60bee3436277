//go:build unix && !linux

// File: driver/affinity_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package driver

import "go.uber.org/zap"

// pinThread is a no-op outside Linux; the BSDs expose no portable
// sched_setaffinity equivalent.
func pinThread(core int, log *zap.Logger) {
	log.Debug("cpu pinning not supported on this platform")
}

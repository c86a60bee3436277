// File: internal/concurrency/parker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// parker implements the bounded idle wait of a worker thread. A worker
// with nothing runnable parks for at most the given interval; unpark
// makes a concurrent or subsequent park return immediately, so a Submit
// is never delayed longer than one park interval.

package concurrency

import "time"

type parker struct {
	wake chan struct{}
}

func newParker() *parker {
	return &parker{wake: make(chan struct{}, 1)}
}

// park blocks until unpark fires or d elapses.
func (p *parker) park(d time.Duration) {
	t := time.NewTimer(d)
	select {
	case <-p.wake:
		t.Stop()
	case <-t.C:
	}
}

// unpark releases one parked (or the next parking) worker. Coalesces.
func (p *parker) unpark() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

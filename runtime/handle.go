// File: runtime/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handle is the surface application tasks hold onto: scheduler access
// for spawning, the driver for I/O futures, the wheel for timeouts.
// Copies are cheap and share the one runtime.

package runtime

import (
	"github.com/momentics/nexio/api"
	"github.com/momentics/nexio/timer"
)

// Handle is a lightweight accessor to a running Runtime.
type Handle struct {
	rt *Runtime
}

// Scheduler returns the runtime's task scheduler.
func (h *Handle) Scheduler() api.Scheduler { return h.rt.sched }

// Driver returns the runtime's I/O backend.
func (h *Handle) Driver() api.Driver { return h.rt.drv }

// Wheel returns the global timer wheel.
func (h *Handle) Wheel() *timer.Wheel { return h.rt.wheel }

// Spawn submits fut as a background task.
func (h *Handle) Spawn(fut api.Future) (uint64, error) { return h.rt.Spawn(fut) }

// NextTaskID hands out a unique correlation token.
func (h *Handle) NextTaskID() uint64 { return h.rt.NextTaskID() }

// TakeResult claims the stored completion for userData.
func (h *Handle) TakeResult(userData uint64) (api.CompletionEntry, bool) {
	return h.rt.TakeResult(userData)
}

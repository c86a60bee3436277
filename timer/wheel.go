// File: timer/wheel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Hierarchical timer wheel. Level 0 resolves single ticks across 256
// slots; levels 1-3 hold 64 coarser slots each and cascade down exactly
// when the tick counter crosses a multiple of the finer level's span.
// One tick is about one millisecond: the runtime advances the wheel
// once per event-loop iteration by the wall-clock delta.

package timer

import (
	"sync"

	"github.com/momentics/nexio/api"
)

const (
	level0Slots = 256
	upperSlots  = 64
	levels      = 4
)

// spans[l] is the number of ticks covered by one slot of level l.
var spans = [levels]uint64{
	1,
	level0Slots,
	level0Slots * upperSlots,
	level0Slots * upperSlots * upperSlots,
}

// TimerID identifies a scheduled timer for cancellation.
type TimerID uint64

type timerEntry struct {
	id        TimerID
	deadline  uint64
	fn        func()
	cancelled bool
}

// Wheel is a tick-indexed hierarchical timer store. All methods are
// safe for concurrent use; expiry callbacks run inline on the thread
// calling Advance.
type Wheel struct {
	mu     sync.Mutex
	ticks  uint64
	nextID TimerID
	slots  [levels][][]*timerEntry
	index  map[TimerID]*timerEntry
	count  int
}

// NewWheel returns an empty wheel at tick zero.
func NewWheel() *Wheel {
	w := &Wheel{index: make(map[TimerID]*timerEntry)}
	w.slots[0] = make([][]*timerEntry, level0Slots)
	for l := 1; l < levels; l++ {
		w.slots[l] = make([][]*timerEntry, upperSlots)
	}
	return w
}

// CurrentTicks returns the monotonic tick counter.
func (w *Wheel) CurrentTicks() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ticks
}

// Len returns the number of live timers.
func (w *Wheel) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Schedule registers fn to fire delayTicks from now. A zero delay fires
// on the next Advance.
func (w *Wheel) Schedule(delayTicks uint64, fn func()) (TimerID, error) {
	if fn == nil {
		return 0, api.ErrUnsupported
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	e := &timerEntry{id: w.nextID, deadline: w.ticks + delayTicks, fn: fn}
	w.place(e, false)
	w.index[e.id] = e
	w.count++
	return e.id, nil
}

// Cancel marks the timer dead. Reports whether it was still pending.
func (w *Wheel) Cancel(id TimerID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.index[id]
	if !ok || e.cancelled {
		return false
	}
	e.cancelled = true
	delete(w.index, id)
	w.count--
	return true
}

// place buckets e by the distance to its deadline. Caller holds w.mu.
// fromCascade permits same-tick placement: the level-0 slot for the
// current tick fires right after cascading, so a boundary deadline
// still expires on time. Entries scheduled from user code never target
// the current tick.
func (w *Wheel) place(e *timerEntry, fromCascade bool) {
	effective := e.deadline
	if fromCascade {
		if effective < w.ticks {
			effective = w.ticks
		}
	} else if effective <= w.ticks {
		effective = w.ticks + 1
	}
	delta := effective - w.ticks
	for l := 0; l < levels; l++ {
		// Level l covers deadlines within spans[l] slots of its width.
		limit := spans[l] * uint64(len(w.slots[l]))
		if delta < limit || l == levels-1 {
			idx := (effective / spans[l]) % uint64(len(w.slots[l]))
			w.slots[l][idx] = append(w.slots[l][idx], e)
			return
		}
	}
}

// Advance moves the counter forward by n ticks and returns how many
// timers expired in that span. Summing small advances is equivalent to
// one large advance; with no registered timers only the counter moves.
func (w *Wheel) Advance(n uint64) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count == 0 {
		// Tick accounting must not depend on occupancy.
		w.ticks += n
		return 0
	}

	var expired uint64
	for i := uint64(0); i < n; i++ {
		w.ticks++
		for l := 1; l < levels; l++ {
			if w.ticks%spans[l] == 0 {
				w.cascade(l)
			}
		}
		expired += w.fire(w.ticks % level0Slots)
		if w.count == 0 {
			// Nothing left; consume the rest of the span in one step.
			w.ticks += n - i - 1
			break
		}
	}
	return expired
}

// cascade re-places every entry of the level slot the counter just
// crossed into finer levels. Caller holds w.mu.
func (w *Wheel) cascade(level int) {
	idx := (w.ticks / spans[level]) % uint64(len(w.slots[level]))
	entries := w.slots[level][idx]
	w.slots[level][idx] = nil
	for _, e := range entries {
		if e.cancelled {
			continue
		}
		w.place(e, true)
	}
}

// fire expires every live entry in the level-0 slot. Caller holds w.mu;
// callbacks run without the lock so they may reschedule.
func (w *Wheel) fire(slot uint64) uint64 {
	entries := w.slots[0][slot]
	if len(entries) == 0 {
		return 0
	}
	w.slots[0][slot] = nil
	var due []*timerEntry
	for _, e := range entries {
		if e.cancelled {
			continue
		}
		if e.deadline > w.ticks {
			// Same slot, later round: keep for a future pass.
			w.slots[0][slot] = append(w.slots[0][slot], e)
			continue
		}
		delete(w.index, e.id)
		w.count--
		due = append(due, e)
	}
	if len(due) == 0 {
		return 0
	}
	w.mu.Unlock()
	for _, e := range due {
		e.fn()
	}
	w.mu.Lock()
	return uint64(len(due))
}

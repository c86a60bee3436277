// File: internal/concurrency/wakers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WakerRegistry bridges kernel completion identity (the 64-bit
// user_data token) to task identity. Lookup-only back-references, never
// ownership: entries are removed both on normal completion dispatch and
// on task cancellation, and a wake against a missing id is a no-op.

package concurrency

import (
	"sync"

	"github.com/momentics/nexio/api"
)

// WakerRegistry maps operation/task ids to wake handles.
type WakerRegistry struct {
	mu     sync.Mutex
	wakers map[uint64]api.Waker
}

// NewWakerRegistry returns an empty registry.
func NewWakerRegistry() *WakerRegistry {
	return &WakerRegistry{wakers: make(map[uint64]api.Waker)}
}

// Register records the waker for id, replacing any previous entry.
func (r *WakerRegistry) Register(id uint64, w api.Waker) {
	r.mu.Lock()
	r.wakers[id] = w
	r.mu.Unlock()
}

// Get looks up the waker for id.
func (r *WakerRegistry) Get(id uint64) (api.Waker, bool) {
	r.mu.Lock()
	w, ok := r.wakers[id]
	r.mu.Unlock()
	return w, ok
}

// Remove drops the entry for id. Removing an absent id is a no-op.
func (r *WakerRegistry) Remove(id uint64) {
	r.mu.Lock()
	delete(r.wakers, id)
	r.mu.Unlock()
}

// Dispatch removes and wakes the entry for id in one step. Reports
// whether a waker was found; a dangling id (cancelled task) is a no-op.
func (r *WakerRegistry) Dispatch(id uint64) bool {
	r.mu.Lock()
	w, ok := r.wakers[id]
	if ok {
		delete(r.wakers, id)
	}
	r.mu.Unlock()
	if ok {
		w.Wake()
	}
	return ok
}

// Len returns the number of registered wakers.
func (r *WakerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.wakers)
}

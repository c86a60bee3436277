// File: internal/concurrency/wakers_test.go

package concurrency

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/nexio/api"
)

func TestWakerRegistry_RegisterDispatchRemove(t *testing.T) {
	r := NewWakerRegistry()
	fired := 0
	r.Register(7, api.WakeFunc(func() { fired++ }))
	assert.Equal(t, 1, r.Len())

	_, ok := r.Get(7)
	assert.True(t, ok)

	assert.True(t, r.Dispatch(7))
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, r.Len(), "dispatch removes the entry")

	// Dangling id after cancellation: a no-op, not a panic.
	assert.False(t, r.Dispatch(7))
	r.Remove(7)
	assert.Equal(t, 0, r.Len())
}

func TestWakerRegistry_ReplaceWaker(t *testing.T) {
	r := NewWakerRegistry()
	var got string
	r.Register(1, api.WakeFunc(func() { got = "old" }))
	r.Register(1, api.WakeFunc(func() { got = "new" }))
	r.Dispatch(1)
	assert.Equal(t, "new", got)
}

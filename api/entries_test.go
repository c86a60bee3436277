// File: api/entries_test.go
// Completion entry views and IoState lifecycle predicates.

package api

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestCompletionEntry_SuccessViews(t *testing.T) {
	c := CompletionEntry{UserData: 7, Result: 1024}

	assert.True(t, c.IsSuccess())
	assert.False(t, c.IsError())

	n, ok := c.BytesTransferred()
	require.True(t, ok)
	assert.Equal(t, uint32(1024), n)

	_, ok = c.ErrorCode()
	assert.False(t, ok)

	res, err := c.IntoResult()
	require.NoError(t, err)
	assert.Equal(t, int32(1024), res)
}

func TestCompletionEntry_ErrorViews(t *testing.T) {
	c := CompletionEntry{UserData: 7, Result: -2}

	assert.True(t, c.IsError())
	assert.False(t, c.IsSuccess())

	code, ok := c.ErrorCode()
	require.True(t, ok)
	assert.Equal(t, int32(2), code)

	_, ok = c.BytesTransferred()
	assert.False(t, ok)

	_, err := c.IntoResult()
	require.Error(t, err)
	assert.True(t, errors.Is(err, unix.ENOENT))
}

func TestCompletionEntry_ZeroResultIsSuccess(t *testing.T) {
	c := CompletionEntry{Result: 0}
	assert.True(t, c.IsSuccess())
	n, ok := c.BytesTransferred()
	require.True(t, ok)
	assert.Equal(t, uint32(0), n)
}

func TestIoState_Predicates(t *testing.T) {
	for _, s := range []IoState{IoCompleted, IoCancelled, IoFailed} {
		assert.True(t, s.IsFinished(), s.String())
		assert.False(t, s.IsInProgress(), s.String())
	}
	for _, s := range []IoState{IoIdle, IoSubmitted} {
		assert.False(t, s.IsFinished(), s.String())
	}
	for _, s := range []IoState{IoSubmitted, IoInProgress} {
		assert.True(t, s.IsInProgress(), s.String())
	}
	assert.False(t, IoIdle.IsInProgress())
}

func TestInterest_Builder(t *testing.T) {
	i := Interest(0).WithReadable().WithEdge().WithOneshot()
	assert.True(t, i.IsReadable())
	assert.True(t, i.IsEdge())
	assert.True(t, i.IsOneshot())
	assert.False(t, i.IsWritable())
	assert.False(t, i.IsPriority())
}

//go:build unix

// File: driver/factory_test.go
// Driver auto-detection against injected kernel release strings.

package driver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/nexio/api"
)

func TestDetectDriverType_Linux(t *testing.T) {
	cases := []struct {
		release string
		want    api.DriverType
	}{
		{"5.0.0", api.DriverEpoll},
		{"5.1.0", api.DriverIoUring},
		{"4.19.0-25-amd64", api.DriverEpoll},
		{"5.15.0-91-generic", api.DriverIoUring},
		{"6.1.0_rc2", api.DriverIoUring},
		{"garbage", api.DriverEpoll}, // unparseable falls back to epoll
	}
	for _, tc := range cases {
		got, err := DetectDriverType("linux", tc.release)
		require.NoError(t, err, tc.release)
		assert.Equal(t, tc.want, got, tc.release)
	}
}

func TestDetectDriverType_BSD(t *testing.T) {
	for _, goos := range []string{"darwin", "freebsd", "netbsd", "openbsd", "dragonfly"} {
		got, err := DetectDriverType(goos, "")
		require.NoError(t, err, goos)
		assert.Equal(t, api.DriverKqueue, got, goos)
	}
}

func TestDetectDriverType_Unsupported(t *testing.T) {
	_, err := DetectDriverType("windows", "10.0")
	assert.True(t, errors.Is(err, api.ErrUnsupported))
	_, err = DetectDriverType("plan9", "")
	assert.True(t, errors.Is(err, api.ErrUnsupported))
}

func TestParseKernelVersion(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"5.1.0", "5.1.0"},
		{"5.15.0-91-generic", "5.15.0"},
		{"6.1.0_rc2", "6.1.0"},
		{"5.1", "5.1.0"},
		{"6", "6.0.0"},
	}
	for _, tc := range cases {
		v, err := parseKernelVersion(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, v.String(), tc.in)
	}
	_, err := parseKernelVersion("garbage")
	assert.Error(t, err)
}

func TestCompletionQueue_PeekAdvance(t *testing.T) {
	var q completionQueue
	_, ok := q.peek()
	assert.False(t, ok)

	q.push(api.CompletionEntry{UserData: 1, Result: 10})
	q.push(api.CompletionEntry{UserData: 2, Result: 20})

	// peek does not advance
	c, ok := q.peek()
	require.True(t, ok)
	assert.Equal(t, uint64(1), c.UserData)
	c, ok = q.peek()
	require.True(t, ok)
	assert.Equal(t, uint64(1), c.UserData)

	q.advance()
	c, ok = q.peek()
	require.True(t, ok)
	assert.Equal(t, uint64(2), c.UserData)
	q.advance()
	_, ok = q.peek()
	assert.False(t, ok)
	assert.Equal(t, 0, q.len())
}

func TestOpTable_PerFdBound(t *testing.T) {
	tbl := newOpTable(2)
	e1 := &api.SubmitEntry{Fd: 3, UserData: 1}
	e2 := &api.SubmitEntry{Fd: 3, UserData: 2}
	e3 := &api.SubmitEntry{Fd: 3, UserData: 3}

	assert.True(t, tbl.add(e1))
	assert.True(t, tbl.add(e2))
	assert.False(t, tbl.add(e3), "third op on same fd exceeds the bound")

	tbl.finish(1, 0)
	assert.True(t, tbl.add(e3), "slot freed after completion")

	ids := tbl.byFd(3)
	assert.Len(t, ids, 2)
}

func TestOpTable_WithdrawReleasesLease(t *testing.T) {
	tbl := newOpTable(1)
	e1 := &api.SubmitEntry{Fd: 5, UserData: 10}
	e2 := &api.SubmitEntry{Fd: 5, UserData: 11}

	require.True(t, tbl.add(e1))
	require.False(t, tbl.add(e2))

	// Withdrawing an op the kernel never saw frees its slot and leaves
	// nothing behind in the table.
	tbl.withdraw(10)
	_, ok := tbl.get(10)
	assert.False(t, ok)
	assert.True(t, tbl.add(e2), "per-fd slot available again")
	assert.Equal(t, []uint64{11}, tbl.byFd(5))
}

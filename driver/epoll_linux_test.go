//go:build linux

// File: driver/epoll_linux_test.go
// Wake/timeout discrimination, partial-send results and coexistence of
// parked operations with user registrations on the epoll backend.

package driver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/nexio/api"
)

func newTestEpoll(t *testing.T) api.Driver {
	t.Helper()
	d, err := newEpollDriver(api.DefaultDriverConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestEpollWaitTimeout_WakeupIsNotTimeout(t *testing.T) {
	d := newTestEpoll(t)

	require.NoError(t, d.Wakeup())
	n, timedOut, err := d.WaitTimeout(500 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, timedOut, "an eventfd wake is not a timer expiry")
}

func TestEpollWaitTimeout_ElapsedIsTimeout(t *testing.T) {
	d := newTestEpoll(t)

	n, timedOut, err := d.WaitTimeout(5 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, timedOut)
}

func TestEpollWait_ReturnsOnWakeup(t *testing.T) {
	d := newTestEpoll(t)

	done := make(chan error, 1)
	go func() {
		_, err := d.Wait()
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, d.Wakeup())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Wakeup")
	}
}

// fillSendBuffer writes until the nonblocking socket reports EAGAIN.
func fillSendBuffer(t *testing.T, fd int) {
	t.Helper()
	chunk := make([]byte, 4096)
	for {
		if _, err := unix.Write(fd, chunk); err != nil {
			require.Equal(t, unix.EAGAIN, err)
			return
		}
	}
}

func TestEpollPartialSendResult(t *testing.T) {
	d := newTestEpoll(t)
	wfd, _ := streamPair(t)
	require.NoError(t, unix.SetsockoptInt(wfd, unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))

	buf := make([]byte, 1<<20)
	d.Prepare(&api.SubmitEntry{Fd: int32(wfd), Opcode: api.OpSend, UserData: 1, Buf: buf})
	require.NoError(t, d.Submit())

	c, ok := d.GetCompletion()
	require.True(t, ok)
	n, ok := c.BytesTransferred()
	require.True(t, ok)
	assert.Greater(t, n, uint32(0))
	assert.Less(t, n, uint32(len(buf)),
		"completion must report the kernel's count after a partial send")
}

func TestEpollParkedSendKeepsRegistrationAlive(t *testing.T) {
	d := newTestEpoll(t)
	wfd, peer := streamPair(t)
	require.NoError(t, unix.SetsockoptInt(wfd, unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))
	fillSendBuffer(t, wfd)

	const regToken, sendToken = 7, 8
	require.NoError(t, d.Register(wfd, api.Interest(0).WithReadable(), regToken))

	chunk := make([]byte, 4096)
	d.Prepare(&api.SubmitEntry{Fd: int32(wfd), Opcode: api.OpSend, UserData: sendToken, Buf: chunk})
	require.NoError(t, d.Submit())
	_, ok := d.GetCompletion()
	require.False(t, ok, "send must park, not complete")

	// The readable interest must survive the parked send's arming.
	_, err := unix.Write(peer, []byte("ping"))
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, _, err := d.WaitTimeout(50 * time.Millisecond)
		require.NoError(t, err)
		if n > 0 {
			break
		}
		require.True(t, time.Now().Before(deadline),
			"readable registration lost while a send was parked on the fd")
	}

	c, ok := d.GetCompletion()
	require.True(t, ok)
	assert.Equal(t, uint64(regToken), c.UserData)
}

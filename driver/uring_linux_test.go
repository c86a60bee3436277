//go:build linux

// File: driver/uring_linux_test.go
// Cross-thread wake delivery on the io_uring backend. Skipped where the
// kernel lacks io_uring.

package driver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/momentics/nexio/api"
)

func newTestUring(t *testing.T) api.Driver {
	t.Helper()
	d, err := newUringDriver(api.DefaultDriverConfig(), zap.NewNop())
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestUringWait_ReturnsOnWakeup(t *testing.T) {
	d := newTestUring(t)

	done := make(chan error, 1)
	go func() {
		_, err := d.Wait()
		done <- err
	}()
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, d.Wakeup())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Wakeup: wake NOP must end the wait")
	}
}

func TestUringWaitTimeout_WakeupIsNotTimeout(t *testing.T) {
	d := newTestUring(t)

	require.NoError(t, d.Wakeup())
	n, timedOut, err := d.WaitTimeout(500 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, timedOut, "a consumed wake NOP is not a timer expiry")
}

func TestUringWakeupBeforeWait_IsNotLost(t *testing.T) {
	d := newTestUring(t)

	// The wake CQE may already sit in the ring when Wait starts.
	require.NoError(t, d.Wakeup())
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait blocked past a wake that preceded it")
	}
}

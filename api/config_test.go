// File: api/config_test.go
// DriverConfig builder: power-of-two rounding of queue depth.

package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDriverConfigBuilder_RoundsEntries(t *testing.T) {
	cases := []struct {
		in   uint32
		want uint32
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{100, 128},
		{512, 512},
		{513, 1024},
	}
	for _, tc := range cases {
		cfg := NewDriverConfigBuilder().Entries(tc.in).Build()
		assert.Equal(t, tc.want, cfg.Entries, "entries=%d", tc.in)
	}
}

func TestDriverConfigBuilder_Defaults(t *testing.T) {
	cfg := NewDriverConfigBuilder().Build()
	assert.Equal(t, uint32(256), cfg.Entries)
	assert.Equal(t, -1, cfg.Affinity)
	assert.False(t, cfg.SubmitWait)
	assert.False(t, cfg.DeferWakeup)
	assert.Equal(t, 16, cfg.MaxOpsPerFd)
}

func TestDriverConfigBuilder_Options(t *testing.T) {
	cfg := NewDriverConfigBuilder().
		Entries(100).
		SubmitWait(true).
		Affinity(2).
		DeferWakeup(true).
		MaxOpsPerFd(8).
		Build()
	assert.Equal(t, uint32(128), cfg.Entries)
	assert.True(t, cfg.SubmitWait)
	assert.Equal(t, 2, cfg.Affinity)
	assert.True(t, cfg.DeferWakeup)
	assert.Equal(t, 8, cfg.MaxOpsPerFd)
}

// File: api/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// DriverConfig tunes a concrete driver backend. Constructed once at
// Runtime creation via the builder and immutable thereafter.

package api

// DriverConfig holds backend tunables.
type DriverConfig struct {
	// Entries is the submission/completion queue depth. Always a power
	// of two after Build.
	Entries uint32

	// SubmitWait makes Submit block until the kernel consumed the batch.
	SubmitWait bool

	// Affinity pins the driver's wait loop to a CPU core. -1 disables.
	Affinity int

	// DeferWakeup suppresses the eventfd kick on Prepare; the entry is
	// picked up on the next explicit Submit instead.
	DeferWakeup bool

	// MaxOpsPerFd bounds concurrently in-flight operations per fd.
	MaxOpsPerFd int
}

// DefaultDriverConfig returns the baseline configuration.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		Entries:     256,
		SubmitWait:  false,
		Affinity:    -1,
		DeferWakeup: false,
		MaxOpsPerFd: 16,
	}
}

// DriverConfigBuilder assembles a DriverConfig.
type DriverConfigBuilder struct {
	cfg DriverConfig
}

// NewDriverConfigBuilder starts from the default configuration.
func NewDriverConfigBuilder() *DriverConfigBuilder {
	return &DriverConfigBuilder{cfg: DefaultDriverConfig()}
}

// Entries sets the requested queue depth. Rounded up to a power of two
// by Build.
func (b *DriverConfigBuilder) Entries(n uint32) *DriverConfigBuilder {
	b.cfg.Entries = n
	return b
}

// SubmitWait toggles blocking submission.
func (b *DriverConfigBuilder) SubmitWait(v bool) *DriverConfigBuilder {
	b.cfg.SubmitWait = v
	return b
}

// Affinity pins the driver to the given core.
func (b *DriverConfigBuilder) Affinity(core int) *DriverConfigBuilder {
	b.cfg.Affinity = core
	return b
}

// DeferWakeup toggles deferred wakeups.
func (b *DriverConfigBuilder) DeferWakeup(v bool) *DriverConfigBuilder {
	b.cfg.DeferWakeup = v
	return b
}

// MaxOpsPerFd bounds per-fd in-flight operations.
func (b *DriverConfigBuilder) MaxOpsPerFd(n int) *DriverConfigBuilder {
	b.cfg.MaxOpsPerFd = n
	return b
}

// Build finalizes the configuration.
func (b *DriverConfigBuilder) Build() DriverConfig {
	cfg := b.cfg
	cfg.Entries = NextPowerOfTwo(cfg.Entries)
	if cfg.MaxOpsPerFd <= 0 {
		cfg.MaxOpsPerFd = 16
	}
	return cfg
}

// NextPowerOfTwo rounds n up to the nearest power of two. Zero maps to 1.
func NextPowerOfTwo(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

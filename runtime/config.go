// File: runtime/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// RuntimeBuilder: the single configuration surface of the runtime.
// Every recognized option maps 1:1 onto a RuntimeConfig field, which in
// turn feeds the scheduler and driver configs at build time.

package runtime

import (
	"time"

	"go.uber.org/zap"

	"github.com/momentics/nexio/api"
)

// Config holds the composed runtime settings.
type Config struct {
	// WorkerThreads selects the scheduling model: 1 runs the local
	// thread-per-core scheduler, >1 the work-stealing scheduler.
	WorkerThreads int

	// QueueSize is the per-worker task ring capacity.
	QueueSize int

	// ThreadName labels worker threads in logs.
	ThreadName string

	// DriverType picks the I/O backend; DriverAuto detects from the
	// host platform and kernel.
	DriverType api.DriverType

	// IoEntries is the driver queue depth (rounded to a power of two).
	IoEntries uint32

	// Driver, when non-nil, is used instead of constructing a backend
	// from DriverType. Intended for embedding a preconfigured driver
	// and for tests.
	Driver api.Driver

	// EnableParking bounds the event-loop wait by ParkTimeout. With
	// parking disabled the loop blocks until a completion or a wake.
	EnableParking bool

	// ParkTimeout is the bounded wait used when parking is enabled.
	ParkTimeout time.Duration

	// Logger receives structured runtime diagnostics.
	Logger *zap.Logger
}

// DefaultConfig returns the baseline runtime settings.
func DefaultConfig() Config {
	return Config{
		WorkerThreads: 1,
		QueueSize:     256,
		ThreadName:    "nexio-worker",
		DriverType:    api.DriverAuto,
		IoEntries:     256,
		EnableParking: true,
		ParkTimeout:   10 * time.Millisecond,
	}
}

// Builder assembles a Runtime.
type Builder struct {
	cfg Config
}

// NewBuilder starts from DefaultConfig.
func NewBuilder() *Builder {
	return &Builder{cfg: DefaultConfig()}
}

// WorkerThreads sets the worker count (and thereby the scheduler kind).
func (b *Builder) WorkerThreads(n int) *Builder {
	b.cfg.WorkerThreads = n
	return b
}

// QueueSize sets the per-worker ring capacity.
func (b *Builder) QueueSize(n int) *Builder {
	b.cfg.QueueSize = n
	return b
}

// ThreadName sets the worker label used in logs.
func (b *Builder) ThreadName(name string) *Builder {
	b.cfg.ThreadName = name
	return b
}

// DriverType selects the I/O backend.
func (b *Builder) DriverType(t api.DriverType) *Builder {
	b.cfg.DriverType = t
	return b
}

// IoEntries sets the driver queue depth.
func (b *Builder) IoEntries(n uint32) *Builder {
	b.cfg.IoEntries = n
	return b
}

// Driver injects a prebuilt I/O backend, bypassing backend selection.
func (b *Builder) Driver(d api.Driver) *Builder {
	b.cfg.Driver = d
	return b
}

// EnableParking toggles the bounded event-loop wait.
func (b *Builder) EnableParking(v bool) *Builder {
	b.cfg.EnableParking = v
	return b
}

// ParkTimeout sets the bounded wait interval.
func (b *Builder) ParkTimeout(d time.Duration) *Builder {
	b.cfg.ParkTimeout = d
	return b
}

// Logger sets the structured logger for runtime internals.
func (b *Builder) Logger(log *zap.Logger) *Builder {
	b.cfg.Logger = log
	return b
}

// Build constructs the Runtime: one driver, one scheduler, one wheel.
func (b *Builder) Build() (*Runtime, error) {
	return New(b.cfg)
}

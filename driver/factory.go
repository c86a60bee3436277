//go:build unix

// File: driver/factory.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// DriverFactory: platform detection and tunable construction of a
// concrete backend. Detection is a pure function of the compile-time OS
// and the runtime kernel release string, so it is testable by injecting
// fake release strings.

package driver

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/coreos/go-semver/semver"
	"go.uber.org/zap"

	"github.com/momentics/nexio/api"
)

// minUringKernel is the first kernel with a usable io_uring.
var minUringKernel = semver.Version{Major: 5, Minor: 1}

// Factory builds drivers for the host platform.
type Factory struct {
	log *zap.Logger
}

// NewFactory returns a factory logging through log. A nil logger is
// replaced by zap.NewNop().
func NewFactory(log *zap.Logger) *Factory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Factory{log: log}
}

// Create builds a driver of the requested type with default tunables.
func (f *Factory) Create(t api.DriverType) (api.Driver, error) {
	return f.CreateWithConfig(t, api.DefaultDriverConfig())
}

// CreateWithConfig builds a driver of the requested type. DriverAuto
// resolves via DetectDriverType against the running kernel. Requesting
// a backend the host cannot run yields api.ErrUnsupported.
func (f *Factory) CreateWithConfig(t api.DriverType, cfg api.DriverConfig) (api.Driver, error) {
	if t == api.DriverAuto {
		release, err := kernelRelease()
		if err != nil {
			return nil, fmt.Errorf("detect kernel release: %w", err)
		}
		t, err = DetectDriverType(runtime.GOOS, release)
		if err != nil {
			return nil, err
		}
		f.log.Debug("driver auto-detected",
			zap.String("kernel", release),
			zap.Stringer("driver", t))
	}
	d, err := newPlatformDriver(t, cfg, f.log)
	if err != nil {
		return nil, err
	}
	f.log.Info("driver created",
		zap.Stringer("driver", d.Type()),
		zap.Uint32("entries", cfg.Entries))
	return d, nil
}

// DetectDriverType maps (OS, kernel release) to a backend. Linux
// prefers io_uring from kernel 5.1 onward and falls back to epoll;
// the BSD family always selects kqueue. No side effects.
func DetectDriverType(goos, kernelRelease string) (api.DriverType, error) {
	switch goos {
	case "linux":
		v, err := parseKernelVersion(kernelRelease)
		if err == nil && !v.LessThan(minUringKernel) {
			return api.DriverIoUring, nil
		}
		return api.DriverEpoll, nil
	case "darwin", "freebsd", "netbsd", "openbsd", "dragonfly":
		return api.DriverKqueue, nil
	default:
		return api.DriverAuto, fmt.Errorf("%w: %s", api.ErrUnsupported, goos)
	}
}

// parseKernelVersion extracts the numeric x.y.z prefix from a uname
// release string such as "5.15.0-91-generic" or "6.1.0_rc2".
func parseKernelVersion(release string) (*semver.Version, error) {
	cut := len(release)
	for i, r := range release {
		if (r < '0' || r > '9') && r != '.' {
			cut = i
			break
		}
	}
	core := strings.TrimRight(release[:cut], ".")
	switch strings.Count(core, ".") {
	case 0:
		core += ".0.0"
	case 1:
		core += ".0"
	}
	return semver.NewVersion(core)
}

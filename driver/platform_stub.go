//go:build unix && !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

// File: driver/platform_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package driver

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/momentics/nexio/api"
)

// newPlatformDriver always fails: no backend exists for this platform.
func newPlatformDriver(t api.DriverType, _ api.DriverConfig, _ *zap.Logger) (api.Driver, error) {
	return nil, fmt.Errorf("%w: %s on %s", api.ErrUnsupported, t, runtime.GOOS)
}

//go:build linux

// File: driver/platform_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package driver

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/momentics/nexio/api"
)

// newPlatformDriver builds the requested backend on Linux.
func newPlatformDriver(t api.DriverType, cfg api.DriverConfig, log *zap.Logger) (api.Driver, error) {
	switch t {
	case api.DriverEpoll:
		return newEpollDriver(cfg, log)
	case api.DriverIoUring:
		return newUringDriver(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %s on linux", api.ErrUnsupported, t)
	}
}

//go:build darwin || dragonfly || freebsd || netbsd || openbsd

// File: driver/platform_bsd.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package driver

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/momentics/nexio/api"
)

// newPlatformDriver builds the requested backend on the BSD family.
func newPlatformDriver(t api.DriverType, cfg api.DriverConfig, log *zap.Logger) (api.Driver, error) {
	switch t {
	case api.DriverKqueue:
		return newKqueueDriver(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %s on %s", api.ErrUnsupported, t, "bsd")
	}
}

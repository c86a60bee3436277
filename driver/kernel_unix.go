//go:build unix

// File: driver/kernel_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package driver

import "golang.org/x/sys/unix"

// kernelRelease returns the running kernel's release string via uname.
func kernelRelease() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(uts.Release[:]), nil
}

//go:build unix && !linux

// File: driver/accept_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package driver

import "golang.org/x/sys/unix"

// acceptNonblock accepts one connection and flags the new fd
// nonblocking; Accept4 is not portable across the BSD family.
func acceptNonblock(fd int) (int, error) {
	nfd, _, err := unix.Accept(fd)
	if err != nil {
		return nfd, err
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return -1, err
	}
	unix.CloseOnExec(nfd)
	return nfd, nil
}

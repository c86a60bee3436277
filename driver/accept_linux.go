//go:build linux

// File: driver/accept_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package driver

import "golang.org/x/sys/unix"

// acceptNonblock accepts one connection with the nonblocking and
// close-on-exec flags applied atomically.
func acceptNonblock(fd int) (int, error) {
	nfd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	return nfd, err
}

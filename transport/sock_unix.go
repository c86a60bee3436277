//go:build unix

// File: transport/sock_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Nonblocking socket construction and address parsing shared by the
// bind/connect futures. Sockets are thin fd wrappers; all I/O goes
// through driver submit entries.

package transport

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// parseSockaddr converts "host:port" into a unix.Sockaddr plus the
// matching address family.
func parseSockaddr(addr string) (unix.Sockaddr, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, 0, fmt.Errorf("invalid port %q", portStr)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, 0, fmt.Errorf("invalid host %q", host)
	}
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return sa, unix.AF_INET6, nil
}

// newSocket creates a nonblocking socket of the given family and type.
func newSocket(family, sotype int) (int, error) {
	fd, err := unix.Socket(family, sotype, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set nonblock: %w", err)
	}
	unix.CloseOnExec(fd)
	return fd, nil
}

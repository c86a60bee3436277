//go:build linux

// File: driver/sockaddr_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Serialization of unix.Sockaddr values into kernel-layout raw
// sockaddrs for io_uring connect SQEs. The returned pointer must stay
// pinned until the operation completes.

package driver

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func sockaddrToRaw(sa unix.Sockaddr) (unsafe.Pointer, uint32, error) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		raw := &unix.RawSockaddrInet4{Family: unix.AF_INET}
		p := (*[2]byte)(unsafe.Pointer(&raw.Port))
		p[0] = byte(a.Port >> 8)
		p[1] = byte(a.Port)
		raw.Addr = a.Addr
		return unsafe.Pointer(raw), uint32(unsafe.Sizeof(*raw)), nil
	case *unix.SockaddrInet6:
		raw := &unix.RawSockaddrInet6{Family: unix.AF_INET6, Scope_id: a.ZoneId}
		p := (*[2]byte)(unsafe.Pointer(&raw.Port))
		p[0] = byte(a.Port >> 8)
		p[1] = byte(a.Port)
		raw.Addr = a.Addr
		return unsafe.Pointer(raw), uint32(unsafe.Sizeof(*raw)), nil
	case *unix.SockaddrUnix:
		raw := &unix.RawSockaddrUnix{Family: unix.AF_UNIX}
		if len(a.Name) >= len(raw.Path) {
			return nil, 0, unix.EINVAL
		}
		for i := 0; i < len(a.Name); i++ {
			raw.Path[i] = int8(a.Name[i])
		}
		// family (2 bytes) + path + trailing NUL
		size := uint32(2 + len(a.Name) + 1)
		return unsafe.Pointer(raw), size, nil
	default:
		return nil, 0, unix.EAFNOSUPPORT
	}
}

//go:build unix

// File: transport/udp.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/nexio/api"
)

// UDPSocket is a bound datagram socket.
type UDPSocket struct {
	fd int
}

// RawFD returns the underlying descriptor.
func (u *UDPSocket) RawFD() int { return u.fd }

// RecvEntry builds the submit entry for one datagram receive into buf.
func (u *UDPSocket) RecvEntry(token uint64, buf []byte) *api.SubmitEntry {
	return &api.SubmitEntry{
		Fd:       int32(u.fd),
		Opcode:   api.OpRecv,
		UserData: token,
		Buf:      buf,
	}
}

// SendEntry builds the submit entry for one datagram send to addr.
func (u *UDPSocket) SendEntry(token uint64, buf []byte, addr unix.Sockaddr) *api.SubmitEntry {
	return &api.SubmitEntry{
		Fd:       int32(u.fd),
		Opcode:   api.OpSend,
		UserData: token,
		Buf:      buf,
		Addr:     addr,
	}
}

// Addr returns the locally bound address.
func (u *UDPSocket) Addr() (unix.Sockaddr, error) {
	return unix.Getsockname(u.fd)
}

// Close releases the socket.
func (u *UDPSocket) Close() error { return unix.Close(u.fd) }

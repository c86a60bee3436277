//go:build unix

// File: transport/tcp.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TCP socket wrappers. These carry no buffering or state of their own:
// every transfer is expressed as a SubmitEntry handed to the driver,
// and the caller correlates completions by token.

package transport

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/nexio/api"
)

// TCPListener is a bound, listening TCP socket.
type TCPListener struct {
	fd int
}

// RawFD returns the underlying descriptor.
func (l *TCPListener) RawFD() int { return l.fd }

// AcceptEntry builds the submit entry for one asynchronous accept.
// The completion's Result is the new connection's descriptor.
func (l *TCPListener) AcceptEntry(token uint64) *api.SubmitEntry {
	return &api.SubmitEntry{
		Fd:       int32(l.fd),
		Opcode:   api.OpAccept,
		UserData: token,
	}
}

// Addr returns the locally bound address.
func (l *TCPListener) Addr() (unix.Sockaddr, error) {
	return unix.Getsockname(l.fd)
}

// Close releases the socket.
func (l *TCPListener) Close() error { return unix.Close(l.fd) }

// TCPStream is one established TCP connection.
type TCPStream struct {
	fd int
}

// StreamFromFD wraps an accepted or connected descriptor.
func StreamFromFD(fd int) *TCPStream { return &TCPStream{fd: fd} }

// RawFD returns the underlying descriptor.
func (s *TCPStream) RawFD() int { return s.fd }

// RecvEntry builds the submit entry for one receive into buf. The
// buffer is leased to the driver until the completion is observed.
func (s *TCPStream) RecvEntry(token uint64, buf []byte) *api.SubmitEntry {
	return &api.SubmitEntry{
		Fd:       int32(s.fd),
		Opcode:   api.OpRecv,
		UserData: token,
		Buf:      buf,
	}
}

// SendEntry builds the submit entry for one send of buf.
func (s *TCPStream) SendEntry(token uint64, buf []byte) *api.SubmitEntry {
	return &api.SubmitEntry{
		Fd:       int32(s.fd),
		Opcode:   api.OpSend,
		UserData: token,
		Buf:      buf,
	}
}

// Close releases the socket.
func (s *TCPStream) Close() error { return unix.Close(s.fd) }

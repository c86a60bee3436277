//go:build unix

// File: transport/futures.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Async socket primitives as explicit state machines. Callers match on
// State(): Binding/Connecting while in flight, Done on success, Error
// on failure. An invalid address deterministically reaches Error
// without ever transitioning through Done.

package transport

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/nexio/api"
)

// BindState is the lifecycle of a BindFuture or BindUDPFuture.
type BindState uint8

const (
	BindStateBinding BindState = iota
	BindStateDone
	BindStateError
)

func (s BindState) String() string {
	switch s {
	case BindStateBinding:
		return "binding"
	case BindStateDone:
		return "done"
	case BindStateError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnectState is the lifecycle of a ConnectFuture.
type ConnectState uint8

const (
	ConnectStateConnecting ConnectState = iota
	ConnectStateDone
	ConnectStateError
)

func (s ConnectState) String() string {
	switch s {
	case ConnectStateConnecting:
		return "connecting"
	case ConnectStateDone:
		return "done"
	case ConnectStateError:
		return "error"
	default:
		return "unknown"
	}
}

// BindFuture binds and listens a TCP socket.
type BindFuture struct {
	addr    string
	backlog int
	state   BindState
	ln      *TCPListener
	err     error
}

var _ api.Future = (*BindFuture)(nil)

// NewBindFuture starts in the Binding state; the work happens on the
// first Poll.
func NewBindFuture(addr string, backlog int) *BindFuture {
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	return &BindFuture{addr: addr, backlog: backlog}
}

// Poll drives the bind. Bind and listen never block, so the machine
// resolves on the first call: Binding -> Done or Binding -> Error.
func (f *BindFuture) Poll(*api.Context) api.Poll {
	if f.state != BindStateBinding {
		return api.PollReady
	}
	sa, family, err := parseSockaddr(f.addr)
	if err != nil {
		f.fail(err)
		return api.PollReady
	}
	fd, err := newSocket(family, unix.SOCK_STREAM)
	if err != nil {
		f.fail(err)
		return api.PollReady
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		f.fail(err)
		return api.PollReady
	}
	if err := unix.Listen(fd, f.backlog); err != nil {
		unix.Close(fd)
		f.fail(err)
		return api.PollReady
	}
	f.ln = &TCPListener{fd: fd}
	f.state = BindStateDone
	return api.PollReady
}

func (f *BindFuture) fail(err error) {
	f.err = err
	f.state = BindStateError
}

// State returns the machine's current variant.
func (f *BindFuture) State() BindState { return f.state }

// Result returns the listener after Done, or the error after Error.
func (f *BindFuture) Result() (*TCPListener, error) { return f.ln, f.err }

// BindUDPFuture binds a datagram socket.
type BindUDPFuture struct {
	addr  string
	state BindState
	sock  *UDPSocket
	err   error
}

var _ api.Future = (*BindUDPFuture)(nil)

// NewBindUDPFuture starts in the Binding state.
func NewBindUDPFuture(addr string) *BindUDPFuture {
	return &BindUDPFuture{addr: addr}
}

// Poll drives the bind: Binding -> Done or Binding -> Error.
func (f *BindUDPFuture) Poll(*api.Context) api.Poll {
	if f.state != BindStateBinding {
		return api.PollReady
	}
	sa, family, err := parseSockaddr(f.addr)
	if err != nil {
		f.err = err
		f.state = BindStateError
		return api.PollReady
	}
	fd, err := newSocket(family, unix.SOCK_DGRAM)
	if err != nil {
		f.err = err
		f.state = BindStateError
		return api.PollReady
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		f.err = err
		f.state = BindStateError
		return api.PollReady
	}
	f.sock = &UDPSocket{fd: fd}
	f.state = BindStateDone
	return api.PollReady
}

// State returns the machine's current variant.
func (f *BindUDPFuture) State() BindState { return f.state }

// Result returns the socket after Done, or the error after Error.
func (f *BindUDPFuture) Result() (*UDPSocket, error) { return f.sock, f.err }

// ConnectFuture establishes a TCP connection through the driver. The
// in-progress connect parks behind a oneshot writable registration; the
// waker fires when the kernel reports the outcome and SO_ERROR decides
// Done versus Error.
type ConnectFuture struct {
	drv   api.Driver
	sched api.Scheduler
	token uint64
	addr  string

	state     ConnectState
	fd        int
	submitted bool
	stream    *TCPStream
	err       error
}

var _ api.Future = (*ConnectFuture)(nil)

// NewConnectFuture starts in the Connecting state. token must be unique
// among in-flight operations; it correlates the readiness completion.
func NewConnectFuture(drv api.Driver, sched api.Scheduler, token uint64, addr string) *ConnectFuture {
	return &ConnectFuture{drv: drv, sched: sched, token: token, addr: addr, fd: -1}
}

// Poll drives the connect machine.
func (f *ConnectFuture) Poll(cx *api.Context) api.Poll {
	if f.state != ConnectStateConnecting {
		return api.PollReady
	}
	if !f.submitted {
		return f.start(cx)
	}
	// Woken by the writable completion: read the definitive outcome.
	soerr, err := unix.GetsockoptInt(f.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		f.fail(err)
		return api.PollReady
	}
	if soerr != 0 {
		f.fail(unix.Errno(soerr))
		return api.PollReady
	}
	f.stream = &TCPStream{fd: f.fd}
	f.state = ConnectStateDone
	return api.PollReady
}

func (f *ConnectFuture) start(cx *api.Context) api.Poll {
	sa, family, err := parseSockaddr(f.addr)
	if err != nil {
		f.fail(err)
		return api.PollReady
	}
	fd, err := newSocket(family, unix.SOCK_STREAM)
	if err != nil {
		f.fail(err)
		return api.PollReady
	}
	f.fd = fd
	switch err := unix.Connect(fd, sa); err {
	case nil:
		f.stream = &TCPStream{fd: fd}
		f.state = ConnectStateDone
		return api.PollReady
	case unix.EINPROGRESS:
		// Park until the socket turns writable.
		f.sched.RegisterTaskWaker(f.token, cx.Waker())
		interest := api.Interest(0).WithWritable().WithOneshot()
		if regErr := f.drv.Register(f.fd, interest, f.token); regErr != nil {
			f.sched.RemoveTaskWaker(f.token)
			f.fail(regErr)
			return api.PollReady
		}
		f.submitted = true
		return api.PollPending
	default:
		f.fail(err)
		return api.PollReady
	}
}

func (f *ConnectFuture) fail(err error) {
	if f.fd >= 0 {
		unix.Close(f.fd)
		f.fd = -1
	}
	f.err = err
	f.state = ConnectStateError
}

// State returns the machine's current variant.
func (f *ConnectFuture) State() ConnectState { return f.state }

// Result returns the stream after Done, or the error after Error.
func (f *ConnectFuture) Result() (*TCPStream, error) { return f.stream, f.err }

//go:build unix

// File: driver/ops_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One-shot nonblocking execution of submit entries, shared by the
// readiness backends (epoll, kqueue). io_uring never goes through this
// path; the kernel executes its operations directly.

package driver

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/nexio/api"
)

// opReads reports whether the opcode waits on read readiness.
func opReads(op api.Opcode) bool {
	switch op {
	case api.OpRead, api.OpRecv, api.OpAccept, api.OpPollAdd:
		return true
	default:
		return false
	}
}

// tryOp attempts the operation once against a nonblocking fd.
// again=true means the fd is not ready and the op must be parked.
func tryOp(e *api.SubmitEntry) (result int32, again bool) {
	var (
		n   int
		err error
	)
	fd := int(e.Fd)
	switch e.Opcode {
	case api.OpNop:
		return 0, false
	case api.OpRead:
		if e.Offset > 0 {
			n, err = unix.Pread(fd, e.Buf, int64(e.Offset))
		} else {
			n, err = unix.Read(fd, e.Buf)
		}
	case api.OpWrite:
		if e.Offset > 0 {
			n, err = unix.Pwrite(fd, e.Buf, int64(e.Offset))
		} else {
			n, err = unix.Write(fd, e.Buf)
		}
	case api.OpRecv:
		n, _, err = unix.Recvfrom(fd, e.Buf, 0)
	case api.OpSend:
		if e.Addr != nil {
			// Datagram send: the kernel takes the whole payload or fails.
			err = unix.Sendto(fd, e.Buf, 0, e.Addr)
			n = len(e.Buf)
		} else {
			// Stream send: partial writes happen under backpressure, so
			// the completion must carry the kernel's count.
			n, err = unix.Write(fd, e.Buf)
		}
	case api.OpAccept:
		n, err = acceptNonblock(fd)
	case api.OpConnect:
		err = unix.Connect(fd, e.Addr)
		switch err {
		case unix.EINPROGRESS, unix.EALREADY, unix.EINTR:
			return 0, true
		case unix.EISCONN:
			// Retry after readiness: the earlier connect finished.
			err = nil
		}
	case api.OpClose:
		err = unix.Close(fd)
	default:
		return -int32(unix.EOPNOTSUPP), false
	}

	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, true
	}
	if err != nil {
		errno, ok := err.(unix.Errno)
		if !ok {
			errno = unix.EIO
		}
		return -int32(errno), false
	}
	return int32(n), false
}

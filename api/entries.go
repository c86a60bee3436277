// File: api/entries.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Submission and completion queue entries: the binary contract exchanged
// between user code and the kernel-facing driver. UserData set on a
// SubmitEntry reappears byte-for-byte on the matching CompletionEntry.

package api

import (
	"golang.org/x/sys/unix"
)

// Opcode identifies the requested I/O operation.
type Opcode uint8

const (
	OpNop Opcode = iota
	OpRead
	OpWrite
	OpRecv
	OpSend
	OpAccept
	OpConnect
	OpClose
	OpPollAdd
	OpPollRemove
	OpTimeout
)

func (o Opcode) String() string {
	switch o {
	case OpNop:
		return "nop"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpRecv:
		return "recv"
	case OpSend:
		return "send"
	case OpAccept:
		return "accept"
	case OpConnect:
		return "connect"
	case OpClose:
		return "close"
	case OpPollAdd:
		return "poll_add"
	case OpPollRemove:
		return "poll_remove"
	case OpTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// SubmitEntry describes one pending I/O request.
//
// Buf is leased to the driver for the operation's lifetime: the driver
// keeps a reference in its in-flight table until the matching completion
// is drained, so the caller must not recycle the slice before observing
// that completion.
type SubmitEntry struct {
	Fd       int32
	Opcode   Opcode
	Flags    uint16
	UserData uint64
	Buf      []byte
	Offset   uint64
	Addr     unix.Sockaddr // connect/accept payload, nil otherwise
}

// CompletionEntry is the result record for one submitted operation.
// Result >= 0 means bytes transferred; Result < 0 is a negated errno.
type CompletionEntry struct {
	UserData uint64
	Result   int32
	Flags    uint32
}

// IsSuccess reports whether the operation completed without error.
func (c CompletionEntry) IsSuccess() bool { return c.Result >= 0 }

// IsError reports whether the operation failed.
func (c CompletionEntry) IsError() bool { return c.Result < 0 }

// BytesTransferred returns the transfer count for successful completions.
func (c CompletionEntry) BytesTransferred() (uint32, bool) {
	if c.Result < 0 {
		return 0, false
	}
	return uint32(c.Result), true
}

// ErrorCode returns the positive errno for failed completions.
func (c CompletionEntry) ErrorCode() (int32, bool) {
	if c.Result >= 0 {
		return 0, false
	}
	return -c.Result, true
}

// IntoResult is the canonical mapping of Result to a success/failure
// outcome. Failures are surfaced as unix.Errno so errors.Is works
// against syscall constants.
func (c CompletionEntry) IntoResult() (int32, error) {
	if c.Result < 0 {
		return 0, unix.Errno(-c.Result)
	}
	return c.Result, nil
}

// IoState tracks the lifecycle of a single operation. Transitions only
// move forward; no operation re-enters Idle after submission.
type IoState uint8

const (
	IoIdle IoState = iota
	IoSubmitted
	IoInProgress
	IoCompleted
	IoCancelled
	IoFailed
)

// IsFinished holds exactly for Completed, Cancelled and Failed.
func (s IoState) IsFinished() bool {
	return s == IoCompleted || s == IoCancelled || s == IoFailed
}

// IsInProgress holds exactly for Submitted and InProgress.
func (s IoState) IsInProgress() bool {
	return s == IoSubmitted || s == IoInProgress
}

func (s IoState) String() string {
	switch s {
	case IoIdle:
		return "idle"
	case IoSubmitted:
		return "submitted"
	case IoInProgress:
		return "in_progress"
	case IoCompleted:
		return "completed"
	case IoCancelled:
		return "cancelled"
	case IoFailed:
		return "failed"
	default:
		return "unknown"
	}
}

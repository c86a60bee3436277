//go:build linux

// File: driver/uring_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// io_uring backend. Unlike epoll, io_uring is a true completion
// interface: submit entries are translated into SQEs and the kernel
// executes them, so no readiness emulation is involved. The SQ/CQ rings
// are mmap'd and driven with atomic head/tail accesses in liburing
// fashion. A NOP SQE carrying a sentinel user_data doubles as the
// cross-thread wakeup.

package driver

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/nexio/api"
)

const (
	sysIoUringSetup = 425
	sysIoUringEnter = 426

	uringOffSQRing = 0
	uringOffCQRing = 0x8000000
	uringOffSQEs   = 0x10000000

	uringEnterGetEvents = 1

	uringFeatSingleMmap = 1 << 0

	uringOpNop        = 0
	uringOpPollAdd    = 6
	uringOpPollRemove = 7
	uringOpTimeout    = 11
	uringOpAccept     = 13
	uringOpConnect    = 16
	uringOpClose      = 19
	uringOpRead       = 22
	uringOpWrite      = 23
	uringOpSend       = 26
	uringOpRecv       = 27

	// wakeUserData marks internal NOP wakeups; filtered before the
	// completion queue so it can never collide with caller tokens.
	wakeUserData = ^uint64(0)
)

type sqRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	flags       uint32
	dropped     uint32
	array       uint32
	resv1       uint32
	userAddr    uint64
}

type cqRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	overflow    uint32
	cqes        uint32
	flags       uint32
	resv1       uint32
	userAddr    uint64
}

type uringParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        sqRingOffsets
	cqOff        cqRingOffsets
}

// uringSQE mirrors struct io_uring_sqe (64 bytes).
type uringSQE struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	len         uint32
	opFlags     uint32
	userData    uint64
	bufIndex    uint16
	personality uint16
	spliceFdIn  int32
	pad2        [2]uint64
}

// uringCQE mirrors struct io_uring_cqe (16 bytes).
type uringCQE struct {
	userData uint64
	res      int32
	flags    uint32
}

// pinned keeps kernel-visible memory (raw sockaddrs, timespecs) alive
// until the owning operation completes.
type pinned struct {
	raw  unsafe.Pointer
	size uint32
}

type uringDriver struct {
	cfg api.DriverConfig
	log *zap.Logger

	fd     int
	params uringParams

	sqMmap  []byte
	cqMmap  []byte
	sqeMmap []byte

	sqHead  *uint32
	sqTail  *uint32
	sqMask  uint32
	sqArray []uint32
	sqes    []uringSQE

	cqHead *uint32
	cqTail *uint32
	cqMask uint32
	cqes   []uringCQE

	mu      sync.Mutex // guards SQ manipulation and pending
	pending []*api.SubmitEntry
	pins    map[uint64]pinned
	regs    map[int]epollRegistration // interest registrations by fd

	inflight    *opTable
	completions completionQueue
}

func newUringDriver(cfg api.DriverConfig, log *zap.Logger) (api.Driver, error) {
	d := &uringDriver{
		cfg:      cfg,
		log:      log,
		pins:     make(map[uint64]pinned),
		regs:     make(map[int]epollRegistration),
		inflight: newOpTable(cfg.MaxOpsPerFd),
	}
	fd, _, errno := unix.Syscall(sysIoUringSetup,
		uintptr(cfg.Entries), uintptr(unsafe.Pointer(&d.params)), 0)
	if errno != 0 {
		if errno == unix.ENOSYS {
			return nil, fmt.Errorf("%w: io_uring requires Linux >= 5.1", api.ErrUnsupported)
		}
		return nil, fmt.Errorf("io_uring_setup: %w", errno)
	}
	d.fd = int(fd)
	if err := d.mapRings(); err != nil {
		unix.Close(d.fd)
		return nil, err
	}
	if cfg.Affinity >= 0 {
		pinThread(cfg.Affinity, log)
	}
	return d, nil
}

func (d *uringDriver) mapRings() error {
	p := &d.params
	sqSize := uintptr(p.sqOff.array) + uintptr(p.sqEntries)*4
	cqSize := uintptr(p.cqOff.cqes) + uintptr(p.cqEntries)*16
	if p.features&uringFeatSingleMmap != 0 && cqSize > sqSize {
		sqSize = cqSize
	}

	sq, err := unix.Mmap(d.fd, uringOffSQRing, int(sqSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return fmt.Errorf("mmap sq ring: %w", err)
	}
	d.sqMmap = sq

	if p.features&uringFeatSingleMmap != 0 {
		d.cqMmap = sq
	} else {
		cq, err := unix.Mmap(d.fd, uringOffCQRing, int(cqSize),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
		if err != nil {
			return fmt.Errorf("mmap cq ring: %w", err)
		}
		d.cqMmap = cq
	}

	sqes, err := unix.Mmap(d.fd, uringOffSQEs, int(uintptr(p.sqEntries)*unsafe.Sizeof(uringSQE{})),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return fmt.Errorf("mmap sqes: %w", err)
	}
	d.sqeMmap = sqes

	base := unsafe.Pointer(&d.sqMmap[0])
	d.sqHead = (*uint32)(unsafe.Add(base, p.sqOff.head))
	d.sqTail = (*uint32)(unsafe.Add(base, p.sqOff.tail))
	d.sqMask = *(*uint32)(unsafe.Add(base, p.sqOff.ringMask))
	d.sqArray = unsafe.Slice((*uint32)(unsafe.Add(base, p.sqOff.array)), p.sqEntries)
	d.sqes = unsafe.Slice((*uringSQE)(unsafe.Pointer(&d.sqeMmap[0])), p.sqEntries)

	cqBase := unsafe.Pointer(&d.cqMmap[0])
	d.cqHead = (*uint32)(unsafe.Add(cqBase, p.cqOff.head))
	d.cqTail = (*uint32)(unsafe.Add(cqBase, p.cqOff.tail))
	d.cqMask = *(*uint32)(unsafe.Add(cqBase, p.cqOff.ringMask))
	d.cqes = unsafe.Slice((*uringCQE)(unsafe.Add(cqBase, p.cqOff.cqes)), p.cqEntries)
	return nil
}

func (d *uringDriver) Type() api.DriverType { return api.DriverIoUring }

func (d *uringDriver) Prepare(entry *api.SubmitEntry) {
	d.mu.Lock()
	d.pending = append(d.pending, entry)
	d.mu.Unlock()
	if !d.cfg.DeferWakeup {
		_ = d.Wakeup()
	}
}

// Submit translates every locally queued entry into an SQE and pushes
// the batch to the kernel with one io_uring_enter.
func (d *uringDriver) Submit() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	batch := d.pending
	d.pending = nil
	var queued uint32
	for _, e := range batch {
		if !d.inflight.add(e) {
			d.completions.push(api.CompletionEntry{UserData: e.UserData, Result: -int32(unix.EBUSY)})
			continue
		}
		committed, requeue := d.pushSQE(e)
		if requeue {
			// SQ full: withdraw the lease and keep the entry pending
			// for the next Submit.
			d.inflight.withdraw(e.UserData)
			d.pending = append(d.pending, e)
			continue
		}
		if committed {
			d.inflight.markInProgress(e.UserData)
			queued++
		}
	}
	if queued == 0 {
		return nil
	}
	return d.enter(queued, d.cfg.SubmitWait)
}

// pushSQE claims one SQ slot. Caller holds d.mu. committed means an SQE
// was written; requeue means the SQ was full and the entry must wait;
// neither means the entry was resolved inline with an error completion.
func (d *uringDriver) pushSQE(e *api.SubmitEntry) (committed, requeue bool) {
	head := atomic.LoadUint32(d.sqHead)
	tail := *d.sqTail
	if tail-head >= d.params.sqEntries {
		return false, true
	}
	idx := tail & d.sqMask
	sqe := &d.sqes[idx]
	*sqe = uringSQE{fd: e.Fd, userData: e.UserData}

	switch e.Opcode {
	case api.OpNop:
		sqe.opcode = uringOpNop
	case api.OpRead:
		sqe.opcode = uringOpRead
		sqe.addr = bufAddr(e.Buf)
		sqe.len = uint32(len(e.Buf))
		sqe.off = e.Offset
	case api.OpWrite:
		sqe.opcode = uringOpWrite
		sqe.addr = bufAddr(e.Buf)
		sqe.len = uint32(len(e.Buf))
		sqe.off = e.Offset
	case api.OpRecv:
		sqe.opcode = uringOpRecv
		sqe.addr = bufAddr(e.Buf)
		sqe.len = uint32(len(e.Buf))
	case api.OpSend:
		sqe.opcode = uringOpSend
		sqe.addr = bufAddr(e.Buf)
		sqe.len = uint32(len(e.Buf))
	case api.OpAccept:
		sqe.opcode = uringOpAccept
		sqe.opFlags = unix.SOCK_CLOEXEC
	case api.OpConnect:
		raw, size, err := sockaddrToRaw(e.Addr)
		if err != nil {
			d.inflight.finish(e.UserData, -int32(unix.EINVAL))
			d.completions.push(api.CompletionEntry{UserData: e.UserData, Result: -int32(unix.EINVAL)})
			return false, false
		}
		d.pins[e.UserData] = pinned{raw: raw, size: size}
		sqe.opcode = uringOpConnect
		sqe.addr = uint64(uintptr(raw))
		sqe.off = uint64(size)
	case api.OpClose:
		sqe.opcode = uringOpClose
	case api.OpPollAdd:
		sqe.opcode = uringOpPollAdd
		sqe.opFlags = uint32(unix.POLLIN)
	case api.OpPollRemove:
		sqe.opcode = uringOpPollRemove
		sqe.addr = e.Offset // user_data of the poll to cancel
	case api.OpTimeout:
		// Offset carries the delay in milliseconds.
		ts := unix.NsecToTimespec(int64(e.Offset) * int64(time.Millisecond))
		d.pins[e.UserData] = pinned{raw: unsafe.Pointer(&ts), size: 0}
		sqe.opcode = uringOpTimeout
		sqe.addr = uint64(uintptr(unsafe.Pointer(&ts)))
		sqe.len = 1
	default:
		d.inflight.finish(e.UserData, -int32(unix.EOPNOTSUPP))
		d.completions.push(api.CompletionEntry{UserData: e.UserData, Result: -int32(unix.EOPNOTSUPP)})
		return false, false
	}

	d.sqArray[idx] = idx
	atomic.StoreUint32(d.sqTail, tail+1)
	return true, false
}

func (d *uringDriver) enter(toSubmit uint32, wait bool) error {
	var (
		minComplete uint32
		flags       uint32
	)
	if wait {
		minComplete = 1
		flags = uringEnterGetEvents
	}
	for {
		_, _, errno := unix.Syscall6(sysIoUringEnter, uintptr(d.fd),
			uintptr(toSubmit), uintptr(minComplete), uintptr(flags), 0, 0)
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return fmt.Errorf("io_uring_enter: %w", errno)
		}
		return nil
	}
}

func (d *uringDriver) Wait() (int, error) {
	for {
		moved, woke := d.drain()
		// A consumed wake NOP ends the wait even with nothing ready;
		// the waker's thread has work for the loop.
		if moved > 0 || woke || d.completions.len() > 0 {
			return d.completions.len(), nil
		}
		if err := d.enter(0, true); err != nil {
			return 0, err
		}
	}
}

func (d *uringDriver) WaitTimeout(timeout time.Duration) (int, bool, error) {
	if moved, woke := d.drain(); moved > 0 || woke || d.completions.len() > 0 {
		return d.completions.len(), false, nil
	}
	// The ring fd is pollable: readable when CQEs are available.
	pfd := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	for {
		_, err := unix.Poll(pfd, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, false, fmt.Errorf("poll ring fd: %w", err)
		}
		break
	}
	_, woke := d.drain()
	n := d.completions.len()
	return n, n == 0 && !woke, nil
}

// drain moves ready CQEs into the completion queue and releases buffer
// leases. Interest re-arms are handled inline; a consumed wake NOP is
// reported so waiters can distinguish a wake from a timeout.
func (d *uringDriver) drain() (int, bool) {
	var (
		moved int
		woke  bool
	)
	for {
		head := atomic.LoadUint32(d.cqHead)
		tail := atomic.LoadUint32(d.cqTail)
		if head == tail {
			break
		}
		cqe := d.cqes[head&d.cqMask]
		atomic.StoreUint32(d.cqHead, head+1)
		if cqe.userData == wakeUserData {
			woke = true
			continue
		}
		d.mu.Lock()
		delete(d.pins, cqe.userData)
		d.mu.Unlock()
		d.inflight.finish(cqe.userData, cqe.res)
		d.rearmIfRegistration(cqe.userData)
		d.completions.push(api.CompletionEntry{
			UserData: cqe.userData,
			Result:   cqe.res,
			Flags:    cqe.flags,
		})
		moved++
	}
	return moved, woke
}

// rearmIfRegistration re-submits the POLL_ADD behind a non-oneshot
// Register call; oneshot registrations simply expire.
func (d *uringDriver) rearmIfRegistration(userData uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for fd, reg := range d.regs {
		if reg.userData != userData {
			continue
		}
		if reg.interest.IsOneshot() {
			delete(d.regs, fd)
			return
		}
		sqe := d.claimLocked()
		if sqe == nil {
			d.log.Warn("sq full, dropping poll re-arm", zap.Int("fd", fd))
			return
		}
		*sqe = uringSQE{
			opcode:   uringOpPollAdd,
			fd:       int32(fd),
			opFlags:  pollMask(reg.interest),
			userData: reg.userData,
		}
		_ = d.enter(1, false)
		return
	}
}

// claimLocked claims one SQE slot and advances the tail. Caller holds d.mu.
func (d *uringDriver) claimLocked() *uringSQE {
	head := atomic.LoadUint32(d.sqHead)
	tail := *d.sqTail
	if tail-head >= d.params.sqEntries {
		return nil
	}
	idx := tail & d.sqMask
	d.sqArray[idx] = idx
	atomic.StoreUint32(d.sqTail, tail+1)
	return &d.sqes[idx]
}

func (d *uringDriver) GetCompletion() (api.CompletionEntry, bool) {
	return d.completions.peek()
}

func (d *uringDriver) AdvanceCompletion() {
	d.completions.advance()
}

func (d *uringDriver) Register(fd int, interest api.Interest, userData uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sqe := d.claimLocked()
	if sqe == nil {
		return api.ErrQueueFull
	}
	*sqe = uringSQE{
		opcode:   uringOpPollAdd,
		fd:       int32(fd),
		opFlags:  pollMask(interest),
		userData: userData,
	}
	d.regs[fd] = epollRegistration{interest: interest, userData: userData}
	return d.enter(1, false)
}

func (d *uringDriver) Deregister(fd int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	reg, ok := d.regs[fd]
	if !ok {
		return nil
	}
	delete(d.regs, fd)
	sqe := d.claimLocked()
	if sqe == nil {
		return api.ErrQueueFull
	}
	*sqe = uringSQE{
		opcode:   uringOpPollRemove,
		addr:     reg.userData,
		userData: wakeUserData,
	}
	return d.enter(1, false)
}

// Wakeup interrupts a blocked Wait by completing a NOP.
func (d *uringDriver) Wakeup() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sqe := d.claimLocked()
	if sqe == nil {
		return nil // ring busy enough that the waiter will wake anyway
	}
	*sqe = uringSQE{opcode: uringOpNop, userData: wakeUserData}
	return d.enter(1, false)
}

func (d *uringDriver) Close() error {
	if d.sqeMmap != nil {
		_ = unix.Munmap(d.sqeMmap)
	}
	if d.cqMmap != nil && &d.cqMmap[0] != &d.sqMmap[0] {
		_ = unix.Munmap(d.cqMmap)
	}
	if d.sqMmap != nil {
		_ = unix.Munmap(d.sqMmap)
	}
	return unix.Close(d.fd)
}

func bufAddr(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}

func pollMask(interest api.Interest) uint32 {
	var mask uint32
	if interest.IsReadable() {
		mask |= uint32(unix.POLLIN)
	}
	if interest.IsWritable() {
		mask |= uint32(unix.POLLOUT)
	}
	if interest.IsPriority() {
		mask |= uint32(unix.POLLPRI)
	}
	return mask
}

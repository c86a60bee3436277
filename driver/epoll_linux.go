//go:build linux

// File: driver/epoll_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// epoll backend. epoll is a readiness interface, so completion-style
// operations are emulated: each queued SubmitEntry is attempted
// immediately with the fd in nonblocking mode; EAGAIN parks the
// operation in the in-flight table behind a oneshot readiness
// registration, and the next epoll event for that fd retries it.
// An eventfd interrupts Wait when another thread submits or shuts down.

package driver

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/nexio/api"
)

// epollRegistration is one user-visible readiness registration.
type epollRegistration struct {
	interest api.Interest
	userData uint64
}

type epollDriver struct {
	cfg api.DriverConfig
	log *zap.Logger

	epfd int
	evfd int // eventfd wired into epfd for cross-thread wakeups

	mu      sync.Mutex
	pending []*api.SubmitEntry
	regs    map[int]epollRegistration

	inflight    *opTable
	completions completionQueue
	events      []unix.EpollEvent
}

func newEpollDriver(cfg api.DriverConfig, log *zap.Logger) (api.Driver, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	evfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(evfd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, evfd, &ev); err != nil {
		unix.Close(evfd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add eventfd: %w", err)
	}
	d := &epollDriver{
		cfg:      cfg,
		log:      log,
		epfd:     epfd,
		evfd:     evfd,
		regs:     make(map[int]epollRegistration),
		inflight: newOpTable(cfg.MaxOpsPerFd),
		events:   make([]unix.EpollEvent, cfg.Entries),
	}
	if cfg.Affinity >= 0 {
		pinThread(cfg.Affinity, log)
	}
	return d, nil
}

func (d *epollDriver) Type() api.DriverType { return api.DriverEpoll }

func (d *epollDriver) Prepare(entry *api.SubmitEntry) {
	d.mu.Lock()
	d.pending = append(d.pending, entry)
	d.mu.Unlock()
	if !d.cfg.DeferWakeup {
		_ = d.Wakeup()
	}
}

// Submit attempts every locally queued entry once. Operations that
// would block are parked behind a oneshot readiness registration.
func (d *epollDriver) Submit() error {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, e := range batch {
		d.execute(e, true)
	}
	return nil
}

// execute runs one operation attempt. admit guards the per-fd bound on
// the first attempt only.
func (d *epollDriver) execute(e *api.SubmitEntry, admit bool) {
	if admit {
		if !d.inflight.add(e) {
			d.completions.push(api.CompletionEntry{UserData: e.UserData, Result: -int32(unix.EBUSY)})
			return
		}
	}
	res, again := tryOp(e)
	if again {
		d.inflight.markInProgress(e.UserData)
		if err := d.armFd(e); err != nil {
			d.inflight.finish(e.UserData, -int32(unix.EBADF))
			d.completions.push(api.CompletionEntry{UserData: e.UserData, Result: -int32(unix.EBADF)})
		}
		return
	}
	d.inflight.finish(e.UserData, res)
	d.completions.push(api.CompletionEntry{UserData: e.UserData, Result: res})
}

// armFd (re)registers fd for the readiness the parked operation needs.
// A live user registration on the same fd keeps its event bits in the
// merged mask.
func (d *epollDriver) armFd(e *api.SubmitEntry) error {
	events := uint32(unix.EPOLLONESHOT)
	if opReads(e.Opcode) {
		events |= unix.EPOLLIN
	} else {
		events |= unix.EPOLLOUT
	}
	d.mu.Lock()
	if reg, ok := d.regs[int(e.Fd)]; ok {
		events |= regEvents(reg.interest)
	}
	d.mu.Unlock()
	ev := unix.EpollEvent{Events: events, Fd: e.Fd}
	err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_MOD, int(e.Fd), &ev)
	if err == unix.ENOENT {
		err = unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, int(e.Fd), &ev)
	}
	return err
}

func (d *epollDriver) Wait() (int, error) {
	n, _, err := d.wait(-1)
	return n, err
}

func (d *epollDriver) WaitTimeout(timeout time.Duration) (int, bool, error) {
	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	n, woke, err := d.wait(ms)
	if err != nil {
		return 0, false, err
	}
	// An eventfd wake with nothing ready is not a timeout.
	return n, n == 0 && !woke, nil
}

func (d *epollDriver) wait(timeoutMs int) (int, bool, error) {
	if n := d.completions.len(); n > 0 {
		timeoutMs = 0
	}
	for {
		n, err := unix.EpollWait(d.epfd, d.events, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, false, fmt.Errorf("epoll wait: %w", err)
		}
		var woke bool
		for i := 0; i < n; i++ {
			if d.dispatch(&d.events[i]) {
				woke = true
			}
		}
		return d.completions.len(), woke, nil
	}
}

// dispatch converts one epoll event into completions: parked operations
// on the fd are retried, and user readiness registrations yield a
// zero-result completion carrying the epoll event bits in Flags. The
// bool reports whether the event was the wakeup eventfd.
func (d *epollDriver) dispatch(ev *unix.EpollEvent) bool {
	fd := ev.Fd
	if int(fd) == d.evfd {
		var buf [8]byte
		_, _ = unix.Read(d.evfd, buf[:])
		return true
	}

	for _, ud := range d.inflight.byFd(fd) {
		if e, ok := d.inflight.get(ud); ok {
			d.execute(e, false)
		}
	}
	// Ops still parked after the retries have re-armed the fd with the
	// registration bits merged in.
	parked := len(d.inflight.byFd(fd)) > 0

	d.mu.Lock()
	reg, ok := d.regs[int(fd)]
	if ok && reg.interest.IsOneshot() {
		delete(d.regs, int(fd))
	}
	d.mu.Unlock()
	if ok {
		d.completions.push(api.CompletionEntry{UserData: reg.userData, Flags: ev.Events})
		switch {
		case parked:
			// Keep the merged oneshot arming; dropping the fd here
			// would orphan the parked operations.
		case reg.interest.IsOneshot():
			_ = unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
		default:
			// A fired parked op disarmed the fd (EPOLLONESHOT), so
			// restore the registration's own mask.
			rev := unix.EpollEvent{Events: regEvents(reg.interest), Fd: fd}
			_ = unix.EpollCtl(d.epfd, unix.EPOLL_CTL_MOD, int(fd), &rev)
		}
	}
	return false
}

func (d *epollDriver) GetCompletion() (api.CompletionEntry, bool) {
	return d.completions.peek()
}

func (d *epollDriver) AdvanceCompletion() {
	d.completions.advance()
}

// regEvents maps a registration's interest onto epoll event bits,
// without the oneshot flag (oneshot is handled at dispatch time so a
// merged parked-op arming cannot expire the registration).
func regEvents(interest api.Interest) uint32 {
	var events uint32
	if interest.IsReadable() {
		events |= unix.EPOLLIN
	}
	if interest.IsWritable() {
		events |= unix.EPOLLOUT
	}
	if interest.IsPriority() {
		events |= unix.EPOLLPRI
	}
	if interest.IsEdge() {
		events |= unix.EPOLLET
	}
	return events
}

func (d *epollDriver) Register(fd int, interest api.Interest, userData uint64) error {
	events := regEvents(interest)
	if interest.IsOneshot() {
		events |= unix.EPOLLONESHOT
	}
	// Parked operations on the same fd keep their readiness bits and
	// oneshot arming; dispatch restores the registration mask after a
	// merged event fires.
	for _, ud := range d.inflight.byFd(int32(fd)) {
		if e, ok := d.inflight.get(ud); ok {
			events |= unix.EPOLLONESHOT
			if opReads(e.Opcode) {
				events |= unix.EPOLLIN
			} else {
				events |= unix.EPOLLOUT
			}
		}
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	if err == unix.EEXIST {
		err = unix.EpollCtl(d.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	}
	if err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	d.mu.Lock()
	d.regs[fd] = epollRegistration{interest: interest, userData: userData}
	d.mu.Unlock()
	return nil
}

func (d *epollDriver) Deregister(fd int) error {
	d.mu.Lock()
	delete(d.regs, fd)
	d.mu.Unlock()
	if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

func (d *epollDriver) Wakeup() error {
	var one = [8]byte{0, 0, 0, 0, 0, 0, 0, 1}
	_, err := unix.Write(d.evfd, one[:])
	if err == unix.EAGAIN {
		return nil // counter saturated, wait is already pending wakeup
	}
	return err
}

func (d *epollDriver) Close() error {
	if err := unix.Close(d.evfd); err != nil {
		d.log.Warn("close eventfd", zap.Error(err))
	}
	return unix.Close(d.epfd)
}

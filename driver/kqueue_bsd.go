//go:build darwin || dragonfly || freebsd || netbsd || openbsd

// File: driver/kqueue_bsd.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// kqueue backend for the BSD family. Like epoll this is a readiness
// interface, so completion-style operations are emulated through the
// shared tryOp path. A self-pipe interrupts Kevent when another thread
// submits or shuts down; EVFILT_USER is not portable across all BSDs.

package driver

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/nexio/api"
)

type kqueueRegistration struct {
	interest api.Interest
	userData uint64
}

type kqueueDriver struct {
	cfg api.DriverConfig
	log *zap.Logger

	kq       int
	wakeR    int // self-pipe read end, registered with the kqueue
	wakeW    int
	mu       sync.Mutex
	pending  []*api.SubmitEntry
	regs     map[int]kqueueRegistration

	inflight    *opTable
	completions completionQueue
	events      []unix.Kevent_t
}

func newKqueueDriver(cfg api.DriverConfig, log *zap.Logger) (api.Driver, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}
	var pipefd [2]int
	if err := unix.Pipe(pipefd[:]); err != nil {
		unix.Close(kq)
		return nil, fmt.Errorf("wake pipe: %w", err)
	}
	_ = unix.SetNonblock(pipefd[0], true)
	_ = unix.SetNonblock(pipefd[1], true)

	var kev unix.Kevent_t
	unix.SetKevent(&kev, pipefd[0], unix.EVFILT_READ, unix.EV_ADD)
	if _, err := unix.Kevent(kq, []unix.Kevent_t{kev}, nil, nil); err != nil {
		unix.Close(pipefd[0])
		unix.Close(pipefd[1])
		unix.Close(kq)
		return nil, fmt.Errorf("register wake pipe: %w", err)
	}
	return &kqueueDriver{
		cfg:      cfg,
		log:      log,
		kq:       kq,
		wakeR:    pipefd[0],
		wakeW:    pipefd[1],
		regs:     make(map[int]kqueueRegistration),
		inflight: newOpTable(cfg.MaxOpsPerFd),
		events:   make([]unix.Kevent_t, cfg.Entries),
	}, nil
}

func (d *kqueueDriver) Type() api.DriverType { return api.DriverKqueue }

func (d *kqueueDriver) Prepare(entry *api.SubmitEntry) {
	d.mu.Lock()
	d.pending = append(d.pending, entry)
	d.mu.Unlock()
	if !d.cfg.DeferWakeup {
		_ = d.Wakeup()
	}
}

func (d *kqueueDriver) Submit() error {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, e := range batch {
		d.execute(e, true)
	}
	return nil
}

func (d *kqueueDriver) execute(e *api.SubmitEntry, admit bool) {
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

func (d *kqueueDriver) armFd(e *api.SubmitEntry) error {
	filter := int16(unix.EVFILT_WRITE)
	if opReads(e.Opcode) {
		filter = unix.EVFILT_READ
	}
	var kev unix.Kevent_t
	unix.SetKevent(&kev, int(e.Fd), int(filter), unix.EV_ADD|unix.EV_ONESHOT)
	_, err := unix.Kevent(d.kq, []unix.Kevent_t{kev}, nil, nil)
	return err
}

func (d *kqueueDriver) Wait() (int, error) {
	n, _, err := d.wait(nil)
	return n, err
}

func (d *kqueueDriver) WaitTimeout(timeout time.Duration) (int, bool, error) {
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	n, woke, err := d.wait(&ts)
	if err != nil {
		return 0, false, err
	}
	// A self-pipe wake with nothing ready is not a timeout.
	return n, n == 0 && !woke, nil
}

func (d *kqueueDriver) wait(ts *unix.Timespec) (int, bool, error) {
	if d.completions.len() > 0 {
		zero := unix.NsecToTimespec(0)
		ts = &zero
	}
	for {
		n, err := unix.Kevent(d.kq, nil, d.events, ts)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, false, fmt.Errorf("kevent: %w", err)
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

// dispatch handles one kevent. The bool reports whether the event was
// the wakeup pipe.
func (d *kqueueDriver) dispatch(kev *unix.Kevent_t) bool {
	fd := int(kev.Ident)
	if fd == d.wakeR {
		var buf [64]byte
		for {
			if _, err := unix.Read(d.wakeR, buf[:]); err != nil {
				break
			}
		}
		return true
	}

	for _, ud := range d.inflight.byFd(int32(fd)) {
		if e, ok := d.inflight.get(ud); ok {
			d.execute(e, false)
		}
	}

	d.mu.Lock()
	reg, ok := d.regs[fd]
	if ok && reg.interest.IsOneshot() {
		delete(d.regs, fd)
	}
	d.mu.Unlock()
	if ok {
		d.completions.push(api.CompletionEntry{UserData: reg.userData, Flags: uint32(kev.Filter)})
	}
	return false
}

func (d *kqueueDriver) GetCompletion() (api.CompletionEntry, bool) {
	return d.completions.peek()
}

func (d *kqueueDriver) AdvanceCompletion() {
	d.completions.advance()
}

func (d *kqueueDriver) Register(fd int, interest api.Interest, userData uint64) error {
	flags := unix.EV_ADD
	if interest.IsOneshot() {
		flags |= unix.EV_ONESHOT
	}
	if interest.IsEdge() {
		flags |= unix.EV_CLEAR
	}
	var changes []unix.Kevent_t
	if interest.IsReadable() {
		var kev unix.Kevent_t
		unix.SetKevent(&kev, fd, unix.EVFILT_READ, flags)
		changes = append(changes, kev)
	}
	if interest.IsWritable() {
		var kev unix.Kevent_t
		unix.SetKevent(&kev, fd, unix.EVFILT_WRITE, flags)
		changes = append(changes, kev)
	}
	if len(changes) == 0 {
		return fmt.Errorf("empty interest for fd %d", fd)
	}
	if _, err := unix.Kevent(d.kq, changes, nil, nil); err != nil {
		return fmt.Errorf("kevent add: %w", err)
	}
	d.mu.Lock()
	d.regs[fd] = kqueueRegistration{interest: interest, userData: userData}
	d.mu.Unlock()
	return nil
}

func (d *kqueueDriver) Deregister(fd int) error {
	d.mu.Lock()
	delete(d.regs, fd)
	d.mu.Unlock()
	var kevR, kevW unix.Kevent_t
	unix.SetKevent(&kevR, fd, unix.EVFILT_READ, unix.EV_DELETE)
	unix.SetKevent(&kevW, fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	// Either filter may be absent; the other delete still applies.
	_, _ = unix.Kevent(d.kq, []unix.Kevent_t{kevR}, nil, nil)
	_, _ = unix.Kevent(d.kq, []unix.Kevent_t{kevW}, nil, nil)
	return nil
}

func (d *kqueueDriver) Wakeup() error {
	_, err := unix.Write(d.wakeW, []byte{1})
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (d *kqueueDriver) Close() error {
	if err := unix.Close(d.wakeR); err != nil {
		d.log.Warn("close wake pipe", zap.Error(err))
	}
	_ = unix.Close(d.wakeW)
	return unix.Close(d.kq)
}

// Package api
// Author: momentics <momentics@gmail.com>
//
// Scheduler contract: cooperative task execution with explicit
// backpressure and a waker registry bridging kernel completion identity
// to task identity.

package api

// SchedulerState is the scheduler lifecycle. Transitions are
// forward-only: Running -> ShuttingDown -> Stopped.
type SchedulerState int32

const (
	SchedulerRunning SchedulerState = iota
	SchedulerShuttingDown
	SchedulerStopped
)

func (s SchedulerState) String() string {
	switch s {
	case SchedulerRunning:
		return "running"
	case SchedulerShuttingDown:
		return "shutting_down"
	case SchedulerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SchedulerStats is a point-in-time counter snapshot.
type SchedulerStats struct {
	Submitted uint64
	Completed uint64
	Stolen    uint64
}

// Scheduler executes RawTasks on one or more worker threads.
type Scheduler interface {
	// Submit enqueues a task. On a full queue the task is NOT dropped:
	// ErrQueueFull is returned and the caller retains ownership.
	Submit(t *RawTask) error

	// RegisterTaskWaker records the waker to invoke when the completion
	// carrying id arrives. The registry is a lookup-only back-reference,
	// never an ownership edge.
	RegisterTaskWaker(id uint64, w Waker)
	GetTaskWaker(id uint64) (Waker, bool)
	RemoveTaskWaker(id uint64)

	// State reports the current lifecycle state.
	State() SchedulerState

	// Shutdown flips the state and wakes parked workers. Idempotent.
	Shutdown()

	// Join blocks until every worker observed Stopped and exited.
	Join()

	// Stats returns a snapshot of scheduling counters.
	Stats() SchedulerStats
}

// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package concurrency implements the scheduler machinery: the
// single-producer local queues, the multi-writer inject queue, the
// task-waker registry and the Local and WorkStealing schedulers built
// on top of them. Queues use atomic push/pop; the waker registry is the
// only mutex on the scheduling hot path and is held for O(1) map
// operations only.
package concurrency

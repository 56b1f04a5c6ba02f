package chatgpt

import (
	"sync/atomic"
	"time"
)

// CancelToken is the single source of truth for whether a task is still
// allowed to run. The abort flag is monotonic: once set it never resets.
// In-flight page operations cannot be preempted, so every stage checks the
// flag immediately before starting work and unwinds without further page
// interaction when it is already set.
//
// One token per task; never shared across tasks.
type CancelToken struct {
	aborted  atomic.Bool
	deadline time.Time
	now      func() time.Time
}

// NewCancelToken creates a token with the task's hard deadline.
func NewCancelToken(deadline time.Time) *CancelToken {
	return &CancelToken{deadline: deadline, now: time.Now}
}

// Abort sets the flag. Idempotent.
func (t *CancelToken) Abort() {
	t.aborted.Store(true)
}

// Aborted reports whether the flag has been set.
func (t *CancelToken) Aborted() bool {
	return t.aborted.Load()
}

// Expired reports whether the task may no longer run: either the flag is
// set or the deadline has passed.
func (t *CancelToken) Expired() bool {
	return t.aborted.Load() || t.now().After(t.deadline)
}

// Deadline returns the task's hard deadline.
func (t *CancelToken) Deadline() time.Time {
	return t.deadline
}

// Package schedule provides the timers used for debounce, trigger and retry
// delays. Every delayed callback is owned by a Task so that re-arming always
// cancels the previous handle and teardown can cancel everything.
package schedule

import (
	"sync"
	"time"
)

// Timer is a pending callback.
type Timer interface {
	// Stop cancels the callback. It returns false if the callback already
	// ran or was stopped.
	Stop() bool
}

// Clock abstracts time so timers can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Real returns the wall clock.
func Real() Clock {
	return realClock{}
}

// Task is a single re-armable delayed callback.
type Task struct {
	mu    sync.Mutex
	clock Clock
	timer Timer
	gen   uint64
}

// NewTask creates a task on clock. A nil clock means the wall clock.
func NewTask(clock Clock) *Task {
	if clock == nil {
		clock = Real()
	}
	return &Task{clock: clock}
}

// Schedule cancels any pending callback and arms fn to run after d.
func (t *Task) Schedule(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen

	t.timer = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		if gen != t.gen {
			// Re-armed or cancelled after the timer fired but before we
			// got the lock.
			t.mu.Unlock()
			return
		}
		t.timer = nil
		t.mu.Unlock()

		fn()
	})
}

// Cancel stops the pending callback, if any.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}

// Pending returns true if a callback is armed.
func (t *Task) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

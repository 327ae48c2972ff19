// Package rtimer provides the explicit timer handle RouteProgrammer and
// PersistentStore dispatch from their own select loops.
//
// The source this agent is ported from (Open/R's Fib.cpp) schedules
// closures on an event-loop timer that captures the owning object by
// pointer and reschedules itself from within the callback. That pattern
// does not translate to idiomatic Go: a goroutine-backed timer with a
// hidden back-reference to its owner is exactly the kind of interior
// pointer loop the design notes call out. Instead, Timer is held as a
// plain field on the owner; the owner's loop selects on Timer.C() and
// decides what to do next. The timer never calls back into the owner.
package rtimer

import (
	"sync/atomic"
	"time"
)

// Timer is a restartable, cancelable, observable one-shot timer. It is
// not safe for concurrent use by multiple goroutines; callers serialize
// access to it the same way RouteProgrammer and PersistentStore
// serialize all their other state, from a single owning goroutine.
type Timer interface {
	// C returns the channel that fires when the timer elapses. The
	// returned channel is stable across the Timer's lifetime.
	C() <-chan time.Time
	// Schedule arms the timer to fire after d, replacing any pending
	// firing.
	Schedule(d time.Duration)
	// Cancel disarms the timer. It is a no-op if not scheduled.
	Cancel()
	// IsScheduled reports whether the timer is currently armed.
	IsScheduled() bool
}

type timer struct {
	t         *time.Timer
	c         chan time.Time
	scheduled atomic.Bool
}

// New returns a Timer that is not initially scheduled.
func New() Timer {
	c := make(chan time.Time, 1)
	return &timer{c: c}
}

func (t *timer) C() <-chan time.Time { return t.c }

func (t *timer) Schedule(d time.Duration) {
	t.Cancel()
	t.scheduled.Store(true)
	t.t = time.AfterFunc(d, func() {
		t.scheduled.Store(false)
		select {
		case t.c <- time.Now():
		default:
		}
	})
}

func (t *timer) Cancel() {
	if t.t != nil {
		t.t.Stop()
	}
	t.scheduled.Store(false)
}

func (t *timer) IsScheduled() bool { return t.scheduled.Load() }

package schedule

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/itohio/picolimno/pkg/clock"
)

// Waker is the single flag shared between the alarm and the main loop. The
// alarm side only ever calls Signal.
type Waker struct {
	flag atomic.Bool
	ch   chan struct{}
}

// NewWaker creates a cleared wake flag.
func NewWaker() *Waker {
	return &Waker{ch: make(chan struct{}, 1)}
}

// Signal requests a wake-up. It never blocks.
func (w *Waker) Signal() {
	w.flag.Store(true)
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// Consume clears the flag and reports whether it was set.
func (w *Waker) Consume() bool {
	return w.flag.CompareAndSwap(true, false)
}

// Pending reports the flag without clearing it.
func (w *Waker) Pending() bool {
	return w.flag.Load()
}

// Wait blocks until a signal arrives, ctx is done or d elapses.
func (w *Waker) Wait(ctx context.Context, d time.Duration) {
	if w.flag.Load() {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.ch:
	case <-t.C:
	case <-ctx.Done():
	}
}

// Alarm fires a Waker on every period boundary of the station clock, like an
// RTC alarm matching the seconds field.
type Alarm struct {
	clock  clock.Clock
	period time.Duration
	waker  *Waker

	// last is the boundary signalled most recently.
	last time.Time
}

// NewAlarm creates an alarm firing every period.
func NewAlarm(c clock.Clock, period time.Duration, w *Waker) *Alarm {
	if period <= 0 {
		period = time.Minute
	}
	return &Alarm{clock: c, period: period, waker: w}
}

// Next returns the delay until the next period boundary after now.
func (a *Alarm) Next(now time.Time) time.Duration {
	next := now.Truncate(a.period).Add(a.period)
	return next.Sub(now)
}

// Run arms the alarm until ctx is cancelled.
func (a *Alarm) Run(ctx context.Context) {
	for {
		t := time.NewTimer(a.Next(a.clock.Now()))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			a.fire(a.clock.Now())
		}
	}
}

// fire signals the boundary of now unless it was already signalled, which
// happens when the clock is set back inside the period.
func (a *Alarm) fire(now time.Time) bool {
	boundary := now.Truncate(a.period)
	if boundary.Equal(a.last) {
		return false
	}
	a.last = boundary
	a.waker.Signal()
	return true
}

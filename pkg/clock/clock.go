// Package clock provides the station's real-time clock.
package clock

import (
	"sync"
	"time"
)

// TimestampLayout is the UTC timestamp format used in status reports.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Clock is the station time source. Set resynchronizes it from an external
// reference (the server Date header).
type Clock interface {
	Now() time.Time
	Set(t time.Time)
}

// Offset is a software RTC: the system monotonic clock plus a correction
// offset adjusted by Set.
type Offset struct {
	mu     sync.RWMutex
	offset time.Duration
	now    func() time.Time
}

var _ Clock = (*Offset)(nil)

// NewOffset creates a clock following the system time.
func NewOffset() *Offset {
	return &Offset{now: time.Now}
}

// Now returns the corrected current time in UTC.
func (c *Offset) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now().Add(c.offset).UTC()
}

// Set moves the clock so that Now returns t at this instant.
func (c *Offset) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = t.Sub(c.now())
}

// Drift returns the current correction applied to the system time.
func (c *Offset) Drift() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Timestamp formats t as YYYY-MM-DDTHH:MM:SSZ in UTC.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// SecondsOfDay returns the number of seconds since UTC midnight.
func SecondsOfDay(t time.Time) int {
	t = t.UTC()
	return t.Second() + 60*(t.Minute()+60*t.Hour())
}

// MinuteOfDay returns hour*60+minute in UTC.
func MinuteOfDay(t time.Time) int {
	t = t.UTC()
	return t.Minute() + 60*t.Hour()
}

// Consistent reports whether now is not older than the firmware build time.
// A clock behind the build date has not been synchronized yet.
func Consistent(now, build time.Time) bool {
	return !now.Before(build)
}

// Package schedule holds the station timing policy and the wake alarm.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NoReset disables the daily reset.
const NoReset = -1

// Config decides which ticks sample and which transmit.
//
// Hours are 0..23; a zero StartHour or StopHour leaves that side of the
// active window unbounded. ResetMinute is the minute of day of the daily
// restart, or NoReset.
type Config struct {
	Tick             time.Duration
	SampleInterval   time.Duration
	TransmitInterval time.Duration
	StartHour        int
	StopHour         int
	ResetMinute      int
}

// Active reports whether sampling is allowed during hour.
func (c *Config) Active(hour int) bool {
	if c.StartHour > 0 && hour < c.StartHour {
		return false
	}
	if c.StopHour > 0 && hour >= c.StopHour {
		return false
	}
	return true
}

// ResetDue reports whether minuteOfDay is the configured daily reset minute.
func (c *Config) ResetDue(minuteOfDay int) bool {
	return c.ResetMinute >= 0 && c.ResetMinute == minuteOfDay
}

// SampleDue reports whether the tick at secondsOfDay is a measurement tick.
func (c *Config) SampleDue(secondsOfDay int) bool {
	return c.due(secondsOfDay, c.SampleInterval)
}

// TransmitDue reports whether the tick at secondsOfDay is a transmission tick.
func (c *Config) TransmitDue(secondsOfDay int) bool {
	return c.due(secondsOfDay, c.TransmitInterval)
}

// due matches the interval modulus. A tick delivered late within its own
// period still counts, so each boundary is honoured exactly once.
func (c *Config) due(secondsOfDay int, interval time.Duration) bool {
	iv := int(interval / time.Second)
	if iv <= 0 {
		return false
	}
	slack := int(c.Tick / time.Second)
	if slack < 1 {
		slack = 1
	}
	return secondsOfDay%iv < slack
}

// ParseReset parses "HH:MM" into minutes since midnight. An empty string
// returns NoReset.
func ParseReset(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoReset, nil
	}
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return NoReset, fmt.Errorf("invalid reset time %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(strings.TrimSpace(hh))
	if err != nil || h < 0 || h > 23 {
		return NoReset, fmt.Errorf("invalid reset hour in %q", s)
	}
	m, err := strconv.Atoi(strings.TrimSpace(mm))
	if err != nil || m < 0 || m > 59 {
		return NoReset, fmt.Errorf("invalid reset minute in %q", s)
	}
	return h*60 + m, nil
}

// FormatReset is the inverse of ParseReset.
func FormatReset(minute int) string {
	if minute < 0 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

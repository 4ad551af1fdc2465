// Package alert implements the hysteresis threshold detector used for the
// water level alerts.
package alert

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Alert is a two-state (below/above) threshold detector.
//
// The upward edge fires when the value exceeds threshold+hysteresis, the
// downward edge fires as soon as the value drops under threshold. The band
// only guards the upward edge.
type Alert struct {
	threshold  float32
	hysteresis float32
	above      bool
}

// New creates an alert in the below state. A zero threshold and a zero
// hysteresis leave the alert disabled.
func New(threshold, hysteresis float32) *Alert {
	return &Alert{
		threshold:  threshold,
		hysteresis: hysteresis,
	}
}

// NewWithState creates a disabled alert seeded with an initial state. It is
// used to invert the polarity of the first transition; thresholds are
// supplied later through Configure.
func NewWithState(above bool) *Alert {
	return &Alert{above: above}
}

// Configure replaces threshold and hysteresis. The current state is kept so
// an alert survives reconfiguration without re-firing.
func (a *Alert) Configure(threshold, hysteresis float32) {
	a.threshold = threshold
	a.hysteresis = hysteresis
}

// Test evaluates value and reports whether the state changed on this call.
// It does not report the state itself; use Status for that.
func (a *Alert) Test(value float32) bool {
	if math32.IsNaN(value) {
		return false
	}

	if a.above {
		if value < a.threshold {
			a.above = false
			return true
		}
		return false
	}

	if value > a.threshold+a.hysteresis {
		a.above = true
		return true
	}
	return false
}

// Status returns true when the last transition was upward.
func (a *Alert) Status() bool {
	return a.above
}

// Enabled reports whether the alert has any threshold configured. Callers
// must not evaluate a disabled alert.
func (a *Alert) Enabled() bool {
	return a.threshold != 0 || a.hysteresis != 0
}

// Threshold returns the configured threshold.
func (a *Alert) Threshold() float32 { return a.threshold }

// Hysteresis returns the configured band above the threshold.
func (a *Alert) Hysteresis() float32 { return a.hysteresis }

func (a *Alert) String() string {
	state := "below"
	if a.above {
		state = "above"
	}
	return fmt.Sprintf("%s (threshold %.2f, hysteresis %.2f)", state, a.threshold, a.hysteresis)
}

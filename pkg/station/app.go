// Package station runs the measurement loop of a limnimetric station.
package station

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itohio/picolimno/pkg/alert"
	"github.com/itohio/picolimno/pkg/batch"
	"github.com/itohio/picolimno/pkg/cellular"
	"github.com/itohio/picolimno/pkg/clock"
	"github.com/itohio/picolimno/pkg/metrics"
	"github.com/itohio/picolimno/pkg/sample"
	"github.com/itohio/picolimno/pkg/schedule"
	"github.com/itohio/picolimno/pkg/sensor"
)

// Uplink is the device API as seen by the station.
type Uplink interface {
	SetIMEI(imei string)
	SendStatus(ctx context.Context, state, ip string, at time.Time) error
}

// Refresher pulls remote parameters into the live policy.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Kicker is fed once per loop iteration.
type Kicker interface {
	Kick() error
}

type nopKicker struct{}

func (nopKicker) Kick() error { return nil }

// App is the application context. It is built once at startup and owned by
// the main loop; only Waker is touched from the alarm goroutine.
type App struct {
	Clock     clock.Clock
	Waker     *schedule.Waker
	Schedule  *schedule.Config
	Sensors   sensor.Sensors
	Modem     cellular.Modem
	Uplink    Uplink
	Batch     *batch.Batcher
	Refresher Refresher
	Median    *sample.Median
	Alert1    *alert.Alert
	Alert2    *alert.Alert
	Restarter Restarter
	Watchdog  Kicker

	// BuildDate is the earliest plausible wall clock time.
	BuildDate    time.Time
	ClockRetries int
	StopTimeout  time.Duration
	// Uptime reports the time since the process started.
	Uptime func() time.Duration

	Log logrus.FieldLogger
	Obs metrics.Observer
}

func (a *App) setDefaults() {
	if a.Waker == nil {
		a.Waker = schedule.NewWaker()
	}
	if a.Watchdog == nil {
		a.Watchdog = nopKicker{}
	}
	if a.ClockRetries < 1 {
		a.ClockRetries = 1
	}
	if a.StopTimeout == 0 {
		a.StopTimeout = 5 * time.Second
	}
	if a.Uptime == nil {
		start := time.Now()
		a.Uptime = func() time.Duration { return time.Since(start) }
	}
	if a.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		a.Log = l
	}
	if a.Obs == nil {
		a.Obs = metrics.Nop{}
	}
}

package station

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itohio/picolimno/pkg/alert"
	"github.com/itohio/picolimno/pkg/batch"
	"github.com/itohio/picolimno/pkg/clock"
	"github.com/itohio/picolimno/pkg/metrics"
	"github.com/itohio/picolimno/pkg/sample"
	"github.com/itohio/picolimno/pkg/sensor"
)

// Outcome is what a tick did.
type Outcome int

const (
	OutcomeIdle Outcome = iota
	OutcomeReset
	OutcomeAsleep
	OutcomeOffInterval
	OutcomeMeasured
	OutcomeTransmitted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeReset:
		return "reset"
	case OutcomeAsleep:
		return "asleep"
	case OutcomeOffInterval:
		return "off-interval"
	case OutcomeMeasured:
		return "measured"
	case OutcomeTransmitted:
		return "transmitted"
	}
	return "unknown"
}

type levelAlert struct {
	key   sample.Key
	alert *alert.Alert
}

// Controller decides on every wake what to sample and when to transmit.
type Controller struct {
	app    *App
	alerts []levelAlert
	log    logrus.FieldLogger
}

// NewController creates the measurement cycle controller.
func NewController(app *App) *Controller {
	app.setDefaults()
	return &Controller{
		app: app,
		alerts: []levelAlert{
			{key: sample.KeyAlert1, alert: app.Alert1},
			{key: sample.KeyAlert2, alert: app.Alert2},
		},
		log: app.Log.WithField("component", "controller"),
	}
}

// Wake consumes the wake flag and runs a tick when it was set.
func (c *Controller) Wake(ctx context.Context) Outcome {
	if !c.app.Waker.Consume() {
		return OutcomeIdle
	}
	return c.Tick(ctx)
}

// Tick runs one measurement cycle.
func (c *Controller) Tick(ctx context.Context) Outcome {
	outcome := c.tick(ctx)
	c.app.Obs.Inc(metrics.Ticks, outcome.String())
	return outcome
}

func (c *Controller) tick(ctx context.Context) Outcome {
	app := c.app
	now := app.Clock.Now()

	if app.Schedule.ResetDue(clock.MinuteOfDay(now)) && !c.startedWithin(now) {
		c.log.WithField("time", clock.Timestamp(now)).Warn("daily reset")
		app.Restarter.Restart("daily reset")
		return OutcomeReset
	}

	if !app.Schedule.Active(now.Hour()) {
		return OutcomeAsleep
	}

	sod := clock.SecondsOfDay(now)
	sampleDue := app.Schedule.SampleDue(sod)
	transmitDue := app.Schedule.TransmitDue(sod)
	if !sampleDue && !transmitDue {
		return OutcomeOffInterval
	}

	pulse, flush := c.measureRange(ctx, now)

	if !transmitDue {
		if flush {
			c.flush(ctx)
		}
		return OutcomeMeasured
	}

	if pulse != sample.Invalid {
		flush = app.Batch.Add(sample.New(now, sample.KeyRange, sensor.PulseToCentimeters(pulse))) || flush
	}
	if t, h, ok := app.Sensors.Climate(ctx); ok {
		flush = app.Batch.Add(sample.New(now, sample.KeyTemperature, t)) || flush
		flush = app.Batch.Add(sample.New(now, sample.KeyHygrometry, h)) || flush
	} else {
		c.log.Warn("climate reading skipped")
	}
	if v, ok := app.Sensors.Battery(ctx); ok {
		app.Batch.Add(sample.New(now, sample.KeyBattery, v))
	} else {
		c.log.Warn("battery reading skipped")
	}

	c.flush(ctx)

	if err := app.Refresher.Refresh(ctx); err != nil {
		c.log.WithError(err).Warn("parameter refresh failed")
	}
	return OutcomeTransmitted
}

// startedWithin reports whether the process started inside the minute of now,
// which is the case right after a daily reset.
func (c *Controller) startedWithin(now time.Time) bool {
	return c.app.Uptime() <= now.Sub(now.Truncate(time.Minute))
}

// measureRange samples the range, feeds the alerts and reports whether an
// urgent sample now waits in the batch.
func (c *Controller) measureRange(ctx context.Context, now time.Time) (uint32, bool) {
	app := c.app

	pulse, n := app.Median.Sample(func() (uint32, bool) {
		return app.Sensors.Range(ctx)
	})
	if pulse == sample.Invalid {
		app.Obs.Inc(metrics.InvalidRange)
		c.log.WithField("valid", n).Warn("invalid range")
		return pulse, app.Batch.AddUrgent(sample.New(now, sample.KeyInvalidRange, 0))
	}

	distance := sensor.PulseToCentimeters(pulse)
	c.log.WithFields(logrus.Fields{"distance": distance, "valid": n}).Debug("range measured")

	urgent := false
	for _, la := range c.alerts {
		if !la.alert.Enabled() || !la.alert.Test(distance) {
			continue
		}
		app.Obs.Inc(metrics.AlertTransitions, string(la.key))
		c.log.WithFields(logrus.Fields{
			"alert":    la.key,
			"distance": distance,
			"above":    la.alert.Status(),
		}).Info("alert transition")
		urgent = app.Batch.AddUrgent(sample.New(now, la.key, distance)) || urgent
	}
	return pulse, urgent
}

// flush sends the pending batch. On failure the link is reconnected and the
// flush tried once more; after that the batch waits for the next occasion.
func (c *Controller) flush(ctx context.Context) {
	app := c.app

	err := app.Batch.Flush(ctx)
	if err == nil || errors.Is(err, batch.ErrEmpty) {
		return
	}
	c.log.WithError(err).Warn("transmission failed, reconnecting")

	if err := app.Modem.Connect(ctx); err != nil {
		c.log.WithError(err).Warn("reconnect failed")
	}
	if err := app.Batch.Flush(ctx); err != nil && !errors.Is(err, batch.ErrEmpty) {
		c.log.WithError(err).WithField("pending", app.Batch.Len()).Error("retransmission failed, continuing")
	}
}

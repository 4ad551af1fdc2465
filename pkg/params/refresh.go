package params

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itohio/picolimno/pkg/alert"
	"github.com/itohio/picolimno/pkg/clock"
	"github.com/itohio/picolimno/pkg/metrics"
	"github.com/itohio/picolimno/pkg/schedule"
)

// Fetcher retrieves the raw parameter document and the server date.
type Fetcher interface {
	Parameters(ctx context.Context) (body []byte, date time.Time, err error)
}

// Refresher pulls parameters and mutates the live policy.
type Refresher struct {
	fetcher  Fetcher
	clock    clock.Clock
	alert1   *alert.Alert
	alert2   *alert.Alert
	schedule *schedule.Config
	log      logrus.FieldLogger
	obs      metrics.Observer
}

// NewRefresher wires a refresher to the live policy objects.
func NewRefresher(f Fetcher, c clock.Clock, alert1, alert2 *alert.Alert, sched *schedule.Config, log logrus.FieldLogger, obs metrics.Observer) *Refresher {
	if obs == nil {
		obs = metrics.Nop{}
	}
	return &Refresher{
		fetcher:  f,
		clock:    c,
		alert1:   alert1,
		alert2:   alert2,
		schedule: sched,
		log:      log.WithField("component", "params"),
		obs:      obs,
	}
}

// Refresh fetches the document, resynchronises the clock from the response
// date and applies the parameters. The clock follows any answer carrying a
// date, even an error status or a malformed body; nothing else changes then.
func (r *Refresher) Refresh(ctx context.Context) error {
	body, date, err := r.fetcher.Parameters(ctx)
	if !date.IsZero() {
		drift := r.clock.Now().Sub(date)
		r.clock.Set(date)
		r.log.WithField("drift", drift).Debug("clock synchronised")
	}
	if err != nil {
		r.obs.Inc(metrics.ParameterRefresh, "error")
		return fmt.Errorf("failed to fetch parameters: %w", err)
	}

	doc, err := Parse(body)
	if err != nil {
		r.obs.Inc(metrics.ParameterRefresh, "malformed")
		return err
	}
	for _, w := range doc.Warnings {
		r.log.WithField("key", w).Warn("ignored parameter")
	}

	r.Apply(doc)
	r.obs.Inc(metrics.ParameterRefresh, "ok")
	return nil
}

// Apply writes doc into the live policy. Alert states are preserved.
func (r *Refresher) Apply(doc Document) {
	if doc.Alert1 != nil {
		r.alert1.Configure(doc.Alert1.Threshold, doc.Alert1.Hysteresis)
	}
	if doc.Alert2 != nil {
		r.alert2.Configure(doc.Alert2.Threshold, doc.Alert2.Hysteresis)
	}
	r.schedule.StartHour = doc.StartHour
	r.schedule.StopHour = doc.StopHour
	r.schedule.ResetMinute = doc.ResetMinute

	r.log.WithFields(logrus.Fields{
		"alert1": r.alert1.String(),
		"alert2": r.alert2.String(),
		"start":  doc.StartHour,
		"stop":   doc.StopHour,
		"reset":  schedule.FormatReset(doc.ResetMinute),
	}).Info("parameters applied")
}

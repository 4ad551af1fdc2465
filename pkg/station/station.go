package station

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itohio/picolimno/pkg/remote"
	"github.com/itohio/picolimno/pkg/schedule"
)

// pollInterval bounds the time between two watchdog kicks while idle.
const pollInterval = 10 * time.Second

// Station ties the startup sequence, the alarm and the controller together.
type Station struct {
	app     *App
	startup *Startup
	ctrl    *Controller
	alarm   *schedule.Alarm
	log     logrus.FieldLogger
}

// New creates a station over an application context.
func New(app *App) *Station {
	app.setDefaults()
	return &Station{
		app:     app,
		startup: NewStartup(app),
		ctrl:    NewController(app),
		alarm:   schedule.NewAlarm(app.Clock, app.Schedule.Tick, app.Waker),
		log:     app.Log.WithField("component", "station"),
	}
}

// Controller returns the measurement cycle controller.
func (s *Station) Controller() *Controller { return s.ctrl }

// Startup returns the startup sequence.
func (s *Station) Startup() *Startup { return s.startup }

// Run performs the startup sequence and then serves wake-ups until ctx is
// cancelled. It returns ErrFatalStartup when the station cannot measure.
func (s *Station) Run(ctx context.Context) error {
	if err := s.startup.Run(ctx); err != nil {
		return err
	}
	s.log.Info("station running")

	alarmCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.alarm.Run(alarmCtx)

	for {
		if err := s.app.Watchdog.Kick(); err != nil {
			s.log.WithError(err).Warn("watchdog kick failed")
		}

		if ctx.Err() != nil {
			s.stop()
			return nil
		}

		if outcome := s.ctrl.Wake(ctx); outcome != OutcomeIdle {
			s.log.WithField("outcome", outcome).Debug("tick")
		}

		s.app.Waker.Wait(ctx, pollInterval)
	}
}

// stop pushes a best effort status on shutdown.
func (s *Station) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), s.app.StopTimeout)
	defer cancel()

	if err := pushStatus(ctx, s.app, remote.StateStopping); err != nil {
		s.log.WithError(err).Warn("stop status not sent")
	}
	s.log.Info("station stopped")
}

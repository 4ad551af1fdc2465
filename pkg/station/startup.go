package station

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/itohio/picolimno/pkg/clock"
	"github.com/itohio/picolimno/pkg/remote"
)

// ErrFatalStartup is returned when the station cannot start measuring.
var ErrFatalStartup = errors.New("fatal startup failure")

// IdentityRetries bounds the modem connections made to read the identity.
const IdentityRetries = 3

// State is a step of the startup sequence.
type State int

const (
	StateModem State = iota
	StateIdentity
	StateTimeSync
	StateStatus
	StateSensors
	StateSteady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateModem:
		return "modem"
	case StateIdentity:
		return "identity"
	case StateTimeSync:
		return "time-sync"
	case StateStatus:
		return "status"
	case StateSensors:
		return "sensors"
	case StateSteady:
		return "steady"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Startup brings the station from power-on to the steady state:
// modem, identity, time sync, status push, sensors.
type Startup struct {
	app   *App
	state State
	err   error
	log   logrus.FieldLogger

	connects  int
	timeSyncs int
}

// NewStartup creates the startup sequence in StateModem.
func NewStartup(app *App) *Startup {
	app.setDefaults()
	return &Startup{
		app:   app,
		state: StateModem,
		log:   app.Log.WithField("component", "startup"),
	}
}

// State returns the current state.
func (s *Startup) State() State { return s.state }

// Err returns the reason of StateFailed.
func (s *Startup) Err() error { return s.err }

// Run steps until the sequence is steady or has failed. The watchdog is
// kicked before every step.
func (s *Startup) Run(ctx context.Context) error {
	for s.state != StateSteady && s.state != StateFailed {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.kick()
		s.Step(ctx)
	}
	if s.state == StateFailed {
		return fmt.Errorf("%w: %v", ErrFatalStartup, s.err)
	}
	return nil
}

// Step performs the action of the current state and moves to the next one.
func (s *Startup) Step(ctx context.Context) State {
	from := s.state
	switch s.state {
	case StateModem:
		s.state = s.connect(ctx)
	case StateIdentity:
		s.state = s.identity(ctx)
	case StateTimeSync:
		s.state = s.timeSync(ctx)
	case StateStatus:
		s.state = s.status(ctx)
	case StateSensors:
		s.state = s.sensors(ctx)
	}
	if from != s.state {
		s.log.WithFields(logrus.Fields{"from": from, "to": s.state}).Debug("startup transition")
	}
	return s.state
}

func (s *Startup) connect(ctx context.Context) State {
	s.connects++
	if err := s.app.Modem.Connect(ctx); err != nil {
		s.log.WithError(err).WithField("attempt", s.connects).Warn("modem connection failed, continuing")
	}
	return StateIdentity
}

// identity reads the IMEI. A failure goes back to the modem once per retry;
// without an identity nothing can be reported.
func (s *Startup) identity(ctx context.Context) State {
	imei, err := s.app.Modem.IMEI(ctx)
	if err != nil {
		if s.connects < IdentityRetries {
			s.log.WithError(err).Warn("cannot read identity, reconnecting")
			return StateModem
		}
		s.err = fmt.Errorf("no device identity: %w", err)
		return StateFailed
	}
	s.app.Uplink.SetIMEI(imei)
	s.log.WithField("imei", imei).Info("device identity")
	return StateTimeSync
}

// timeSync refreshes parameters, which also sets the clock from the server
// date, until the clock is plausible or retries run out.
func (s *Startup) timeSync(ctx context.Context) State {
	s.timeSyncs++
	if err := s.app.Refresher.Refresh(ctx); err != nil {
		s.log.WithError(err).Warn("parameter refresh failed")
	}

	now := s.app.Clock.Now()
	if clock.Consistent(now, s.app.BuildDate) {
		s.log.WithField("time", clock.Timestamp(now)).Info("clock synchronised")
		return StateStatus
	}
	if s.timeSyncs < s.app.ClockRetries {
		return StateTimeSync
	}
	s.log.WithFields(logrus.Fields{
		"time":  clock.Timestamp(now),
		"build": clock.Timestamp(s.app.BuildDate),
	}).Warn("clock predates build, continuing with best effort time")
	return StateStatus
}

func (s *Startup) status(ctx context.Context) State {
	if err := pushStatus(ctx, s.app, remote.StateStarting); err != nil {
		s.log.WithError(err).Warn("status push failed, reconnecting")
		s.kick()
		if err := s.app.Modem.Connect(ctx); err != nil {
			s.log.WithError(err).Warn("reconnect failed")
		}
		s.kick()
		if err := pushStatus(ctx, s.app, remote.StateStarting); err != nil {
			s.log.WithError(err).Error("status push failed, continuing")
		}
	}
	return StateSensors
}

func (s *Startup) sensors(ctx context.Context) State {
	if err := s.app.Sensors.Begin(ctx); err != nil {
		s.err = fmt.Errorf("sensors: %w", err)
		s.log.WithError(err).Error("sensor initialisation failed")
		return StateFailed
	}
	return StateSteady
}

func (s *Startup) kick() {
	if err := s.app.Watchdog.Kick(); err != nil {
		s.log.WithError(err).Warn("watchdog kick failed")
	}
}

func pushStatus(ctx context.Context, app *App, state string) error {
	ip, err := app.Modem.LocalIP(ctx)
	if err != nil {
		app.Log.WithError(err).Debug("no local address")
	}
	return app.Uplink.SendStatus(ctx, state, ip, app.Clock.Now())
}

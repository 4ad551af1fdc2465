package station

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Restarter performs the hard device restart. It does not return in
// production.
type Restarter interface {
	Restart(reason string)
}

// ExitCodeRestart is the exit status of a requested restart. The service
// manager is expected to start the agent again.
const ExitCodeRestart = 3

// ExitRestarter restarts by terminating the process without cleanup.
type ExitRestarter struct {
	Log  logrus.FieldLogger
	exit func(int)
}

// NewExitRestarter creates a restarter that calls os.Exit.
func NewExitRestarter(log logrus.FieldLogger) *ExitRestarter {
	return &ExitRestarter{Log: log, exit: os.Exit}
}

// Restart exits with ExitCodeRestart.
func (r *ExitRestarter) Restart(reason string) {
	r.Log.WithField("reason", reason).Warn("restarting")
	r.exit(ExitCodeRestart)
}

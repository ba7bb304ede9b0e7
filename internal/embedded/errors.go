package embedded

import (
	"errors"
	"fmt"

	"github.com/concave-dev/ensemble/internal/quorum"
)

// ErrStartupFailed is wrapped by every error returned from Start.
var ErrStartupFailed = errors.New("embedded node startup failed")

// Startup stages reported in StartupError.
const (
	StageRetention = "retention"
	StageTxnLog    = "txnlog"
	StageNode      = "node"
	StageFactory   = "factory"
)

// StartupError describes the stage at which Start gave up.
type StartupError struct {
	Mode  quorum.Mode
	Stage string
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("failed to start %s node at stage %s: %v", e.Mode, e.Stage, e.Err)
}

// Unwrap exposes both ErrStartupFailed and the cause.
func (e *StartupError) Unwrap() []error {
	return []error{ErrStartupFailed, e.Err}
}

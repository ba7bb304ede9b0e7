package embedded

import (
	"context"

	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/metrics"
	"github.com/looplab/fsm"
)

// Lifecycle states.
const (
	StateStopped      = "stopped"
	StateStarting     = "starting"
	StateRunning      = "running"
	StateShuttingDown = "shutting_down"
)

// Lifecycle events.
const (
	eventStart   = "start"
	eventStarted = "started"
	eventFailed  = "failed"
	eventStop    = "stop"
	eventStopped = "stopped"
)

func newLifecycle() *fsm.FSM {
	return fsm.NewFSM(
		StateStopped,
		fsm.Events{
			{Name: eventStart, Src: []string{StateStopped}, Dst: StateStarting},
			{Name: eventStarted, Src: []string{StateStarting}, Dst: StateRunning},
			{Name: eventFailed, Src: []string{StateStarting}, Dst: StateStopped},
			{Name: eventStop, Src: []string{StateRunning}, Dst: StateShuttingDown},
			{Name: eventStopped, Src: []string{StateShuttingDown}, Dst: StateStopped},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				metrics.LifecycleTransitionsTotal.WithLabelValues(e.Src, e.Dst).Inc()
				logging.Debug("Embedded node lifecycle %s -> %s", e.Src, e.Dst)
			},
		},
	)
}

// transition fires event. Transitions are driven under the server mutex, so
// an invalid one is a programming error and only logged.
func (s *Server) transition(event string) {
	if err := s.lifecycle.Event(context.Background(), event); err != nil {
		logging.Error("Embedded node lifecycle event %s rejected in state %s: %v", event, s.lifecycle.Current(), err)
	}
}

// Package node runs the replicated data view of an embedded coordination
// node on hashicorp/raft.
//
// A Server is a standalone node: one voter on an in-memory transport that
// elects itself. A Peer is one member of a multi-node ensemble, talking to the
// other members over TCP on its quorum port. Both replicate a DataTree and
// keep their raft state in a shared txnlog.Log, of which they hold their own
// reference while running.
package node

import (
	"context"
	"fmt"
	"time"

	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/txnlog"
	"github.com/concave-dev/ensemble/internal/validate"
	"github.com/hashicorp/raft"
)

// ServerConfig configures a standalone node.
type ServerConfig struct {
	ID                uint64
	TickTime          time.Duration
	MinSessionTimeout time.Duration
	MaxSessionTimeout time.Duration
	Log               *txnlog.Log
}

// Server is a standalone node.
type Server struct {
	*replica
}

// NewServer validates cfg and prepares a standalone node. Nothing runs until
// Start.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Log == nil {
		return nil, fmt.Errorf("transaction log is required")
	}
	if err := validate.ValidatePositiveTimeout(cfg.TickTime, "tick time"); err != nil {
		return nil, err
	}
	if cfg.MinSessionTimeout > cfg.MaxSessionTimeout {
		return nil, fmt.Errorf("min session timeout %s exceeds max session timeout %s", cfg.MinSessionTimeout, cfg.MaxSessionTimeout)
	}
	return &Server{replica: newReplica(cfg.ID, cfg.TickTime, cfg.MinSessionTimeout, cfg.MaxSessionTimeout, cfg.Log)}, nil
}

// Start launches raft and blocks until this node leads or ctx is done. On
// failure everything acquired is released again.
func (s *Server) Start(ctx context.Context) error {
	if s.IsRunning() {
		return nil
	}

	addr, transport := raft.NewInmemTransport("")
	configuration := raft.Configuration{
		Servers: []raft.Server{{
			Suffrage: raft.Voter,
			ID:       raft.ServerID(s.ID()),
			Address:  addr,
		}},
	}

	if err := s.launch(transport, StandaloneTiming(s.tick), configuration); err != nil {
		return err
	}

	if err := s.waitForLeadership(ctx); err != nil {
		if stopErr := s.stop(); stopErr != nil {
			logging.Warn("Error stopping standalone node after failed start: %v", stopErr)
		}
		return err
	}

	logging.Success("Standalone node %s is serving as leader", s.ID())
	return nil
}

func (s *Server) waitForLeadership(ctx context.Context) error {
	poll := s.tick / 4
	if poll < 5*time.Millisecond {
		poll = 5 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if s.IsLeader() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for leadership: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Shutdown stops the node. It is safe to call on a node that never started.
func (s *Server) Shutdown() error {
	if !s.IsRunning() {
		return nil
	}
	logging.Info("Stopping standalone node %s", s.ID())
	return s.stop()
}

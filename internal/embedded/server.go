// Package embedded manages the lifecycle of a coordination node running
// inside the host process.
//
// LIFECYCLE:
// A Server moves through stopped, starting, running and shutting_down,
// tracked by a looplab/fsm state machine. Start and Shutdown serialize on
// one mutex, so a second Start on a running server and a Shutdown on a
// stopped one do nothing.
//
// STARTUP:
// Create reconciles the host's security settings into the native property
// file once. Start then picks the mode from the membership:
//
//   - Standalone: the transaction log is acquired with up to ten attempts
//     50ms apart, retrying only the data directory creation race. A single
//     node server is started and waits until it leads.
//   - Distributed: the transaction log is acquired once, the quorum port is
//     bound and the ensemble peer is started. Leader election continues in
//     the background.
//
// In both modes the client connection factory binds its port before the node
// starts and serves the client API once the node runs. With a purge interval
// configured, the snapshot retention task starts first.
//
// SHUTDOWN:
// Resources are released in a fixed order: transaction log handle, client
// listener, peer or server, retention task. The node holds its own
// reference on the transaction log, so releasing the manager's handle first
// does not pull the stores from under a running node. Release failures are
// logged and never stop the remaining steps. A failed Start releases what it
// acquired in the same order.
package embedded

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/concave-dev/ensemble/internal/cnxn"
	"github.com/concave-dev/ensemble/internal/config"
	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/metrics"
	"github.com/concave-dev/ensemble/internal/node"
	"github.com/concave-dev/ensemble/internal/purge"
	"github.com/concave-dev/ensemble/internal/quorum"
	"github.com/concave-dev/ensemble/internal/reconcile"
	"github.com/concave-dev/ensemble/internal/retry"
	"github.com/concave-dev/ensemble/internal/txnlog"
	"github.com/looplab/fsm"
)

// startupPolicy bounds transaction log acquisition in standalone mode.
var startupPolicy = retry.Policy{Attempts: config.StartupAttempts, Backoff: config.StartupBackoff}

// Server is an embedded coordination node.
type Server struct {
	cfg  *quorum.Config
	mode quorum.Mode

	mu        sync.Mutex
	lifecycle *fsm.FSM

	log        *txnlog.Log
	factory    cnxn.Factory
	peer       *node.Peer
	standalone *node.Server
	retention  *purge.Task

	// replaced in tests
	openLog    func(txnlog.Options) (*txnlog.Log, error)
	newFactory func(id string, tls quorum.TLS) (cnxn.Factory, error)
	released   func(resource string)
}

// Create reconciles host into the property file at path and returns a
// stopped server. An empty path means no embedded node is configured and
// returns nil without error. A missing or unreadable file fails with
// quorum.ErrInvalidNativeConfig.
func Create(host reconcile.HostSettings, path string, opts ...reconcile.Option) (*Server, error) {
	if path == "" {
		logging.Debug("No embedded node property file configured")
		return nil, nil
	}

	cfg, err := reconcile.Reconcile(host, path, opts...)
	if err != nil {
		return nil, err
	}
	return newServer(cfg), nil
}

func newServer(cfg *quorum.Config) *Server {
	return &Server{
		cfg:        cfg,
		mode:       quorum.SelectMode(cfg),
		lifecycle:  newLifecycle(),
		openLog:    txnlog.Open,
		newFactory: cnxn.New,
		released:   func(string) {},
	}
}

// Config returns the reconciled configuration. It must not be modified.
func (s *Server) Config() *quorum.Config { return s.cfg }

// Mode returns how the node runs.
func (s *Server) Mode() quorum.Mode { return s.mode }

// State returns the current lifecycle state.
func (s *Server) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle.Current()
}

// ClientAddr returns the address of the client listener, nil when none is
// bound.
func (s *Server) ClientAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.factory == nil {
		return nil
	}
	return s.factory.Addr()
}

// Node returns the running node, nil when stopped.
func (s *Server) Node() cnxn.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.peer != nil:
		return s.peer
	case s.standalone != nil:
		return s.standalone
	}
	return nil
}

// Start launches the node and blocks until it is ready: leading in
// standalone mode, running in distributed mode. Starting a running server
// does nothing. Cancelling ctx interrupts the startup; the returned error
// then wraps both ErrStartupFailed and the context error.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lifecycle.Current() != StateStopped {
		logging.Debug("Embedded node already %s", s.lifecycle.Current())
		return nil
	}
	s.transition(eventStart)
	logging.Info("Starting embedded %s node from %s", s.mode, s.cfg.DataDir)

	stage, err := s.startRetention()
	if err == nil {
		if s.mode == quorum.Distributed {
			stage, err = s.startDistributed()
		} else {
			stage, err = s.startStandalone(ctx)
		}
	}

	if err != nil {
		s.release()
		s.transition(eventFailed)
		metrics.StartupFailuresTotal.WithLabelValues(s.mode.String(), stage).Inc()
		startErr := &StartupError{Mode: s.mode, Stage: stage, Err: err}
		logging.Error("%v", startErr)
		return startErr
	}

	s.transition(eventStarted)
	logging.Success("Embedded %s node %s running", s.mode, s.nodeID())
	return nil
}

func (s *Server) startRetention() (string, error) {
	if s.cfg.PurgeInterval <= 0 {
		return "", nil
	}
	task, err := purge.New(purge.Config{
		DataDir:         s.cfg.DataDir,
		SnapRetainCount: s.cfg.SnapRetainCount,
		Interval:        s.cfg.PurgeInterval,
	})
	if err != nil {
		return StageRetention, err
	}
	task.Start()
	s.retention = task
	return "", nil
}

func (s *Server) startStandalone(ctx context.Context) (string, error) {
	opts := txnlog.OptionsFromConfig(s.cfg)
	err := retry.Do(ctx, startupPolicy, txnlog.IsDatadirRace, func(context.Context) error {
		l, err := s.openLog(opts)
		if err != nil {
			metrics.TxnLogOpenAttemptsTotal.WithLabelValues("failure").Inc()
			if txnlog.IsDatadirRace(err) {
				logging.Warn("Data directory appeared while creating it, retrying: %v", err)
			}
			return err
		}
		metrics.TxnLogOpenAttemptsTotal.WithLabelValues("success").Inc()
		s.log = l
		return nil
	})
	if err != nil {
		return StageTxnLog, err
	}

	server, err := node.NewServer(node.ServerConfig{
		ID:                standaloneID(s.cfg),
		TickTime:          s.cfg.TickTime,
		MinSessionTimeout: s.cfg.MinSessionTimeout,
		MaxSessionTimeout: s.cfg.MaxSessionTimeout,
		Log:               s.log,
	})
	if err != nil {
		return StageNode, err
	}

	if err := s.configureFactory(); err != nil {
		return StageFactory, err
	}

	s.standalone = server
	if err := server.Start(ctx); err != nil {
		return StageNode, err
	}
	if err := s.startupFactory(server); err != nil {
		return StageFactory, err
	}
	return "", nil
}

func (s *Server) startDistributed() (string, error) {
	l, err := s.openLog(txnlog.OptionsFromConfig(s.cfg))
	if err != nil {
		metrics.TxnLogOpenAttemptsTotal.WithLabelValues("failure").Inc()
		return StageTxnLog, err
	}
	metrics.TxnLogOpenAttemptsTotal.WithLabelValues("success").Inc()
	s.log = l

	if err := s.configureFactory(); err != nil {
		return StageFactory, err
	}

	peer, err := node.NewPeer(node.PeerConfig{
		ID:                   s.cfg.ServerID,
		TickTime:             s.cfg.TickTime,
		MinSessionTimeout:    s.cfg.MinSessionTimeout,
		MaxSessionTimeout:    s.cfg.MaxSessionTimeout,
		InitLimit:            s.cfg.InitLimit,
		SyncLimit:            s.cfg.SyncLimit,
		Servers:              s.cfg.Servers,
		PeerType:             s.cfg.PeerType,
		QuorumListenOnAllIPs: s.cfg.QuorumListenOnAllIPs,
		Log:                  s.log,
	})
	if err != nil {
		return StageNode, err
	}

	s.peer = peer
	if err := peer.Start(); err != nil {
		return StageNode, err
	}
	if err := s.startupFactory(peer); err != nil {
		return StageFactory, err
	}
	return "", nil
}

// configureFactory binds the client listener, preferring the secure address.
// Without any client address the node serves no clients.
func (s *Server) configureFactory() error {
	addr, secure := s.cfg.SecureClientPortAddress, true
	if addr == nil {
		addr, secure = s.cfg.ClientPortAddress, false
	}
	if addr == nil {
		logging.Warn("No client port configured, embedded node will not accept client connections")
		return nil
	}

	factory, err := s.newFactory(s.cfg.ConnectionFactory, s.cfg.TLS)
	if err != nil {
		return err
	}
	if err := factory.Configure(addr, s.cfg.MaxClientCnxns, secure); err != nil {
		return err
	}
	s.factory = factory
	return nil
}

func (s *Server) startupFactory(n cnxn.Node) error {
	if s.factory == nil {
		return nil
	}
	return s.factory.Startup(n)
}

// standaloneID is the sole declared server's id, the configured id, or 1.
func standaloneID(cfg *quorum.Config) uint64 {
	if len(cfg.Servers) == 1 {
		return cfg.Servers[0].ID
	}
	if cfg.ServerID != 0 {
		return cfg.ServerID
	}
	return 1
}

func (s *Server) nodeID() string {
	switch {
	case s.peer != nil:
		return s.peer.ID()
	case s.standalone != nil:
		return s.standalone.ID()
	}
	return ""
}

// Shutdown stops the node and releases every resource. Shutting down a
// stopped server does nothing. Errors are logged, not returned.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lifecycle.Current() != StateRunning {
		return
	}
	s.transition(eventStop)
	logging.Info("Shutting down embedded %s node %s", s.mode, s.nodeID())

	s.release()

	s.transition(eventStopped)
	logging.Success("Embedded node stopped")
}

// release frees whatever is held, in order: transaction log handle, client
// listener, peer, server, retention task.
func (s *Server) release() {
	if s.log != nil {
		if err := s.log.Close(); err != nil {
			logging.Warn("Error closing transaction log: %v", err)
		}
		s.log = nil
		s.released("txnlog")
	}

	if s.factory != nil {
		s.factory.Shutdown()
		s.factory = nil
		s.released("factory")
	}

	if s.peer != nil {
		if s.peer.IsRunning() {
			if err := s.peer.Shutdown(); err != nil {
				logging.Warn("Error stopping ensemble peer: %v", err)
			}
		}
		s.peer = nil
		s.released("peer")
	}

	if s.standalone != nil {
		if s.standalone.IsRunning() {
			if err := s.standalone.Shutdown(); err != nil {
				logging.Warn("Error stopping standalone server: %v", err)
			}
		}
		s.standalone = nil
		s.released("server")
	}

	if s.retention != nil {
		s.retention.Shutdown()
		s.retention = nil
		s.released("retention")
	}
}

// IsStartupFailure reports whether err came from Start.
func IsStartupFailure(err error) bool {
	return errors.Is(err, ErrStartupFailed)
}

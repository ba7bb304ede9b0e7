// Package daemon runs the ensembled host process: it builds the embedded
// node from the resolved host configuration, starts it and shuts it down on
// SIGINT or SIGTERM.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/concave-dev/ensemble/cmd/ensembled/config"
	"github.com/concave-dev/ensemble/internal/embedded"
	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/quorum"
	"github.com/concave-dev/ensemble/internal/version"
)

// Run starts the daemon and blocks until a shutdown signal arrives.
func Run() error {
	logging.SetLevel(config.Global.LogLevel)
	logging.Info("Starting ensembled v%s", version.EnsembledVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logging.Info("Received signal: %v", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return serve(ctx, config.Global)
}

// serve runs the embedded node described by cfg until ctx is done. A
// signal during startup interrupts it.
func serve(ctx context.Context, cfg config.Config) error {
	server, err := embedded.Create(cfg.HostSettings(), cfg.PropertiesFile)
	if err != nil {
		logging.Error("Failed to create embedded node: %v", err)
		return fmt.Errorf("failed to create embedded node: %w", err)
	}
	if server == nil {
		logging.Warn("No embedded properties file configured, embedded node disabled")
		<-ctx.Done()
		logging.Success("ensembled shutdown completed")
		return nil
	}

	logging.Info("Starting embedded node in %s mode", server.Mode())
	if err := server.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logging.Warn("Startup interrupted by shutdown signal")
			return nil
		}
		logging.Error("Embedded node failed to start: %v", err)
		return err
	}

	logEndpoints(server)
	logging.Success("ensembled started successfully")
	logging.Info("Daemon running... Press Ctrl+C to shutdown")

	<-ctx.Done()

	logging.Info("Initiating graceful shutdown...")
	server.Shutdown()
	logging.Success("ensembled shutdown completed")
	return nil
}

func logEndpoints(server *embedded.Server) {
	cfg := server.Config()
	if addr := server.ClientAddr(); addr != nil {
		scheme := "http"
		if cfg.ConnectionFactory == quorum.FactoryTLS {
			scheme = "https"
		}
		logging.Info("Client API: %s://%s/v1", scheme, addr)
	} else {
		logging.Warn("Embedded node has no client listener")
	}

	if node := server.Node(); node != nil {
		leaderID, leaderAddr := node.Leader()
		logging.Info("Node %s state=%s leader=%s (%s)", node.ID(), node.RaftState(), leaderID, leaderAddr)
	}
	logging.Info("Data directory: %s", cfg.DataDir)
}

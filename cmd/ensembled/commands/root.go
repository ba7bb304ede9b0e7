package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/concave-dev/ensemble/cmd/ensembled/config"
	"github.com/concave-dev/ensemble/cmd/ensembled/daemon"
	"github.com/concave-dev/ensemble/cmd/ensembled/utils"
	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/version"
	"github.com/spf13/cobra"
)

// Global variable to track log file handle for cleanup
var logFileHandle *os.File

// CleanupLogFile closes the log file handle if it exists
func CleanupLogFile() {
	if logFileHandle != nil {
		if err := logFileHandle.Close(); err != nil {
			// The log file itself is being closed, so report on stderr
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
		logFileHandle = nil
	}
}

// Root command for the ensemble daemon
var RootCmd = &cobra.Command{
	Use:   "ensembled",
	Short: "Host daemon that runs an embedded coordination node",
	Long: `ensembled hosts an embedded coordination node driven by a native property file.

The node runs standalone or as a member of a replicated ensemble, depending on
how many servers the property file lists. Host TLS settings and the client
connection string are reconciled into the node's configuration before start.`,
	Version:      version.EnsembledVersion,
	SilenceUsage: true, // Don't show usage on errors
	Example: `  # Standalone node from a property file
  ensembled --properties=/etc/ensemble/zoo.cfg

  # Secure client port derived from the connection string
  ensembled --properties=zoo.cfg --secure --connect-string=127.0.0.1:2288 \
    --keystore=node.pem --keystore-passwd=secret \
    --truststore=ca.pem --truststore-passwd=secret

  # Host settings from a YAML file
  ensembled --config=/etc/ensemble/host.yaml`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.DisplayLogo(version.EnsembledVersion)
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		CheckExplicitFlags(cmd)

		if config.Global.IsExplicitlySet(config.LogFileField) && config.Global.LogFile != "" {
			if err := openLogFile(config.Global.LogFile); err != nil {
				return err
			}
		}

		// Apply the flag level before config initialization logs anything
		logging.SetLevel(config.Global.LogLevel)
		if err := config.InitializeConfig(); err != nil {
			CleanupLogFile()
			return err
		}
		// The host file or DEBUG may have changed the level
		logging.SetLevel(config.Global.LogLevel)

		// A log file named only in the host file is honored too
		if logFileHandle == nil && config.Global.LogFile != "" {
			if err := openLogFile(config.Global.LogFile); err != nil {
				return err
			}
		}

		if err := config.ValidateConfig(); err != nil {
			CleanupLogFile()
			return err
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		defer CleanupLogFile()
		return daemon.Run()
	},
}

func openLogFile(path string) error {
	logDir := filepath.Dir(path)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	var err error
	logFileHandle, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logging.SetOutput(logFileHandle)
	return nil
}

// SetupCommands initializes all commands and their relationships
func SetupCommands() {
	SetupFlags(RootCmd)
	setupStatusCommand(RootCmd)
}

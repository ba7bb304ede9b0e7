// Package config provides common default configuration values shared across
// ensemble components (native config parsing, reconciliation, connection
// factories, retention). This centralizes the defaults an operator would
// otherwise have to spell out in every property file.
package config

import "time"

const (
	// DefaultBindAddr is the default bind address for client and quorum listeners
	// Using 0.0.0.0 allows binding to all available network interfaces
	DefaultBindAddr = "0.0.0.0"

	// DefaultLogLevel is the default log level for all components
	DefaultLogLevel = "INFO"

	// MinSecureClientPort is the lowest port considered when a secure client
	// port has to be discovered. Ports below it are left to the host application.
	MinSecureClientPort = 2288

	// DefaultTickTime is the basic time unit of the coordination engine
	DefaultTickTime = 2000 * time.Millisecond

	// DefaultInitLimit is the number of ticks a follower may take to connect and sync
	DefaultInitLimit = 10

	// DefaultSyncLimit is the number of ticks a follower may lag behind the leader
	DefaultSyncLimit = 5

	// DefaultMaxClientCnxns limits concurrent client connections per listener
	DefaultMaxClientCnxns = 60

	// DefaultElectionAlg is the only supported election algorithm identifier
	DefaultElectionAlg = 3

	// DefaultSnapRetainCount is both the default and the floor for retained snapshots
	DefaultSnapRetainCount = 3

	// StartupAttempts bounds transaction log acquisition in standalone mode
	StartupAttempts = 10

	// StartupBackoff is the fixed pause between transaction log attempts
	StartupBackoff = 50 * time.Millisecond
)

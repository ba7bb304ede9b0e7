// Package quorum turns the native property file of an embedded coordination
// node into a validated Config and decides whether the node runs standalone
// or as a member of an ensemble.
//
// The property file uses the familiar zoo.cfg vocabulary (dataDir, tickTime,
// server.N, secureClientPort, ssl.keyStore.location, ...). Reading the file is
// delegated to magiconair/properties; the flat key/value map is decoded with
// mapstructure, completed with defaults through mergo and checked with
// go-playground/validator.
//
// A Config is immutable once handed to the lifecycle manager. Every parse
// failure is a *ConfigError wrapping ErrInvalidNativeConfig.
package quorum

import (
	"net"
	"strconv"
	"time"
)

// PeerType is the role of an ensemble member.
type PeerType string

const (
	// Participant members vote in elections and count towards quorum.
	Participant PeerType = "participant"
	// Observer members replicate the log without voting.
	Observer PeerType = "observer"
)

// Server is one server.N membership entry.
type Server struct {
	ID           uint64
	Host         string
	QuorumPort   int
	ElectionPort int // 0 when absent; raft elects over the quorum port
	Type         PeerType
}

// QuorumAddr returns the "host:port" address peers use to reach this member.
func (s Server) QuorumAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.QuorumPort))
}

// TLS holds the key store and trust store settings of the node.
type TLS struct {
	KeyStoreLocation   string
	KeyStorePassword   string
	KeyStoreType       string
	TrustStoreLocation string
	TrustStorePassword string
	TrustStoreType     string
}

// Enabled reports whether all four key and trust store values are present.
func (t TLS) Enabled() bool {
	return t.KeyStoreLocation != "" && t.KeyStorePassword != "" &&
		t.TrustStoreLocation != "" && t.TrustStorePassword != ""
}

// Config is the reconciled, validated configuration of an embedded node.
type Config struct {
	DataDir    string
	DataLogDir string

	TickTime          time.Duration
	MinSessionTimeout time.Duration
	MaxSessionTimeout time.Duration
	InitLimit         int
	SyncLimit         int
	ElectionAlg       int

	// ServerID is this member's id, read from dataDir/myid in an ensemble.
	ServerID             uint64
	Servers              []Server // sorted by ID
	PeerType             PeerType
	SyncEnabled          bool
	QuorumListenOnAllIPs bool

	TLS TLS

	// ClientPortAddress is nil when no plaintext client port is configured.
	ClientPortAddress *net.TCPAddr
	// SecureClientPortAddress is nil when no secure client port is configured.
	SecureClientPortAddress *net.TCPAddr
	ConnectionFactory       string
	MaxClientCnxns          int

	SnapRetainCount int
	// PurgeInterval is zero when periodic retention is disabled.
	PurgeInterval time.Duration
	TxnLogBackend string
}

// Self returns this member's own membership entry.
func (c *Config) Self() (Server, bool) {
	for _, s := range c.Servers {
		if s.ID == c.ServerID {
			return s, true
		}
	}
	return Server{}, false
}

// Participants returns the number of voting members.
func (c *Config) Participants() int {
	n := 0
	for _, s := range c.Servers {
		if s.Type == Participant {
			n++
		}
	}
	return n
}

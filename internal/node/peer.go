package node

import (
	"fmt"
	"net"
	"time"

	"github.com/concave-dev/ensemble/internal/config"
	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/netutil"
	"github.com/concave-dev/ensemble/internal/quorum"
	"github.com/concave-dev/ensemble/internal/txnlog"
	"github.com/concave-dev/ensemble/internal/validate"
	"github.com/hashicorp/raft"
)

const (
	// transportMaxPool is the number of idle connections kept per peer.
	transportMaxPool = 3
	// transportTimeout bounds a single quorum RPC.
	transportTimeout = 10 * time.Second
)

// PeerConfig configures an ensemble member.
type PeerConfig struct {
	ID                   uint64
	TickTime             time.Duration
	MinSessionTimeout    time.Duration
	MaxSessionTimeout    time.Duration
	InitLimit            int
	SyncLimit            int
	Servers              []quorum.Server
	PeerType             quorum.PeerType
	QuorumListenOnAllIPs bool
	Log                  *txnlog.Log
}

// Peer is one member of a multi-node ensemble.
type Peer struct {
	*replica
	self    quorum.Server
	servers []quorum.Server
	timing  Timing
	onAll   bool
}

// NewPeer validates cfg and prepares an ensemble member. Nothing is bound
// until Start.
func NewPeer(cfg PeerConfig) (*Peer, error) {
	if cfg.Log == nil {
		return nil, fmt.Errorf("transaction log is required")
	}
	if err := validate.ValidatePositiveTimeout(cfg.TickTime, "tick time"); err != nil {
		return nil, err
	}
	if cfg.InitLimit < 1 || cfg.SyncLimit < 1 {
		return nil, fmt.Errorf("init limit and sync limit must be positive")
	}

	var self quorum.Server
	found := false
	for _, s := range cfg.Servers {
		if s.ID == cfg.ID {
			self, found = s, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("server id %d is not a member of the ensemble", cfg.ID)
	}
	if cfg.PeerType != "" && cfg.PeerType != self.Type {
		return nil, fmt.Errorf("peer type %s does not match membership role %s", cfg.PeerType, self.Type)
	}

	return &Peer{
		replica: newReplica(cfg.ID, cfg.TickTime, cfg.MinSessionTimeout, cfg.MaxSessionTimeout, cfg.Log),
		self:    self,
		servers: cfg.Servers,
		timing:  EnsembleTiming(cfg.TickTime, cfg.InitLimit, cfg.SyncLimit),
		onAll:   cfg.QuorumListenOnAllIPs,
	}, nil
}

// Start binds the quorum port and launches raft. It returns once raft runs;
// leader election continues in the background.
func (p *Peer) Start() error {
	if p.IsRunning() {
		return nil
	}

	advertise, err := net.ResolveTCPAddr("tcp", p.self.QuorumAddr())
	if err != nil {
		return fmt.Errorf("failed to resolve quorum address %s: %w", p.self.QuorumAddr(), err)
	}

	bindHost := p.self.Host
	if p.onAll {
		bindHost = config.DefaultBindAddr
	}
	listener, err := netutil.NewPortBinder().BindTCP(bindHost, p.self.QuorumPort)
	if err != nil {
		return fmt.Errorf("failed to bind quorum port: %w", err)
	}

	stream := netutil.NewRaftStreamLayer(listener, advertise)
	logWriter := logging.NewLevelWriter("DEBUG", "transport")
	transport := raft.NewNetworkTransport(stream, transportMaxPool, transportTimeout, logWriter)

	if err := p.launch(transport, p.timing, p.configuration()); err != nil {
		return err
	}

	logging.Info("Ensemble peer %s (%s) listening for quorum traffic on %s, advertising %s",
		p.ID(), p.self.Type, listener.Addr(), advertise)
	return nil
}

// configuration lists every member; observers join as non-voters.
func (p *Peer) configuration() raft.Configuration {
	servers := make([]raft.Server, 0, len(p.servers))
	for _, s := range p.servers {
		suffrage := raft.Voter
		if s.Type == quorum.Observer {
			suffrage = raft.Nonvoter
		}
		servers = append(servers, raft.Server{
			Suffrage: suffrage,
			ID:       raft.ServerID(fmt.Sprint(s.ID)),
			Address:  raft.ServerAddress(s.QuorumAddr()),
		})
	}
	return raft.Configuration{Servers: servers}
}

// Self returns this member's membership entry.
func (p *Peer) Self() quorum.Server { return p.self }

// Shutdown hands leadership to another voter when leading, then stops raft.
// It is safe to call on a peer that never started.
func (p *Peer) Shutdown() error {
	rf := p.current()
	if rf == nil {
		return nil
	}

	logging.Info("Stopping ensemble peer %s", p.ID())
	if rf.State() == raft.Leader && p.voters() > 1 {
		if err := rf.LeadershipTransfer().Error(); err != nil {
			logging.Warn("Leadership transfer failed: %v", err)
		} else {
			logging.Success("Leadership transferred before shutdown")
		}
	}
	return p.stop()
}

func (p *Peer) voters() int {
	n := 0
	for _, s := range p.servers {
		if s.Type == quorum.Participant {
			n++
		}
	}
	return n
}

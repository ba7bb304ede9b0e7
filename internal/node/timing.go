package node

import (
	"io"
	"strconv"
	"time"

	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/hashicorp/raft"
)

// minRaftTimeout is the smallest timeout raft accepts for heartbeats,
// elections and leader leases.
const minRaftTimeout = 10 * time.Millisecond

// Timing holds the raft timeouts derived from the tick time.
type Timing struct {
	Heartbeat   time.Duration
	Election    time.Duration
	LeaderLease time.Duration
}

// EnsembleTiming derives raft timeouts for an ensemble member: followers may
// lag syncLimit ticks before a new election, a fresh member gets initLimit
// ticks to catch up and the leader lease is one tick.
func EnsembleTiming(tick time.Duration, initLimit, syncLimit int) Timing {
	heartbeat := atLeast(time.Duration(syncLimit) * tick)
	election := atLeast(time.Duration(initLimit) * tick)
	if election < heartbeat {
		election = heartbeat
	}
	return Timing{
		Heartbeat:   heartbeat,
		Election:    election,
		LeaderLease: min(atLeast(tick), heartbeat),
	}
}

// StandaloneTiming derives raft timeouts for a single node, which only has
// itself to wait for.
func StandaloneTiming(tick time.Duration) Timing {
	t := atLeast(tick)
	return Timing{Heartbeat: t, Election: t, LeaderLease: t}
}

func atLeast(d time.Duration) time.Duration {
	if d < minRaftTimeout {
		return minRaftTimeout
	}
	return d
}

// raftConfig builds the raft configuration for a member.
func raftConfig(id uint64, timing Timing, logger io.Writer) *raft.Config {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(strconv.FormatUint(id, 10))
	config.HeartbeatTimeout = timing.Heartbeat
	config.ElectionTimeout = timing.Election
	config.LeaderLeaseTimeout = timing.LeaderLease

	// Enable pre-vote to reduce disruptions from partitioned members
	config.PreVoteDisabled = false

	config.Logger = logging.NewHCLogger("raft", logging.CurrentLevel(), logger)
	return config
}

// raftLogWriter returns where raft output goes: discarded at ERROR level,
// otherwise through a deduplicating RaftWriter released by the returned func.
func raftLogWriter() (io.Writer, func() error) {
	if logging.CurrentLevel() == "ERROR" {
		return io.Discard, func() error { return nil }
	}
	w := logging.NewRaftWriter()
	return w, w.Close
}

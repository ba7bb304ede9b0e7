package node

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/txnlog"
	json "github.com/goccy/go-json"
	"github.com/hashicorp/raft"
)

// DefaultApplyTimeout bounds a write when the caller's context has no deadline.
const DefaultApplyTimeout = 10 * time.Second

// ErrNotRunning is returned by operations on a node that is not running.
var ErrNotRunning = errors.New("node is not running")

// NotLeaderError is returned for writes sent to a member that is not leader.
type NotLeaderError struct {
	LeaderID   string
	LeaderAddr string
}

func (e *NotLeaderError) Error() string {
	if e.LeaderID == "" {
		return "not leader, no leader elected"
	}
	return fmt.Sprintf("not leader, leader is %s at %s", e.LeaderID, e.LeaderAddr)
}

// replica is the raft instance and data tree shared by the single-node
// server and the ensemble peer.
type replica struct {
	id         uint64
	tick       time.Duration
	minSession time.Duration
	maxSession time.Duration
	log        *txnlog.Log
	tree       *DataTree

	mu        sync.RWMutex
	raft      *raft.Raft
	transport raft.Transport
	closeLogs func() error
	running   bool
}

func newReplica(id uint64, tick, minSession, maxSession time.Duration, log *txnlog.Log) *replica {
	idStr := strconv.FormatUint(id, 10)
	return &replica{
		id:         id,
		tick:       tick,
		minSession: minSession,
		maxSession: maxSession,
		log:        log,
		tree:       NewDataTree(idStr),
	}
}

// launch takes a reference on the transaction log, creates the raft instance
// and bootstraps it with configuration when no state exists yet. The
// transport is closed on failure.
func (r *replica) launch(transport raft.Transport, timing Timing, configuration raft.Configuration) error {
	if err := r.log.Retain(); err != nil {
		closeTransport(transport)
		return err
	}

	hasState, err := raft.HasExistingState(r.log.LogStore(), r.log.StableStore(), r.log.SnapshotStore())
	if err != nil {
		closeTransport(transport)
		_ = r.log.Close()
		return fmt.Errorf("failed to inspect existing raft state: %w", err)
	}

	logWriter, closeLogs := raftLogWriter()
	config := raftConfig(r.id, timing, logWriter)

	rf, err := raft.NewRaft(config, r.tree, r.log.LogStore(), r.log.StableStore(), r.log.SnapshotStore(), transport)
	if err != nil {
		closeTransport(transport)
		_ = closeLogs()
		_ = r.log.Close()
		return fmt.Errorf("failed to create raft: %w", err)
	}

	if !hasState {
		logging.Info("Bootstrapping node %d with %d member(s)", r.id, len(configuration.Servers))
		if err := rf.BootstrapCluster(configuration).Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
			r.abort(rf, transport, closeLogs)
			return fmt.Errorf("failed to bootstrap: %w", err)
		}
	} else {
		logging.Info("Node %d recovering from existing state in %s", r.id, r.log.DataLogDir())
	}

	r.mu.Lock()
	r.raft = rf
	r.transport = transport
	r.closeLogs = closeLogs
	r.running = true
	r.mu.Unlock()
	return nil
}

func (r *replica) abort(rf *raft.Raft, transport raft.Transport, closeLogs func() error) {
	if err := rf.Shutdown().Error(); err != nil {
		logging.Warn("Error shutting down raft after failed start: %v", err)
	}
	closeTransport(transport)
	_ = closeLogs()
	_ = r.log.Close()
}

func closeTransport(t raft.Transport) {
	if closer, ok := t.(raft.WithClose); ok {
		if err := closer.Close(); err != nil {
			logging.Warn("Error closing raft transport: %v", err)
		}
	}
}

// stop shuts raft down and releases the node's transaction log reference.
func (r *replica) stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return nil
	}
	r.running = false

	var errs []error
	if err := r.raft.Shutdown().Error(); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down raft: %w", err))
	}
	closeTransport(r.transport)
	if err := r.closeLogs(); err != nil {
		errs = append(errs, err)
	}
	if err := r.log.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *replica) current() *raft.Raft {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.running {
		return nil
	}
	return r.raft
}

// ID returns the member id.
func (r *replica) ID() string { return strconv.FormatUint(r.id, 10) }

// TickTime returns the basic time unit.
func (r *replica) TickTime() time.Duration { return r.tick }

// SessionTimeouts returns the negotiated session bounds.
func (r *replica) SessionTimeouts() (time.Duration, time.Duration) {
	return r.minSession, r.maxSession
}

// IsRunning reports whether the node has started and not stopped.
func (r *replica) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// IsLeader reports whether this member currently leads.
func (r *replica) IsLeader() bool {
	rf := r.current()
	return rf != nil && rf.State() == raft.Leader
}

// Leader returns the id and address of the current leader, empty if unknown.
func (r *replica) Leader() (string, string) {
	rf := r.current()
	if rf == nil {
		return "", ""
	}
	addr, id := rf.LeaderWithID()
	return string(id), string(addr)
}

// RaftState returns the raft role name.
func (r *replica) RaftState() string {
	rf := r.current()
	if rf == nil {
		return "Shutdown"
	}
	return rf.State().String()
}

// Stats returns raft's internal statistics.
func (r *replica) Stats() map[string]string {
	rf := r.current()
	if rf == nil {
		return map[string]string{"state": "Shutdown"}
	}
	return rf.Stats()
}

// Get reads key from the local data tree.
func (r *replica) Get(key string) ([]byte, bool) {
	return r.tree.Get(key)
}

// Keys lists local keys starting with prefix.
func (r *replica) Keys(prefix string) []string {
	return r.tree.Keys(prefix)
}

// Tree returns the node's data tree.
func (r *replica) Tree() *DataTree { return r.tree }

// Put replicates a write of key.
func (r *replica) Put(ctx context.Context, key string, value []byte) error {
	return r.apply(ctx, Command{Op: OpPut, Key: key, Value: value})
}

// Delete replicates the removal of key.
func (r *replica) Delete(ctx context.Context, key string) error {
	return r.apply(ctx, Command{Op: OpDelete, Key: key})
}

func (r *replica) apply(ctx context.Context, cmd Command) error {
	rf := r.current()
	if rf == nil {
		return ErrNotRunning
	}
	if rf.State() != raft.Leader {
		addr, id := rf.LeaderWithID()
		return &NotLeaderError{LeaderID: string(id), LeaderAddr: string(addr)}
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}

	timeout := DefaultApplyTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return context.DeadlineExceeded
		}
	}

	future := rf.Apply(data, timeout)
	if err := future.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) || errors.Is(err, raft.ErrLeadershipLost) {
			addr, id := rf.LeaderWithID()
			return &NotLeaderError{LeaderID: string(id), LeaderAddr: string(addr)}
		}
		return fmt.Errorf("failed to apply %s %q: %w", cmd.Op, cmd.Key, err)
	}
	if resp, ok := future.Response().(error); ok && resp != nil {
		return resp
	}
	return nil
}

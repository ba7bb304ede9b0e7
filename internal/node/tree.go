package node

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/metrics"
	json "github.com/goccy/go-json"
	"github.com/hashicorp/raft"
)

// Command operations understood by the data tree.
const (
	OpPut    = "put"
	OpDelete = "delete"
)

// Command is one replicated mutation of the data tree.
type Command struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value []byte `json:"value,omitempty"`
}

// DataTree is the replicated key/value view of a node. It implements
// raft.FSM: commands arrive as JSON log entries and snapshots persist the
// whole tree as one JSON document.
type DataTree struct {
	mu      sync.RWMutex
	nodeID  string
	data    map[string][]byte
	applied uint64
}

// NewDataTree creates an empty tree. nodeID labels its metrics.
func NewDataTree(nodeID string) *DataTree {
	return &DataTree{
		nodeID: nodeID,
		data:   make(map[string][]byte),
	}
}

// Apply implements raft.FSM. It returns nil on success and an error for
// entries that cannot be decoded or carry an unknown operation.
func (t *DataTree) Apply(l *raft.Log) any {
	if l.Type != raft.LogCommand {
		return nil
	}

	var cmd Command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		logging.Error("Data tree: failed to decode log entry %d: %v", l.Index, err)
		return fmt.Errorf("failed to decode command at index %d: %w", l.Index, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch cmd.Op {
	case OpPut:
		t.data[cmd.Key] = cmd.Value
	case OpDelete:
		delete(t.data, cmd.Key)
	default:
		logging.Warn("Data tree: unknown operation %q at index %d", cmd.Op, l.Index)
		return fmt.Errorf("unknown operation %q", cmd.Op)
	}
	t.applied = l.Index

	metrics.AppliedCommandsTotal.WithLabelValues(t.nodeID, cmd.Op).Inc()
	metrics.DataTreeKeys.WithLabelValues(t.nodeID).Set(float64(len(t.data)))
	return nil
}

// Snapshot implements raft.FSM with a point-in-time copy of the tree.
func (t *DataTree) Snapshot() (raft.FSMSnapshot, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	data := make(map[string][]byte, len(t.data))
	for k, v := range t.data {
		data[k] = v
	}
	return &treeSnapshot{data: data}, nil
}

// Restore implements raft.FSM by replacing the tree with a snapshot.
func (t *DataTree) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	data := make(map[string][]byte)
	if err := json.NewDecoder(rc).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode data tree snapshot: %w", err)
	}

	t.mu.Lock()
	t.data = data
	t.mu.Unlock()

	metrics.DataTreeKeys.WithLabelValues(t.nodeID).Set(float64(len(data)))
	logging.Info("Data tree restored from snapshot with %d keys", len(data))
	return nil
}

// Get returns the value stored at key.
func (t *DataTree) Get(key string) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.data[key]
	return v, ok
}

// Keys returns the sorted keys starting with prefix.
func (t *DataTree) Keys(prefix string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([]string, 0, len(t.data))
	for k := range t.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys.
func (t *DataTree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}

// AppliedIndex returns the raft index of the last applied command.
func (t *DataTree) AppliedIndex() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.applied
}

type treeSnapshot struct {
	data map[string][]byte
}

// Persist writes the snapshot to the sink as JSON.
func (s *treeSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s.data); err != nil {
		_ = sink.Cancel()
		return fmt.Errorf("failed to persist data tree snapshot: %w", err)
	}
	return sink.Close()
}

// Release is a no-op; the snapshot owns a private copy.
func (s *treeSnapshot) Release() {}

package node

import (
	"bytes"
	"io"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bufferSink is an in-memory raft.SnapshotSink.
type bufferSink struct {
	bytes.Buffer
	cancelled bool
	closed    bool
}

func (s *bufferSink) ID() string    { return "test" }
func (s *bufferSink) Cancel() error { s.cancelled = true; return nil }
func (s *bufferSink) Close() error  { s.closed = true; return nil }

func logEntry(t *testing.T, index uint64, cmd Command) *raft.Log {
	t.Helper()
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	return &raft.Log{Index: index, Term: 1, Type: raft.LogCommand, Data: data}
}

func TestDataTreeApply(t *testing.T) {
	tree := NewDataTree("1")

	assert.Nil(t, tree.Apply(logEntry(t, 1, Command{Op: OpPut, Key: "/a", Value: []byte("1")})))
	assert.Nil(t, tree.Apply(logEntry(t, 2, Command{Op: OpPut, Key: "/a/b", Value: []byte("2")})))
	assert.Nil(t, tree.Apply(logEntry(t, 3, Command{Op: OpPut, Key: "/c", Value: []byte("3")})))
	assert.Nil(t, tree.Apply(logEntry(t, 4, Command{Op: OpDelete, Key: "/c"})))

	v, ok := tree.Get("/a")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	_, ok = tree.Get("/c")
	assert.False(t, ok)

	assert.Equal(t, []string{"/a", "/a/b"}, tree.Keys("/a"))
	assert.Equal(t, 2, tree.Len())
	assert.Equal(t, uint64(4), tree.AppliedIndex())
}

func TestDataTreeApplyRejectsBadEntries(t *testing.T) {
	tree := NewDataTree("1")

	resp := tree.Apply(&raft.Log{Index: 1, Type: raft.LogCommand, Data: []byte("{not json")})
	assert.Error(t, resp.(error))

	resp = tree.Apply(logEntry(t, 2, Command{Op: "rename", Key: "/a"}))
	assert.ErrorContains(t, resp.(error), "unknown operation")

	// non-command entries are ignored
	assert.Nil(t, tree.Apply(&raft.Log{Index: 3, Type: raft.LogNoop}))
	assert.Zero(t, tree.Len())
	assert.Zero(t, tree.AppliedIndex())
}

func TestDataTreeSnapshotRestore(t *testing.T) {
	tree := NewDataTree("1")
	tree.Apply(logEntry(t, 1, Command{Op: OpPut, Key: "/x", Value: []byte("x")}))
	tree.Apply(logEntry(t, 2, Command{Op: OpPut, Key: "/y", Value: []byte("y")}))

	snap, err := tree.Snapshot()
	require.NoError(t, err)

	// later writes do not leak into the snapshot
	tree.Apply(logEntry(t, 3, Command{Op: OpPut, Key: "/z", Value: []byte("z")}))

	sink := &bufferSink{}
	require.NoError(t, snap.Persist(sink))
	snap.Release()
	assert.True(t, sink.closed)
	assert.False(t, sink.cancelled)

	restored := NewDataTree("2")
	restored.Apply(logEntry(t, 1, Command{Op: OpPut, Key: "/stale", Value: []byte("s")}))
	require.NoError(t, restored.Restore(io.NopCloser(&sink.Buffer)))

	assert.Equal(t, []string{"/x", "/y"}, restored.Keys(""))
	v, _ := restored.Get("/y")
	assert.Equal(t, []byte("y"), v)
}

func TestDataTreeRestoreRejectsGarbage(t *testing.T) {
	tree := NewDataTree("1")
	tree.Apply(logEntry(t, 1, Command{Op: OpPut, Key: "/keep", Value: []byte("k")}))

	err := tree.Restore(io.NopCloser(bytes.NewBufferString("garbage")))
	require.Error(t, err)

	_, ok := tree.Get("/keep")
	assert.True(t, ok, "failed restore must leave the tree intact")
}

// Package txnlog owns the on-disk state of an embedded node: the raft log and
// stable store in dataLogDir and the snapshot store in dataDir.
//
// A Log is reference counted. The lifecycle manager holds the first reference
// and the running node takes its own with Retain, so the manager can release
// its handle first during shutdown while raft keeps writing until the node
// stops. The stores close when the last holder calls Close.
package txnlog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/quorum"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Options locates and configures the stores.
type Options struct {
	DataDir         string
	DataLogDir      string
	Backend         string // quorum.BackendBolt or quorum.BackendBadger
	SnapRetainCount int
	SyncEnabled     bool
	// SnapshotLog receives snapshot store messages; nil uses the unified logger.
	SnapshotLog io.Writer
}

// OptionsFromConfig derives store options from a node configuration.
func OptionsFromConfig(cfg *quorum.Config) Options {
	return Options{
		DataDir:         cfg.DataDir,
		DataLogDir:      cfg.DataLogDir,
		Backend:         cfg.TxnLogBackend,
		SnapRetainCount: cfg.SnapRetainCount,
		SyncEnabled:     cfg.SyncEnabled,
	}
}

// Log is a reference counted handle to the node's stores.
type Log struct {
	mu     sync.Mutex
	refs   int
	closed bool

	opts      Options
	logs      raft.LogStore
	stable    raft.StableStore
	snapshots raft.SnapshotStore
	closeFn   func() error
}

// mkdir is swapped by tests to simulate a concurrent directory creator.
var mkdir = os.Mkdir

// Open prepares both directories and opens the stores. The returned Log holds
// one reference.
func Open(opts Options) (*Log, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if opts.DataLogDir == "" {
		opts.DataLogDir = opts.DataDir
	}
	if opts.SnapRetainCount < 1 {
		opts.SnapRetainCount = 1
	}

	for _, dir := range []string{opts.DataLogDir, opts.DataDir} {
		if err := ensureDir(dir); err != nil {
			return nil, err
		}
	}

	var (
		logs    raft.LogStore
		stable  raft.StableStore
		closeFn func() error
		err     error
	)
	switch opts.Backend {
	case "", quorum.BackendBolt:
		logs, stable, closeFn, err = openBolt(opts.DataLogDir, opts.SyncEnabled)
	case quorum.BackendBadger:
		logs, stable, closeFn, err = openBadger(opts.DataLogDir, opts.SyncEnabled)
	default:
		return nil, fmt.Errorf("unknown transaction log backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	snapLog := opts.SnapshotLog
	if snapLog == nil {
		snapLog = logging.NewLevelWriter("INFO", "snapshots")
	}
	snapshots, err := raft.NewFileSnapshotStore(opts.DataDir, opts.SnapRetainCount, snapLog)
	if err != nil {
		_ = closeFn()
		return nil, fmt.Errorf("failed to open snapshot store in %s: %w", opts.DataDir, err)
	}

	logging.Debug("Opened %s transaction log in %s, snapshots in %s", backendName(opts.Backend), opts.DataLogDir, opts.DataDir)
	return &Log{
		refs:      1,
		opts:      opts,
		logs:      logs,
		stable:    stable,
		snapshots: snapshots,
		closeFn:   closeFn,
	}, nil
}

func backendName(b string) string {
	if b == "" {
		return quorum.BackendBolt
	}
	return b
}

func openBolt(dataLogDir string, syncEnabled bool) (raft.LogStore, raft.StableStore, func() error, error) {
	path := filepath.Join(dataLogDir, "raft-log.db")
	store, err := raftboltdb.New(raftboltdb.Options{
		Path:   path,
		NoSync: !syncEnabled,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open bolt log store at %s: %w", path, err)
	}
	return store, store, store.Close, nil
}

// ensureDir creates dir when it does not exist yet. The existence check and
// the creation are separate steps, so a concurrent creator surfaces as a
// *DatadirError wrapping fs.ErrExist.
func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return &DatadirError{Path: dir, Err: errors.New("not a directory")}
	case !errors.Is(err, fs.ErrNotExist):
		return &DatadirError{Path: dir, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return &DatadirError{Path: dir, Err: err}
	}
	if err := mkdir(dir, 0o755); err != nil {
		return &DatadirError{Path: dir, Err: err}
	}
	return nil
}

// Retain adds a holder. It fails once the stores are closed.
func (l *Log) Retain() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("transaction log in %s is closed", l.opts.DataLogDir)
	}
	l.refs++
	return nil
}

// Close releases one holder and closes the stores when none remain. Calls
// after the stores closed are no-ops.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.refs--
	if l.refs > 0 {
		return nil
	}
	l.closed = true
	if err := l.closeFn(); err != nil {
		return fmt.Errorf("failed to close transaction log in %s: %w", l.opts.DataLogDir, err)
	}
	logging.Debug("Closed transaction log in %s", l.opts.DataLogDir)
	return nil
}

// Closed reports whether the stores have been closed.
func (l *Log) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// LogStore returns the raft log store.
func (l *Log) LogStore() raft.LogStore { return l.logs }

// StableStore returns the raft stable store.
func (l *Log) StableStore() raft.StableStore { return l.stable }

// SnapshotStore returns the raft snapshot store.
func (l *Log) SnapshotStore() raft.SnapshotStore { return l.snapshots }

// DataDir returns the snapshot directory root.
func (l *Log) DataDir() string { return l.opts.DataDir }

// DataLogDir returns the log directory.
func (l *Log) DataLogDir() string { return l.opts.DataLogDir }

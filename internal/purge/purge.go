// Package purge implements the periodic retention task of an embedded node.
//
// Raft writes every snapshot into its own directory under
// <dataDir>/snapshots, named term-index-timestamp. The snapshot store already
// trims old snapshots when it takes a new one, but a node that restarts
// often, or crashes while a snapshot is being written, accumulates
// directories the store never revisits. The retention task closes that gap:
//
//   - Snapshot directories are ordered by term, then index, then name, and
//     all but the newest SnapRetainCount are removed.
//   - Directories ending in ".tmp" belong to an unfinished snapshot. They are
//     only removed once they are older than one interval, so a snapshot being
//     written during a pass survives.
//
// A pass runs immediately on Start and then once per interval on a ticker.
// Each pass logs the remaining disk space of the data directory.
package purge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/concave-dev/ensemble/internal/config"
	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/metrics"
)

const (
	snapshotDir = "snapshots"
	tmpSuffix   = ".tmp"
)

// Config configures a retention task.
type Config struct {
	DataDir         string
	SnapRetainCount int
	Interval        time.Duration
}

// Task periodically removes old snapshot artifacts.
type Task struct {
	cfg Config

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// New validates cfg and returns a stopped task. SnapRetainCount below the
// floor is raised to it.
func New(cfg Config) (*Task, error) {
	if cfg.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("purge interval must be positive, got %s", cfg.Interval)
	}
	if cfg.SnapRetainCount < config.DefaultSnapRetainCount {
		cfg.SnapRetainCount = config.DefaultSnapRetainCount
	}
	return &Task{cfg: cfg}, nil
}

// Start launches the task. Calling Start on a running task does nothing.
func (t *Task) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	logging.Info("Snapshot retention every %s keeping %d snapshots in %s",
		formatDuration(t.cfg.Interval), t.cfg.SnapRetainCount, t.cfg.DataDir)
	go t.run(t.stop, t.done)
}

// Shutdown stops the task and waits for a running pass to finish. It is safe
// to call more than once and before Start.
func (t *Task) Shutdown() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	stop, done := t.stop, t.done
	t.mu.Unlock()

	close(stop)
	<-done
	logging.Debug("Snapshot retention stopped")
}

// Running reports whether the task is started.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

func (t *Task) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		t.pass()
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func (t *Task) pass() {
	removed, err := Purge(t.cfg.DataDir, t.cfg.SnapRetainCount, t.cfg.Interval)
	if err != nil {
		metrics.RetentionRunsTotal.WithLabelValues("error").Inc()
		logging.Warn("Snapshot retention failed: %v", err)
		return
	}
	metrics.RetentionRunsTotal.WithLabelValues("success").Inc()
	if removed > 0 {
		logging.Info("Snapshot retention removed %d old snapshot(s)", removed)
	}
	logDiskUsage(t.cfg.DataDir)
}

type snapshotEntry struct {
	name  string
	term  uint64
	index uint64
}

// Purge keeps the newest retain snapshots under dataDir and removes the rest,
// plus unfinished snapshots older than tmpAge. It returns the number of
// directories removed. A missing snapshot directory is not an error.
func Purge(dataDir string, retain int, tmpAge time.Duration) (int, error) {
	root := filepath.Join(dataDir, snapshotDir)
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list snapshots in %s: %w", root, err)
	}

	var (
		snapshots []snapshotEntry
		stale     []string
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, tmpSuffix) {
			info, err := e.Info()
			if err == nil && time.Since(info.ModTime()) > tmpAge {
				stale = append(stale, name)
			}
			continue
		}
		entry, ok := parseSnapshotName(name)
		if !ok {
			logging.Debug("Snapshot retention skipping unknown directory %s", name)
			continue
		}
		snapshots = append(snapshots, entry)
	}

	// newest first
	sort.Slice(snapshots, func(i, j int) bool {
		a, b := snapshots[i], snapshots[j]
		if a.term != b.term {
			return a.term > b.term
		}
		if a.index != b.index {
			return a.index > b.index
		}
		return a.name > b.name
	})

	var victims []string
	if len(snapshots) > retain {
		for _, s := range snapshots[retain:] {
			victims = append(victims, s.name)
		}
	}
	victims = append(victims, stale...)

	removed := 0
	var errs []error
	for _, name := range victims {
		if err := os.RemoveAll(filepath.Join(root, name)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
		metrics.SnapshotsPurgedTotal.Inc()
		logging.Debug("Removed snapshot %s", name)
	}
	return removed, errors.Join(errs...)
}

func parseSnapshotName(name string) (snapshotEntry, bool) {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) != 3 {
		return snapshotEntry{}, false
	}
	term, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return snapshotEntry{}, false
	}
	index, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return snapshotEntry{}, false
	}
	return snapshotEntry{name: name, term: term, index: index}, true
}

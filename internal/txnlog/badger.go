package txnlog

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/dgraph-io/badger/v3"
	"github.com/hashicorp/raft"
	raftbadger "github.com/rfyiamcool/raft-badger"
)

// openBadger opens a raft-badger store in dataLogDir/raft-log. The same store
// serves as log store and stable store.
func openBadger(dataLogDir string, syncEnabled bool) (raft.LogStore, raft.StableStore, func() error, error) {
	path := filepath.Join(dataLogDir, "raft-log")

	opts := badger.DefaultOptions(path)
	opts.Logger = badgerLogger{}
	opts.SyncWrites = syncEnabled

	store, err := raftbadger.New(raftbadger.Config{DataPath: path}, &opts)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open badger log store at %s: %w", path, err)
	}

	closeFn := func() error {
		if closer, ok := any(store).(interface{ Close() error }); ok {
			return closer.Close()
		}
		return nil
	}
	return logCompat{LogStore: store}, stableCompat{StableStore: store}, closeFn, nil
}

// stableCompat maps badger's missing-key errors onto the zero values raft
// expects from a fresh stable store.
type stableCompat struct {
	raft.StableStore
}

func (s stableCompat) Get(key []byte) ([]byte, error) {
	value, err := s.StableStore.Get(key)
	if isNotFound(err) {
		return nil, nil
	}
	return value, err
}

func (s stableCompat) GetUint64(key []byte) (uint64, error) {
	value, err := s.StableStore.GetUint64(key)
	if isNotFound(err) {
		return 0, nil
	}
	return value, err
}

// logCompat maps badger's missing-key errors onto raft.ErrLogNotFound and
// empty indexes.
type logCompat struct {
	raft.LogStore
}

func (l logCompat) GetLog(index uint64, out *raft.Log) error {
	if err := l.LogStore.GetLog(index, out); isNotFound(err) {
		return raft.ErrLogNotFound
	} else {
		return err
	}
}

func (l logCompat) FirstIndex() (uint64, error) {
	idx, err := l.LogStore.FirstIndex()
	if isNotFound(err) {
		return 0, nil
	}
	return idx, err
}

func (l logCompat) LastIndex() (uint64, error) {
	idx, err := l.LogStore.LastIndex()
	if isNotFound(err) {
		return 0, nil
	}
	return idx, err
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, badger.ErrKeyNotFound) ||
		strings.Contains(err.Error(), "not found")
}

// badgerLogger routes badger's own logging through the unified logger.
// Info output is demoted to debug; badger is chatty on open and compaction.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	logging.Error("(badger) %s", strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (badgerLogger) Warningf(format string, args ...any) {
	logging.Warn("(badger) %s", strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (badgerLogger) Infof(format string, args ...any) {
	logging.Debug("(badger) %s", strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (badgerLogger) Debugf(format string, args ...any) {
	logging.Debug("(badger) %s", strings.TrimSpace(fmt.Sprintf(format, args...)))
}

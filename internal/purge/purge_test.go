package purge

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logging.SetLevel("ERROR")
	m.Run()
}

func makeSnapshots(t *testing.T, dataDir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(dataDir, snapshotDir, name), 0o755))
	}
}

func listSnapshots(t *testing.T, dataDir string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dataDir, snapshotDir))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestPurgeKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	makeSnapshots(t, dir,
		"1-10-1000",
		"1-20-1001",
		"2-5-1002", // higher term wins over higher index
		"2-30-1003",
		"2-30-1004",
	)
	before := testutil.ToFloat64(metrics.SnapshotsPurgedTotal)

	removed, err := Purge(dir, 3, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.ElementsMatch(t, []string{"2-5-1002", "2-30-1003", "2-30-1004"}, listSnapshots(t, dir))
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.SnapshotsPurgedTotal))
}

func TestPurgeStaleTemporaryDirectories(t *testing.T) {
	dir := t.TempDir()
	makeSnapshots(t, dir, "1-1-1", "1-2-2.tmp", "1-3-3.tmp")

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, snapshotDir, "1-2-2.tmp"), old, old))

	removed, err := Purge(dir, 3, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.ElementsMatch(t, []string{"1-1-1", "1-3-3.tmp"}, listSnapshots(t, dir))
}

func TestPurgeIgnoresUnknownEntries(t *testing.T) {
	dir := t.TempDir()
	makeSnapshots(t, dir, "lost+found", "1-1-1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, snapshotDir, "notes.txt"), nil, 0o644))

	removed, err := Purge(dir, 0, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.ElementsMatch(t, []string{"lost+found", "notes.txt"}, listSnapshots(t, dir))
}

func TestPurgeMissingDirectory(t *testing.T) {
	removed, err := Purge(filepath.Join(t.TempDir(), "absent"), 3, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Interval: time.Hour})
	assert.Error(t, err)

	_, err = New(Config{DataDir: t.TempDir()})
	assert.Error(t, err)

	task, err := New(Config{DataDir: t.TempDir(), Interval: time.Hour, SnapRetainCount: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, task.cfg.SnapRetainCount)
}

func TestTaskRunsImmediatelyAndStops(t *testing.T) {
	dir := t.TempDir()
	makeSnapshots(t, dir, "1-1-1", "1-2-2", "1-3-3", "1-4-4")

	task, err := New(Config{DataDir: dir, SnapRetainCount: 3, Interval: time.Hour})
	require.NoError(t, err)

	task.Shutdown() // before start
	task.Start()
	task.Start()
	assert.True(t, task.Running())

	require.Eventually(t, func() bool {
		return len(listSnapshots(t, dir)) == 3
	}, 5*time.Second, 10*time.Millisecond)

	task.Shutdown()
	task.Shutdown()
	assert.False(t, task.Running())
}

func TestTaskRunsOnEveryTick(t *testing.T) {
	dir := t.TempDir()
	task, err := New(Config{DataDir: dir, SnapRetainCount: 3, Interval: 20 * time.Millisecond})
	require.NoError(t, err)
	task.Start()
	defer task.Shutdown()

	makeSnapshots(t, dir, "1-1-1", "1-2-2", "1-3-3", "1-4-4", "1-5-5")
	require.Eventually(t, func() bool {
		names := listSnapshots(t, dir)
		return len(names) == 3 && !contains(names, "1-1-1")
	}, 5*time.Second, 10*time.Millisecond)
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{2500 * time.Millisecond, "2.5s"},
		{90 * time.Second, "1.5m"},
		{3 * time.Hour, "3.0h"},
		{48 * time.Hour, "2d"},
		{53 * time.Hour, "2d5h"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

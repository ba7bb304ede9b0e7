package logging

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ============================================================================
// RAFT LOG INTEGRATION - Capture and reformat Raft library logs
// ============================================================================

var (
	// hclog line without timestamp: [LEVEL]  raft: message: key=value
	hclogLineRegex = regexp.MustCompile(`^\[(\w+)\]\s+(.+)$`)
	peerAddrRegex  = regexp.MustCompile(`\d+\.\d+\.\d+\.\d+:\d+`)
)

// dedupEntry represents a deduplicated log message with its count
type dedupEntry struct {
	message string
	level   string
	count   int
}

// RaftWriter captures Raft library logs and routes them through the unified
// logging system. Repetitive peer-failure messages are aggregated and flushed
// periodically with a count to keep logs readable during partitions.
type RaftWriter struct {
	reader *io.PipeReader
	writer *io.PipeWriter

	mu      sync.Mutex
	pending map[string]*dedupEntry
	ticker  *time.Ticker
	done    chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewRaftWriter creates a new writer for capturing and reformatting Raft logs.
// Close must be called to stop the background goroutines.
func NewRaftWriter() *RaftWriter {
	r, w := io.Pipe()
	rw := &RaftWriter{
		reader:  r,
		writer:  w,
		pending: make(map[string]*dedupEntry),
		ticker:  time.NewTicker(3 * time.Second),
		done:    make(chan struct{}),
	}

	rw.wg.Add(2)
	go rw.processLogs()
	go rw.flushLoop()
	return rw
}

// Write implements io.Writer for capturing Raft log output.
func (rw *RaftWriter) Write(p []byte) (int, error) {
	return rw.writer.Write(p)
}

// Close stops log processing and flushes any aggregated entries.
func (rw *RaftWriter) Close() error {
	rw.mu.Lock()
	if rw.closed {
		rw.mu.Unlock()
		return nil
	}
	rw.closed = true
	rw.mu.Unlock()

	close(rw.done)
	rw.ticker.Stop()
	err := rw.writer.Close()
	rw.wg.Wait()

	rw.mu.Lock()
	rw.flushPending()
	rw.mu.Unlock()
	return err
}

func (rw *RaftWriter) flushLoop() {
	defer rw.wg.Done()
	for {
		select {
		case <-rw.done:
			return
		case <-rw.ticker.C:
			rw.mu.Lock()
			rw.flushPending()
			rw.mu.Unlock()
		}
	}
}

// flushPending outputs all aggregated entries. Must be called with mu held.
func (rw *RaftWriter) flushPending() {
	for key, entry := range rw.pending {
		msg := entry.message
		if entry.count > 1 {
			msg = fmt.Sprintf("%s (x%d)", entry.message, entry.count)
		}
		emit(adjustLevel(entry.level, entry.message), "(raft) "+msg)
		delete(rw.pending, key)
	}
}

// adjustLevel downgrades expected peer-failure errors to warnings.
func adjustLevel(level, message string) string {
	if level == "ERR" || level == "ERROR" {
		if isPeerFailure(message) {
			return "WARN"
		}
	}
	return level
}

func isPeerFailure(message string) bool {
	return strings.Contains(message, "failed to heartbeat to") ||
		strings.Contains(message, "failed to appendEntries to") ||
		strings.Contains(message, "failed to contact")
}

// shouldDeduplicate reports whether a message belongs to a known repetitive pattern.
func shouldDeduplicate(message string) bool {
	return isPeerFailure(message) ||
		strings.Contains(message, "connection refused") ||
		strings.Contains(message, "dial tcp")
}

// dedupKey groups similar messages, by peer address when one is present.
func dedupKey(level, message string) string {
	if addr := peerAddrRegex.FindString(message); addr != "" {
		return level + ":peer:" + addr
	}
	if len(message) > 50 {
		return level + ":" + message[:50]
	}
	return level + ":" + message
}

func (rw *RaftWriter) processLogs() {
	defer rw.wg.Done()
	scanner := bufio.NewScanner(rw.reader)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		m := hclogLineRegex.FindStringSubmatch(line)
		if len(m) != 3 {
			Info("(raft) %s", line)
			continue
		}
		level, message := strings.ToUpper(m[1]), m[2]
		message = strings.TrimSpace(strings.TrimPrefix(message, "raft: "))

		if !shouldDeduplicate(message) {
			emit(adjustLevel(level, message), "(raft) "+message)
			continue
		}

		rw.mu.Lock()
		key := dedupKey(level, message)
		if entry, ok := rw.pending[key]; ok {
			entry.count++
		} else {
			rw.pending[key] = &dedupEntry{message: message, level: level, count: 1}
		}
		rw.mu.Unlock()
	}
}

// NewHCLogger builds the hclog logger handed to Raft. Output goes through w,
// normally a RaftWriter; ERROR level callers pass io.Discard to silence Raft.
func NewHCLogger(name, level string, w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:        name,
		Level:       hclog.LevelFromString(level),
		Output:      w,
		DisableTime: true,
	})
}

// Package logging provides structured, colorful logging utilities for ensemble
// operations, ensuring consistent log formatting across the daemon, the
// reconciler and the embedded coordination engine.
//
// Implements a unified logging interface that standardizes log output from the
// main application, CLI commands, and integrated third-party libraries (Raft,
// gin). Uses color-coded log levels and consistent timestamp formatting.
//
// LOGGING FEATURES:
//   - Color-coded levels: DEBUG (purple), INFO (blue), WARN (yellow), ERROR (red), SUCCESS (green)
//   - Log interception: Raft library logs are reformatted and deduplicated
//   - Flexible output: Configurable log levels and output suppression for CLI tools
//   - Standard redirection: Routes standard library logs through the unified system
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	stdlog "log"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

var (
	mu sync.RWMutex

	// Logger for INFO/SUCCESS messages (stdout by default, follows Unix conventions)
	stdoutLogger = newLogger(os.Stdout)

	// Logger for WARN/ERROR/DEBUG messages (stderr by default, follows Unix conventions)
	stderrLogger = newLogger(os.Stderr)

	// Track if logging has been explicitly configured by CLI tools
	cliConfigured = false

	// Destination used by Success so it follows log file redirection
	successOutput io.Writer = os.Stdout
)

// newLogger builds a charmbracelet logger with the shared timestamp format and
// color scheme.
func newLogger(w io.Writer) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	l.SetStyles(levelStyles())
	return l
}

// levelStyles creates custom color styling for log levels. Colors work in both
// light and dark terminals.
func levelStyles() *log.Styles {
	styles := log.DefaultStyles()

	styles.Levels[log.DebugLevel] = lipgloss.NewStyle().
		SetString("DEBUG").
		Foreground(lipgloss.Color("#7F6DFF"))

	styles.Levels[log.InfoLevel] = lipgloss.NewStyle().
		SetString("INFO").
		Foreground(lipgloss.Color("#42E7FF"))

	styles.Levels[log.WarnLevel] = lipgloss.NewStyle().
		SetString("WARN").
		Foreground(lipgloss.Color("#FFE763"))

	styles.Levels[log.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERROR").
		Foreground(lipgloss.Color("#FF4473"))

	return styles
}

func outLogger() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return stdoutLogger
}

func errLogger() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return stderrLogger
}

// Info logs informational messages for node lifecycle and reconciliation steps.
// Uses stdout following Unix conventions (or log file when specified).
func Info(format string, v ...any) {
	outLogger().Info(fmt.Sprintf(format, v...))
}

// Warn logs warning messages for non-fatal configuration issues.
// Uses stderr following Unix conventions (or log file when specified).
func Warn(format string, v ...any) {
	errLogger().Warn(fmt.Sprintf(format, v...))
}

// Error logs error messages for failures while acquiring or releasing resources.
// Uses stderr following Unix conventions (or log file when specified).
func Error(format string, v ...any) {
	errLogger().Error(fmt.Sprintf(format, v...))
}

// Debug logs detailed debugging information for development and troubleshooting.
func Debug(format string, v ...any) {
	errLogger().Debug(fmt.Sprintf(format, v...))
}

// Success logs successful operations in green using INFO level with custom styling.
// Implements a custom SUCCESS label that still respects INFO level filtering.
func Success(format string, v ...any) {
	base := outLogger()
	if base.GetLevel() > log.InfoLevel {
		return
	}

	mu.RLock()
	w := successOutput
	mu.RUnlock()

	styles := levelStyles()
	styles.Levels[log.InfoLevel] = lipgloss.NewStyle().
		SetString("SUCCESS").
		Foreground(lipgloss.Color("#60F281"))

	tmp := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	tmp.SetStyles(styles)
	tmp.Info(fmt.Sprintf(format, v...))
}

// parseLevel maps the canonical level strings onto charmbracelet levels.
// Unknown values fall back to INFO.
func parseLevel(level string) log.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return log.DebugLevel
	case "WARN":
		return log.WarnLevel
	case "ERROR":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// SetLevel configures the minimum logging level for all output.
// Accepts DEBUG, INFO, WARN and ERROR.
func SetLevel(level string) {
	lvl := parseLevel(level)
	outLogger().SetLevel(lvl)
	errLogger().SetLevel(lvl)
}

// CurrentLevel returns the active level as its canonical string.
func CurrentLevel() string {
	switch outLogger().GetLevel() {
	case log.DebugLevel:
		return "DEBUG"
	case log.WarnLevel:
		return "WARN"
	case log.ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

// SetOutput configures log output destination. When a writer is given, all logs
// go to it (overriding stdout/stderr separation). When nil, suppresses all output.
func SetOutput(w io.Writer) {
	if w == nil {
		outLogger().SetLevel(log.FatalLevel + 1)
		errLogger().SetLevel(log.FatalLevel + 1)
		return
	}

	lvl := outLogger().GetLevel()

	mu.Lock()
	stdoutLogger = newLogger(w)
	stderrLogger = newLogger(w)
	stdoutLogger.SetLevel(lvl)
	stderrLogger.SetLevel(lvl)
	successOutput = w
	mu.Unlock()
}

// SuppressOutput disables INFO/WARN/DEBUG logs while keeping ERROR logs visible.
// Used by CLI commands that print their own output.
func SuppressOutput() {
	outLogger().SetLevel(log.ErrorLevel)
	errLogger().SetLevel(log.ErrorLevel)

	mu.Lock()
	cliConfigured = true
	mu.Unlock()
}

// RestoreOutput restores normal logging with Unix conventions at INFO level.
func RestoreOutput() {
	mu.Lock()
	stdoutLogger = newLogger(os.Stdout)
	stderrLogger = newLogger(os.Stderr)
	successOutput = os.Stdout
	cliConfigured = true
	mu.Unlock()
}

// IsConfiguredByCLI returns true if logging has been explicitly configured by CLI tools.
func IsConfiguredByCLI() bool {
	mu.RLock()
	defer mu.RUnlock()
	return cliConfigured
}

// LevelWriter forwards log lines to a specific log level with optional prefix.
// Useful for integrating third-party libraries that expect io.Writer interfaces.
type LevelWriter struct {
	level  string
	prefix string
}

// NewLevelWriter creates a writer that logs each line at the specified level with prefix.
func NewLevelWriter(level, prefix string) io.Writer {
	return &LevelWriter{level: strings.ToUpper(level), prefix: prefix}
}

// Write implements io.Writer by splitting input into lines and logging each at
// the configured level.
func (w *LevelWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		msg := line
		if w.prefix != "" {
			msg = w.prefix + ": " + line
		}
		emit(w.level, msg)
	}
	return len(p), nil
}

// emit routes a message to the matching level function.
func emit(level, msg string) {
	switch level {
	case "DEBUG", "TRACE":
		Debug("%s", msg)
	case "WARN", "WARNING":
		Warn("%s", msg)
	case "ERR", "ERROR":
		Error("%s", msg)
	default:
		Info("%s", msg)
	}
}

// RedirectStandardLog redirects Go's standard library logger output to the provided writer.
// Passing nil discards standard log output.
func RedirectStandardLog(w io.Writer) {
	if w == nil {
		stdlog.SetOutput(io.Discard)
		return
	}
	stdlog.SetOutput(w)
}

package purge

import (
	"fmt"
	"time"

	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
)

// logDiskUsage reports the free space of the file system holding dir.
// Failures are logged at debug level only; retention does not depend on them.
func logDiskUsage(dir string) {
	usage, err := disk.Usage(dir)
	if err != nil {
		logging.Debug("Failed to read disk usage of %s: %v", dir, err)
		return
	}
	logging.Info("Data directory %s: %s free of %s (%.1f%% used)",
		dir, humanize.IBytes(usage.Free), humanize.IBytes(usage.Total), usage.UsedPercent)
}

// formatDuration formats a duration for logging.
// Examples: "500ms", "2.5s", "1.2m", "3.4h", "2d5h"
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%.0fms", float64(d.Nanoseconds())/1e6)
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.1fm", d.Minutes())
	case d < 24*time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	days := int(d.Hours() / 24)
	hours := d.Hours() - float64(days*24)
	if hours < 1 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd%.0fh", days, hours)
}

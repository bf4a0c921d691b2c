//go:build !windows

package filesystem

import (
	"fmt"
	"syscall"

	"github.com/vertextoedge/audio-fetch-cache/internal/port"
)

// GetDiskUsage returns usage of the volume holding the cache root.
// Free counts only blocks available to unprivileged users.
func (m *Manager) GetDiskUsage() (*port.DiskUsage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(m.rootDir, &stat); err != nil {
		return nil, fmt.Errorf("failed to get disk stats: %w", err)
	}

	bsize := uint64(stat.Bsize)
	total := stat.Blocks * bsize
	free := stat.Bavail * bsize
	if free > total {
		free = total
	}
	used := total - free

	usage := &port.DiskUsage{
		Total: total,
		Used:  used,
		Free:  free,
	}
	if total > 0 {
		usage.UsedPct = float64(used) / float64(total) * 100
	}
	return usage, nil
}

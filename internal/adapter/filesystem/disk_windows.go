//go:build windows

package filesystem

import (
	"errors"

	"github.com/vertextoedge/audio-fetch-cache/internal/port"
)

// ErrDiskUsageUnsupported is returned where volume statistics are unavailable
var ErrDiskUsageUnsupported = errors.New("disk usage not supported on this platform")

// GetDiskUsage is not implemented on Windows; the space manager then
// bounds the cache by its configured size only
func (m *Manager) GetDiskUsage() (*port.DiskUsage, error) {
	return nil, ErrDiskUsageUnsupported
}

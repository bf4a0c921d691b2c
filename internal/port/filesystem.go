package port

import (
	"os"
	"time"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// CachedFile is a committed audio file found on disk
type CachedFile struct {
	Key     domain.CacheKey
	Path    string
	Size    int64
	ModTime time.Time
}

// FileSystem defines the interface for filesystem operations
type FileSystem interface {
	// RootDir returns the cache root directory
	RootDir() string

	// PathFor returns the final location of the file for key
	PathFor(key domain.CacheKey) string

	// CreateTemp opens a new unique temp file for key inside the cache root
	CreateTemp(key domain.CacheKey) (*os.File, error)

	// Commit atomically moves a finished temp file to the final location of key
	// Returns the final path
	Commit(tempPath string, key domain.CacheKey) (string, error)

	// Remove deletes the file at path; a missing file is not an error
	Remove(path string) error

	// Exists checks if a file exists
	Exists(path string) bool

	// Size returns the size of a file
	Size(path string) (int64, error)

	// ListCached walks the cache root and returns every committed file
	ListCached() ([]CachedFile, error)

	// GetDiskUsage returns disk usage statistics
	GetDiskUsage() (*DiskUsage, error)

	// CleanOldTempFiles removes temp files older than the specified duration
	// Returns the number of files deleted
	CleanOldTempFiles(olderThan time.Duration) (int, error)
}

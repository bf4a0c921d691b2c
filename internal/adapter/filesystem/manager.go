package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/port"
)

const (
	// AudioExt is the extension of committed cache files
	AudioExt = ".audio"
	// PartExt is the extension of in-progress temp files
	PartExt = ".part"

	tempDirName = "tmp"
)

// Manager handles local filesystem operations.
// Files live at <root>/<shard>/<key>.audio and temp files at <root>/tmp.
type Manager struct {
	rootDir string
	tempDir string
}

// Ensure Manager implements port.FileSystem
var _ port.FileSystem = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager(rootDir string) (*Manager, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache root dir: %w", err)
	}
	tempDir := filepath.Join(abs, tempDirName)

	// Temp dir inside the root keeps the final rename on one filesystem
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache root dir: %w", err)
	}

	return &Manager{
		rootDir: abs,
		tempDir: tempDir,
	}, nil
}

// RootDir returns the cache root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// TempDir returns the directory holding in-progress downloads
func (m *Manager) TempDir() string {
	return m.tempDir
}

// PathFor returns the final location of the file for key
func (m *Manager) PathFor(key domain.CacheKey) string {
	return filepath.Join(m.rootDir, key.Shard(), key.String()+AudioExt)
}

// CreateTemp opens a new unique temp file for key
func (m *Manager) CreateTemp(key domain.CacheKey) (*os.File, error) {
	name := fmt.Sprintf("%s.%s%s", key, xid.New().String(), PartExt)
	f, err := os.OpenFile(filepath.Join(m.tempDir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	return f, nil
}

// Commit atomically moves a finished temp file to the final location of key
func (m *Manager) Commit(tempPath string, key domain.CacheKey) (string, error) {
	finalPath := m.PathFor(key)

	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create parent dir: %w", err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}

	return finalPath, nil
}

// Remove deletes a file; a missing file is not an error
func (m *Manager) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists checks if a file exists
func (m *Manager) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Size returns the size of a file
func (m *Manager) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ListCached returns every committed file under the root.
// Files whose name is not a valid key are ignored.
func (m *Manager) ListCached() ([]port.CachedFile, error) {
	var files []port.CachedFile

	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			if path == m.tempDir {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != AudioExt {
			return nil
		}

		key := domain.CacheKey(strings.TrimSuffix(info.Name(), AudioExt))
		if !key.Valid() {
			return nil
		}

		files = append(files, port.CachedFile{
			Key:     key,
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	return files, err
}

// CleanOldTempFiles removes temp files older than the specified duration
func (m *Manager) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	entries, err := os.ReadDir(m.tempDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != PartExt {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(threshold) {
			if removeErr := os.Remove(filepath.Join(m.tempDir, e.Name())); removeErr == nil {
				count++
			}
		}
	}
	return count, nil
}

// CleanEmptyDirs removes empty shard directories under root
func (m *Manager) CleanEmptyDirs() error {
	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == tempDirName {
			continue
		}
		os.Remove(filepath.Join(m.rootDir, e.Name())) // Will only succeed if empty
	}
	return nil
}

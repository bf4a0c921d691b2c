package repository

import (
	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
)

// EntryRepository defines the interface for durable cache entry persistence.
// Implementations write through on every mutation.
type EntryRepository interface {
	// LoadAll returns every persisted entry
	// Records that cannot be decoded are skipped, not returned as errors
	LoadAll() ([]*domain.CacheEntry, error)

	// Save inserts or replaces the entry for entry.Key
	Save(entry *domain.CacheEntry) error

	// Delete removes the entry for key
	// Deleting a missing key is not an error
	Delete(key domain.CacheKey) error

	// Close releases the underlying resources
	Close() error
}

package domain

import (
	"time"
)

// EntrySchemaVersion is the current version of the persisted CacheEntry record
const EntrySchemaVersion = 2

// CacheEntry is the persisted metadata of one cached audio file
type CacheEntry struct {
	SchemaVersion  int        `json:"schema_version"`
	URL            string     `json:"url"`
	Key            CacheKey   `json:"cache_key"`
	FileSizeBytes  int64      `json:"file_size_bytes"`
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
	Importance     Importance `json:"importance"`
	ContentType    string     `json:"content_type"`
	IsComplete     bool       `json:"is_complete"`

	// Liked is the external positive-feedback boost
	Liked bool `json:"liked"`
}

// NewCacheEntry creates a complete entry for a freshly downloaded file
func NewCacheEntry(rawURL string, key CacheKey, size int64, contentType string, importance Importance) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		SchemaVersion:  EntrySchemaVersion,
		URL:            rawURL,
		Key:            key,
		FileSizeBytes:  size,
		CreatedAt:      now,
		LastAccessedAt: now,
		Importance:     importance.Clamp(),
		ContentType:    contentType,
		IsComplete:     true,
	}
}

// AdoptedEntry creates an entry for a file found on disk without metadata.
// The source URL is unknown, so the entry can only be served by key.
func AdoptedEntry(key CacheKey, size int64, modTime time.Time) *CacheEntry {
	return &CacheEntry{
		SchemaVersion:  EntrySchemaVersion,
		Key:            key,
		FileSizeBytes:  size,
		CreatedAt:      modTime,
		LastAccessedAt: modTime,
		Importance:     DefaultImportance,
		IsComplete:     true,
	}
}

// FeedbackSignal carries an external signal applied on touch
type FeedbackSignal struct {
	Liked      bool
	Importance *Importance
}

// Touch records an access and applies an optional feedback signal.
// Importance is only ever raised by a signal, never lowered.
func (e *CacheEntry) Touch(now time.Time, signal *FeedbackSignal) {
	e.LastAccessedAt = now
	if signal == nil {
		return
	}
	if signal.Liked {
		e.Liked = true
	}
	if signal.Importance != nil && signal.Importance.Clamp() > e.Importance {
		e.Importance = signal.Importance.Clamp()
	}
}

// Age returns how long ago the entry was created
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// IdleFor returns how long ago the entry was last accessed
func (e *CacheEntry) IdleFor(now time.Time) time.Duration {
	return now.Sub(e.LastAccessedAt)
}

// IsExpired reports whether the entry is past maxAge and not exempt.
// Liked entries are exempt from the age sweep.
func (e *CacheEntry) IsExpired(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 || e.Liked {
		return false
	}
	return e.Age(now) > maxAge
}

// Clone returns a copy safe to hand out of the store
func (e *CacheEntry) Clone() *CacheEntry {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

package sqlite

import (
	"time"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
)

// LoadAll returns every persisted entry, upgrading old rows to the current schema
func (s *Store) LoadAll() ([]*domain.CacheEntry, error) {
	query := `
		SELECT cache_key, url, file_size, created_at, last_accessed_at,
			   importance, content_type, is_complete, schema_version, liked
		FROM cache_entries
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.CacheEntry
	for rows.Next() {
		e := &domain.CacheEntry{}
		var key string
		var createdAt, accessedAt int64
		var importance int

		if err := rows.Scan(
			&key, &e.URL, &e.FileSizeBytes, &createdAt, &accessedAt,
			&importance, &e.ContentType, &e.IsComplete, &e.SchemaVersion, &e.Liked,
		); err != nil {
			return nil, err
		}

		e.Key = domain.CacheKey(key)
		e.CreatedAt = time.Unix(0, createdAt)
		e.LastAccessedAt = time.Unix(0, accessedAt)
		e.Importance = domain.Importance(importance).Clamp()
		e.SchemaVersion = domain.EntrySchemaVersion
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Save inserts or replaces the entry for entry.Key
func (s *Store) Save(entry *domain.CacheEntry) error {
	query := `
		INSERT INTO cache_entries (
			cache_key, url, file_size, created_at, last_accessed_at,
			importance, content_type, is_complete, schema_version, liked
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			url = excluded.url,
			file_size = excluded.file_size,
			created_at = excluded.created_at,
			last_accessed_at = excluded.last_accessed_at,
			importance = excluded.importance,
			content_type = excluded.content_type,
			is_complete = excluded.is_complete,
			schema_version = excluded.schema_version,
			liked = excluded.liked
	`

	_, err := s.db.Exec(query,
		entry.Key.String(), entry.URL, entry.FileSizeBytes,
		entry.CreatedAt.UnixNano(), entry.LastAccessedAt.UnixNano(),
		int(entry.Importance), entry.ContentType, entry.IsComplete,
		domain.EntrySchemaVersion, entry.Liked,
	)
	return err
}

// Delete removes the entry for key
func (s *Store) Delete(key domain.CacheKey) error {
	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE cache_key = ?`, key.String())
	return err
}

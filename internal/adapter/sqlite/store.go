package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/vertextoedge/audio-fetch-cache/internal/port"
)

// Store implements the entry and feedback repositories using SQLite
type Store struct {
	db *sql.DB
}

// Ensure Store implements the repository ports
var (
	_ port.EntryRepository    = (*Store)(nil)
	_ port.FeedbackRepository = (*Store)(nil)
)

// Open opens a connection to the SQLite database
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	// Open database with WAL mode and busy timeout
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer avoids SQLITE_BUSY under write-through load
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate creates or updates the database schema
func (s *Store) migrate() error {
	migrations := []string{
		// Timestamps are unix nanoseconds
		`CREATE TABLE IF NOT EXISTS cache_entries (
			cache_key TEXT PRIMARY KEY,
			url TEXT NOT NULL DEFAULT '',
			file_size INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			last_accessed_at INTEGER NOT NULL,
			importance INTEGER NOT NULL DEFAULT 5,
			content_type TEXT NOT NULL DEFAULT '',
			is_complete BOOLEAN NOT NULL DEFAULT TRUE,
			schema_version INTEGER NOT NULL DEFAULT 1
		)`,

		`CREATE TABLE IF NOT EXISTS content_feedback (
			url TEXT PRIMARY KEY,
			liked BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_cache_entries_url ON cache_entries(url)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_last_access ON cache_entries(last_accessed_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	// Schema version 2 columns (safe ALTER TABLE - ignores if column exists)
	alterMigrations := []string{
		`ALTER TABLE cache_entries ADD COLUMN liked BOOLEAN NOT NULL DEFAULT FALSE`,
	}

	for _, migration := range alterMigrations {
		// Ignore errors for ALTER TABLE as column may already exist
		s.db.Exec(migration)
	}

	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"time"
)

// IsLiked reports whether the user has liked the content at rawURL
func (s *Store) IsLiked(ctx context.Context, rawURL string) (bool, error) {
	var liked bool
	err := s.db.QueryRowContext(ctx,
		`SELECT liked FROM content_feedback WHERE url = ?`, rawURL,
	).Scan(&liked)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return liked, nil
}

// SetLiked records or clears the like for rawURL
func (s *Store) SetLiked(ctx context.Context, rawURL string, liked bool) error {
	query := `
		INSERT INTO content_feedback (url, liked, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			liked = excluded.liked,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, rawURL, liked, time.Now().UnixNano())
	return err
}

package repository

import (
	"context"
)

// FeedbackSource answers whether the user has liked a piece of content.
// Lookups may fail; callers treat a failure as "not liked".
type FeedbackSource interface {
	IsLiked(ctx context.Context, rawURL string) (bool, error)
}

// FeedbackRepository stores user feedback keyed by source URL
type FeedbackRepository interface {
	FeedbackSource

	// SetLiked records or clears the like for rawURL
	SetLiked(ctx context.Context, rawURL string, liked bool) error
}

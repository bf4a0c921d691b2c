package port

import (
	"github.com/vertextoedge/audio-fetch-cache/internal/domain/repository"
)

// EntryRepository is an alias to domain repository interface
type EntryRepository = repository.EntryRepository

// FeedbackSource is an alias to domain repository interface
type FeedbackSource = repository.FeedbackSource

// FeedbackRepository is an alias to domain repository interface
type FeedbackRepository = repository.FeedbackRepository

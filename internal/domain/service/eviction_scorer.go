package service

import (
	"sort"
	"time"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
)

// ScoreWeights configures the eviction score.
// Higher scores survive longer.
type ScoreWeights struct {
	Recency    float64
	Importance float64
	Feedback   float64
	SmallFile  float64

	// RecencySaturation is the idle time after which recency contributes nothing
	RecencySaturation time.Duration

	// SmallFileReference is the size at which the small-file bonus reaches zero
	SmallFileReference int64
}

// DefaultScoreWeights returns the default weighting
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Recency:            0.4,
		Importance:         0.4,
		Feedback:           0.5,
		SmallFile:          0.1,
		RecencySaturation:  7 * 24 * time.Hour,
		SmallFileReference: 10 * 1024 * 1024,
	}
}

// EvictionScorer is a domain service that ranks cache entries for eviction
type EvictionScorer struct {
	weights ScoreWeights
}

// NewEvictionScorer creates a new EvictionScorer
func NewEvictionScorer(weights ScoreWeights) *EvictionScorer {
	defaults := DefaultScoreWeights()
	if weights.RecencySaturation <= 0 {
		weights.RecencySaturation = defaults.RecencySaturation
	}
	if weights.SmallFileReference <= 0 {
		weights.SmallFileReference = defaults.SmallFileReference
	}
	return &EvictionScorer{weights: weights}
}

// ScoredEntry pairs an entry with its eviction score
type ScoredEntry struct {
	Entry *domain.CacheEntry
	Score float64
	Liked bool
}

// Score computes the survival score of one entry
func (s *EvictionScorer) Score(entry *domain.CacheEntry, liked bool, now time.Time) float64 {
	w := s.weights

	idle := entry.IdleFor(now)
	if idle < 0 {
		idle = 0
	}
	recency := 1 - float64(idle)/float64(w.RecencySaturation)
	if recency < 0 {
		recency = 0
	}

	var feedback float64
	if liked || entry.Liked {
		feedback = 1
	}

	small := 1 - float64(entry.FileSizeBytes)/float64(w.SmallFileReference)
	if small < 0 {
		small = 0
	}

	return w.Recency*recency +
		w.Importance*entry.Importance.Fraction() +
		w.Feedback*feedback +
		w.SmallFile*small
}

// Rank scores entries and sorts them ascending, lowest survival first.
// Ties go to the larger file so fewer deletions reach the target.
func (s *EvictionScorer) Rank(entries []*domain.CacheEntry, liked func(*domain.CacheEntry) bool, now time.Time) []ScoredEntry {
	ranked := make([]ScoredEntry, 0, len(entries))
	for _, e := range entries {
		l := e.Liked
		if !l && liked != nil {
			l = liked(e)
		}
		ranked = append(ranked, ScoredEntry{Entry: e, Score: s.Score(e, l, now), Liked: l})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score < ranked[j].Score
		}
		return ranked[i].Entry.FileSizeBytes > ranked[j].Entry.FileSizeBytes
	})
	return ranked
}

// Weights returns the configured weights
func (s *EvictionScorer) Weights() ScoreWeights {
	return s.weights
}

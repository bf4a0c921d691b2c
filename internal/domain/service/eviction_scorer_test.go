package service

import (
	"testing"
	"time"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
)

func entryAt(key string, size int64, importance domain.Importance, accessed time.Time) *domain.CacheEntry {
	return &domain.CacheEntry{
		Key:            domain.CacheKey(key),
		FileSizeBytes:  size,
		Importance:     importance,
		CreatedAt:      accessed,
		LastAccessedAt: accessed,
		IsComplete:     true,
	}
}

func TestEvictionScorer_Score(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewEvictionScorer(DefaultScoreWeights())

	recent := entryAt("recent", 1<<20, domain.DefaultImportance, now)
	stale := entryAt("stale", 1<<20, domain.DefaultImportance, now.Add(-30*24*time.Hour))

	if s.Score(recent, false, now) <= s.Score(stale, false, now) {
		t.Error("recently accessed entry should outscore a stale one")
	}

	important := entryAt("imp", 1<<20, 9, now.Add(-time.Hour))
	plain := entryAt("plain", 1<<20, 2, now.Add(-time.Hour))
	if s.Score(important, false, now) <= s.Score(plain, false, now) {
		t.Error("higher importance should outscore lower importance")
	}

	if s.Score(plain, true, now) <= s.Score(plain, false, now) {
		t.Error("liked entry should outscore the same entry without feedback")
	}

	small := entryAt("small", 100*1024, 5, now.Add(-time.Hour))
	large := entryAt("large", 50<<20, 5, now.Add(-time.Hour))
	if s.Score(small, false, now) <= s.Score(large, false, now) {
		t.Error("small file should get a bonus")
	}
}

func TestEvictionScorer_RecencySaturates(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewEvictionScorer(DefaultScoreWeights())

	a := entryAt("a", 1<<20, 5, now.Add(-8*24*time.Hour))
	b := entryAt("b", 1<<20, 5, now.Add(-80*24*time.Hour))
	if s.Score(a, false, now) != s.Score(b, false, now) {
		t.Error("recency should contribute nothing past saturation")
	}
}

func TestEvictionScorer_Rank(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewEvictionScorer(DefaultScoreWeights())

	entries := []*domain.CacheEntry{
		entryAt("keep", 1<<20, 9, now),
		entryAt("drop", 1<<20, 1, now.Add(-20*24*time.Hour)),
		entryAt("liked", 1<<20, 1, now.Add(-20*24*time.Hour)),
	}
	liked := func(e *domain.CacheEntry) bool { return e.Key == "liked" }

	ranked := s.Rank(entries, liked, now)
	if len(ranked) != 3 {
		t.Fatalf("Rank() returned %d entries", len(ranked))
	}
	if ranked[0].Entry.Key != "drop" {
		t.Errorf("first candidate = %s, want drop", ranked[0].Entry.Key)
	}
	if ranked[2].Entry.Key != "keep" {
		t.Errorf("last candidate = %s, want keep", ranked[2].Entry.Key)
	}
	if !ranked[1].Liked {
		t.Error("liked lookup should be recorded on the scored entry")
	}
}

func TestEvictionScorer_RankTieBreaksOnSize(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	w := DefaultScoreWeights()
	w.SmallFile = 0
	s := NewEvictionScorer(w)

	entries := []*domain.CacheEntry{
		entryAt("small", 1<<20, 5, now),
		entryAt("big", 8<<20, 5, now),
	}
	ranked := s.Rank(entries, nil, now)
	if ranked[0].Entry.Key != "big" {
		t.Errorf("tie should favour evicting the larger file, got %s", ranked[0].Entry.Key)
	}
}

func TestCachePolicy(t *testing.T) {
	p := NewCachePolicy(100<<20, 0.7)

	if p.ShouldEvict(100 << 20) {
		t.Error("exactly at the limit should not evict")
	}
	if !p.ShouldEvict(100<<20 + 1) {
		t.Error("above the limit should evict")
	}
	if got, want := p.LowWaterMark(), int64(70<<20); got != want {
		t.Errorf("LowWaterMark() = %d, want %d", got, want)
	}

	fallback := NewCachePolicy(100, 0)
	if got := fallback.LowWaterMark(); got != 70 {
		t.Errorf("fallback LowWaterMark() = %d, want 70", got)
	}
}

package cacher

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vertextoedge/audio-fetch-cache/internal/adapter/filesystem"
	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/domain/event"
	"github.com/vertextoedge/audio-fetch-cache/internal/domain/service"
	"github.com/vertextoedge/audio-fetch-cache/internal/service/metastore"
)

var evictNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type evictorFixture struct {
	ev       *Evictor
	fs       *filesystem.Manager
	meta     *metastore.Store
	feedback *fakeFeedback
	events   *recorder
	logs     *observer.ObservedLogs
}

func newEvictorFixture(t *testing.T, maxSize int64) *evictorFixture {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	dispatcher, rec := newRecordingDispatcher()

	f := &evictorFixture{
		fs:       newTestFS(t),
		meta:     newTestMeta(),
		feedback: newFakeFeedback(),
		events:   rec,
		logs:     logs,
	}
	policy := service.NewCachePolicy(maxSize, 0.7)
	scorer := service.NewEvictionScorer(service.DefaultScoreWeights())
	f.ev = NewEvictor(f.meta, f.fs, policy, scorer, f.feedback, dispatcher, zap.New(core))
	f.ev.now = func() time.Time { return evictNow }
	return f
}

// seed commits a small file for url and records an entry claiming size bytes
func (f *evictorFixture) seed(t *testing.T, url string, size int64, imp domain.Importance, created, accessed time.Duration) *domain.CacheEntry {
	t.Helper()
	key := domain.KeyFor(url)
	tmp, err := f.fs.CreateTemp(key)
	require.NoError(t, err)
	_, err = tmp.Write(mp3Body(16))
	require.NoError(t, err)
	require.NoError(t, tmp.Close())
	_, err = f.fs.Commit(tmp.Name(), key)
	require.NoError(t, err)

	entry := domain.NewCacheEntry(url, key, size, "audio/mpeg", imp)
	entry.CreatedAt = evictNow.Add(-created)
	entry.LastAccessedAt = evictNow.Add(-accessed)
	f.meta.Put(entry)
	return entry
}

func (f *evictorFixture) cached(url string) bool {
	key := domain.KeyFor(url)
	return f.meta.Contains(key) && f.fs.Exists(f.fs.PathFor(key))
}

const day = 24 * time.Hour

func TestEvictor_EvictToTarget(t *testing.T) {
	f := newEvictorFixture(t, 100*mib)

	f.seed(t, "https://x/a.mp3", 30*mib, 2, 20*day, 10*day)
	f.seed(t, "https://x/b.mp3", 20*mib, 9, day, 0)
	f.seed(t, "https://x/c.mp3", 15*mib, 5, 5*day, 3*day)
	d := f.seed(t, "https://x/d.mp3", 10*mib, 0, 20*day, 10*day)
	f.seed(t, "https://x/e.mp3", 15*mib, 7, 20*day, 5*day)
	f.feedback.liked["https://x/e.mp3"] = true
	require.Equal(t, int64(90*mib), f.meta.TotalBytes())

	report := f.ev.EvictToTarget(context.Background(), 70*mib, map[domain.CacheKey]bool{d.Key: true})

	assert.Equal(t, 1, report.Evicted)
	assert.Equal(t, int64(30*mib), report.FreedBytes)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, int64(60*mib), report.Remaining)
	assert.LessOrEqual(t, f.meta.TotalBytes(), int64(70*mib))

	assert.False(t, f.cached("https://x/a.mp3"))
	for _, u := range []string{"https://x/b.mp3", "https://x/c.mp3", "https://x/d.mp3", "https://x/e.mp3"} {
		assert.True(t, f.cached(u), u)
	}
	assert.Equal(t, 1, f.events.count(event.NameFileEvicted))
}

func TestEvictor_LikedSurvivesLongest(t *testing.T) {
	f := newEvictorFixture(t, 100*mib)
	f.seed(t, "https://x/plain.mp3", 10*mib, 5, 20*day, 10*day)
	liked := f.seed(t, "https://x/liked.mp3", 10*mib, 5, 20*day, 10*day)
	f.meta.SetLiked(liked.Key, true)

	report := f.ev.EvictToTarget(context.Background(), 10*mib, nil)
	assert.Equal(t, 1, report.Evicted)
	assert.True(t, f.cached("https://x/liked.mp3"))
}

func TestEvictor_ConvergesToTarget(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		f := newEvictorFixture(t, 100*mib)
		protected := map[domain.CacheKey]bool{}
		var protectedBytes int64

		n := 5 + rng.Intn(20)
		for i := 0; i < n; i++ {
			size := int64(1+rng.Intn(15)) * mib
			e := f.seed(t, fmt.Sprintf("https://x/%d/%d.mp3", round, i), size,
				domain.Importance(rng.Intn(11)),
				time.Duration(rng.Intn(30))*day, time.Duration(rng.Intn(10))*day)
			if rng.Intn(5) == 0 {
				protected[e.Key] = true
				protectedBytes += size
			}
		}

		target := int64(rng.Intn(100)) * mib
		report := f.ev.EvictToTarget(context.Background(), target, protected)

		// Either the target is met or only protected entries are left
		if report.Remaining > target {
			assert.Equal(t, protectedBytes, report.Remaining, "round %d", round)
		}
		for key := range protected {
			assert.True(t, f.meta.Contains(key), "round %d: protected entry evicted", round)
		}
	}
}

func TestEvictor_EvictIfNeeded(t *testing.T) {
	f := newEvictorFixture(t, 100*mib)
	f.seed(t, "https://x/a.mp3", 60*mib, 2, 20*day, 10*day)
	f.seed(t, "https://x/b.mp3", 40*mib, 5, day, 0)

	// At the limit is not above it
	report := f.ev.EvictIfNeeded(context.Background(), nil)
	assert.Equal(t, 0, report.Evicted)
	assert.Equal(t, int64(100*mib), report.Remaining)

	f.seed(t, "https://x/c.mp3", 5*mib, 5, day, 0)
	report = f.ev.EvictIfNeeded(context.Background(), nil)
	assert.Equal(t, 1, report.Evicted)
	assert.LessOrEqual(t, report.Remaining, int64(70*mib))
	assert.False(t, f.cached("https://x/a.mp3"))
}

func TestEvictor_SweepExpired(t *testing.T) {
	f := newEvictorFixture(t, 100*mib)
	f.seed(t, "https://x/old.mp3", mib, 9, 40*day, 0)
	f.seed(t, "https://x/old-liked.mp3", mib, 1, 40*day, 40*day)
	f.seed(t, "https://x/fresh.mp3", mib, 1, 2*day, 2*day)
	busy := f.seed(t, "https://x/old-busy.mp3", mib, 1, 40*day, 40*day)
	f.feedback.liked["https://x/old-liked.mp3"] = true

	report := f.ev.SweepExpired(context.Background(), 30*day, map[domain.CacheKey]bool{busy.Key: true})

	assert.Equal(t, 1, report.Evicted)
	assert.Equal(t, 1, report.Skipped)
	assert.False(t, f.cached("https://x/old.mp3"), "importance does not exempt from age")
	assert.True(t, f.cached("https://x/old-liked.mp3"))
	assert.True(t, f.cached("https://x/fresh.mp3"))
	assert.True(t, f.cached("https://x/old-busy.mp3"))

	// Disabled
	report = f.ev.SweepExpired(context.Background(), 0, nil)
	assert.Equal(t, 0, report.Evicted)
}

func TestEvictor_FeedbackFailureCountsAsNotLiked(t *testing.T) {
	f := newEvictorFixture(t, 100*mib)
	f.seed(t, "https://x/old.mp3", mib, 5, 40*day, 40*day)
	f.feedback.liked["https://x/old.mp3"] = true
	f.feedback.err = errors.New("feedback store offline")

	report := f.ev.SweepExpired(context.Background(), 30*day, nil)
	assert.Equal(t, 1, report.Evicted)
	assert.Equal(t, 1, f.logs.FilterField(zap.String("op", "feedback lookup")).Len())
}

func TestEvictor_EvictAll(t *testing.T) {
	f := newEvictorFixture(t, 100*mib)
	f.seed(t, "https://x/low.mp3", mib, 2, day, day)
	f.seed(t, "https://x/high.mp3", mib, domain.HighImportance, day, day)
	f.seed(t, "https://x/max.mp3", mib, domain.ImportanceMax, day, day)
	busy := f.seed(t, "https://x/busy.mp3", mib, 2, day, day)
	protected := map[domain.CacheKey]bool{busy.Key: true}

	report := f.ev.EvictAll(context.Background(), true, protected)
	assert.Equal(t, 1, report.Evicted)
	assert.Equal(t, 3, report.Skipped)
	assert.True(t, f.cached("https://x/high.mp3"))
	assert.True(t, f.cached("https://x/max.mp3"))

	report = f.ev.EvictAll(context.Background(), false, protected)
	assert.Equal(t, 2, report.Evicted)
	assert.Equal(t, 1, f.meta.Len())
	assert.True(t, f.cached("https://x/busy.mp3"))
	assert.Equal(t, 3, f.events.count(event.NameFileEvicted))
}

func TestEvictor_RemoveMissingFile(t *testing.T) {
	f := newEvictorFixture(t, 100*mib)
	entry := domain.NewCacheEntry("https://x/gone.mp3", domain.KeyFor("https://x/gone.mp3"), mib, "audio/mpeg", 5)
	f.meta.Put(entry)

	require.NoError(t, f.ev.Remove(entry))
	assert.Equal(t, 0, f.meta.Len())
	assert.Equal(t, int64(0), f.meta.TotalBytes())
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meta", "cache.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestStore_SaveLoadDelete(t *testing.T) {
	s, _ := openTestStore(t)

	url := "https://cdn.example.com/a.mp3"
	e := domain.NewCacheEntry(url, domain.KeyFor(url), 2_000_000, "audio/mpeg", 7)
	e.Liked = true
	require.NoError(t, s.Save(e))

	entries, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, e.Key, got.Key)
	assert.Equal(t, url, got.URL)
	assert.Equal(t, int64(2_000_000), got.FileSizeBytes)
	assert.Equal(t, domain.Importance(7), got.Importance)
	assert.Equal(t, "audio/mpeg", got.ContentType)
	assert.True(t, got.IsComplete)
	assert.True(t, got.Liked)
	assert.Equal(t, domain.EntrySchemaVersion, got.SchemaVersion)
	assert.True(t, e.CreatedAt.Equal(got.CreatedAt))

	require.NoError(t, s.Delete(e.Key))
	entries, err = s.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Deleting a missing key is fine
	assert.NoError(t, s.Delete(e.Key))
}

func TestStore_SaveReplaces(t *testing.T) {
	s, _ := openTestStore(t)

	e := domain.NewCacheEntry("u", domain.KeyFor("u"), 10, "", domain.DefaultImportance)
	require.NoError(t, s.Save(e))

	later := e.LastAccessedAt.Add(time.Hour)
	e.Touch(later, nil)
	require.NoError(t, s.Save(e))

	entries, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, later.Equal(entries[0].LastAccessedAt))
}

func TestStore_SurvivesReopen(t *testing.T) {
	s, path := openTestStore(t)

	e := domain.NewCacheEntry("u", domain.KeyFor("u"), 10, "audio/ogg", 3)
	require.NoError(t, s.Save(e))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.LoadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, e.Key, entries[0].Key)
}

func TestStore_Feedback(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	liked, err := s.IsLiked(ctx, "https://cdn.example.com/a.mp3")
	require.NoError(t, err)
	assert.False(t, liked, "unknown URL is not liked")

	require.NoError(t, s.SetLiked(ctx, "https://cdn.example.com/a.mp3", true))
	liked, err = s.IsLiked(ctx, "https://cdn.example.com/a.mp3")
	require.NoError(t, err)
	assert.True(t, liked)

	require.NoError(t, s.SetLiked(ctx, "https://cdn.example.com/a.mp3", false))
	liked, err = s.IsLiked(ctx, "https://cdn.example.com/a.mp3")
	require.NoError(t, err)
	assert.False(t, liked)
}

func TestStore_Ping(t *testing.T) {
	s, _ := openTestStore(t)
	assert.NoError(t, s.Ping())
}

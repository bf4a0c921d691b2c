package metastore

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/port"
)

// ReconcileReport summarizes a reconcile pass
type ReconcileReport struct {
	Removed []*domain.CacheEntry // entries whose file was missing
	Adopted int                  // files found without an entry
	Resized int                  // entries whose recorded size was corrected
}

// Store is the in-memory index of cache entries with write-through persistence.
// It is the only component that mutates CacheEntry records.
type Store struct {
	// writeMu orders mutations together with their repository writes,
	// so the persisted rows apply in the same order as the index changes.
	// It is always taken before mu.
	writeMu sync.Mutex
	mu      sync.RWMutex
	entries map[domain.CacheKey]*domain.CacheEntry
	total   int64

	repo   port.EntryRepository
	logger *zap.Logger
	now    func() time.Time
}

// New creates a new Store. repo may be nil for a memory-only store.
func New(repo port.EntryRepository, logger *zap.Logger) *Store {
	return &Store{
		entries: make(map[domain.CacheKey]*domain.CacheEntry),
		repo:    repo,
		logger:  logger,
		now:     time.Now,
	}
}

// Load replaces the index with the persisted entries.
// A repository failure is logged and leaves the store empty.
func (s *Store) Load() int {
	if s.repo == nil {
		return 0
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	loaded, err := s.repo.LoadAll()
	if err != nil {
		s.logger.Warn("failed to load cache metadata, starting empty", zap.Error(err))
		loaded = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[domain.CacheKey]*domain.CacheEntry, len(loaded))
	s.total = 0
	for _, e := range loaded {
		if e == nil || !e.Key.Valid() {
			continue
		}
		if old, ok := s.entries[e.Key]; ok {
			s.total -= old.FileSizeBytes
		}
		s.entries[e.Key] = e
		s.total += e.FileSizeBytes
	}

	s.logger.Info("cache metadata loaded",
		zap.Int("entries", len(s.entries)),
		zap.Int64("total_bytes", s.total))
	return len(s.entries)
}

// Get returns a copy of the entry for key, or nil
func (s *Store) Get(key domain.CacheKey) *domain.CacheEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key].Clone()
}

// Contains reports whether an entry exists for key
func (s *Store) Contains(key domain.CacheKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[key]
	return ok
}

// Put inserts or replaces the entry for entry.Key
func (s *Store) Put(entry *domain.CacheEntry) {
	c := entry.Clone()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if old, ok := s.entries[c.Key]; ok {
		s.total -= old.FileSizeBytes
	}
	s.entries[c.Key] = c
	s.total += c.FileSizeBytes
	s.mu.Unlock()

	s.persist(c)
}

// Remove deletes the entry for key and returns the removed entry, or nil
func (s *Store) Remove(key domain.CacheKey) *domain.CacheEntry {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	old, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
		s.total -= old.FileSizeBytes
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	s.unpersist(key)
	return old
}

// Touch records an access and applies an optional feedback signal.
// Returns the updated entry, or nil when key is unknown.
func (s *Store) Touch(key domain.CacheKey, signal *domain.FeedbackSignal) *domain.CacheEntry {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	e.Touch(s.now(), signal)
	c := e.Clone()
	s.mu.Unlock()

	s.persist(c)
	return c
}

// SetLiked records the positive-feedback flag of an entry, in either direction.
// Returns the updated entry, or nil when key is unknown.
func (s *Store) SetLiked(key domain.CacheKey, liked bool) *domain.CacheEntry {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	e.Liked = liked
	c := e.Clone()
	s.mu.Unlock()

	s.persist(c)
	return c
}

// TotalBytes returns the sum of FileSizeBytes over all entries
func (s *Store) TotalBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// All returns copies of all entries ordered by key
func (s *Store) All() []*domain.CacheEntry {
	s.mu.RLock()
	out := make([]*domain.CacheEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Reconcile aligns the index with the files found on disk.
// Entries written after listedAt are kept since the listing cannot have seen them.
func (s *Store) Reconcile(files []port.CachedFile, listedAt time.Time) ReconcileReport {
	var report ReconcileReport
	onDisk := make(map[domain.CacheKey]port.CachedFile, len(files))
	for _, f := range files {
		onDisk[f.Key] = f
	}

	var toSave []*domain.CacheEntry
	var toDelete []domain.CacheKey

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	for key, e := range s.entries {
		f, ok := onDisk[key]
		if !ok {
			if e.CreatedAt.After(listedAt) {
				continue
			}
			delete(s.entries, key)
			s.total -= e.FileSizeBytes
			report.Removed = append(report.Removed, e)
			toDelete = append(toDelete, key)
			continue
		}
		if f.Size != e.FileSizeBytes {
			s.total += f.Size - e.FileSizeBytes
			e.FileSizeBytes = f.Size
			report.Resized++
			toSave = append(toSave, e.Clone())
		}
	}

	for key, f := range onDisk {
		if _, ok := s.entries[key]; ok {
			continue
		}
		e := domain.AdoptedEntry(key, f.Size, f.ModTime)
		s.entries[key] = e
		s.total += e.FileSizeBytes
		report.Adopted++
		toSave = append(toSave, e.Clone())
	}
	s.mu.Unlock()

	for _, key := range toDelete {
		s.unpersist(key)
	}
	for _, e := range toSave {
		s.persist(e)
	}

	if len(report.Removed) > 0 || report.Adopted > 0 || report.Resized > 0 {
		s.logger.Info("cache metadata reconciled",
			zap.Int("removed", len(report.Removed)),
			zap.Int("adopted", report.Adopted),
			zap.Int("resized", report.Resized))
	}
	return report
}

// Close closes the underlying repository
func (s *Store) Close() error {
	if s.repo == nil {
		return nil
	}
	return s.repo.Close()
}

func (s *Store) persist(e *domain.CacheEntry) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(e); err != nil {
		s.logger.Warn("failed to persist cache entry",
			zap.String("key", e.Key.String()),
			zap.Error(err))
	}
}

func (s *Store) unpersist(key domain.CacheKey) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Delete(key); err != nil {
		s.logger.Warn("failed to delete persisted cache entry",
			zap.String("key", key.String()),
			zap.Error(err))
	}
}

package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/port"
)

// ErrCorruptSnapshot is returned when the snapshot file cannot be decoded at all
var ErrCorruptSnapshot = errors.New("corrupt metadata snapshot")

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// document is the on-disk layout
type document struct {
	Version int               `json:"version"`
	Entries []json.RawMessage `json:"entries"`
}

// Repository persists entries as one zstd-compressed JSON document.
// Every mutation rewrites the document through a temp file and rename.
type Repository struct {
	path    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu      sync.Mutex
	entries map[domain.CacheKey]*domain.CacheEntry
}

// Ensure Repository implements port.EntryRepository
var _ port.EntryRepository = (*Repository)(nil)

// Open creates a snapshot repository at path
func Open(path string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Repository{
		path:    path,
		encoder: encoder,
		decoder: decoder,
		entries: make(map[domain.CacheKey]*domain.CacheEntry),
	}, nil
}

// Path returns the snapshot file location
func (r *Repository) Path() string {
	return r.path
}

// LoadAll reads the snapshot and upgrades older records.
// Individual records that fail to decode are skipped.
func (r *Repository) LoadAll() ([]*domain.CacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[domain.CacheKey]*domain.CacheEntry)

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	if bytes.HasPrefix(data, zstdMagic) {
		data, err = r.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	out := make([]*domain.CacheEntry, 0, len(doc.Entries))
	for _, raw := range doc.Entries {
		e, ok := decodeEntry(raw)
		if !ok {
			continue
		}
		r.entries[e.Key] = e
		out = append(out, e.Clone())
	}
	return out, nil
}

// decodeEntry decodes one record and upgrades it to the current schema
func decodeEntry(raw json.RawMessage) (*domain.CacheEntry, bool) {
	var e domain.CacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	if e.SchemaVersion > domain.EntrySchemaVersion {
		return nil, false
	}
	if e.Key == "" && e.URL != "" {
		e.Key = domain.KeyFor(e.URL)
	}
	if !e.Key.Valid() {
		return nil, false
	}

	// Version 1 records predate feedback, which defaults to not liked
	if e.SchemaVersion < 2 {
		e.Liked = false
	}
	e.SchemaVersion = domain.EntrySchemaVersion
	e.Importance = e.Importance.Clamp()
	return &e, true
}

// Save inserts or replaces the entry and rewrites the snapshot
func (r *Repository) Save(entry *domain.CacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := entry.Clone()
	c.SchemaVersion = domain.EntrySchemaVersion
	r.entries[c.Key] = c
	return r.flushLocked()
}

// Delete removes the entry and rewrites the snapshot
func (r *Repository) Delete(key domain.CacheKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; !ok {
		return nil
	}
	delete(r.entries, key)
	return r.flushLocked()
}

// Close releases the codecs
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.decoder.Close()
	return r.encoder.Close()
}

func (r *Repository) flushLocked() error {
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	doc := document{
		Version: domain.EntrySchemaVersion,
		Entries: make([]json.RawMessage, 0, len(keys)),
	}
	for _, k := range keys {
		raw, err := json.Marshal(r.entries[domain.CacheKey(k)])
		if err != nil {
			return fmt.Errorf("failed to encode entry %s: %w", k, err)
		}
		doc.Entries = append(doc.Entries, raw)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	return writeAtomic(r.path, r.encoder.EncodeAll(data, nil))
}

// writeAtomic writes to a temp file first, then renames over path
func writeAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	if err == nil {
		err = file.Sync()
	}
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, path)
}

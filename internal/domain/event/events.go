package event

import (
	"time"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
)

// Event names
const (
	NameCacheHit         = "cache.hit"
	NameFileDownloaded   = "file.downloaded"
	NameFileEvicted      = "file.evicted"
	NameDownloadFailed   = "download.failed"
	NameDownloadDeferred = "download.deferred"
	NameRequestDropped   = "request.dropped"
	NameDegradedResult   = "result.degraded"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

func now() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// CacheHit is raised when a request is served from disk
type CacheHit struct {
	BaseEvent
	Key domain.CacheKey
	URL string
}

// EventName returns the event name
func (e CacheHit) EventName() string { return NameCacheHit }

// NewCacheHit creates a new CacheHit event
func NewCacheHit(key domain.CacheKey, rawURL string) CacheHit {
	return CacheHit{BaseEvent: now(), Key: key, URL: rawURL}
}

// FileDownloaded is raised when a file is validated and committed to the cache
type FileDownloaded struct {
	BaseEvent
	Key          domain.CacheKey
	URL          string
	CachePath    string
	Size         int64
	Attempts     int
	HighPriority bool
	Duration     time.Duration
}

// EventName returns the event name
func (e FileDownloaded) EventName() string { return NameFileDownloaded }

// NewFileDownloaded creates a new FileDownloaded event
func NewFileDownloaded(key domain.CacheKey, rawURL string, res *domain.DownloadResult, high bool, d time.Duration) FileDownloaded {
	return FileDownloaded{
		BaseEvent:    now(),
		Key:          key,
		URL:          rawURL,
		CachePath:    res.CachePath,
		Size:         res.BytesWritten,
		Attempts:     res.Attempts,
		HighPriority: high,
		Duration:     d,
	}
}

// Eviction reasons
const (
	ReasonSizePressure = "size_pressure"
	ReasonExpired      = "expired"
	ReasonEvictAll     = "evict_all"
	ReasonDeleted      = "deleted"
)

// FileEvicted is raised when a cached file is removed
type FileEvicted struct {
	BaseEvent
	Key        domain.CacheKey
	URL        string
	Size       int64
	Importance domain.Importance
	Score      float64
	Reason     string
}

// EventName returns the event name
func (e FileEvicted) EventName() string { return NameFileEvicted }

// NewFileEvicted creates a new FileEvicted event
func NewFileEvicted(entry *domain.CacheEntry, score float64, reason string) FileEvicted {
	return FileEvicted{
		BaseEvent:  now(),
		Key:        entry.Key,
		URL:        entry.URL,
		Size:       entry.FileSizeBytes,
		Importance: entry.Importance,
		Score:      score,
		Reason:     reason,
	}
}

// DownloadFailed is raised when a transfer ends without a committed file
type DownloadFailed struct {
	BaseEvent
	Key      domain.CacheKey
	URL      string
	Kind     domain.ErrorKind
	Error    string
	Attempts int
}

// EventName returns the event name
func (e DownloadFailed) EventName() string { return NameDownloadFailed }

// NewDownloadFailed creates a new DownloadFailed event
func NewDownloadFailed(key domain.CacheKey, rawURL string, err error, attempts int) DownloadFailed {
	kind, _ := domain.KindOf(err)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return DownloadFailed{
		BaseEvent: now(),
		Key:       key,
		URL:       rawURL,
		Kind:      kind,
		Error:     msg,
		Attempts:  attempts,
	}
}

// DownloadDeferred is raised when the device state postpones a transfer
type DownloadDeferred struct {
	BaseEvent
	Key domain.CacheKey
	URL string
}

// EventName returns the event name
func (e DownloadDeferred) EventName() string { return NameDownloadDeferred }

// NewDownloadDeferred creates a new DownloadDeferred event
func NewDownloadDeferred(key domain.CacheKey, rawURL string) DownloadDeferred {
	return DownloadDeferred{BaseEvent: now(), Key: key, URL: rawURL}
}

// RequestDropped is raised when a queued or incoming request loses its queue slot
type RequestDropped struct {
	BaseEvent
	Key        domain.CacheKey
	URL        string
	Importance domain.Importance
}

// EventName returns the event name
func (e RequestDropped) EventName() string { return NameRequestDropped }

// NewRequestDropped creates a new RequestDropped event
func NewRequestDropped(key domain.CacheKey, rawURL string, importance domain.Importance) RequestDropped {
	return RequestDropped{BaseEvent: now(), Key: key, URL: rawURL, Importance: importance}
}

// DegradedResult is raised when a caller receives the original URL instead of a file
type DegradedResult struct {
	BaseEvent
	Key    domain.CacheKey
	URL    string
	Reason string
}

// EventName returns the event name
func (e DegradedResult) EventName() string { return NameDegradedResult }

// NewDegradedResult creates a new DegradedResult event
func NewDegradedResult(key domain.CacheKey, rawURL string, reason error) DegradedResult {
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	return DegradedResult{BaseEvent: now(), Key: key, URL: rawURL, Reason: msg}
}

package domain

// CacheStats represents cache statistics
type CacheStats struct {
	EntryCount      int        `json:"entry_count"`
	CachedSizeBytes int64      `json:"cached_size_bytes"`
	MaxCacheBytes   int64      `json:"max_cache_bytes"`
	AvailableBytes  int64      `json:"available_bytes"`
	LikedCount      int        `json:"liked_count"`
	HighImportance  int        `json:"high_importance_count"`
	InFlight        int        `json:"in_flight"`
	Queue           QueueStats `json:"queue"`
}

package service

// DefaultLowWaterRatio is the fraction of the maximum size an eviction pass drains to
const DefaultLowWaterRatio = 0.7

// CachePolicy is a domain service that holds the size limits of the cache
type CachePolicy struct {
	maxCacheSize  int64
	lowWaterRatio float64
}

// NewCachePolicy creates a CachePolicy from a byte limit.
// A lowWaterRatio outside (0,1] falls back to DefaultLowWaterRatio.
func NewCachePolicy(maxCacheSize int64, lowWaterRatio float64) *CachePolicy {
	if lowWaterRatio <= 0 || lowWaterRatio > 1 {
		lowWaterRatio = DefaultLowWaterRatio
	}
	return &CachePolicy{
		maxCacheSize:  maxCacheSize,
		lowWaterRatio: lowWaterRatio,
	}
}

// HighWaterMark is the total size above which eviction starts
func (cp *CachePolicy) HighWaterMark() int64 {
	return cp.maxCacheSize
}

// LowWaterMark is the total size an eviction pass drains to
func (cp *CachePolicy) LowWaterMark() int64 {
	return int64(float64(cp.maxCacheSize) * cp.lowWaterRatio)
}

// ShouldEvict determines if eviction is needed
func (cp *CachePolicy) ShouldEvict(currentCacheSize int64) bool {
	return currentCacheSize > cp.HighWaterMark()
}

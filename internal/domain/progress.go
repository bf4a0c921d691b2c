package domain

// ProgressEvent reports bytes received for one transfer
type ProgressEvent struct {
	URL           string   `json:"url"`
	Key           CacheKey `json:"cache_key"`
	BytesReceived int64    `json:"bytes_received"`
	TotalBytes    int64    `json:"total_bytes"` // -1 when the server sent no length
	Fraction      float64  `json:"fraction"`
	HighPriority  bool     `json:"high_priority"`
}

// NewProgressEvent builds an event and derives the completed fraction
func NewProgressEvent(rawURL string, key CacheKey, received, total int64, high bool) ProgressEvent {
	var fraction float64
	if total > 0 {
		fraction = float64(received) / float64(total)
		if fraction > 1 {
			fraction = 1
		}
	}
	return ProgressEvent{
		URL:           rawURL,
		Key:           key,
		BytesReceived: received,
		TotalBytes:    total,
		Fraction:      fraction,
		HighPriority:  high,
	}
}

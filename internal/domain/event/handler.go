package event

import (
	"go.uber.org/zap"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case CacheHit:
		h.logger.Debug("cache hit",
			zap.String("key", e.Key.String()),
			zap.String("url", e.URL),
		)
	case FileDownloaded:
		h.logger.Info("file downloaded",
			zap.String("key", e.Key.String()),
			zap.String("url", e.URL),
			zap.String("cache_path", e.CachePath),
			zap.Int64("size", e.Size),
			zap.Int("attempts", e.Attempts),
			zap.Bool("high_priority", e.HighPriority),
			zap.Duration("duration", e.Duration),
		)
	case FileEvicted:
		h.logger.Info("file evicted",
			zap.String("key", e.Key.String()),
			zap.String("url", e.URL),
			zap.Int64("size", e.Size),
			zap.Int("importance", int(e.Importance)),
			zap.Float64("score", e.Score),
			zap.String("reason", e.Reason),
		)
	case DownloadFailed:
		h.logger.Warn("download failed",
			zap.String("key", e.Key.String()),
			zap.String("url", e.URL),
			zap.String("kind", string(e.Kind)),
			zap.String("error", e.Error),
			zap.Int("attempts", e.Attempts),
		)
	case DownloadDeferred:
		h.logger.Debug("download deferred",
			zap.String("key", e.Key.String()),
			zap.String("url", e.URL),
		)
	case RequestDropped:
		h.logger.Info("request dropped from queue",
			zap.String("key", e.Key.String()),
			zap.String("url", e.URL),
			zap.Int("importance", int(e.Importance)),
		)
	case DegradedResult:
		h.logger.Warn("serving original source",
			zap.String("key", e.Key.String()),
			zap.String("url", e.URL),
			zap.String("reason", e.Reason),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{"*"} // Handle all events
}

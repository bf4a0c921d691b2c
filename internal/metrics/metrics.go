// Package metrics exposes Prometheus metrics for the audio cache.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/domain/event"
)

const namespace = "audio_fetch_cache"

// StatsSource provides point-in-time cache statistics
type StatsSource interface {
	Stats() domain.CacheStats
}

// Metrics holds every collector of the cache
type Metrics struct {
	registry *prometheus.Registry

	CacheHits        prometheus.Counter
	Downloads        *prometheus.CounterVec
	DownloadBytes    prometheus.Counter
	DownloadDuration *prometheus.HistogramVec
	DownloadSize     prometheus.Histogram
	DownloadAttempts prometheus.Histogram
	Evictions        *prometheus.CounterVec
	EvictedBytes     *prometheus.CounterVec
	Deferred         prometheus.Counter
	Dropped          prometheus.Counter
	Degraded         prometheus.Counter
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New registers the cache collectors on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hits_total",
			Help:      "Requests served from a cached file",
		}),
		Downloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Finished transfers by outcome",
		}, []string{"outcome"}),
		DownloadBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes committed to the cache",
		}),
		DownloadDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Duration of successful transfers",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"priority"}),
		DownloadSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_size_bytes",
			Help:      "Size of committed files",
			// 64KiB to 256MiB
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		}),
		DownloadAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_attempts",
			Help:      "Attempts needed per finished transfer",
			Buckets:   []float64{1, 2, 3, 5},
		}),
		Evictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Removed cache entries by reason",
		}, []string{"reason"}),
		EvictedBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evicted_bytes_total",
			Help:      "Bytes freed by eviction by reason",
		}, []string{"reason"}),
		Deferred: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deferred_total",
			Help:      "Transfers postponed by device state",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Requests that lost their queue slot",
		}),
		Degraded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_total",
			Help:      "Callers told to play from the source URL",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Admin API requests",
		}, []string{"method", "path", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Admin API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// RegisterStats exposes gauges read from src on every scrape
func (m *Metrics) RegisterStats(src StatsSource) {
	m.registry.MustRegister(&statsCollector{src: src})
}

// RegisterRuntime adds the Go runtime and process collectors
func (m *Metrics) RegisterRuntime() {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the scrape endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one admin API request
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Handle updates counters from domain events
func (m *Metrics) Handle(ev event.DomainEvent) error {
	switch e := ev.(type) {
	case event.CacheHit:
		m.CacheHits.Inc()
	case event.FileDownloaded:
		m.Downloads.WithLabelValues("success").Inc()
		m.DownloadBytes.Add(float64(e.Size))
		m.DownloadSize.Observe(float64(e.Size))
		m.DownloadAttempts.Observe(float64(e.Attempts))
		m.DownloadDuration.WithLabelValues(priorityLabel(e.HighPriority)).Observe(e.Duration.Seconds())
	case event.DownloadFailed:
		m.Downloads.WithLabelValues(string(e.Kind)).Inc()
		if e.Attempts > 0 {
			m.DownloadAttempts.Observe(float64(e.Attempts))
		}
	case event.FileEvicted:
		m.Evictions.WithLabelValues(e.Reason).Inc()
		m.EvictedBytes.WithLabelValues(e.Reason).Add(float64(e.Size))
	case event.DownloadDeferred:
		m.Deferred.Inc()
	case event.RequestDropped:
		m.Dropped.Inc()
	case event.DegradedResult:
		m.Degraded.Inc()
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (m *Metrics) HandledEvents() []string {
	return []string{"*"}
}

func priorityLabel(high bool) string {
	if high {
		return "high"
	}
	return "normal"
}

var (
	entriesDesc = prometheus.NewDesc(namespace+"_entries",
		"Cached entries", nil, nil)
	sizeDesc = prometheus.NewDesc(namespace+"_size_bytes",
		"Bytes held by cached files", nil, nil)
	maxSizeDesc = prometheus.NewDesc(namespace+"_max_size_bytes",
		"Configured cache size limit", nil, nil)
	availableDesc = prometheus.NewDesc(namespace+"_available_bytes",
		"Bytes that can still be cached", nil, nil)
	likedDesc = prometheus.NewDesc(namespace+"_liked_entries",
		"Cached entries the listener liked", nil, nil)
	inFlightDesc = prometheus.NewDesc(namespace+"_in_flight",
		"Requests queued or transferring", nil, nil)
	queuedDesc = prometheus.NewDesc(namespace+"_queue_length",
		"Requests waiting for a transfer slot", []string{"priority"}, nil)
	activeDesc = prometheus.NewDesc(namespace+"_active_transfers",
		"Transfers currently running", nil, nil)
)

type statsCollector struct {
	src StatsSource
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- entriesDesc
	ch <- sizeDesc
	ch <- maxSizeDesc
	ch <- availableDesc
	ch <- likedDesc
	ch <- inFlightDesc
	ch <- queuedDesc
	ch <- activeDesc
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	gauge(entriesDesc, float64(s.EntryCount))
	gauge(sizeDesc, float64(s.CachedSizeBytes))
	gauge(maxSizeDesc, float64(s.MaxCacheBytes))
	gauge(availableDesc, float64(s.AvailableBytes))
	gauge(likedDesc, float64(s.LikedCount))
	gauge(inFlightDesc, float64(s.InFlight))
	gauge(queuedDesc, float64(s.Queue.HighPriorityCount), "high")
	gauge(queuedDesc, float64(s.Queue.QueuedCount-s.Queue.HighPriorityCount), "normal")
	gauge(activeDesc, float64(s.Queue.ActiveCount))
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. AUDIO_FETCH_CACHE_CACHE_MAX_SIZE
const EnvPrefix = "AUDIO_FETCH_CACHE"

// Config represents the entire application configuration
type Config struct {
	Cache       CacheConfig       `mapstructure:"cache"`
	Download    DownloadConfig    `mapstructure:"download"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Eviction    EvictionConfig    `mapstructure:"eviction"`
	Device      DeviceConfig      `mapstructure:"device"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// CacheConfig contains cache settings
type CacheConfig struct {
	RootDir             string  `mapstructure:"root_dir" validate:"required"`
	MaxSize             string  `mapstructure:"max_size" validate:"required"`
	MaxDiskUsagePercent float64 `mapstructure:"max_disk_usage_percent" validate:"gte=0,lte=100"`
	MaxAge              string  `mapstructure:"max_age"`
	FetchTimeout        string  `mapstructure:"fetch_timeout"`
}

// DownloadConfig contains transfer settings
type DownloadConfig struct {
	MaxAttempts           int      `mapstructure:"max_attempts" validate:"min=1,max=10"`
	RetryDelay            string   `mapstructure:"retry_delay"`
	TransferTimeout       string   `mapstructure:"transfer_timeout"`
	MaxFileSize           string   `mapstructure:"max_file_size"`
	HighPriorityChunkSize string   `mapstructure:"high_priority_chunk_size"`
	LowPriorityChunkSize  string   `mapstructure:"low_priority_chunk_size"`
	LowPriorityBandwidth  string   `mapstructure:"low_priority_bandwidth"` // per second, 0 = unlimited
	RejectTTL             string   `mapstructure:"reject_ttl"`
	AllowedContentTypes   []string `mapstructure:"allowed_content_types"`
	UserAgent             string   `mapstructure:"user_agent"`
	SkipTLSVerify         bool     `mapstructure:"skip_tls_verify"`
	ResponseHeaderTimeout string   `mapstructure:"response_header_timeout"`
}

// QueueConfig contains scheduler settings
type QueueConfig struct {
	MaxConcurrent     int    `mapstructure:"max_concurrent" validate:"min=1,max=16"`
	HighPriorityBurst int    `mapstructure:"high_priority_burst" validate:"min=0,max=8"`
	Capacity          int    `mapstructure:"capacity" validate:"min=1"`
	TieBreak          string `mapstructure:"tie_break" validate:"oneof=newest oldest"`
}

// EvictionConfig contains scoring settings
type EvictionConfig struct {
	LowWaterRatio     float64 `mapstructure:"low_water_ratio" validate:"gt=0,lte=1"`
	RecencyWeight     float64 `mapstructure:"recency_weight" validate:"gte=0"`
	ImportanceWeight  float64 `mapstructure:"importance_weight" validate:"gte=0"`
	FeedbackWeight    float64 `mapstructure:"feedback_weight" validate:"gte=0"`
	SmallFileWeight   float64 `mapstructure:"small_file_weight" validate:"gte=0"`
	RecencySaturation string  `mapstructure:"recency_saturation"`
	SmallFileSize     string  `mapstructure:"small_file_size"`
}

// DeviceConfig contains device gating settings
type DeviceConfig struct {
	StateFile         string `mapstructure:"state_file"` // empty = always allowed
	MinBatteryPercent int    `mapstructure:"min_battery_percent" validate:"gte=0,lte=100"`
	RequireUnmetered  bool   `mapstructure:"require_unmetered"`
	PollInterval      string `mapstructure:"poll_interval"`
}

// MaintenanceConfig contains periodic task settings
type MaintenanceConfig struct {
	ReconcileInterval     string `mapstructure:"reconcile_interval"`
	EvictionCheckInterval string `mapstructure:"eviction_check_interval"`
	SweepInterval         string `mapstructure:"sweep_interval"`
	CleanupInterval       string `mapstructure:"cleanup_interval"`
	TempFileMaxAge        string `mapstructure:"temp_file_max_age"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BindAddr      string `mapstructure:"bind_addr" validate:"required_if=Enabled true"`
	AdminUsername string `mapstructure:"admin_username"`
	AdminPassword string `mapstructure:"admin_password"`
	ReadTimeout   string `mapstructure:"read_timeout"`
	WriteTimeout  string `mapstructure:"write_timeout"`
	IdleTimeout   string `mapstructure:"idle_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	File       string `mapstructure:"file"` // empty = stderr
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig contains metadata persistence settings
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite snapshot memory"`
	Path   string `mapstructure:"path"` // empty = <cache.root_dir>/cache.db or cache.snapshot
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Runtime bool `mapstructure:"runtime"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.root_dir", "/var/lib/audio-fetch-cache")
	v.SetDefault("cache.max_size", "500MiB")
	v.SetDefault("cache.max_disk_usage_percent", 90)
	v.SetDefault("cache.max_age", "720h")
	v.SetDefault("cache.fetch_timeout", "30s")
	v.SetDefault("download.max_attempts", 3)
	v.SetDefault("download.retry_delay", "2s")
	v.SetDefault("download.transfer_timeout", "2m")
	v.SetDefault("download.max_file_size", "200MiB")
	v.SetDefault("download.high_priority_chunk_size", "256KiB")
	v.SetDefault("download.low_priority_chunk_size", "32KiB")
	v.SetDefault("download.low_priority_bandwidth", "0")
	v.SetDefault("download.reject_ttl", "10m")
	v.SetDefault("download.allowed_content_types", []string{})
	v.SetDefault("download.user_agent", "audio-fetch-cache/1.0")
	v.SetDefault("download.skip_tls_verify", false)
	v.SetDefault("download.response_header_timeout", "30s")
	v.SetDefault("queue.max_concurrent", 3)
	v.SetDefault("queue.high_priority_burst", 1)
	v.SetDefault("queue.capacity", 50)
	v.SetDefault("queue.tie_break", "newest")
	v.SetDefault("eviction.low_water_ratio", 0.7)
	v.SetDefault("eviction.recency_weight", 0.4)
	v.SetDefault("eviction.importance_weight", 0.4)
	v.SetDefault("eviction.feedback_weight", 0.5)
	v.SetDefault("eviction.small_file_weight", 0.1)
	v.SetDefault("eviction.recency_saturation", "168h")
	v.SetDefault("eviction.small_file_size", "10MiB")
	v.SetDefault("device.state_file", "")
	v.SetDefault("device.min_battery_percent", 15)
	v.SetDefault("device.require_unmetered", false)
	v.SetDefault("device.poll_interval", "30s")
	v.SetDefault("maintenance.reconcile_interval", "15m")
	v.SetDefault("maintenance.eviction_check_interval", "1m")
	v.SetDefault("maintenance.sweep_interval", "1h")
	v.SetDefault("maintenance.cleanup_interval", "1h")
	v.SetDefault("maintenance.temp_file_max_age", "24h")
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.bind_addr", "127.0.0.1:8080")
	v.SetDefault("http.admin_username", "")
	v.SetDefault("http.admin_password", "")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "60s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.runtime", true)
}

// Load loads configuration from the specified file path.
// An empty path uses defaults and environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	// Sizes
	sizes := map[string]string{
		"cache.max_size":                    c.Cache.MaxSize,
		"download.max_file_size":            c.Download.MaxFileSize,
		"download.high_priority_chunk_size": c.Download.HighPriorityChunkSize,
		"download.low_priority_chunk_size":  c.Download.LowPriorityChunkSize,
		"download.low_priority_bandwidth":   c.Download.LowPriorityBandwidth,
		"eviction.small_file_size":          c.Eviction.SmallFileSize,
	}
	for name, value := range sizes {
		if _, err := parseSize(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if c.Cache.GetMaxSizeBytes() <= 0 {
		return fmt.Errorf("cache.max_size must be positive")
	}
	if c.Download.GetHighPriorityChunkSize() <= 0 || c.Download.GetLowPriorityChunkSize() <= 0 {
		return fmt.Errorf("download chunk sizes must be positive")
	}

	// Durations
	durations := map[string]string{
		"cache.max_age":                       c.Cache.MaxAge,
		"cache.fetch_timeout":                 c.Cache.FetchTimeout,
		"download.retry_delay":                c.Download.RetryDelay,
		"download.transfer_timeout":           c.Download.TransferTimeout,
		"download.reject_ttl":                 c.Download.RejectTTL,
		"download.response_header_timeout":    c.Download.ResponseHeaderTimeout,
		"eviction.recency_saturation":         c.Eviction.RecencySaturation,
		"device.poll_interval":                c.Device.PollInterval,
		"maintenance.reconcile_interval":      c.Maintenance.ReconcileInterval,
		"maintenance.eviction_check_interval": c.Maintenance.EvictionCheckInterval,
		"maintenance.sweep_interval":          c.Maintenance.SweepInterval,
		"maintenance.cleanup_interval":        c.Maintenance.CleanupInterval,
		"maintenance.temp_file_max_age":       c.Maintenance.TempFileMaxAge,
		"http.read_timeout":                   c.HTTP.ReadTimeout,
		"http.write_timeout":                  c.HTTP.WriteTimeout,
		"http.idle_timeout":                   c.HTTP.IdleTimeout,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if c.Cache.GetFetchTimeout() <= 0 {
		return fmt.Errorf("cache.fetch_timeout must be positive")
	}

	if c.HTTP.AdminUsername != "" && c.HTTP.AdminPassword == "" {
		return fmt.Errorf("http.admin_password is required when http.admin_username is set")
	}

	return nil
}

// parseSize accepts human sizes such as "500MiB", "1.5GB" or plain byte counts
func parseSize(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

func mustSize(s string) int64 {
	n, _ := parseSize(s)
	return n
}

func duration(s string, def time.Duration) time.Duration {
	d, _ := time.ParseDuration(s)
	if d == 0 {
		return def
	}
	return d
}

// GetMaxSizeBytes returns the cache size limit in bytes
func (c *CacheConfig) GetMaxSizeBytes() int64 {
	return mustSize(c.MaxSize)
}

// GetMaxAge returns the entry age limit; 0 disables the age sweep
func (c *CacheConfig) GetMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.MaxAge)
	return d
}

// GetFetchTimeout returns how long GetOrFetch waits before degrading
func (c *CacheConfig) GetFetchTimeout() time.Duration {
	return duration(c.FetchTimeout, 30*time.Second)
}

// GetRetryDelay returns the base retry delay
func (c *DownloadConfig) GetRetryDelay() time.Duration {
	return duration(c.RetryDelay, 2*time.Second)
}

// GetTransferTimeout returns the per-attempt transfer deadline
func (c *DownloadConfig) GetTransferTimeout() time.Duration {
	return duration(c.TransferTimeout, 2*time.Minute)
}

// GetMaxFileSize returns the per-file size limit in bytes
func (c *DownloadConfig) GetMaxFileSize() int64 {
	return mustSize(c.MaxFileSize)
}

// GetHighPriorityChunkSize returns the read size for high-priority transfers
func (c *DownloadConfig) GetHighPriorityChunkSize() int {
	return int(mustSize(c.HighPriorityChunkSize))
}

// GetLowPriorityChunkSize returns the read size for normal transfers
func (c *DownloadConfig) GetLowPriorityChunkSize() int {
	return int(mustSize(c.LowPriorityChunkSize))
}

// GetLowPriorityBandwidth returns the normal-priority byte rate, 0 when unlimited
func (c *DownloadConfig) GetLowPriorityBandwidth() int64 {
	return mustSize(c.LowPriorityBandwidth)
}

// GetRejectTTL returns how long invalid content is remembered; 0 disables it
func (c *DownloadConfig) GetRejectTTL() time.Duration {
	d, _ := time.ParseDuration(c.RejectTTL)
	return d
}

// GetResponseHeaderTimeout returns the transport header timeout
func (c *DownloadConfig) GetResponseHeaderTimeout() time.Duration {
	return duration(c.ResponseHeaderTimeout, 30*time.Second)
}

// GetRecencySaturation returns the idle time at which recency stops counting
func (c *EvictionConfig) GetRecencySaturation() time.Duration {
	return duration(c.RecencySaturation, 7*24*time.Hour)
}

// GetSmallFileSize returns the size at which the small-file bonus reaches zero
func (c *EvictionConfig) GetSmallFileSize() int64 {
	if n := mustSize(c.SmallFileSize); n > 0 {
		return n
	}
	return 10 * 1024 * 1024
}

// GetPollInterval returns the device state poll interval
func (c *DeviceConfig) GetPollInterval() time.Duration {
	return duration(c.PollInterval, 30*time.Second)
}

// GetReconcileInterval returns the reconcile interval
func (c *MaintenanceConfig) GetReconcileInterval() time.Duration {
	return duration(c.ReconcileInterval, 15*time.Minute)
}

// GetEvictionCheckInterval returns the size check interval
func (c *MaintenanceConfig) GetEvictionCheckInterval() time.Duration {
	return duration(c.EvictionCheckInterval, time.Minute)
}

// GetSweepInterval returns the age sweep interval
func (c *MaintenanceConfig) GetSweepInterval() time.Duration {
	return duration(c.SweepInterval, time.Hour)
}

// GetCleanupInterval returns the temp file cleanup interval
func (c *MaintenanceConfig) GetCleanupInterval() time.Duration {
	return duration(c.CleanupInterval, time.Hour)
}

// GetTempFileMaxAge returns the age at which temp files are removed
func (c *MaintenanceConfig) GetTempFileMaxAge() time.Duration {
	return duration(c.TempFileMaxAge, 24*time.Hour)
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	return duration(c.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	return duration(c.WriteTimeout, 60*time.Second)
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	return duration(c.IdleTimeout, 60*time.Second)
}

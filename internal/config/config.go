package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Tracking    TrackingConfig    `mapstructure:"tracking"`
	EventSource EventSourceConfig `mapstructure:"event_source"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Retention   RetentionConfig   `mapstructure:"retention"`
	Apps        AppsConfig        `mapstructure:"apps"`
}

// TrackingConfig defines recompute and reserved-key settings
type TrackingConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Interval      string   `mapstructure:"interval"`
	Timezone      string   `mapstructure:"timezone"`
	SelfKey       string   `mapstructure:"self_key"`
	LauncherKey   string   `mapstructure:"launcher_key"`
	ShellKey      string   `mapstructure:"shell_key"`
	ReservedKeys  []string `mapstructure:"reserved_keys"`
	ProbeInterval string   `mapstructure:"probe_interval"`
}

// EventSourceConfig selects where raw platform events are read from
type EventSourceConfig struct {
	Type string `mapstructure:"type"` // "store" or "file"
	Path string `mapstructure:"path"` // JSON lines file for "file"
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Path  string      `mapstructure:"path"`
	Type  string      `mapstructure:"type"` // "bolt", "redis" or "sqlite"
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig defines the metrics HTTP listener
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`
}

// RetentionConfig defines pruning of old data. Zero days keeps data forever.
type RetentionConfig struct {
	RunAt          string `mapstructure:"run_at"`
	EventDays      int    `mapstructure:"event_days"`
	DailyUsageDays int    `mapstructure:"daily_usage_days"`
}

// AppsConfig defines app inventory settings
type AppsConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("SCREENTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns a viper instance populated only with default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Tracking defaults
	v.SetDefault("tracking.enabled", true)
	v.SetDefault("tracking.interval", "10s")
	v.SetDefault("tracking.timezone", "Local")
	v.SetDefault("tracking.self_key", "screentime")
	v.SetDefault("tracking.launcher_key", "")
	v.SetDefault("tracking.shell_key", "com.android.systemui")
	v.SetDefault("tracking.reserved_keys", []string{})
	v.SetDefault("tracking.probe_interval", "30s")

	// Event source defaults
	v.SetDefault("event_source.type", "store")
	v.SetDefault("event_source.path", "")

	// Storage defaults
	v.SetDefault("storage.path", "/var/lib/screentime/screentime.bolt")
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.bind_address", "127.0.0.1")
	v.SetDefault("metrics.port", 9464)

	// Retention defaults
	v.SetDefault("retention.run_at", "03:00")
	v.SetDefault("retention.event_days", 7)
	v.SetDefault("retention.daily_usage_days", 0)

	// App inventory defaults
	v.SetDefault("apps.cache_size", 256)
}

// validate validates the configuration
func validate(cfg *Config) error {
	if _, err := cfg.Tracking.IntervalDuration(); err != nil {
		return fmt.Errorf("invalid tracking interval: %w", err)
	}
	if _, err := cfg.Tracking.ProbeIntervalDuration(); err != nil {
		return fmt.Errorf("invalid probe interval: %w", err)
	}
	if _, err := cfg.Tracking.Location(); err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}
	if cfg.Tracking.SelfKey == "" {
		return fmt.Errorf("tracking self_key is required")
	}

	switch cfg.EventSource.Type {
	case "store":
	case "file":
		if cfg.EventSource.Path == "" {
			return fmt.Errorf("event_source path is required for file source")
		}
	default:
		return fmt.Errorf("unknown event_source type: %s", cfg.EventSource.Type)
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", cfg.Metrics.Port)
	}

	if _, err := time.Parse("15:04", cfg.Retention.RunAt); err != nil {
		return fmt.Errorf("invalid retention run_at: %s", cfg.Retention.RunAt)
	}
	if cfg.Retention.EventDays < 0 || cfg.Retention.DailyUsageDays < 0 {
		return fmt.Errorf("retention days must not be negative")
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "bolt"
	}

	switch cfg.Storage.Type {
	case "bolt", "sqlite":
		// Validate storage path
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
		// Ensure storage directory exists
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}

	return nil
}

// IntervalDuration parses the recompute interval.
func (t TrackingConfig) IntervalDuration() (time.Duration, error) {
	return positiveDuration(t.Interval)
}

// ProbeIntervalDuration parses the availability probe interval.
func (t TrackingConfig) ProbeIntervalDuration() (time.Duration, error) {
	return positiveDuration(t.ProbeInterval)
}

// Location resolves the configured timezone; "" and "Local" mean time.Local.
func (t TrackingConfig) Location() (*time.Location, error) {
	if t.Timezone == "" || t.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(t.Timezone)
}

func positiveDuration(value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %s", value)
	}
	return d, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Source catalogue.
	SourcesFile string
	AlertHubURL string

	// Geocode dataset.
	GeocodeDir       string
	GeocodeCacheSize int

	DatabaseURL string

	// Notification transport.
	KafkaBrokers     []string
	KafkaNotifyTopic string
	NotifyEnabled    bool

	// Optional shared document cache and CAP archive.
	RedisURL      string
	ArchiveBucket string
	AWSRegion     string

	// Fetching and cycle scheduling.
	FetchTimeout  time.Duration
	FetchRetries  int
	FetchRate     float64
	CycleInterval time.Duration
	CycleTimeout  time.Duration
	Workers       int
	MaxVertices   int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	cycleInterval, err := parseDuration("CYCLE_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	cycleTimeout, err := parseDuration("CYCLE_TIMEOUT", "4m")
	if err != nil {
		return nil, err
	}

	fetchRetries, err := parseInt("FETCH_RETRIES", 2, 0)
	if err != nil {
		return nil, err
	}
	workers, err := parseInt("WORKERS", 8, 1)
	if err != nil {
		return nil, err
	}
	maxVertices, err := parseInt("MAX_VERTICES", 50000, 4)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("GEOCODE_CACHE_SIZE", 1000, 1)
	if err != nil {
		return nil, err
	}

	fetchRate, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("FETCH_RATE", "20"), 64)
	if err != nil || fetchRate < 0 {
		return nil, errors.New("invalid FETCH_RATE")
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		SourcesFile: sharedcfg.EnvOrDefault("SOURCES_FILE", "sources.yaml"),
		AlertHubURL: os.Getenv("ALERT_HUB_URL"),

		GeocodeDir:       sharedcfg.EnvOrDefault("GEOCODE_DIR", "data/geocodes"),
		GeocodeCacheSize: cacheSize,

		DatabaseURL: os.Getenv("DATABASE_URL"),

		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaNotifyTopic: sharedcfg.EnvOrDefault("KAFKA_NOTIFY_TOPIC", "cap-alert-notifications"),
		NotifyEnabled:    sharedcfg.EnvOrDefault("NOTIFY_ENABLED", "true") == "true",

		RedisURL:      os.Getenv("REDIS_URL"),
		ArchiveBucket: os.Getenv("ARCHIVE_BUCKET"),
		AWSRegion:     os.Getenv("AWS_REGION"),

		FetchTimeout:  fetchTimeout,
		FetchRetries:  fetchRetries,
		FetchRate:     fetchRate,
		CycleInterval: cycleInterval,
		CycleTimeout:  cycleTimeout,
		Workers:       workers,
		MaxVertices:   maxVertices,
	}

	if cfg.NotifyEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaNotifyTopic == "" {
			return nil, errors.New("KAFKA_NOTIFY_TOPIC is required")
		}
	}
	if cfg.ArchiveBucket != "" && cfg.AWSRegion == "" {
		return nil, errors.New("ARCHIVE_BUCKET is set but AWS_REGION is not")
	}
	if cfg.CycleTimeout > cfg.CycleInterval {
		return nil, errors.New("CYCLE_TIMEOUT must not exceed CYCLE_INTERVAL")
	}

	return cfg, nil
}

// RequireDatabase reports an error when no DATABASE_URL is configured. Commands
// that never touch storage skip this check.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def, minimum int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

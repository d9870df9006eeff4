package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "sources.yaml", cfg.SourcesFile)
	assert.Empty(t, cfg.AlertHubURL)
	assert.Equal(t, "data/geocodes", cfg.GeocodeDir)
	assert.Equal(t, 1000, cfg.GeocodeCacheSize)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "cap-alert-notifications", cfg.KafkaNotifyTopic)
	assert.True(t, cfg.NotifyEnabled)
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.ArchiveBucket)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 2, cfg.FetchRetries)
	assert.InDelta(t, 20.0, cfg.FetchRate, 0)
	assert.Equal(t, 5*time.Minute, cfg.CycleInterval)
	assert.Equal(t, 4*time.Minute, cfg.CycleTimeout)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 50000, cfg.MaxVertices)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("SOURCES_FILE", "/etc/cap/sources.yaml")
	t.Setenv("ALERT_HUB_URL", "https://hub.example/json")
	t.Setenv("GEOCODE_DIR", "/srv/geocodes")
	t.Setenv("GEOCODE_CACHE_SIZE", "50")
	t.Setenv("DATABASE_URL", "postgres://cap@db/cap")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_NOTIFY_TOPIC", "alerts")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("ARCHIVE_BUCKET", "cap-archive")
	t.Setenv("AWS_REGION", "eu-central-1")
	t.Setenv("FETCH_TIMEOUT", "3s")
	t.Setenv("FETCH_RETRIES", "0")
	t.Setenv("FETCH_RATE", "2.5")
	t.Setenv("CYCLE_INTERVAL", "1m")
	t.Setenv("CYCLE_TIMEOUT", "50s")
	t.Setenv("WORKERS", "3")
	t.Setenv("MAX_VERTICES", "1000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/etc/cap/sources.yaml", cfg.SourcesFile)
	assert.Equal(t, "https://hub.example/json", cfg.AlertHubURL)
	assert.Equal(t, "/srv/geocodes", cfg.GeocodeDir)
	assert.Equal(t, 50, cfg.GeocodeCacheSize)
	assert.Equal(t, "postgres://cap@db/cap", cfg.DatabaseURL)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "alerts", cfg.KafkaNotifyTopic)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
	assert.Equal(t, "cap-archive", cfg.ArchiveBucket)
	assert.Equal(t, "eu-central-1", cfg.AWSRegion)
	assert.Equal(t, 3*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 0, cfg.FetchRetries)
	assert.InDelta(t, 2.5, cfg.FetchRate, 0)
	assert.Equal(t, time.Minute, cfg.CycleInterval)
	assert.Equal(t, 50*time.Second, cfg.CycleTimeout)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 1000, cfg.MaxVertices)
	assert.NoError(t, cfg.RequireDatabase())
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"FETCH_TIMEOUT", "bad"},
		{"FETCH_TIMEOUT", "-1s"},
		{"CYCLE_INTERVAL", "0s"},
		{"CYCLE_TIMEOUT", "soon"},
		{"FETCH_RETRIES", "-1"},
		{"FETCH_RATE", "fast"},
		{"FETCH_RATE", "-3"},
		{"WORKERS", "0"},
		{"MAX_VERTICES", "3"},
		{"GEOCODE_CACHE_SIZE", "many"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_CycleTimeoutExceedsInterval(t *testing.T) {
	t.Setenv("CYCLE_INTERVAL", "1m")
	t.Setenv("CYCLE_TIMEOUT", "2m")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CYCLE_TIMEOUT")
}

func TestLoad_ArchiveBucketWithoutRegion(t *testing.T) {
	t.Setenv("ARCHIVE_BUCKET", "cap-archive")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AWS_REGION")
}

func TestLoad_NotifyDisabledSkipsKafkaChecks(t *testing.T) {
	t.Setenv("NOTIFY_ENABLED", "false")
	t.Setenv("KAFKA_NOTIFY_TOPIC", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.NotifyEnabled)
}

func TestRequireDatabase(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	err = cfg.RequireDatabase()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, SourceHTTP, cfg.Source.Kind)
	assert.Equal(t, [3]int{1, 0, 1}, cfg.Forecast.Order)
	assert.Equal(t, [4]int{1, 1, 1, 24}, cfg.Forecast.SeasonalOrder)
	assert.Equal(t, 0.95, cfg.Forecast.Confidence)
	assert.Equal(t, 2*time.Minute, cfg.Processor.Timeout)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Empty(t, cfg.Store.RedisURL)

	loc, err := cfg.Source.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	t.Setenv("SOURCE_KIND", "INFLUX")
	t.Setenv("FORECAST_TIMEOUT", "30s")
	t.Setenv("FORECAST_SEASONAL_ORDER", "0, 1, 1, 24")
	t.Setenv("FORECAST_ORDER", "bad")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("PROCESSOR_WORKER_COUNT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, SourceInflux, cfg.Source.Kind)
	assert.Equal(t, 30*time.Second, cfg.Processor.Timeout)
	assert.Equal(t, [4]int{0, 1, 1, 24}, cfg.Forecast.SeasonalOrder)
	assert.Equal(t, [3]int{1, 0, 1}, cfg.Forecast.Order)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 4, cfg.Processor.WorkerCount)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("FORECAST_MAX_HOURS=48\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Cleanup(func() { os.Unsetenv("FORECAST_MAX_HOURS") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 48, cfg.Forecast.MaxHorizon)
}

func TestValidate(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
		msg    string
	}{
		{"unknown source", func(c *Config) { c.Source.Kind = "ftp" }, "unknown SOURCE_KIND"},
		{"workers", func(c *Config) { c.Processor.WorkerCount = 0 }, "PROCESSOR_WORKER_COUNT"},
		{"confidence", func(c *Config) { c.Forecast.Confidence = 1 }, "FORECAST_CONFIDENCE"},
		{"horizon", func(c *Config) { c.Forecast.MaxHorizon = 1 }, "forecast horizons"},
		{"orders", func(c *Config) { c.Forecast.Order[0] = -1 }, "non-negative"},
		{"timezone", func(c *Config) { c.Source.Timezone = "Mars/Olympus" }, "SOURCE_TIMEZONE"},
		{"kafka", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.RequestTopic = "" }, "KAFKA_REQUEST_TOPIC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Processor.WorkerCount = -1
	cfg.Forecast.Confidence = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
}

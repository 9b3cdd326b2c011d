package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Source    SourceConfig
	InfluxDB  InfluxDBConfig
	Kafka     KafkaConfig
	Processor ProcessorConfig
	Forecast  ForecastConfig
	Store     StoreConfig
	Billing   BillingConfig
	Log       LogConfig
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Reading source kinds.
const (
	SourceHTTP   = "http"
	SourceInflux = "influx"
)

// SourceConfig selects and configures where meter readings come from
type SourceConfig struct {
	Kind           string
	URL            string
	Timeout        time.Duration
	Attempts       int
	InitialBackoff time.Duration
	Timezone       string
	PreviewLimit   int
}

// Location resolves the configured timezone.
func (c SourceConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// InfluxDBConfig holds InfluxDB-related configuration
type InfluxDBConfig struct {
	URL         string
	Org         string
	Token       string
	Bucket      string
	Measurement string
	Field       string
	Lookback    time.Duration
}

// KafkaConfig holds Kafka-related configuration
type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	RequestTopic  string
	ResultTopic   string
	GroupID       string
	ConsumerCount int
}

// ProcessorConfig holds processor-related configuration
type ProcessorConfig struct {
	WorkerCount int
	QueueSize   int
	Timeout     time.Duration
}

// ForecastConfig holds model orders and forecast limits
type ForecastConfig struct {
	Order          [3]int
	SeasonalOrder  [4]int
	Confidence     float64
	DefaultHorizon int
	MaxHorizon     int
	MaxIterations  int
}

// StoreConfig holds result store configuration. An empty RedisURL keeps results in memory.
type StoreConfig struct {
	RedisURL   string
	TTL        time.Duration
	MaxEntries int
}

// BillingConfig holds billing configuration
type BillingConfig struct {
	Enabled   bool
	RatesFile string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from a .env file, if present, and environment variables with
// sensible defaults
func Load() (*Config, error) {
	if path := getEnv("ENV_FILE", ".env"); path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return nil, fmt.Errorf("loading %s: %w", path, err)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("SERVER_ADDR", ":8080"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 2*time.Minute),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Source: SourceConfig{
			Kind:           strings.ToLower(getEnv("SOURCE_KIND", SourceHTTP)),
			URL:            getEnv("SOURCE_URL", "http://localhost:5000/api/data"),
			Timeout:        getEnvDuration("SOURCE_TIMEOUT", 10*time.Second),
			Attempts:       getEnvInt("SOURCE_ATTEMPTS", 3),
			InitialBackoff: getEnvDuration("SOURCE_BACKOFF", 500*time.Millisecond),
			Timezone:       getEnv("SOURCE_TIMEZONE", "UTC"),
			PreviewLimit:   getEnvInt("SOURCE_PREVIEW_LIMIT", 100),
		},
		InfluxDB: InfluxDBConfig{
			URL:         getEnv("INFLUXDB_URL", "http://localhost:8086"),
			Org:         getEnv("INFLUXDB_ORG", "Solo"),
			Token:       getEnv("INFLUX_TOKEN", ""),
			Bucket:      getEnv("INFLUXDB_BUCKET", "smart-grid-monitor"),
			Measurement: getEnv("INFLUXDB_MEASUREMENT", "meter_readings"),
			Field:       getEnv("INFLUXDB_FIELD", "kvah"),
			Lookback:    getEnvDuration("INFLUXDB_LOOKBACK", 90*24*time.Hour),
		},
		Kafka: KafkaConfig{
			Enabled:       getEnvBool("KAFKA_ENABLED", false),
			Brokers:       getEnvStringSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			RequestTopic:  getEnv("KAFKA_REQUEST_TOPIC", "kvah-forecast-requests"),
			ResultTopic:   getEnv("KAFKA_RESULT_TOPIC", "kvah-forecast-results"),
			GroupID:       getEnv("KAFKA_GROUP_ID", "kvah-forecaster"),
			ConsumerCount: getEnvInt("KAFKA_CONSUMER_COUNT", 1),
		},
		Processor: ProcessorConfig{
			WorkerCount: getEnvInt("PROCESSOR_WORKER_COUNT", 4),
			QueueSize:   getEnvInt("PROCESSOR_QUEUE_SIZE", 100),
			Timeout:     getEnvDuration("FORECAST_TIMEOUT", 2*time.Minute),
		},
		Forecast: ForecastConfig{
			Order:          [3]int(getEnvIntSlice("FORECAST_ORDER", []int{1, 0, 1}, 3)),
			SeasonalOrder:  [4]int(getEnvIntSlice("FORECAST_SEASONAL_ORDER", []int{1, 1, 1, 24}, 4)),
			Confidence:     getEnvFloat("FORECAST_CONFIDENCE", 0.95),
			DefaultHorizon: getEnvInt("FORECAST_DEFAULT_HOURS", 24),
			MaxHorizon:     getEnvInt("FORECAST_MAX_HOURS", 24*14),
			MaxIterations:  getEnvInt("FORECAST_MAX_ITERATIONS", 5000),
		},
		Store: StoreConfig{
			RedisURL:   getEnv("REDIS_URL", ""),
			TTL:        getEnvDuration("STORE_TTL", time.Hour),
			MaxEntries: getEnvInt("STORE_MAX_ENTRIES", 256),
		},
		Billing: BillingConfig{
			Enabled:   getEnvBool("BILLING_ENABLED", true),
			RatesFile: getEnv("BILLING_RATES_FILE", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch c.Source.Kind {
	case SourceHTTP:
		if c.Source.URL == "" {
			result = multierror.Append(result, errors.New("SOURCE_URL is required for the http source"))
		}
	case SourceInflux:
		if c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "" {
			result = multierror.Append(result, errors.New("INFLUXDB_URL and INFLUXDB_BUCKET are required for the influx source"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown SOURCE_KIND %q", c.Source.Kind))
	}
	if _, err := c.Source.Location(); err != nil {
		result = multierror.Append(result, fmt.Errorf("SOURCE_TIMEZONE: %w", err))
	}
	if c.Processor.WorkerCount <= 0 {
		result = multierror.Append(result, fmt.Errorf("PROCESSOR_WORKER_COUNT must be positive, got %d", c.Processor.WorkerCount))
	}
	if c.Processor.QueueSize < 0 {
		result = multierror.Append(result, fmt.Errorf("PROCESSOR_QUEUE_SIZE must not be negative, got %d", c.Processor.QueueSize))
	}
	if c.Processor.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("FORECAST_TIMEOUT must be positive, got %s", c.Processor.Timeout))
	}
	if c.Forecast.Confidence <= 0 || c.Forecast.Confidence >= 1 {
		result = multierror.Append(result, fmt.Errorf("FORECAST_CONFIDENCE must be in (0, 1), got %v", c.Forecast.Confidence))
	}
	if c.Forecast.DefaultHorizon <= 0 || c.Forecast.MaxHorizon < c.Forecast.DefaultHorizon {
		result = multierror.Append(result, fmt.Errorf("forecast horizons invalid: default %d, max %d",
			c.Forecast.DefaultHorizon, c.Forecast.MaxHorizon))
	}
	for _, v := range append(c.Forecast.Order[:], c.Forecast.SeasonalOrder[:3]...) {
		if v < 0 {
			result = multierror.Append(result, fmt.Errorf("model orders must be non-negative, got %v %v",
				c.Forecast.Order, c.Forecast.SeasonalOrder))
			break
		}
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.RequestTopic == "") {
		result = multierror.Append(result, errors.New("KAFKA_BROKERS and KAFKA_REQUEST_TOPIC are required when Kafka is enabled"))
	}

	return result.ErrorOrNil()
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// getEnvIntSlice parses a comma separated list of exactly n integers.
func getEnvIntSlice(key string, defaultValue []int, n int) []int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	if len(parts) != n {
		return defaultValue
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return defaultValue
		}
		out[i] = v
	}
	return out
}

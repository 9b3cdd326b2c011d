// Package influxdb reads meter readings from an InfluxDB v2 bucket.
package influxdb

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/apperr"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/ingest"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/logger"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/metrics"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
)

// Client represents an InfluxDB v2 client used as a reading source
type Client struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	config   config.InfluxDBConfig
	location *time.Location
	now      func() time.Time
}

// NewClient initializes the InfluxDB v2 client and verifies connectivity
func NewClient(ctx context.Context, cfg config.InfluxDBConfig, timeout time.Duration, loc *time.Location) (*Client, error) {
	if loc == nil {
		loc = time.UTC
	}
	opts := influxdb2.DefaultOptions()
	if timeout > 0 {
		opts.SetHTTPRequestTimeout(uint(math.Ceil(timeout.Seconds())))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	// Health check verifies the URL and credentials before the first forecast needs them
	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	logger.Info("connected to InfluxDB", "url", cfg.URL, "bucket", cfg.Bucket, "measurement", cfg.Measurement)
	return &Client{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Org),
		config:   cfg,
		location: loc,
		now:      time.Now,
	}, nil
}

// Load queries the configured field inside window and returns de-duplicated readings.
// A zero window start falls back to the configured lookback.
func (c *Client) Load(ctx context.Context, window models.TimeRange) ([]models.Reading, models.IngestReport, error) {
	flux := c.buildQuery(window)
	logger.Debug("querying InfluxDB", "query", flux)

	result, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, models.IngestReport{}, apperr.New(apperr.DataSourceUnavailable, "ingest",
			"InfluxDB query failed", err)
	}
	defer result.Close()

	var report models.IngestReport
	var readings []models.Reading
	for result.Next() {
		record := result.Record()
		report.Records++

		value, ok := toFloat(record.Value())
		if !ok {
			report.Coerced++
			metrics.CoercedValues.Inc()
			logger.Warn("coerced usage value to zero", "timestamp", record.Time(), "raw", record.Value())
		}
		readings = append(readings, models.Reading{Timestamp: record.Time().In(c.location), Value: value})
	}
	if err := result.Err(); err != nil {
		return nil, report, apperr.New(apperr.DataSourceError, "ingest", "malformed InfluxDB response", err)
	}

	readings, report.Duplicates = ingest.Dedupe(readings)
	report.Readings = len(readings)
	return readings, report, nil
}

func (c *Client) buildQuery(window models.TimeRange) string {
	start := window.Start
	if start.IsZero() {
		start = c.now().Add(-c.config.Lookback)
	}
	stop := "now()"
	if !window.End.IsZero() {
		// range() excludes its stop bound
		stop = window.End.Add(time.Nanosecond).UTC().Format(time.RFC3339Nano)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %q)\n", c.config.Bucket)
	fmt.Fprintf(&b, "  |> range(start: %s, stop: %s)\n", start.UTC().Format(time.RFC3339Nano), stop)
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %q and r._field == %q)\n", c.config.Measurement, c.config.Field)
	b.WriteString("  |> sort(columns: [\"_time\"])")
	return b.String()
}

func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int64:
		f = float64(t)
	case uint64:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Close closes the InfluxDB client
func (c *Client) Close() {
	c.client.Close()
}

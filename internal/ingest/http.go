package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/apperr"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/logger"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/metrics"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
)

// HTTPConfig configures an HTTPSource.
type HTTPConfig struct {
	URL            string
	Timeout        time.Duration
	Attempts       int
	InitialBackoff time.Duration
	Location       *time.Location
}

// HTTPSource reads records from a JSON endpoint returning an array of RawRecord.
type HTTPSource struct {
	config HTTPConfig
	client *http.Client
}

// NewHTTPSource creates an HTTPSource.
func NewHTTPSource(cfg HTTPConfig) *HTTPSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &HTTPSource{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Load fetches all records and normalises them.
func (s *HTTPSource) Load(ctx context.Context, _ models.TimeRange) ([]models.Reading, models.IngestReport, error) {
	records, err := s.Fetch(ctx)
	if err != nil {
		return nil, models.IngestReport{}, err
	}
	return Normalize(records, s.config.Location)
}

// Fetch retrieves the raw records, retrying connectivity failures and 5xx responses.
func (s *HTTPSource) Fetch(ctx context.Context) ([]models.RawRecord, error) {
	var records []models.RawRecord
	var err error

	backoff := s.config.InitialBackoff
	for attempt := 1; attempt <= s.config.Attempts; attempt++ {
		var retryable bool
		records, retryable, err = s.fetchOnce(ctx)
		if err == nil || !retryable || attempt == s.config.Attempts {
			break
		}

		metrics.SourceRetries.Inc()
		logger.Warn("reading source fetch failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return nil, apperr.New(apperr.DataSourceUnavailable, "ingest", "fetch cancelled", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return records, err
}

func (s *HTTPSource) fetchOnce(ctx context.Context) ([]models.RawRecord, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.URL, nil)
	if err != nil {
		return nil, false, apperr.New(apperr.DataSourceError, "ingest", "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, true, apperr.New(apperr.DataSourceUnavailable, "ingest", "reading source unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := fmt.Sprintf("reading source returned status %d", resp.StatusCode)
		return nil, resp.StatusCode >= 500,
			apperr.New(apperr.DataSourceError, "ingest", msg, errors.New(strings.TrimSpace(string(body))))
	}

	var records []models.RawRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, true, apperr.New(apperr.DataSourceUnavailable, "ingest", "reading source timed out", err)
		}
		return nil, false, apperr.New(apperr.DataSourceError, "ingest", "malformed JSON from reading source", err)
	}
	logger.Debug("fetched records from reading source", "count", len(records), "url", s.config.URL)

	return records, false, nil
}

// Package ingest turns raw meter records into an ordered reading series.
package ingest

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/apperr"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/logger"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/metrics"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
)

// TimestampLayout is the layout of Date + " " + Description in source records.
const TimestampLayout = "02-01-2006 15:04"

// Normalize parses, sorts and de-duplicates raw records.
//
// A single unparseable timestamp fails the whole batch with a ParseError. Unusable usage
// values become 0 and are counted. When two records share a timestamp the one appearing
// later in the input wins.
func Normalize(records []models.RawRecord, loc *time.Location) ([]models.Reading, models.IngestReport, error) {
	if loc == nil {
		loc = time.UTC
	}
	report := models.IngestReport{Records: len(records)}

	readings := make([]models.Reading, 0, len(records))
	for i, rec := range records {
		raw := strings.TrimSpace(rec.Date) + " " + strings.TrimSpace(rec.Time)
		ts, err := time.ParseInLocation(TimestampLayout, raw, loc)
		if err != nil {
			return nil, report, apperr.New(apperr.ParseError, "ingest",
				fmt.Sprintf("record %d: invalid timestamp %q", i, raw), err)
		}

		value := rec.Usage.Value
		if !rec.Usage.Valid {
			value = 0
			report.Coerced++
			metrics.CoercedValues.Inc()
			logger.Warn("coerced usage value to zero", "record", i, "timestamp", ts, "raw", rec.Usage.Raw)
		}

		readings = append(readings, models.Reading{Timestamp: ts, Value: value})
	}

	readings, report.Duplicates = Dedupe(readings)
	report.Readings = len(readings)

	return readings, report, nil
}

// Dedupe sorts readings by time and keeps the last of each run of equal timestamps,
// returning the number of readings dropped.
func Dedupe(readings []models.Reading) ([]models.Reading, int) {
	slices.SortStableFunc(readings, func(a, b models.Reading) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	out := readings[:0]
	dropped := 0
	for _, r := range readings {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(r.Timestamp) {
			logger.Debug("duplicate timestamp, keeping later record", "timestamp", r.Timestamp,
				"previous", out[n-1].Value, "kept", r.Value)
			out[n-1] = r
			dropped++
			continue
		}
		out = append(out, r)
	}
	if dropped > 0 {
		metrics.DuplicateTimestamps.Add(float64(dropped))
		logger.Warn("dropped readings with duplicate timestamps", "count", dropped)
	}
	return out, dropped
}

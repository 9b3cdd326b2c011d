// Package series filters, aggregates and conditions reading series for model fitting.
package series

import (
	"errors"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/apperr"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/logger"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/stats"
)

const (
	// MinHourlyBuckets is the smallest hourly series Prepare accepts: one full seasonal
	// cycle plus one hour.
	MinHourlyBuckets = 25

	// Significance is the ADF p-value below which a series is taken as stationary.
	Significance = 0.05
)

// Filter returns the readings with start <= timestamp <= end, in order.
// A zero bound is open. start after end yields an empty series.
func Filter(s models.Series, start, end time.Time) models.Series {
	out := make(models.Series, 0, len(s))
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return out
	}
	for _, r := range s {
		if !start.IsZero() && r.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && r.Timestamp.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// HourlyDeltas returns |v_i - v_{i-1}| attributed to t_i. The first reading has no
// predecessor and produces no delta.
func HourlyDeltas(s models.Series) models.Series {
	if len(s) < 2 {
		return models.Series{}
	}
	out := make(models.Series, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		d := s[i].Value - s[i-1].Value
		if d < 0 {
			d = -d
		}
		out = append(out, models.Reading{Timestamp: s[i].Timestamp, Value: d})
	}
	return out
}

// Aggregate sums readings into the local hour of their own location. Hours are
// distinct instants, so the repeated hour of a daylight-saving fall-back gets two
// buckets. Hours without readings are omitted.
func Aggregate(s models.Series) models.Series {
	out := make(models.Series, 0, len(s))
	for _, r := range s {
		h := hourFloor(r.Timestamp)
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(h) {
			out[n-1].Value += r.Value
			continue
		}
		out = append(out, models.Reading{Timestamp: h, Value: r.Value})
	}
	return out
}

// hourFloor truncates t to the start of its local hour using the offset in effect at t.
func hourFloor(t time.Time) time.Time {
	_, offset := t.Zone()
	sec := (t.Unix() + int64(offset)) % 3600
	if sec < 0 {
		sec += 3600
	}
	return t.Add(-time.Duration(sec)*time.Second - time.Duration(t.Nanosecond()))
}

// Difference returns v_i - v_{i-1} at t_i.
func Difference(s models.Series) models.Series {
	if len(s) < 2 {
		return models.Series{}
	}
	out := make(models.Series, len(s)-1)
	for i := 1; i < len(s); i++ {
		out[i-1] = models.Reading{Timestamp: s[i].Timestamp, Value: s[i].Value - s[i-1].Value}
	}
	return out
}

// Condition runs the stationarity test on an hourly series and differences it once more
// when a unit root cannot be rejected. A constant series is already stationary.
func Condition(hourly models.Series) (models.ConditionedSeries, error) {
	out := models.ConditionedSeries{Series: hourly, Hourly: hourly}

	res, err := stats.ADF(hourly.Values(), stats.ADFOptions{})
	switch {
	case errors.Is(err, stats.ErrConstantSeries):
		logger.Debug("hourly series is constant, skipping unit-root test", "buckets", len(hourly))
		return out, nil
	case err != nil:
		return out, apperr.New(apperr.ForecastError, "condition", "stationarity test failed", err)
	}
	out.ADF = &res

	if res.PValue >= Significance {
		out.Series = Difference(hourly)
		out.Differences = 1
	}
	logger.Info("conditioned hourly series",
		"buckets", len(hourly),
		"adf_statistic", res.Statistic,
		"p_value", res.PValue,
		"lags", res.Lags,
		"differences", out.Differences)

	return out, nil
}

// Prepare turns a filtered reading series into a conditioned hourly series.
func Prepare(filtered models.Series) (models.ConditionedSeries, error) {
	if len(filtered) < 2 {
		return models.ConditionedSeries{}, apperr.Newf(apperr.InsufficientData, "aggregate",
			"need at least 2 readings in range, got %d", len(filtered))
	}
	hourly := Aggregate(HourlyDeltas(filtered))
	if len(hourly) < MinHourlyBuckets {
		return models.ConditionedSeries{}, apperr.Newf(apperr.InsufficientData, "aggregate",
			"need at least %d hourly buckets, got %d", MinHourlyBuckets, len(hourly))
	}
	return Condition(hourly)
}

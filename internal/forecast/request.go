package forecast

import (
	"strings"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/apperr"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
)

// Limits bound the horizon a caller may ask for.
type Limits struct {
	DefaultHorizon int
	MaxHorizon     int
}

type dateLayout struct {
	layout   string
	dateOnly bool
}

var dateLayouts = []dateLayout{
	{"2006-01-02", true},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02 15:04", false},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02T15:04", false},
	{time.RFC3339, false},
}

// ParseRequest validates a forecast input. Empty dates leave the range open on that side.
// A date-only end date covers the whole of that day.
func ParseRequest(in models.ForecastInput, limits Limits, loc *time.Location) (models.ForecastRequest, error) {
	if loc == nil {
		loc = time.UTC
	}
	req := models.ForecastRequest{RequestID: strings.TrimSpace(in.RequestID)}

	start, _, err := parseDate(in.StartDate, loc)
	if err != nil {
		return req, apperr.Newf(apperr.InvalidArgument, "request", "invalid start_date %q", in.StartDate)
	}
	end, dateOnly, err := parseDate(in.EndDate, loc)
	if err != nil {
		return req, apperr.Newf(apperr.InvalidArgument, "request", "invalid end_date %q", in.EndDate)
	}
	if dateOnly {
		end = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return req, apperr.Newf(apperr.InvalidArgument, "request", "start_date %s is after end_date %s",
			in.StartDate, in.EndDate)
	}

	horizon := limits.DefaultHorizon
	if in.ForecastHours != nil {
		horizon = *in.ForecastHours
	}
	if horizon <= 0 {
		return req, apperr.Newf(apperr.InvalidArgument, "request", "forecast_hours must be positive, got %d", horizon)
	}
	if limits.MaxHorizon > 0 && horizon > limits.MaxHorizon {
		return req, apperr.Newf(apperr.InvalidArgument, "request", "forecast_hours must be at most %d, got %d",
			limits.MaxHorizon, horizon)
	}

	req.Start = start
	req.End = end
	req.Horizon = horizon
	return req, nil
}

func parseDate(s string, loc *time.Location) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, nil
	}
	var firstErr error
	for _, l := range dateLayouts {
		t, err := time.ParseInLocation(l.layout, s, loc)
		if err == nil {
			return t, l.dateOnly, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, false, firstErr
}

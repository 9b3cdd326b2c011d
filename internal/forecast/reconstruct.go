package forecast

import (
	"time"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/apperr"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/sarima"
)

// Reconstruct places forecast values on the calendar hours following last.
func Reconstruct(last time.Time, fc *sarima.Forecast, horizon int) (models.ForecastResult, error) {
	if horizon <= 0 {
		return models.ForecastResult{}, apperr.Newf(apperr.InvalidArgument, "reconstruct",
			"horizon must be positive, got %d", horizon)
	}
	if fc == nil || len(fc.Mean) != horizon || len(fc.Lower) != horizon || len(fc.Upper) != horizon {
		return models.ForecastResult{}, apperr.Newf(apperr.ForecastError, "reconstruct",
			"forecast does not cover %d hours", horizon)
	}

	points := make([]models.ForecastPoint, horizon)
	for i := range points {
		points[i] = models.ForecastPoint{
			Timestamp: last.Add(time.Duration(i+1) * time.Hour),
			Forecast:  fc.Mean[i],
			Lower:     fc.Lower[i],
			Upper:     fc.Upper[i],
		}
	}
	return models.ForecastResult{Points: points, Confidence: 1 - fc.Alpha}, nil
}

// Package forecast runs the forecasting pipeline for a single request: ingest, filter,
// condition, fit, forecast and reconstruct.
package forecast

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/apperr"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/ingest"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/logger"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/metrics"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/sarima"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/series"
)

// Biller prices a forecast.
type Biller interface {
	Estimate(result models.ForecastResult) (*models.Bill, error)
}

// Options configures a Pipeline.
type Options struct {
	Order      sarima.Order
	Seasonal   sarima.SeasonalOrder
	Confidence float64
	Fit        sarima.Options
	// Biller is optional.
	Biller Biller
}

// Pipeline produces forecast reports from a reading source. It holds no per-request state
// and is safe for concurrent use.
type Pipeline struct {
	source ingest.Source
	opts   Options
	now    func() time.Time
}

// NewPipeline creates a pipeline over source.
func NewPipeline(source ingest.Source, opts Options) *Pipeline {
	if opts.Confidence <= 0 || opts.Confidence >= 1 {
		opts.Confidence = 0.95
	}
	if opts.Order == (sarima.Order{}) && opts.Seasonal == (sarima.SeasonalOrder{}) {
		opts.Order = sarima.DefaultOrder
		opts.Seasonal = sarima.DefaultSeasonalOrder
	}
	return &Pipeline{source: source, opts: opts, now: time.Now}
}

// Run executes the pipeline for req. Each failure carries the apperr kind of the stage
// that produced it.
func (p *Pipeline) Run(ctx context.Context, req models.ForecastRequest) (*models.ForecastReport, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	started := time.Now()

	report, err := p.run(ctx, req)
	metrics.PipelineDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		kind := apperr.KindOf(err)
		metrics.ForecastsFailed.WithLabelValues(string(kind)).Inc()
		logger.Error("forecast failed", "request_id", req.RequestID, "kind", kind, "error", err)
		return nil, err
	}

	metrics.ForecastsGenerated.Inc()
	logger.Info("forecast generated",
		"request_id", req.RequestID,
		"horizon", req.Horizon,
		"differences", report.Result.Differences,
		"duration", time.Since(started))
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, req models.ForecastRequest) (*models.ForecastReport, error) {
	if req.Horizon <= 0 {
		return nil, apperr.Newf(apperr.InvalidArgument, "request", "horizon must be positive, got %d", req.Horizon)
	}

	readings, ingestReport, err := p.source.Load(ctx, models.TimeRange{Start: req.Start, End: req.End})
	if err != nil {
		return nil, err
	}

	filtered := series.Filter(readings, req.Start, req.End)
	logger.Debug("filtered readings", "request_id", req.RequestID, "total", len(readings), "in_range", len(filtered))

	cond, err := series.Prepare(filtered)
	if err != nil {
		return nil, err
	}

	fitStarted := time.Now()
	model, err := sarima.Fit(ctx, cond.Series.Values(), p.opts.Order, p.opts.Seasonal, p.opts.Fit)
	metrics.FitDuration.Observe(time.Since(fitStarted).Seconds())
	if err != nil {
		return nil, err
	}
	logger.Debug("fitted model",
		"request_id", req.RequestID,
		"ar", model.AR, "ma", model.MA, "sar", model.SAR, "sma", model.SMA,
		"sigma2", model.Sigma2,
		"iterations", model.Iterations,
		"exact", model.Exact())
	if model.SeasonalReduced {
		logger.Warn("history too short for seasonal AR/MA terms, fitted without them",
			"request_id", req.RequestID,
			"requested", p.opts.Seasonal.String(),
			"fitted", model.Seasonal.String(),
			"observations", model.NumObs())
	}

	fc, err := model.Forecast(req.Horizon, 1-p.opts.Confidence)
	if err != nil {
		return nil, err
	}

	result, err := Reconstruct(cond.Series.Last().Timestamp, fc, req.Horizon)
	if err != nil {
		return nil, err
	}
	result.Differences = cond.Differences
	result.Order = [3]int{model.Order.P, model.Order.D, model.Order.Q}
	result.Seasonal = [4]int{model.Seasonal.P, model.Seasonal.D, model.Seasonal.Q, model.Seasonal.S}
	if result.Differences > 0 {
		logger.Warn("forecast is in differenced space, values are hour-to-hour changes",
			"request_id", req.RequestID, "differences", result.Differences)
	}

	out := &models.ForecastReport{
		RequestID:  req.RequestID,
		CreatedAt:  p.now().UTC(),
		Request:    req,
		Ingest:     ingestReport,
		ADF:        cond.ADF,
		Model:      summarize(model),
		Result:     result,
		Actual:     ActualHours(cond.Hourly),
		Forecasted: ForecastHours(result),
	}

	if p.opts.Biller != nil {
		bill, err := p.opts.Biller.Estimate(result)
		if err != nil {
			return nil, err
		}
		out.Bill = bill
	}
	return out, nil
}

func summarize(m *sarima.Model) *models.ModelSummary {
	s := &models.ModelSummary{
		AR:              m.AR,
		MA:              m.MA,
		SAR:             m.SAR,
		SMA:             m.SMA,
		Sigma2:          m.Sigma2,
		Observations:    m.NumObs(),
		Iterations:      m.Iterations,
		Exact:           m.Exact(),
		SeasonalReduced: m.SeasonalReduced,
	}
	if !m.Exact() {
		s.LogLikelihood = m.LogLikelihood
		s.AIC = m.AIC()
	}
	return s
}

// Readings returns up to limit normalised readings from the source, for previews.
func (p *Pipeline) Readings(ctx context.Context, limit int) ([]models.Reading, error) {
	readings, _, err := p.source.Load(ctx, models.TimeRange{})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(readings) > limit {
		readings = readings[:limit]
	}
	return readings, nil
}

// ActualHours formats an hourly series for the actuals read path.
func ActualHours(hourly models.Series) []models.ActualHour {
	out := make([]models.ActualHour, len(hourly))
	for i, r := range hourly {
		out[i] = models.ActualHour{DateTime: r.Timestamp.Format(models.DateTimeLayout), KVAh: r.Value}
	}
	return out
}

// ForecastHours formats forecast points for the forecast read path.
func ForecastHours(result models.ForecastResult) []models.ForecastHour {
	out := make([]models.ForecastHour, len(result.Points))
	for i, pt := range result.Points {
		out[i] = models.ForecastHour{
			DateTime: pt.Timestamp.Format(models.DateTimeLayout),
			KVAh:     pt.Forecast,
			Lower:    pt.Lower,
			Upper:    pt.Upper,
		}
	}
	return out
}

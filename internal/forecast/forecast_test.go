package forecast

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/apperr"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/sarima"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	readings []models.Reading
	err      error
	calls    int
}

func (f *fakeSource) Load(context.Context, models.TimeRange) ([]models.Reading, models.IngestReport, error) {
	f.calls++
	if f.err != nil {
		return nil, models.IngestReport{}, f.err
	}
	out := append([]models.Reading(nil), f.readings...)
	return out, models.IngestReport{Records: len(out), Readings: len(out)}, nil
}

type fakeBiller struct {
	got models.ForecastResult
}

func (b *fakeBiller) Estimate(result models.ForecastResult) (*models.Bill, error) {
	b.got = result
	return &models.Bill{Hours: len(result.Points), Currency: "INR"}, nil
}

// cumulativeMeter returns readings of a meter that advances by perHour every hour.
func cumulativeMeter(hours int, perHour float64) []models.Reading {
	out := make([]models.Reading, hours+1)
	for i := range out {
		out[i] = models.Reading{Timestamp: t0.Add(time.Duration(i) * time.Hour), Value: 1000 + perHour*float64(i)}
	}
	return out
}

func TestPipelineConstantConsumption(t *testing.T) {
	source := &fakeSource{readings: cumulativeMeter(72, 5)}
	biller := &fakeBiller{}
	p := NewPipeline(source, Options{Biller: biller})

	report, err := p.Run(context.Background(), models.ForecastRequest{Horizon: 24})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RequestID)
	assert.Equal(t, 0, report.Result.Differences)
	assert.InDelta(t, 0.95, report.Result.Confidence, 1e-12)
	assert.Equal(t, [4]int{1, 1, 1, 24}, report.Result.Seasonal)
	require.Len(t, report.Result.Points, 24)

	last := t0.Add(72 * time.Hour)
	for i, pt := range report.Result.Points {
		assert.Equal(t, last.Add(time.Duration(i+1)*time.Hour), pt.Timestamp)
		assert.InDelta(t, 5.0, pt.Forecast, 1e-6)
		assert.LessOrEqual(t, pt.Lower, pt.Forecast)
		assert.LessOrEqual(t, pt.Forecast, pt.Upper)
		assert.Less(t, pt.Upper-pt.Lower, 0.1)
	}

	require.Len(t, report.Actual, 72)
	assert.Equal(t, "2024-05-01 01:00:00", report.Actual[0].DateTime)
	assert.Equal(t, 5.0, report.Actual[0].KVAh)
	require.Len(t, report.Forecasted, 24)
	assert.Equal(t, "2024-05-04 01:00:00", report.Forecasted[0].DateTime)

	require.NotNil(t, report.Model)
	assert.True(t, report.Model.Exact)
	assert.Zero(t, report.Model.AIC)

	require.NotNil(t, report.Bill)
	assert.Equal(t, 24, report.Bill.Hours)
	assert.Len(t, biller.got.Points, 24)
}

// noisyMeter returns a cumulative meter whose hourly consumption follows a daily cycle
// with noise, plus an optional linear growth per hour.
func noisyMeter(hours int, trend float64, seed int64) []models.Reading {
	rng := rand.New(rand.NewSource(seed))
	out := make([]models.Reading, hours+1)
	total := 1000.0
	out[0] = models.Reading{Timestamp: t0, Value: total}
	for i := 1; i <= hours; i++ {
		usage := 5 + 2*math.Sin(2*math.Pi*float64(i)/24) + trend*float64(i) + 0.5*rng.NormFloat64()
		total += math.Abs(usage)
		out[i] = models.Reading{Timestamp: t0.Add(time.Duration(i) * time.Hour), Value: total}
	}
	return out
}

func TestPipelineShortNoisyHistory(t *testing.T) {
	for _, trend := range []float64{0, 0.3} {
		for seed := int64(1); seed <= 3; seed++ {
			p := NewPipeline(&fakeSource{readings: noisyMeter(48, trend, seed)}, Options{})

			report, err := p.Run(context.Background(), models.ForecastRequest{Horizon: 24})
			if err != nil {
				assert.Equal(t, apperr.ForecastError, apperr.KindOf(err), "trend %v seed %d", trend, seed)
				assert.True(t, errors.Is(err, sarima.ErrIllConditioned) || errors.Is(err, sarima.ErrNotConverged),
					"trend %v seed %d: %v", trend, seed, err)
				continue
			}

			require.Len(t, report.Result.Points, 24)
			assert.Equal(t, [4]int{0, 1, 0, 24}, report.Result.Seasonal)
			require.NotNil(t, report.Model)
			assert.True(t, report.Model.SeasonalReduced)
			assert.False(t, report.Model.Exact)
			assert.NotZero(t, report.Model.AIC)
			for i, pt := range report.Result.Points {
				assert.LessOrEqual(t, pt.Lower, pt.Forecast)
				assert.LessOrEqual(t, pt.Forecast, pt.Upper)
				assert.Greater(t, pt.Upper-pt.Lower, 0.05, "trend %v seed %d point %d", trend, seed, i)
			}
		}
	}
}

func TestPipelineEmptyRange(t *testing.T) {
	source := &fakeSource{readings: cumulativeMeter(72, 5)}
	p := NewPipeline(source, Options{})

	_, err := p.Run(context.Background(), models.ForecastRequest{
		Start:   t0.AddDate(1, 0, 0),
		End:     t0.AddDate(1, 0, 1),
		Horizon: 24,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.InsufficientData, apperr.KindOf(err))
}

func TestPipelineRejectsHorizonBeforeLoading(t *testing.T) {
	source := &fakeSource{readings: cumulativeMeter(72, 5)}
	p := NewPipeline(source, Options{})

	_, err := p.Run(context.Background(), models.ForecastRequest{Horizon: 0})
	assert.Equal(t, apperr.InvalidArgument, apperr.KindOf(err))
	assert.Zero(t, source.calls)
}

func TestPipelinePropagatesSourceErrors(t *testing.T) {
	cause := apperr.New(apperr.DataSourceUnavailable, "ingest", "reading source unreachable", errors.New("refused"))
	p := NewPipeline(&fakeSource{err: cause}, Options{})

	_, err := p.Run(context.Background(), models.ForecastRequest{Horizon: 24})
	assert.Equal(t, apperr.DataSourceUnavailable, apperr.KindOf(err))
}

func TestPipelineReadingsPreview(t *testing.T) {
	p := NewPipeline(&fakeSource{readings: cumulativeMeter(10, 1)}, Options{})

	readings, err := p.Readings(context.Background(), 4)
	require.NoError(t, err)
	assert.Len(t, readings, 4)

	readings, err = p.Readings(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, readings, 11)
}

func TestReconstruct(t *testing.T) {
	fc := &sarima.Forecast{
		Mean:  []float64{1, 2, 3},
		Lower: []float64{0, 1, 2},
		Upper: []float64{2, 3, 4},
		Alpha: 0.1,
	}

	result, err := Reconstruct(t0, fc, 3)
	require.NoError(t, err)
	require.Len(t, result.Points, 3)
	assert.InDelta(t, 0.9, result.Confidence, 1e-12)
	for i, pt := range result.Points {
		assert.Equal(t, t0.Add(time.Duration(i+1)*time.Hour), pt.Timestamp)
		assert.Equal(t, fc.Mean[i], pt.Forecast)
	}

	_, err = Reconstruct(t0, fc, 4)
	assert.Equal(t, apperr.ForecastError, apperr.KindOf(err))

	_, err = Reconstruct(t0, fc, 0)
	assert.Equal(t, apperr.InvalidArgument, apperr.KindOf(err))
}

func TestParseRequest(t *testing.T) {
	limits := Limits{DefaultHorizon: 24, MaxHorizon: 48}
	hours := func(n int) *int { return &n }

	req, err := ParseRequest(models.ForecastInput{
		RequestID: " abc ",
		StartDate: "2024-05-01",
		EndDate:   "2024-05-03",
	}, limits, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "abc", req.RequestID)
	assert.Equal(t, t0, req.Start)
	assert.Equal(t, time.Date(2024, 5, 3, 23, 59, 59, 999999999, time.UTC), req.End)
	assert.Equal(t, 24, req.Horizon)

	req, err = ParseRequest(models.ForecastInput{
		StartDate:     "2024-05-01T06:00",
		EndDate:       "2024-05-02 18:30:00",
		ForecastHours: hours(12),
	}, limits, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(6*time.Hour), req.Start)
	assert.Equal(t, t0.Add(42*time.Hour+30*time.Minute), req.End)
	assert.Equal(t, 12, req.Horizon)

	req, err = ParseRequest(models.ForecastInput{}, limits, nil)
	require.NoError(t, err)
	assert.True(t, req.Start.IsZero())
	assert.True(t, req.End.IsZero())

	invalid := []models.ForecastInput{
		{StartDate: "05/01/2024"},
		{EndDate: "tomorrow"},
		{StartDate: "2024-05-03", EndDate: "2024-05-01"},
		{ForecastHours: hours(0)},
		{ForecastHours: hours(-1)},
		{ForecastHours: hours(49)},
	}
	for _, in := range invalid {
		_, err := ParseRequest(in, limits, time.UTC)
		assert.Equal(t, apperr.InvalidArgument, apperr.KindOf(err), "%+v", in)
	}
}

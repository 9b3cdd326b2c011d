package series

import (
	"math/rand"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/apperr"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func hourly(values []float64) models.Series {
	s := make(models.Series, len(values))
	for i, v := range values {
		s[i] = models.Reading{Timestamp: t0.Add(time.Duration(i) * time.Hour), Value: v}
	}
	return s
}

func TestFilter(t *testing.T) {
	s := hourly([]float64{0, 1, 2, 3, 4, 5})

	tests := []struct {
		name       string
		start, end time.Time
		want       []float64
	}{
		{"inclusive bounds", t0.Add(time.Hour), t0.Add(3 * time.Hour), []float64{1, 2, 3}},
		{"open start", time.Time{}, t0.Add(time.Hour), []float64{0, 1}},
		{"open end", t0.Add(4 * time.Hour), time.Time{}, []float64{4, 5}},
		{"start after end", t0.Add(3 * time.Hour), t0.Add(time.Hour), []float64{}},
		{"outside range", t0.Add(-48 * time.Hour), t0.Add(-24 * time.Hour), []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(s, tt.start, tt.end)
			assert.Equal(t, tt.want, got.Values())
			for _, r := range got {
				if !tt.start.IsZero() {
					assert.False(t, r.Timestamp.Before(tt.start))
				}
				if !tt.end.IsZero() {
					assert.False(t, r.Timestamp.After(tt.end))
				}
			}
		})
	}
}

func TestTwoHourlyReadingsMakeOneBucket(t *testing.T) {
	s := models.Series{
		{Timestamp: t0, Value: 120.5},
		{Timestamp: t0.Add(time.Hour), Value: 118},
	}

	got := Aggregate(HourlyDeltas(s))
	require.Len(t, got, 1)
	assert.Equal(t, t0.Add(time.Hour), got[0].Timestamp)
	assert.InDelta(t, 2.5, got[0].Value, 1e-12)
}

func TestAggregateSumsWithinHour(t *testing.T) {
	s := models.Series{
		{Timestamp: t0, Value: 0},
		{Timestamp: t0.Add(15 * time.Minute), Value: 1},
		{Timestamp: t0.Add(45 * time.Minute), Value: 3},
		{Timestamp: t0.Add(3*time.Hour + 30*time.Minute), Value: 10},
	}

	got := Aggregate(HourlyDeltas(s))
	require.Len(t, got, 2)
	assert.Equal(t, t0, got[0].Timestamp)
	assert.Equal(t, 3.0, got[0].Value)
	// The two empty hours in between are omitted.
	assert.Equal(t, t0.Add(3*time.Hour), got[1].Timestamp)
	assert.Equal(t, 7.0, got[1].Value)
}

func TestAggregateHalfHourOffset(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	s := models.Series{
		{Timestamp: time.Date(2024, 3, 1, 10, 10, 0, 0, loc), Value: 1},
		{Timestamp: time.Date(2024, 3, 1, 10, 50, 0, 0, loc), Value: 2},
	}

	got := Aggregate(s)
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, loc), got[0].Timestamp)
}

func TestAggregateFallBackHourIsSplit(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 01:00 local repeats on 2024-11-03: 05:00Z is EDT, 06:00Z is EST.
	s := models.Series{
		{Timestamp: time.Date(2024, 11, 3, 4, 0, 0, 0, time.UTC).In(ny), Value: 0},
		{Timestamp: time.Date(2024, 11, 3, 5, 0, 0, 0, time.UTC).In(ny), Value: 1},
		{Timestamp: time.Date(2024, 11, 3, 6, 0, 0, 0, time.UTC).In(ny), Value: 3},
		{Timestamp: time.Date(2024, 11, 3, 7, 0, 0, 0, time.UTC).In(ny), Value: 6},
	}

	got := Aggregate(HourlyDeltas(s))
	require.Len(t, got, 3)
	assert.Equal(t, []float64{1, 2, 3}, got.Values())
	for i, want := range []time.Time{
		time.Date(2024, 11, 3, 5, 0, 0, 0, time.UTC),
		time.Date(2024, 11, 3, 6, 0, 0, 0, time.UTC),
		time.Date(2024, 11, 3, 7, 0, 0, 0, time.UTC),
	} {
		assert.True(t, got[i].Timestamp.Equal(want), "bucket %d at %s", i, got[i].Timestamp)
	}
	assert.Equal(t, 1, got[0].Timestamp.Hour())
	assert.Equal(t, 1, got[1].Timestamp.Hour())
}

func TestHourFloorTruncatesSubHour(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	ts := time.Date(2024, 11, 3, 6, 42, 17, 500, time.UTC).In(ny)
	got := hourFloor(ts)
	assert.True(t, got.Equal(time.Date(2024, 11, 3, 6, 0, 0, 0, time.UTC)))
	assert.Equal(t, ny, got.Location())
}

func TestConditionWhiteNoiseIsNotDifferenced(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	values := make([]float64, 200)
	for i := range values {
		values[i] = 5 + rng.NormFloat64()
	}

	out, err := Condition(hourly(values))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Differences)
	assert.Equal(t, 1, out.Passes())
	require.NotNil(t, out.ADF)
	assert.Less(t, out.ADF.PValue, Significance)
	assert.Len(t, out.Series, 200)
}

func TestConditionTrendIsDifferenced(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	values := make([]float64, 120)
	for i := range values {
		values[i] = 20 + 2*float64(i) + 0.3*rng.NormFloat64()
	}

	out, err := Condition(hourly(values))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Differences)
	assert.Equal(t, 2, out.Passes())
	assert.Len(t, out.Series, 119)
	assert.Len(t, out.Hourly, 120)
	assert.Equal(t, out.Hourly[1].Timestamp, out.Series[0].Timestamp)
}

func TestConditionConstantIsStationary(t *testing.T) {
	values := make([]float64, 48)
	for i := range values {
		values[i] = 5
	}

	out, err := Condition(hourly(values))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Differences)
	assert.Nil(t, out.ADF)
}

func TestPrepareInsufficientData(t *testing.T) {
	_, err := Prepare(models.Series{})
	assert.True(t, apperr.Is(err, apperr.InsufficientData))

	cumulative := make([]float64, MinHourlyBuckets)
	for i := range cumulative {
		cumulative[i] = 5 * float64(i)
	}
	_, err = Prepare(hourly(cumulative))
	assert.True(t, apperr.Is(err, apperr.InsufficientData))
}

func TestPrepareCumulativeMeter(t *testing.T) {
	cumulative := make([]float64, 73)
	for i := range cumulative {
		cumulative[i] = 1000 + 5*float64(i)
	}

	out, err := Prepare(hourly(cumulative))
	require.NoError(t, err)
	assert.Len(t, out.Hourly, 72)
	assert.Equal(t, 0, out.Differences)
	for _, r := range out.Series {
		assert.Equal(t, 5.0, r.Value)
	}
}

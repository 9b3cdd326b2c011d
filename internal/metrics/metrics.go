// Package metrics holds the Prometheus collectors of the forecaster.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ForecastsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kvah_forecaster_forecasts_generated_total",
		Help: "Total number of forecasts produced.",
	})
	ForecastsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kvah_forecaster_forecasts_failed_total",
		Help: "Total number of failed forecast requests by error kind.",
	}, []string{"kind"})
	CoercedValues = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kvah_forecaster_ingest_coerced_values_total",
		Help: "Usage values that could not be parsed and were coerced to zero.",
	})
	DuplicateTimestamps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kvah_forecaster_ingest_duplicate_timestamps_total",
		Help: "Readings dropped because a later record had the same timestamp.",
	})
	SourceRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kvah_forecaster_source_retries_total",
		Help: "Retried fetches against the reading source.",
	})
	RequestsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kvah_forecaster_requests_dropped_total",
		Help: "Queued forecast requests dropped because the queue was full.",
	})
	ResultsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kvah_forecaster_results_published_total",
		Help: "Forecast results published to Kafka.",
	})
	FitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kvah_forecaster_fit_duration_seconds",
		Help:    "Duration of seasonal model fitting.",
		Buckets: []float64{0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
	})
	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kvah_forecaster_pipeline_duration_seconds",
		Help:    "Duration of a full forecast pipeline run.",
		Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
	})
)

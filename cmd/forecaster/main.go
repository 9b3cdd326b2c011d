package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/api"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/billing"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/forecast"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/influxdb"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/ingest"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/kafka"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/logger"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/processor"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/sarima"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/store"
)

func main() {
	if err := run(); err != nil {
		logger.Error("forecaster exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	loc, err := cfg.Source.Location()
	if err != nil {
		return fmt.Errorf("invalid SOURCE_TIMEZONE: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Closers run in reverse order of acquisition during shutdown
	var closers []func() error
	defer func() {
		var result *multierror.Error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if err := result.ErrorOrNil(); err != nil {
			logger.Error("errors during shutdown", "error", err)
		}
	}()

	source, err := newSource(ctx, cfg, loc)
	if err != nil {
		return err
	}
	if c, ok := source.(*influxdb.Client); ok {
		closers = append(closers, func() error { c.Close(); return nil })
	}

	opts := forecast.Options{
		Order:      sarima.Order{P: cfg.Forecast.Order[0], D: cfg.Forecast.Order[1], Q: cfg.Forecast.Order[2]},
		Seasonal:   sarima.SeasonalOrder{P: cfg.Forecast.SeasonalOrder[0], D: cfg.Forecast.SeasonalOrder[1], Q: cfg.Forecast.SeasonalOrder[2], S: cfg.Forecast.SeasonalOrder[3]},
		Confidence: cfg.Forecast.Confidence,
		Fit:        sarima.Options{MaxIterations: cfg.Forecast.MaxIterations},
	}
	if cfg.Billing.Enabled {
		rates := billing.DefaultRates()
		if cfg.Billing.RatesFile != "" {
			if rates, err = billing.LoadRates(cfg.Billing.RatesFile); err != nil {
				return err
			}
		}
		opts.Biller = billing.NewCalculator(rates)
	}
	pipeline := forecast.NewPipeline(source, opts)

	st, err := newStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	closers = append(closers, st.Close)

	// Results of queued requests go to Kafka when it is enabled
	var producer *kafka.Producer
	var publisher processor.Publisher
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("failed to create Kafka producer: %w", err)
		}
		closers = append(closers, producer.Close)
		publisher = producer
	}

	proc := processor.NewProcessor(pipeline, st, publisher, cfg.Processor)
	closers = append(closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return proc.Shutdown(ctx)
	})

	limits := forecast.Limits{DefaultHorizon: cfg.Forecast.DefaultHorizon, MaxHorizon: cfg.Forecast.MaxHorizon}

	var wg sync.WaitGroup
	if cfg.Kafka.Enabled {
		handler := requestHandler(proc, producer, limits, loc)
		logger.Info("starting Kafka consumers", "count", cfg.Kafka.ConsumerCount, "topic", cfg.Kafka.RequestTopic)

		for i := 0; i < cfg.Kafka.ConsumerCount; i++ {
			consumer, err := kafka.NewConsumer(fmt.Sprintf("consumer-%d", i), cfg.Kafka, handler)
			if err != nil {
				return fmt.Errorf("failed to create consumer %d: %w", i, err)
			}
			closers = append(closers, consumer.Close)

			wg.Add(1)
			go func(c *kafka.Consumer, id int) {
				defer wg.Done()
				if err := c.Consume(ctx); err != nil {
					logger.Error("consumer stopped with error", "consumer", id, "error", err)
				}
			}(consumer, i)
		}
	}

	router := api.NewRouter(proc, st, pipeline, api.Options{
		Limits:       limits,
		Location:     loc,
		PreviewLimit: cfg.Source.PreviewLimit,
	})
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for termination signal
	select {
	case <-ctx.Done():
		logger.Info("received termination signal, shutting down")
	case err := <-serverErr:
		stop()
		wg.Wait()
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", "error", err)
	}

	// Wait for either all consumers to stop or the timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("all consumers stopped")
	case <-shutdownCtx.Done():
		logger.Warn("consumer shutdown timed out")
	}

	logger.Info("shutdown complete")
	return nil
}

func newSource(ctx context.Context, cfg *config.Config, loc *time.Location) (ingest.Source, error) {
	switch cfg.Source.Kind {
	case config.SourceInflux:
		client, err := influxdb.NewClient(ctx, cfg.InfluxDB, cfg.Source.Timeout, loc)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return ingest.NewHTTPSource(ingest.HTTPConfig{
			URL:            cfg.Source.URL,
			Timeout:        cfg.Source.Timeout,
			Attempts:       cfg.Source.Attempts,
			InitialBackoff: cfg.Source.InitialBackoff,
			Location:       loc,
		}), nil
	}
}

func newStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	if cfg.RedisURL == "" {
		logger.Info("keeping forecast results in memory", "ttl", cfg.TTL, "max_entries", cfg.MaxEntries)
		return store.NewMemoryStore(cfg.TTL, cfg.MaxEntries), nil
	}
	st, err := store.NewRedisStore(ctx, cfg.RedisURL, cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return st, nil
}

// requestHandler validates Kafka requests and queues them. Rejected requests get an error
// result so the caller is not left waiting.
func requestHandler(proc *processor.Processor, producer *kafka.Producer, limits forecast.Limits, loc *time.Location) kafka.RequestHandler {
	return func(ctx context.Context, in models.ForecastInput) error {
		req, err := forecast.ParseRequest(in, limits, loc)
		if err == nil {
			req.RequestID, err = proc.Submit(req)
		}
		if err == nil {
			return nil
		}

		id := req.RequestID
		if id == "" {
			id = uuid.NewString()
		}
		if pubErr := producer.Publish(ctx, id, nil, err); pubErr != nil {
			return multierror.Append(err, pubErr)
		}
		return err
	}
}

package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/apperr"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/logger"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/metrics"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/store"
)

// ErrQueueFull is returned by Submit when the request queue has no room.
var ErrQueueFull = errors.New("forecast queue is full")

// ErrStopped is returned once the processor is shutting down.
var ErrStopped = errors.New("processor stopped")

// ErrDuplicateID is wrapped when a caller-supplied request ID is queued, running or stored.
var ErrDuplicateID = errors.New("request ID already in use")

// Runner produces a forecast report for a request
type Runner interface {
	Run(ctx context.Context, req models.ForecastRequest) (*models.ForecastReport, error)
}

// Publisher delivers the outcome of a queued request
type Publisher interface {
	Publish(ctx context.Context, requestID string, report *models.ForecastReport, runErr error) error
}

// Processor runs forecast requests with bounded concurrency. Queued requests are handled by
// a fixed pool of workers; synchronous requests share the same concurrency limit.
type Processor struct {
	runner    Runner
	store     store.Store
	publisher Publisher
	config    config.ProcessorConfig
	queue     chan models.ForecastRequest
	slots     chan struct{}
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc

	mutex   sync.RWMutex
	stopped bool

	claimMutex sync.Mutex
	claimed    map[string]struct{}
}

// NewProcessor creates a new processor and starts its workers. publisher may be nil.
func NewProcessor(runner Runner, st store.Store, publisher Publisher, cfg config.ProcessorConfig) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Processor{
		runner:    runner,
		store:     st,
		publisher: publisher,
		config:    cfg,
		queue:     make(chan models.ForecastRequest, cfg.QueueSize),
		slots:     make(chan struct{}, cfg.WorkerCount),
		ctx:       ctx,
		cancel:    cancel,
		claimed:   make(map[string]struct{}),
	}

	p.wg.Add(cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		go p.worker(i)
	}
	logger.Info("processor started", "workers", cfg.WorkerCount, "queue_size", cfg.QueueSize, "timeout", cfg.Timeout)

	return p
}

// Submit queues a request for asynchronous processing and returns its request ID.
// A caller-supplied ID that is already queued, running or stored is rejected.
func (p *Processor) Submit(req models.ForecastRequest) (string, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	p.mutex.RLock()
	defer p.mutex.RUnlock()
	if p.stopped {
		return req.RequestID, ErrStopped
	}
	if err := p.claim(p.ctx, req.RequestID); err != nil {
		return req.RequestID, err
	}

	select {
	case p.queue <- req:
		return req.RequestID, nil
	default:
		p.release(req.RequestID)
		metrics.RequestsDropped.Inc()
		logger.Warn("processing queue is full, dropping request", "request_id", req.RequestID)
		return req.RequestID, ErrQueueFull
	}
}

// Run processes a request synchronously and stores the report on success.
// A caller-supplied ID that is already queued, running or stored is rejected.
func (p *Processor) Run(ctx context.Context, req models.ForecastRequest) (*models.ForecastReport, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if err := p.claim(ctx, req.RequestID); err != nil {
		return nil, err
	}
	defer p.release(req.RequestID)
	return p.execute(ctx, req)
}

// claim reserves id until release. Stored reports are never replaced.
func (p *Processor) claim(ctx context.Context, id string) error {
	p.claimMutex.Lock()
	defer p.claimMutex.Unlock()

	if _, busy := p.claimed[id]; busy {
		return duplicateID(id)
	}
	_, err := p.store.Get(ctx, id)
	switch {
	case err == nil:
		return duplicateID(id)
	case !errors.Is(err, store.ErrNotFound):
		return apperr.New(apperr.Internal, "request", "result store unavailable", err)
	}
	p.claimed[id] = struct{}{}
	return nil
}

func (p *Processor) release(id string) {
	p.claimMutex.Lock()
	defer p.claimMutex.Unlock()
	delete(p.claimed, id)
}

func duplicateID(id string) error {
	return apperr.New(apperr.InvalidArgument, "request", fmt.Sprintf("request_id %q is already in use", id), ErrDuplicateID)
}

func (p *Processor) execute(ctx context.Context, req models.ForecastRequest) (*models.ForecastReport, error) {
	select {
	case p.slots <- struct{}{}:
		defer func() { <-p.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	runCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	report, err := p.runner.Run(runCtx, req)
	if err != nil {
		return nil, err
	}

	if err := p.store.Save(ctx, report); err != nil {
		logger.Error("failed to store forecast report", "request_id", report.RequestID, "error", err)
	}
	return report, nil
}

// worker processes requests from the queue. Once shutdown cancels the processor, queued
// requests are published as cancelled without running.
func (p *Processor) worker(id int) {
	defer p.wg.Done()

	for req := range p.queue {
		var report *models.ForecastReport
		var err error
		if ctxErr := p.ctx.Err(); ctxErr != nil {
			err = apperr.New(apperr.ForecastError, "queue", "request cancelled during shutdown", ctxErr)
		} else {
			report, err = p.execute(p.ctx, req)
		}
		p.release(req.RequestID)

		if err != nil {
			logger.Warn("queued forecast failed", "worker", id, "request_id", req.RequestID, "error", err)
		}
		if p.publisher == nil {
			continue
		}
		if pubErr := p.publisher.Publish(context.Background(), req.RequestID, report, err); pubErr != nil {
			logger.Error("failed to publish forecast outcome", "worker", id, "request_id", req.RequestID, "error", pubErr)
		}
	}
}

// Stop shuts down without a deadline.
func (p *Processor) Stop() {
	_ = p.Shutdown(context.Background())
}

// Shutdown stops accepting requests and drains the queue. When ctx ends first, running
// forecasts are cancelled and the rest of the queue is published as cancelled; Shutdown
// then waits for the workers and returns ctx's error. Only the first call drains.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.mutex.Lock()
	if p.stopped {
		p.mutex.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("processor shutdown deadline reached, cancelling remaining requests", "queued", len(p.queue))
		err = fmt.Errorf("processor shutdown: %w", ctx.Err())
		p.cancel()
		<-done
	}
	p.cancel()
	return err
}

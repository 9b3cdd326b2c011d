// Package api exposes the forecaster over HTTP.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/forecast"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/logger"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/store"
)

// Forecaster runs forecasts synchronously or queues them.
type Forecaster interface {
	Run(ctx context.Context, req models.ForecastRequest) (*models.ForecastReport, error)
	Submit(req models.ForecastRequest) (string, error)
}

// ReadingPreviewer returns the first normalised readings of the source.
type ReadingPreviewer interface {
	Readings(ctx context.Context, limit int) ([]models.Reading, error)
}

// Options configures the router.
type Options struct {
	Limits       forecast.Limits
	Location     *time.Location
	PreviewLimit int
	MaxPreview   int
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(forecaster Forecaster, st store.Store, previewer ReadingPreviewer, opts Options) *gin.Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = 100
	}
	if opts.MaxPreview < opts.PreviewLimit {
		opts.MaxPreview = 10 * opts.PreviewLimit
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "UP",
			"message": "kVAh forecaster is running",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &ForecastHandler{forecaster: forecaster, store: st, previewer: previewer, opts: opts}
	api := router.Group("/api")
	{
		api.POST("/forecast", h.CreateForecast)
		api.GET("/forecast/:id", h.GetForecast)
		api.GET("/forecast/:id/actual", h.GetActual)
		api.GET("/forecast/:id/forecasted", h.GetForecasted)
		api.GET("/readings", h.GetReadings)
	}
	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(started),
			"client_ip", c.ClientIP())
	}
}

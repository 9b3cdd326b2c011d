package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/apperr"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/forecast"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/processor"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/store"
)

// ForecastHandler serves forecast requests and stored results.
type ForecastHandler struct {
	forecaster Forecaster
	store      store.Store
	previewer  ReadingPreviewer
	opts       Options
}

// CreateForecast runs a forecast from a JSON or form body. With ?async=true the request is
// queued and 202 is returned with its ID.
func (h *ForecastHandler) CreateForecast(c *gin.Context) {
	var in models.ForecastInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBind(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "kind": apperr.InvalidArgument})
			return
		}
	}

	req, err := forecast.ParseRequest(in, h.opts.Limits, h.opts.Location)
	if err != nil {
		writeError(c, err)
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		id, err := h.forecaster.Submit(req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header("Location", "/api/forecast/"+id)
		c.JSON(http.StatusAccepted, gin.H{"request_id": id})
		return
	}

	report, err := h.forecaster.Run(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Location", "/api/forecast/"+report.RequestID)
	c.JSON(http.StatusCreated, report)
}

// GetForecast returns a stored report.
func (h *ForecastHandler) GetForecast(c *gin.Context) {
	if report, ok := h.lookup(c); ok {
		c.JSON(http.StatusOK, report)
	}
}

// GetActual returns the observed hourly consumption of a stored report.
func (h *ForecastHandler) GetActual(c *gin.Context) {
	if report, ok := h.lookup(c); ok {
		c.JSON(http.StatusOK, gin.H{"request_id": report.RequestID, "actual_hourly_kVAh": report.Actual})
	}
}

// GetForecasted returns the forecast hours of a stored report.
func (h *ForecastHandler) GetForecasted(c *gin.Context) {
	if report, ok := h.lookup(c); ok {
		c.JSON(http.StatusOK, gin.H{
			"request_id":      report.RequestID,
			"differences":     report.Result.Differences,
			"forecasted_kVAh": report.Forecasted,
		})
	}
}

// GetReadings previews the first normalised readings of the source.
func (h *ForecastHandler) GetReadings(c *gin.Context) {
	limit := h.opts.PreviewLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "invalid limit parameter, must be a positive integer",
				"kind":  apperr.InvalidArgument,
			})
			return
		}
		limit = l
	}
	if limit > h.opts.MaxPreview {
		limit = h.opts.MaxPreview
	}

	readings, err := h.previewer.Readings(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(readings), "data": readings})
}

func (h *ForecastHandler) lookup(c *gin.Context) (*models.ForecastReport, bool) {
	id := c.Param("id")
	report, err := h.store.Get(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "forecast " + id + " not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "result store unavailable", "kind": apperr.Internal})
		return nil, false
	}
	return report, true
}

func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	message := apperr.Message(err)
	if errors.Is(err, processor.ErrDuplicateID) {
		c.JSON(http.StatusConflict, gin.H{"error": message, "kind": kind})
		return
	}
	if errors.Is(err, processor.ErrQueueFull) || errors.Is(err, processor.ErrStopped) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "kind": kind})
		return
	}
	if kind == apperr.Internal {
		message = "internal error"
	}
	c.JSON(StatusFor(kind), gin.H{"error": message, "kind": kind})
}

// StatusFor maps an error kind to an HTTP status code.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidArgument, apperr.ParseError:
		return http.StatusBadRequest
	case apperr.InsufficientData, apperr.ForecastError:
		return http.StatusUnprocessableEntity
	case apperr.DataSourceUnavailable:
		return http.StatusServiceUnavailable
	case apperr.DataSourceError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

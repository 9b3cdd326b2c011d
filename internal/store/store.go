// Package store keeps forecast reports by request ID.
package store

import (
	"context"
	"errors"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
)

// ErrNotFound is returned for unknown or evicted request IDs.
var ErrNotFound = errors.New("forecast not found")

// Store saves and retrieves forecast reports.
type Store interface {
	Save(ctx context.Context, report *models.ForecastReport) error
	Get(ctx context.Context, requestID string) (*models.ForecastReport, error)
	Close() error
}

package ingest

import (
	"context"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
)

// Source loads normalised readings. Implementations may use window to narrow the query but
// callers must not rely on it; the pipeline filters again.
type Source interface {
	Load(ctx context.Context, window models.TimeRange) ([]models.Reading, models.IngestReport, error)
}

package driven

import (
	"context"

	"github.com/ericfisherdev/barsync/internal/domain/model"
)

// RunStore persists finalized run summaries as an operational log.
type RunStore interface {
	Save(ctx context.Context, summary model.RunSummary) error

	// ListRecent returns the latest summaries, newest first. tenantID 0 means all tenants.
	ListRecent(ctx context.Context, tenantID int64, limit int) ([]model.RunSummary, error)
}

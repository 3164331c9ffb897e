package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/barsync/internal/domain/model"
)

// QueueStore defines the driven port for the durable sync queue that hands raw
// vendor records from collection to processing.
type QueueStore interface {
	// Enqueue persists one pending item per record under a fresh batch id and
	// returns it. An empty batch creates nothing and returns "".
	Enqueue(ctx context.Context, batch model.RawBatch) (string, error)

	// ClaimBatch moves up to limit pending items of the batch, lowest id first,
	// to processing and returns them. It is claim-then-process, not a lock.
	ClaimBatch(ctx context.Context, batchID string, limit int) ([]model.QueueItem, error)

	// MarkProcessed sets the item to done (success) or error and stamps processed_at.
	MarkProcessed(ctx context.Context, itemID int64, success bool, errMsg string) error

	// BatchStatus counts the items of a batch per status.
	BatchStatus(ctx context.Context, batchID string) (model.BatchStatus, error)

	// ListPendingBatches returns batch ids that still hold pending items, oldest first.
	ListPendingBatches(ctx context.Context) ([]string, error)

	// DayCleared reports whether the batch has already cleared the canonical
	// rows of (dataType, tenantID, date).
	DayCleared(ctx context.Context, batchID string, dataType model.DataType, tenantID int64, date time.Time) (bool, error)

	// MarkDayCleared records that the batch cleared (dataType, tenantID, date).
	// Marking an already-marked day is a no-op.
	MarkDayCleared(ctx context.Context, batchID string, dataType model.DataType, tenantID int64, date time.Time) error
}

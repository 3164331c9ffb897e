package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/barsync/internal/domain/model"
)

// CanonicalStore defines the driven port for the normalized, tenant-scoped
// tables the processor writes into.
type CanonicalStore interface {
	// ClearDay deletes every row of a replace-semantics data type for the
	// tenant and business date.
	ClearDay(ctx context.Context, dataType model.DataType, tenantID int64, date time.Time) error

	InsertHourlySale(ctx context.Context, sale model.HourlySale) error
	InsertAnalyticLine(ctx context.Context, line model.AnalyticLine) error
	InsertPayment(ctx context.Context, payment model.Payment) error

	// UpsertPayable inserts or overwrites the payable keyed by (tenant, schedule id).
	UpsertPayable(ctx context.Context, payable model.ScheduledPayable) error

	ListHourlySales(ctx context.Context, tenantID int64, date time.Time) ([]model.HourlySale, error)
	ListAnalyticLines(ctx context.Context, tenantID int64, date time.Time) ([]model.AnalyticLine, error)
	ListPayments(ctx context.Context, tenantID int64, date time.Time) ([]model.Payment, error)
	ListPayables(ctx context.Context, tenantID int64) ([]model.ScheduledPayable, error)
}

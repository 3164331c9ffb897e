package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/barsync/internal/domain/model"
	"github.com/ericfisherdev/barsync/internal/domain/port/driven"
	"github.com/ericfisherdev/barsync/internal/metrics"
)

// Processor drains queued raw records into the canonical tables.
//
// A replace-semantics day is cleared once per batch, before the batch writes
// its first row for that day. The clear is recorded in the queue store, so
// later claims of the same batch never delete rows written by earlier ones,
// whatever the outcome of those earlier claims.
type Processor struct {
	queue driven.QueueStore
	store driven.CanonicalStore
}

// NewProcessor creates a Processor over the given queue and canonical store.
func NewProcessor(queue driven.QueueStore, store driven.CanonicalStore) *Processor {
	return &Processor{queue: queue, store: store}
}

// ProcessBatch claims up to limit pending items of the batch and writes each
// into its canonical table. Per-item failures are counted and recorded on the
// item, never returned. The error return is reserved for queue failures.
func (p *Processor) ProcessBatch(ctx context.Context, batchID string, limit int) (model.BatchResult, error) {
	var result model.BatchResult

	items, err := p.queue.ClaimBatch(ctx, batchID, limit)
	if err != nil {
		return result, fmt.Errorf("claim batch %s: %w", batchID, err)
	}
	if len(items) == 0 {
		return result, nil
	}

	cleared := make(map[string]bool)

	for _, item := range items {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		result.Processed++
		outcome, errMsg := p.processItem(ctx, item, cleared)

		switch outcome {
		case outcomeInserted:
			result.Inserted++
		case outcomeSkipped:
			result.Skipped++
		case outcomeError:
			result.Errors++
		}
		metrics.QueueItemsProcessed.WithLabelValues(string(item.DataType), string(outcome)).Inc()

		if err := p.queue.MarkProcessed(ctx, item.ID, outcome == outcomeInserted, errMsg); err != nil {
			slog.Error("mark queue item failed", "batch_id", batchID, "item_id", item.ID, "error", err)
			if outcome == outcomeInserted {
				result.Inserted--
				result.Errors++
			}
		}
	}

	slog.Debug("batch pass complete",
		"batch_id", batchID,
		"processed", result.Processed,
		"inserted", result.Inserted,
		"skipped", result.Skipped,
		"errors", result.Errors,
	)

	return result, nil
}

// Drain calls ProcessBatch until the batch has no pending items left.
func (p *Processor) Drain(ctx context.Context, batchID string, limit int) (model.BatchResult, error) {
	var total model.BatchResult
	for {
		r, err := p.ProcessBatch(ctx, batchID, limit)
		total.Add(r)
		if err != nil {
			return total, err
		}
		if r.Processed == 0 {
			return total, nil
		}
	}
}

type itemOutcome string

const (
	outcomeInserted itemOutcome = "inserted"
	outcomeSkipped  itemOutcome = "skipped"
	outcomeError    itemOutcome = "error"
)

func (p *Processor) processItem(ctx context.Context, item model.QueueItem, cleared map[string]bool) (itemOutcome, string) {
	record, err := mapRecord(item)
	if err != nil {
		var mapErr *model.MappingError
		if errors.As(err, &mapErr) {
			slog.Warn("skipping unmappable record", "batch_id", item.BatchID, "item_id", item.ID, "reason", mapErr.Reason)
			return outcomeSkipped, err.Error()
		}
		return outcomeError, err.Error()
	}

	if item.DataType.WriteMode() == model.WriteModeReplace {
		date := recordDate(record, item.BusinessDate)
		key := fmt.Sprintf("%d|%s", item.TenantID, date.Format(model.DateLayout))
		if !cleared[key] {
			if err := p.clearForBatch(ctx, item, date); err != nil {
				werr := &model.WriteError{DataType: item.DataType, Op: "clear", Err: err}
				slog.Error("clear day failed", "batch_id", item.BatchID, "item_id", item.ID, "error", werr)
				return outcomeError, werr.Error()
			}
			cleared[key] = true
		}
	}

	if err := p.write(ctx, record); err != nil {
		werr := &model.WriteError{DataType: item.DataType, Op: "write", Err: err}
		slog.Error("write canonical record failed", "batch_id", item.BatchID, "item_id", item.ID, "error", werr)
		return outcomeError, werr.Error()
	}

	return outcomeInserted, ""
}

func (p *Processor) write(ctx context.Context, record any) error {
	switch r := record.(type) {
	case model.HourlySale:
		return p.store.InsertHourlySale(ctx, r)
	case model.AnalyticLine:
		return p.store.InsertAnalyticLine(ctx, r)
	case model.Payment:
		return p.store.InsertPayment(ctx, r)
	case model.ScheduledPayable:
		return p.store.UpsertPayable(ctx, r)
	default:
		return fmt.Errorf("unsupported canonical record %T", record)
	}
}

// clearForBatch clears the item's day unless its batch already did. The day is
// marked only after the clear succeeds, and no row is written until it is
// marked, so a failed clear or mark is retried by the next item of the day.
func (p *Processor) clearForBatch(ctx context.Context, item model.QueueItem, date time.Time) error {
	done, err := p.queue.DayCleared(ctx, item.BatchID, item.DataType, item.TenantID, date)
	if err != nil {
		return err
	}
	if done {
		return nil
	}
	if err := p.store.ClearDay(ctx, item.DataType, item.TenantID, date); err != nil {
		return err
	}
	return p.queue.MarkDayCleared(ctx, item.BatchID, item.DataType, item.TenantID, date)
}

// ClearEmptyDay removes the canonical rows of a replace-semantics day whose
// collection returned no records. Merge-semantics data types are left as is.
func (p *Processor) ClearEmptyDay(ctx context.Context, dataType model.DataType, tenantID int64, day time.Time) error {
	if dataType.WriteMode() != model.WriteModeReplace {
		return nil
	}
	if err := p.store.ClearDay(ctx, dataType, tenantID, day); err != nil {
		return &model.WriteError{DataType: dataType, Op: "clear", Err: err}
	}
	return nil
}

func recordDate(record any, fallback time.Time) time.Time {
	switch r := record.(type) {
	case model.HourlySale:
		return r.BusinessDate
	case model.AnalyticLine:
		return r.BusinessDate
	case model.Payment:
		return r.BusinessDate
	}
	return fallback
}

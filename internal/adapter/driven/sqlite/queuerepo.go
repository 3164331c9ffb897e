package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/barsync/internal/domain/model"
	"github.com/ericfisherdev/barsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.QueueStore = (*QueueRepo)(nil)

// QueueRepo is the SQLite implementation of the QueueStore port interface.
type QueueRepo struct {
	db *DB
}

// NewQueueRepo creates a new QueueRepo backed by the given DB.
func NewQueueRepo(db *DB) *QueueRepo {
	return &QueueRepo{db: db}
}

// Enqueue inserts one pending item per raw record under a fresh batch id in a
// single transaction. An empty batch is a no-op and returns "".
func (r *QueueRepo) Enqueue(ctx context.Context, batch model.RawBatch) (string, error) {
	if batch.Empty() {
		return "", nil
	}

	batchID := uuid.NewString()

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	const query = `
		INSERT INTO sync_queue (batch_id, tenant_id, data_type, business_date, raw_data, status)
		VALUES (?, ?, ?, ?, ?, 'pending')
	`
	date := formatDate(batch.BusinessDate)
	for i, rec := range batch.Records {
		if _, err := tx.ExecContext(ctx, query,
			batchID, batch.TenantID, string(batch.DataType), date, string(rec),
		); err != nil {
			return "", fmt.Errorf("enqueue record %d of batch %s: %w", i, batchID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit batch %s: %w", batchID, err)
	}

	return batchID, nil
}

// ClaimBatch selects up to limit pending items of the batch ordered by id and
// moves them to processing in the same transaction.
func (r *QueueRepo) ClaimBatch(ctx context.Context, batchID string, limit int) ([]model.QueueItem, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("claim batch %s: limit must be positive, got %d", batchID, limit)
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	const selectQuery = `
		SELECT id, batch_id, tenant_id, data_type, business_date, raw_data, status,
		       attempts, error, created_at, processed_at
		FROM sync_queue
		WHERE batch_id = ? AND status = 'pending'
		ORDER BY id
		LIMIT ?
	`
	rows, err := tx.QueryContext(ctx, selectQuery, batchID, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending items of batch %s: %w", batchID, err)
	}

	var items []model.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate queue items: %w", err)
	}
	rows.Close()

	const claimQuery = `
		UPDATE sync_queue SET status = 'processing', attempts = attempts + 1
		WHERE id = ? AND status = 'pending'
	`
	for i := range items {
		if _, err := tx.ExecContext(ctx, claimQuery, items[i].ID); err != nil {
			return nil, fmt.Errorf("claim queue item %d: %w", items[i].ID, err)
		}
		items[i].Status = model.QueueStatusProcessing
		items[i].Attempts++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim of batch %s: %w", batchID, err)
	}

	return items, nil
}

// MarkProcessed sets the final status of an item and stamps processed_at.
func (r *QueueRepo) MarkProcessed(ctx context.Context, itemID int64, success bool, errMsg string) error {
	status := model.QueueStatusDone
	if !success {
		status = model.QueueStatusError
	}

	const query = `
		UPDATE sync_queue SET status = ?, error = ?, processed_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Writer.ExecContext(ctx, query, string(status), errMsg, itemID)
	if err != nil {
		return fmt.Errorf("mark queue item %d %s: %w", itemID, status, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("queue item %d: %w", itemID, model.ErrNotFound)
	}

	return nil
}

// BatchStatus counts the items of a batch per status.
func (r *QueueRepo) BatchStatus(ctx context.Context, batchID string) (model.BatchStatus, error) {
	const query = `SELECT status, COUNT(*) FROM sync_queue WHERE batch_id = ? GROUP BY status`

	status := model.BatchStatus{BatchID: batchID}

	rows, err := r.db.Reader.QueryContext(ctx, query, batchID)
	if err != nil {
		return status, fmt.Errorf("count batch %s: %w", batchID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return status, fmt.Errorf("scan batch count: %w", err)
		}
		switch model.QueueStatus(s) {
		case model.QueueStatusPending:
			status.Pending = n
		case model.QueueStatusProcessing:
			status.Processing = n
		case model.QueueStatusDone:
			status.Done = n
		case model.QueueStatusError:
			status.Error = n
		}
	}
	if err := rows.Err(); err != nil {
		return status, fmt.Errorf("iterate batch counts: %w", err)
	}

	return status, nil
}

// ListPendingBatches returns batch ids holding pending items, oldest batch first.
func (r *QueueRepo) ListPendingBatches(ctx context.Context) ([]string, error) {
	const query = `
		SELECT batch_id FROM sync_queue
		WHERE status = 'pending'
		GROUP BY batch_id
		ORDER BY MIN(id)
	`
	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pending batches: %w", err)
	}
	defer rows.Close()

	batches := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan batch id: %w", err)
		}
		batches = append(batches, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending batches: %w", err)
	}

	return batches, nil
}

// DayCleared reports whether batchID already cleared the given day.
func (r *QueueRepo) DayCleared(ctx context.Context, batchID string, dataType model.DataType, tenantID int64, date time.Time) (bool, error) {
	const query = `
		SELECT COUNT(*) FROM sync_batch_clears
		WHERE batch_id = ? AND data_type = ? AND tenant_id = ? AND business_date = ?
	`
	var n int
	err := r.db.Reader.QueryRowContext(ctx, query, batchID, string(dataType), tenantID, formatDate(date)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check clear of batch %s: %w", batchID, err)
	}
	return n > 0, nil
}

// MarkDayCleared records that batchID cleared the given day.
func (r *QueueRepo) MarkDayCleared(ctx context.Context, batchID string, dataType model.DataType, tenantID int64, date time.Time) error {
	const query = `
		INSERT INTO sync_batch_clears (batch_id, data_type, tenant_id, business_date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (batch_id, data_type, tenant_id, business_date) DO NOTHING
	`
	if _, err := r.db.Writer.ExecContext(ctx, query, batchID, string(dataType), tenantID, formatDate(date)); err != nil {
		return fmt.Errorf("mark clear of batch %s: %w", batchID, err)
	}
	return nil
}

func scanQueueItem(s scanner) (*model.QueueItem, error) {
	var item model.QueueItem
	var dataType, businessDate, rawData, status, createdAt string
	var processedAt sql.NullString

	err := s.Scan(
		&item.ID, &item.BatchID, &item.TenantID, &dataType, &businessDate, &rawData,
		&status, &item.Attempts, &item.Error, &createdAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}

	item.DataType = model.DataType(dataType)
	item.Status = model.QueueStatus(status)
	item.RawData = []byte(rawData)

	item.BusinessDate, err = parseDate(businessDate)
	if err != nil {
		return nil, err
	}

	item.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	item.ProcessedAt, err = parseNullTime(processedAt)
	if err != nil {
		return nil, fmt.Errorf("parse processed_at: %w", err)
	}

	return &item, nil
}

package sqlite

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/ericfisherdev/barsync/internal/domain/model"
	"github.com/ericfisherdev/barsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RunStore = (*RunRepo)(nil)

// RunRepo is the SQLite implementation of the RunStore port interface.
// Data types and per-day results are serialized as JSON arrays in TEXT columns.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new RunRepo backed by the given DB.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// Save inserts the finalized run summary. Saving the same run id twice replaces the row.
func (r *RunRepo) Save(ctx context.Context, s model.RunSummary) error {
	dataTypes := s.DataTypes
	if dataTypes == nil {
		dataTypes = []model.DataType{}
	}
	dataTypesJSON, err := json.Marshal(dataTypes)
	if err != nil {
		return fmt.Errorf("marshal data types: %w", err)
	}

	days := s.Days
	if days == nil {
		days = []model.DayResult{}
	}
	daysJSON, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("marshal day results: %w", err)
	}

	const query = `
		INSERT OR REPLACE INTO sync_runs (
			run_id, tenant_id, run_trigger, data_types, date_start, date_end,
			days_attempted, days_succeeded, days_no_data, days_failed,
			records_collected, records_written, errors, days, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Writer.ExecContext(ctx, query,
		s.RunID, s.TenantID, s.Trigger, string(dataTypesJSON), s.DateStart, s.DateEnd,
		s.DaysAttempted, s.DaysSucceeded, s.DaysNoData, s.DaysFailed,
		s.RecordsCollected, s.RecordsWritten, s.Errors, string(daysJSON),
		formatTime(s.StartedAt), formatTime(s.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", s.RunID, err)
	}
	return nil
}

// ListRecent returns up to limit run summaries, newest first. tenantID 0 lists all tenants.
func (r *RunRepo) ListRecent(ctx context.Context, tenantID int64, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	const query = `
		SELECT run_id, tenant_id, run_trigger, data_types, date_start, date_end,
		       days_attempted, days_succeeded, days_no_data, days_failed,
		       records_collected, records_written, errors, days, started_at, finished_at
		FROM sync_runs
		WHERE (? = 0 OR tenant_id = ?)
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`
	rows, err := r.db.Reader.QueryContext(ctx, query, tenantID, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []model.RunSummary{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

func scanRun(s scanner) (*model.RunSummary, error) {
	var run model.RunSummary
	var dataTypesJSON, daysJSON, startedAt, finishedAt string

	err := s.Scan(
		&run.RunID, &run.TenantID, &run.Trigger, &dataTypesJSON, &run.DateStart, &run.DateEnd,
		&run.DaysAttempted, &run.DaysSucceeded, &run.DaysNoData, &run.DaysFailed,
		&run.RecordsCollected, &run.RecordsWritten, &run.Errors, &daysJSON, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(dataTypesJSON), &run.DataTypes); err != nil {
		return nil, fmt.Errorf("unmarshal data types: %w", err)
	}
	if err := json.Unmarshal([]byte(daysJSON), &run.Days); err != nil {
		return nil, fmt.Errorf("unmarshal day results: %w", err)
	}

	run.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	run.FinishedAt, err = parseTime(finishedAt)
	if err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}

	return &run, nil
}

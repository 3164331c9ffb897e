package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/barsync/internal/domain/model"
)

func TestRunRepo_SaveAndListRecent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRunRepo(db)
	ctx := context.Background()

	start := time.Date(2025, 9, 8, 3, 0, 0, 0, time.UTC)
	older := model.RunSummary{
		RunID: "run-1", TenantID: 3, DataTypes: []model.DataType{model.DataTypeHourlySales},
		DateStart: "2025-09-06", DateEnd: "2025-09-06", Trigger: "manual",
		DaysAttempted: 1, DaysSucceeded: 1, RecordsCollected: 4, RecordsWritten: 4,
		Days: []model.DayResult{{Date: "2025-09-06", DataType: model.DataTypeHourlySales, State: model.DayStateDone, Collected: 4, Written: 4}},
		StartedAt: start, FinishedAt: start.Add(time.Minute),
	}
	newer := model.RunSummary{
		RunID: "run-2", TenantID: 4, DateStart: "2025-09-07", DateEnd: "2025-09-07",
		StartedAt: start.Add(time.Hour), FinishedAt: start.Add(time.Hour + time.Minute),
	}

	require.NoError(t, repo.Save(ctx, older))
	require.NoError(t, repo.Save(ctx, newer))

	runs, err := repo.ListRecent(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Empty(t, runs[0].Days)

	runs, err = repo.ListRecent(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "manual", runs[0].Trigger)
	assert.Equal(t, []model.DataType{model.DataTypeHourlySales}, runs[0].DataTypes)
	require.Len(t, runs[0].Days, 1)
	assert.Equal(t, model.DayStateDone, runs[0].Days[0].State)
	assert.True(t, start.Equal(runs[0].StartedAt))
}

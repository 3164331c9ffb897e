package application

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/barsync/internal/domain/model"
)

func TestCoerceDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"45.00", 45},
		{"45,00", 45},
		{"1.234,56", 1234.56},
		{"R$ 12,50", 12.5},
		{" 3 ", 3},
		{"", 0},
		{"abc", 0},
		{"-2,5", -2.5},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.want, coerceDecimal(tt.in), 0.0001)
		})
	}
}

func TestFlexNumber_AcceptsAnyShape(t *testing.T) {
	var row struct {
		A flexNumber `json:"a"`
		B flexNumber `json:"b"`
		C flexNumber `json:"c"`
		D flexNumber `json:"d"`
		E flexNumber `json:"e"`
	}
	err := json.Unmarshal([]byte(`{"a":3,"b":"5,5","c":null,"d":true,"e":{"x":1}}`), &row)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, float64(row.A), 0.0001)
	assert.InDelta(t, 5.5, float64(row.B), 0.0001)
	assert.Zero(t, row.C)
	assert.Zero(t, row.D)
	assert.Zero(t, row.E)
}

func TestMapRecord_HourlyUsesManagerialDate(t *testing.T) {
	item := model.QueueItem{
		TenantID:     3,
		DataType:     model.DataTypeHourlySales,
		BusinessDate: time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC),
		RawData:      json.RawMessage(`{"hora":"01:00","prd":101,"q":"2","dt_gerencial":"2025-09-05T00:00:00"}`),
	}

	rec, err := mapRecord(item)
	require.NoError(t, err)

	sale, ok := rec.(model.HourlySale)
	require.True(t, ok)
	assert.Equal(t, 1, sale.Hour)
	assert.Equal(t, "101", sale.ProductID)
	assert.Equal(t, "2025-09-05", sale.BusinessDate.Format(model.DateLayout))
}

func TestMapRecord_HourOutOfRange(t *testing.T) {
	item := model.QueueItem{
		DataType: model.DataTypeHourlySales,
		RawData:  json.RawMessage(`{"hora":"25","prd":"1"}`),
	}

	_, err := mapRecord(item)

	var mapErr *model.MappingError
	require.ErrorAs(t, err, &mapErr)
	assert.Contains(t, mapErr.Reason, "hora")
}

func TestMapRecord_PayableRequiresScheduleID(t *testing.T) {
	item := model.QueueItem{
		DataType: model.DataTypePayables,
		RawData:  json.RawMessage(`{"description":"Rent","value":"1.500,00"}`),
	}

	_, err := mapRecord(item)

	var mapErr *model.MappingError
	require.ErrorAs(t, err, &mapErr)
	assert.Contains(t, mapErr.Reason, "scheduleId")
}

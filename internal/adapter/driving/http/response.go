package httphandler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/ericfisherdev/barsync/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// statusResponse acknowledges work accepted for background execution.
type statusResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the JSON representation of a health check.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// SyncRequest is the JSON body of POST /api/v1/sync. Dates are business days
// in YYYY-MM-DD form; an omitted date_end means a single day.
type SyncRequest struct {
	TenantID  int64    `json:"tenant_id" validate:"gt=0"`
	DataTypes []string `json:"data_types" validate:"dive,oneof=hourly_sales analytic payments payables"`
	DateStart string   `json:"date_start" validate:"required,datetime=2006-01-02"`
	DateEnd   string   `json:"date_end" validate:"omitempty,datetime=2006-01-02"`
}

func (s SyncRequest) toRunRequest() (model.RunRequest, error) {
	start, err := time.Parse(model.DateLayout, s.DateStart)
	if err != nil {
		return model.RunRequest{}, fmt.Errorf("invalid date_start: %w", err)
	}
	end := start
	if s.DateEnd != "" {
		end, err = time.Parse(model.DateLayout, s.DateEnd)
		if err != nil {
			return model.RunRequest{}, fmt.Errorf("invalid date_end: %w", err)
		}
	}
	if end.Before(start) {
		return model.RunRequest{}, errors.New("date_end is before date_start")
	}

	types := make([]model.DataType, len(s.DataTypes))
	for i, dt := range s.DataTypes {
		types[i] = model.DataType(dt)
	}

	return model.RunRequest{
		TenantID:  s.TenantID,
		DataTypes: types,
		DateStart: start,
		DateEnd:   end,
		Trigger:   "manual",
	}, nil
}

// validationMessage flattens validator errors into one client-facing line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

// BatchStatusResponse is the JSON representation of a batch's item counts.
type BatchStatusResponse struct {
	BatchID    string `json:"batch_id"`
	Pending    int    `json:"pending"`
	Processing int    `json:"processing"`
	Done       int    `json:"done"`
	Error      int    `json:"error"`
	Total      int    `json:"total"`
}

func toBatchStatusResponse(s model.BatchStatus) BatchStatusResponse {
	return BatchStatusResponse{
		BatchID:    s.BatchID,
		Pending:    s.Pending,
		Processing: s.Processing,
		Done:       s.Done,
		Error:      s.Error,
		Total:      s.Total(),
	}
}

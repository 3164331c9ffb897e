package model

import "time"

// DateLayout is the business-date format used on the wire and in storage.
const DateLayout = "2006-01-02"

// RunRequest is the parameter set of one orchestrated sync.
type RunRequest struct {
	TenantID  int64      `validate:"gt=0"`
	DataTypes []DataType `validate:"dive,datatype"` // Empty means every data type.
	DateStart time.Time  `validate:"required"`
	DateEnd   time.Time  `validate:"required,gtefield=DateStart"`
	Trigger   string     // "manual" or "schedule"; informational.
}

// DayResult records the outcome of one (day, data type) unit of work.
type DayResult struct {
	Date      string   `json:"date"`
	DataType  DataType `json:"data_type"`
	State     DayState `json:"state"`
	BatchID   string   `json:"batch_id,omitempty"`
	Collected int      `json:"collected"`
	Written   int      `json:"written"`
	Skipped   int      `json:"skipped"`
	Errors    int      `json:"errors"`
	Attempts  int      `json:"attempts"`
	Error     string   `json:"error,omitempty"`
}

// RunSummary aggregates every DayResult of one orchestrated run.
type RunSummary struct {
	RunID            string      `json:"run_id"`
	TenantID         int64       `json:"tenant_id"`
	DataTypes        []DataType  `json:"data_types"`
	DateStart        string      `json:"date_start"`
	DateEnd          string      `json:"date_end"`
	Trigger          string      `json:"trigger"`
	DaysAttempted    int         `json:"days_attempted"`
	DaysSucceeded    int         `json:"days_succeeded"`
	DaysNoData       int         `json:"days_no_data"`
	DaysFailed       int         `json:"days_failed"`
	RecordsCollected int         `json:"records_collected"`
	RecordsWritten   int         `json:"records_written"`
	Errors           int         `json:"errors"`
	Days             []DayResult `json:"days"`
	StartedAt        time.Time   `json:"started_at"`
	FinishedAt       time.Time   `json:"finished_at"`
}

// Record folds one day result into the run totals.
func (s *RunSummary) Record(day DayResult) {
	s.DaysAttempted++
	switch day.State {
	case DayStateDone:
		s.DaysSucceeded++
	case DayStateNoData:
		s.DaysSucceeded++
		s.DaysNoData++
	default:
		s.DaysFailed++
		s.Errors++
	}
	s.RecordsCollected += day.Collected
	s.RecordsWritten += day.Written
	s.Errors += day.Errors
	s.Days = append(s.Days, day)
}

// Failed returns the day results that did not complete.
func (s *RunSummary) Failed() []DayResult {
	var failed []DayResult
	for _, d := range s.Days {
		if d.State == DayStateFailed {
			failed = append(failed, d)
		}
	}
	return failed
}

// NotificationField is one name/value line of a notification.
type NotificationField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Notification is the fixed message contract handed to the notifier.
type Notification struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Fields      []NotificationField `json:"fields"`
	BarID       int64               `json:"bar_id"`
	WebhookType string              `json:"webhook_type"`
}

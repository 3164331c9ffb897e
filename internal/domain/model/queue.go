package model

import (
	"encoding/json"
	"time"
)

// RawBatch is the vendor-shaped result of one collection call.
type RawBatch struct {
	TenantID     int64
	Vendor       Vendor
	DataType     DataType
	BusinessDate time.Time
	Records      []json.RawMessage
}

// Empty reports whether the batch carries no records.
func (b RawBatch) Empty() bool {
	return len(b.Records) == 0
}

// QueueItem is one raw vendor record waiting in the sync queue.
type QueueItem struct {
	ID           int64
	BatchID      string
	TenantID     int64
	DataType     DataType
	BusinessDate time.Time
	RawData      json.RawMessage
	Status       QueueStatus
	Attempts     int
	Error        string
	CreatedAt    time.Time
	ProcessedAt  time.Time // Zero until the item reaches done or error.
}

// BatchStatus counts the items of one batch per status.
type BatchStatus struct {
	BatchID    string
	Pending    int
	Processing int
	Done       int
	Error      int
}

// Total returns the number of items in the batch.
func (s BatchStatus) Total() int {
	return s.Pending + s.Processing + s.Done + s.Error
}

// BatchResult is the tally returned by one processor pass over a batch.
type BatchResult struct {
	Processed int `json:"processed"`
	Inserted  int `json:"inserted"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Add accumulates other into r.
func (r *BatchResult) Add(other BatchResult) {
	r.Processed += other.Processed
	r.Inserted += other.Inserted
	r.Skipped += other.Skipped
	r.Errors += other.Errors
}

package model

import "time"

// HourlySale is the quantity and value sold of one product in one hour of a
// business day. Replace semantics: keyed by (tenant, date, hour, product).
type HourlySale struct {
	ID           int64
	TenantID     int64
	BusinessDate time.Time
	Hour         int
	ProductID    string
	ProductDesc  string
	Quantity     float64
	AmountPaid   float64
}

// AnalyticLine is one itemised sale line from the analytic report.
type AnalyticLine struct {
	ID           int64
	TenantID     int64
	BusinessDate time.Time
	LineID       string
	ProductID    string
	ProductDesc  string
	GroupDesc    string
	Quantity     float64
	UnitPrice    float64
	Total        float64
	Employee     string
}

// Payment is one settled payment of a business day.
type Payment struct {
	ID           int64
	TenantID     int64
	BusinessDate time.Time
	PaymentID    string
	Method       string
	Amount       float64
	Fee          float64
	NetAmount    float64
	PaidAt       time.Time // Zero when the vendor omits it.
}

// ScheduledPayable is a payable scheduled in the accounting vendor.
// Merge semantics: keyed by (tenant, schedule id).
type ScheduledPayable struct {
	ID           int64
	TenantID     int64
	ScheduleID   string
	BusinessDate time.Time // Due date.
	Description  string
	Category     string
	Supplier     string
	Amount       float64
	PaidAmount   float64
	Status       string
	UpdatedAt    time.Time
}

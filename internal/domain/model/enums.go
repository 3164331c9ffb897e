package model

// Vendor identifies an external back-office provider.
type Vendor string

const (
	VendorContaHub Vendor = "contahub" // POS / analytics vendor, cookie session.
	VendorNibo     Vendor = "nibo"     // Accounting / payables vendor, static token.
)

// DataType selects one vendor report and the canonical table it is mapped into.
type DataType string

const (
	DataTypeHourlySales DataType = "hourly_sales"
	DataTypeAnalytic    DataType = "analytic"
	DataTypePayments    DataType = "payments"
	DataTypePayables    DataType = "payables"
)

// AllDataTypes lists every supported data type in collection order.
var AllDataTypes = []DataType{
	DataTypeHourlySales,
	DataTypeAnalytic,
	DataTypePayments,
	DataTypePayables,
}

// WriteMode describes how canonical rows of a data type are written.
type WriteMode string

const (
	// WriteModeReplace clears every row for (tenant, business date) before inserting.
	WriteModeReplace WriteMode = "replace"
	// WriteModeMerge upserts on the vendor-stable natural key, last write wins.
	WriteModeMerge WriteMode = "merge"
)

// Vendor returns the provider that serves the data type.
func (d DataType) Vendor() Vendor {
	if d == DataTypePayables {
		return VendorNibo
	}
	return VendorContaHub
}

// WriteMode returns the write semantics of the data type.
func (d DataType) WriteMode() WriteMode {
	if d == DataTypePayables {
		return WriteModeMerge
	}
	return WriteModeReplace
}

// Valid reports whether d is a known data type.
func (d DataType) Valid() bool {
	for _, known := range AllDataTypes {
		if d == known {
			return true
		}
	}
	return false
}

// QueueStatus represents the lifecycle state of a queued raw record.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusDone       QueueStatus = "done"
	QueueStatusError      QueueStatus = "error"
)

// DayState is the position of one (day, data type) unit of work in the run state machine.
type DayState string

const (
	DayStatePendingCollect DayState = "pending_collect"
	DayStateCollected      DayState = "collected"
	DayStatePendingProcess DayState = "pending_process"
	DayStateProcessed      DayState = "processed"
	DayStateDone           DayState = "done"
	DayStateNoData         DayState = "no_data"
	DayStateFailed         DayState = "failed"
)

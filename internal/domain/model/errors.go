package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSessionExpired is returned when a vendor rejects a request because the
	// session is missing or expired. It is always wrapped in an AuthError.
	ErrSessionExpired = errors.New("vendor session expired")

	// ErrInvalidCredentials is returned when a vendor rejects a login outright.
	ErrInvalidCredentials = errors.New("vendor rejected credentials")

	// ErrUnexpectedResponse is returned when a vendor response matches none of
	// the known shapes.
	ErrUnexpectedResponse = errors.New("unexpected vendor response")

	// ErrVendorUnavailable is returned while a vendor's circuit breaker is open.
	ErrVendorUnavailable = errors.New("vendor unavailable")

	// ErrInvalidRequest is returned for run requests that fail validation.
	ErrInvalidRequest = errors.New("invalid request")
)

// AuthError reports a vendor login or session failure. It aborts the current day only.
type AuthError struct {
	Vendor Vendor
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s auth: %v", e.Vendor, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// CollectError reports a transport or decode failure of a collection call.
type CollectError struct {
	Vendor   Vendor
	DataType DataType
	Err      error
}

func (e *CollectError) Error() string {
	return fmt.Sprintf("%s collect %s: %v", e.Vendor, e.DataType, e.Err)
}

func (e *CollectError) Unwrap() error { return e.Err }

// MappingError reports a vendor record that cannot be mapped. The record is
// skipped and counted.
type MappingError struct {
	DataType DataType
	Reason   string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("map %s record: %s", e.DataType, e.Reason)
}

// WriteError reports a failed write of one canonical record or day clear.
type WriteError struct {
	DataType DataType
	Op       string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s (%s): %v", e.DataType, e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

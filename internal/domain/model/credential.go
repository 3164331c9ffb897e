package model

import "time"

// ExternalCredential holds the connection details a tenant uses against one
// vendor in one environment. Secret is the plaintext login password (ContaHub)
// or API token (Nibo); adapters encrypt it at rest.
type ExternalCredential struct {
	ID          int64
	TenantID    int64
	Vendor      Vendor
	Environment string
	BaseURL     string
	Username    string // Login e-mail for ContaHub; unused by Nibo.
	Secret      string
	CompanyID   string // Vendor-side company id ("emp" for ContaHub).
	EmployeeID  string
	Active      bool
	UpdatedAt   time.Time
}

// SessionHandle is the short-lived authentication result of one login.
// It is never persisted and never shared between runs.
type SessionHandle struct {
	Vendor     Vendor
	Cookie     string // Cookie header value for ContaHub.
	Token      string // ApiToken header value for Nibo.
	AcquiredAt time.Time
}

package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/barsync/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// BARSYNC_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set BARSYNC_SECRET_KEY")

// CredentialStore defines the driven port for encrypted vendor credential
// persistence. The adapter layer is responsible for encryption/decryption; this
// interface operates on plaintext secrets at the domain boundary.
type CredentialStore interface {
	// Upsert stores or replaces the credential for (tenant, vendor, environment).
	Upsert(ctx context.Context, cred model.ExternalCredential) error

	// Get returns the active credential for the tenant and vendor in the given
	// environment. Returns model.ErrNotFound if none is active.
	Get(ctx context.Context, tenantID int64, vendor model.Vendor, environment string) (*model.ExternalCredential, error)

	// ListActive returns every active credential of the environment, ordered by
	// tenant and vendor.
	ListActive(ctx context.Context, environment string) ([]model.ExternalCredential, error)

	// Deactivate marks the credential inactive without deleting it.
	Deactivate(ctx context.Context, tenantID int64, vendor model.Vendor, environment string) error
}

package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/barsync/internal/domain/model"
)

// VendorClient defines the driven port for one external back-office provider.
// Implementations perform network calls only; they never touch storage.
type VendorClient interface {
	// Vendor returns the provider this client talks to.
	Vendor() model.Vendor

	// Authenticate obtains a fresh session for the credential. Failures are
	// returned as *model.AuthError. No retry is attempted.
	Authenticate(ctx context.Context, cred model.ExternalCredential) (model.SessionHandle, error)

	// Collect fetches every record of dataType for one business day. An empty
	// result is not an error. Transport and decode failures are returned as
	// *model.CollectError; session rejection as *model.AuthError wrapping
	// model.ErrSessionExpired.
	Collect(ctx context.Context, session model.SessionHandle, cred model.ExternalCredential, dataType model.DataType, day time.Time) (model.RawBatch, error)
}

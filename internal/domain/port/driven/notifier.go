package driven

import (
	"context"

	"github.com/ericfisherdev/barsync/internal/domain/model"
)

// Notifier delivers a run notification. Callers log failures and never
// propagate them.
type Notifier interface {
	Send(ctx context.Context, n model.Notification) error
}

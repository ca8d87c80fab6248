package checkout

import (
	"context"

	"github.com/google/uuid"
)

// PaymentAuthorizer is the external payment collaborator, invoked after the
// pricing snapshot and before stock is reserved.
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, userID string, amount int64) (string, error)
}

// AutoApprove authorizes every payment. Capture against a real gateway
// happens outside this service.
type AutoApprove struct{}

func (AutoApprove) Authorize(_ context.Context, _ string, _ int64) (string, error) {
	return "auto-" + uuid.NewString(), nil
}

package identity

import (
	"context"
	"fmt"
)

// Disabled rejects every assertion. It stands in when no provider client id
// is configured.
type Disabled struct{}

func (Disabled) VerifyAssertion(context.Context, string) (Assertion, error) {
	return Assertion{}, fmt.Errorf("%w: federated login is not configured", ErrInvalidAssertion)
}

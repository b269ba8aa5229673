// Package backoff tracks consecutive sync failures per account and holds
// repeatedly failing accounts out of scheduling for a cool-down period. This
// keeps a revoked credential from being hammered every tick while still
// letting transient failures retry on the next cycle.
package backoff

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tracker records sync outcomes and places holds.
type Tracker interface {
	// Failure records a failed sync; once the threshold is reached the
	// account is held until the returned time. Reports whether a hold was
	// placed.
	Failure(ctx context.Context, accountID uuid.UUID) (bool, time.Time, error)
	// Success resets the failure counter after a completed sync.
	Success(ctx context.Context, accountID uuid.UUID) error
}

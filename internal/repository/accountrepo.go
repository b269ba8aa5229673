// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/pulseplan/calsync/internal/model"
)

// AccountRepository provides access to calendar accounts and owns the
// sync-status transitions used for cross-process coordination.
type AccountRepository interface {
	// GetByID loads an account by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.CalendarAccount, error)

	// ClaimDue atomically selects accounts due for sync and flips them to
	// StatusSyncing in one conditional UPDATE, so two overlapping scheduler
	// ticks can never claim the same account twice. An account is due when it
	// is active, not currently syncing, not held out by the failure backoff,
	// and was last synced before the cutoff (or never).
	ClaimDue(ctx context.Context, lastSyncedBefore time.Time, limit int) ([]model.CalendarAccount, error)

	// MarkSynced finishes a successful sync: status idle, last_synced set,
	// error cleared.
	MarkSynced(ctx context.Context, id uuid.UUID, syncedAt time.Time) error

	// MarkIdle releases an account without recording a sync (benign no-op
	// outcomes: inactive account, no calendars).
	MarkIdle(ctx context.Context, id uuid.UUID) error

	// MarkError records a failed sync with a free-text message.
	MarkError(ctx context.Context, id uuid.UUID, msg string) error

	// SaveTokens persists rotated OAuth tokens (ciphertext) and the new expiry.
	SaveTokens(ctx context.Context, id uuid.UUID, accessEnc, refreshEnc []byte, expiresAt time.Time) error
}

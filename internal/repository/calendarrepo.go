package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/pulseplan/calsync/internal/model"
)

// CalendarRepository provides access to the calendars of an account.
type CalendarRepository interface {
	// ListByAccount returns all calendars belonging to an account.
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]model.Calendar, error)

	// SaveSyncToken persists a provider-issued incremental sync token for one
	// calendar. An empty token clears it, forcing a full fetch next cycle.
	SaveSyncToken(ctx context.Context, calendarID uuid.UUID, token string) error
}

// EventRepository provides the batched primitives the reconciliation engine
// runs on. No other component writes calendar_events.
type EventRepository interface {
	// ListExternalIDs returns the external ids currently mirrored for one
	// calendar; adapters use them to compute diff-based deletions on
	// full-window fetches.
	ListExternalIDs(ctx context.Context, calendarID uuid.UUID) ([]string, error)

	// DeleteByExternalIDs removes mirrored events whose external id is in the
	// set, scoped to one user so a malformed id can never cross tenants.
	// Returns the number of rows removed.
	DeleteByExternalIDs(ctx context.Context, userID uuid.UUID, externalIDs []string) (int64, error)

	// UpsertBatch writes fetched events keyed on (calendar_id, external_id):
	// existing rows get their mutable fields overwritten, new rows are
	// inserted. The batch is applied in one transaction.
	UpsertBatch(ctx context.Context, events []model.EventUpsert) (int64, error)
}

package sync

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/pulseplan/calsync/internal/model"
	"github.com/pulseplan/calsync/internal/repository"
)

// Reconciler makes the local event mirror match the provider's reported state
// for one account's sync cycle. Deletions apply first, then the upsert batch;
// both run as whole-batch operations, so a crash mid-cycle can leave a
// partial application that the next full-window fetch self-heals.
type Reconciler struct {
	events repository.EventRepository
}

// NewReconciler constructs a reconciler.
func NewReconciler(events repository.EventRepository) *Reconciler {
	return &Reconciler{events: events}
}

// Apply deletes the reported removals (scoped to the owning user) and upserts
// the fetched events keyed on (calendar id, external id). Returns the applied
// counts.
func (r *Reconciler) Apply(ctx context.Context, userID uuid.UUID, events []model.EventUpsert, deletedExternalIDs []string) (upserted, deleted int64, err error) {
	deleted, err = r.events.DeleteByExternalIDs(ctx, userID, deletedExternalIDs)
	if err != nil {
		return 0, 0, fmt.Errorf("reconcile delete: %w", err)
	}
	upserted, err = r.events.UpsertBatch(ctx, events)
	if err != nil {
		return 0, deleted, fmt.Errorf("reconcile upsert: %w", err)
	}
	return upserted, deleted, nil
}

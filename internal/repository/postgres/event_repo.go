package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/pulseplan/calsync/internal/model"
)

// EventRepo implements EventRepository using PostgreSQL.
type EventRepo struct{ db *DB }

// NewEventRepo constructs an event repository.
func NewEventRepo(db *DB) *EventRepo { return &EventRepo{db: db} }

// ListExternalIDs returns the mirrored external ids for one calendar.
func (r *EventRepo) ListExternalIDs(ctx context.Context, calendarID uuid.UUID) ([]string, error) {
	const q = `SELECT external_id FROM calendar_events WHERE calendar_id=$1`
	rows, err := r.db.Pool.Query(ctx, q, calendarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DeleteByExternalIDs removes mirrored events reported deleted by the
// provider. The join keeps deletion inside one user's accounts so a malformed
// external id cannot touch another tenant's rows.
func (r *EventRepo) DeleteByExternalIDs(ctx context.Context, userID uuid.UUID, externalIDs []string) (int64, error) {
	if len(externalIDs) == 0 {
		return 0, nil
	}
	const q = `
DELETE FROM calendar_events e
USING calendars c, calendar_accounts a
WHERE e.calendar_id = c.id
  AND c.account_id = a.id
  AND a.user_id = $1
  AND e.external_id = ANY($2)`
	tag, err := r.db.Pool.Exec(ctx, q, userID, externalIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpsertBatch writes one sync cycle's fetched events in a single transaction.
// (calendar_id, external_id) is the identity key; conflicting rows get their
// mutable fields overwritten and keep their primary id.
func (r *EventRepo) UpsertBatch(ctx context.Context, events []model.EventUpsert) (n int64, err error) {
	if len(events) == 0 {
		return 0, nil
	}
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const q = `
INSERT INTO calendar_events
	(id, calendar_id, external_id, title, starts_at, ends_at, all_day, recurrence, status, etag, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
ON CONFLICT (calendar_id, external_id) DO UPDATE SET
	title=EXCLUDED.title, starts_at=EXCLUDED.starts_at, ends_at=EXCLUDED.ends_at,
	all_day=EXCLUDED.all_day, recurrence=EXCLUDED.recurrence, status=EXCLUDED.status,
	etag=EXCLUDED.etag, updated_at=now()`

	for _, ev := range events {
		id, uerr := uuid.NewV4()
		if uerr != nil {
			return n, uerr
		}
		if _, err = tx.Exec(ctx, q,
			id, ev.CalendarID, ev.ExternalID, ev.Title, ev.StartsAt, ev.EndsAt,
			ev.AllDay, ev.Recurrence, ev.Status, ev.ETag,
		); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

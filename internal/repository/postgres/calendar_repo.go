package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/pulseplan/calsync/internal/errs"
	"github.com/pulseplan/calsync/internal/model"
)

// CalendarRepo implements CalendarRepository using PostgreSQL.
type CalendarRepo struct{ db *DB }

// NewCalendarRepo constructs a calendar repository.
func NewCalendarRepo(db *DB) *CalendarRepo { return &CalendarRepo{db: db} }

// ListByAccount returns all calendars for an account.
func (r *CalendarRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]model.Calendar, error) {
	const q = `
SELECT id, account_id, external_id, name, sync_token
FROM calendars WHERE account_id=$1 ORDER BY name`
	rows, err := r.db.Pool.Query(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Calendar
	for rows.Next() {
		var c model.Calendar
		if err := rows.Scan(&c.ID, &c.AccountID, &c.ExternalID, &c.Name, &c.SyncToken); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveSyncToken stores the provider's incremental cursor for one calendar.
func (r *CalendarRepo) SaveSyncToken(ctx context.Context, calendarID uuid.UUID, token string) error {
	const q = `UPDATE calendars SET sync_token=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, calendarID, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/pulseplan/calsync/internal/errs"
	"github.com/pulseplan/calsync/internal/model"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

const accountColumns = `id, user_id, provider, email, access_token_enc, refresh_token_enc,
token_expires_at, password_enc, server_url, sync_status, last_error, last_synced_at,
active, created_at, updated_at`

func scanAccount(row pgx.Row) (*model.CalendarAccount, error) {
	var a model.CalendarAccount
	err := row.Scan(
		&a.ID, &a.UserID, &a.Provider, &a.Email, &a.AccessTokenEnc, &a.RefreshTokenEnc,
		&a.TokenExpiresAt, &a.PasswordEnc, &a.ServerURL, &a.Status, &a.LastError,
		&a.LastSyncedAt, &a.Active, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByID selects an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.CalendarAccount, error) {
	const q = `
SELECT ` + accountColumns + `
FROM calendar_accounts WHERE id=$1`
	a, err := scanAccount(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// ClaimDue selects due accounts and flips them to 'syncing' in a single
// conditional UPDATE. The inner select takes row locks with SKIP LOCKED so
// overlapping ticks cannot claim the same account; accounts currently held by
// the failure backoff are excluded. Accounts stuck in 'syncing' (worker died
// mid-sync) are reclaimed once updated_at falls behind the cutoff.
func (r *AccountRepo) ClaimDue(ctx context.Context, lastSyncedBefore time.Time, limit int) ([]model.CalendarAccount, error) {
	const q = `
UPDATE calendar_accounts SET sync_status='syncing', updated_at=now()
WHERE id IN (
	SELECT id FROM calendar_accounts
	WHERE active
	  AND (sync_status IN ('idle','error') OR (sync_status='syncing' AND updated_at < $1))
	  AND (last_synced_at IS NULL OR last_synced_at < $1)
	  AND NOT EXISTS (
		SELECT 1 FROM sync_backoff b
		WHERE b.account_id = calendar_accounts.id AND b.held_until > now()
	  )
	ORDER BY last_synced_at ASC NULLS FIRST
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + accountColumns

	rows, err := r.db.Pool.Query(ctx, q, lastSyncedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CalendarAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// MarkSynced sets status idle, records the sync time and clears the error.
func (r *AccountRepo) MarkSynced(ctx context.Context, id uuid.UUID, syncedAt time.Time) error {
	const q = `
UPDATE calendar_accounts
SET sync_status='idle', last_synced_at=$2, last_error='', updated_at=now()
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, syncedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// MarkIdle releases an account without touching last_synced_at.
func (r *AccountRepo) MarkIdle(ctx context.Context, id uuid.UUID) error {
	const q = `
UPDATE calendar_accounts SET sync_status='idle', updated_at=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// MarkError records a failed sync. The message is free text surfaced through
// the account-listing API.
func (r *AccountRepo) MarkError(ctx context.Context, id uuid.UUID, msg string) error {
	const q = `
UPDATE calendar_accounts SET sync_status='error', last_error=$2, updated_at=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, msg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SaveTokens persists rotated OAuth token ciphertext and its expiry.
func (r *AccountRepo) SaveTokens(ctx context.Context, id uuid.UUID, accessEnc, refreshEnc []byte, expiresAt time.Time) error {
	const q = `
UPDATE calendar_accounts
SET access_token_enc=$2, refresh_token_enc=$3, token_expires_at=$4, updated_at=now()
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, accessEnc, refreshEnc, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

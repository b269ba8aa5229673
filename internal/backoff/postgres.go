package backoff

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed tracker. The sync_backoff table is consulted by
// AccountRepo.ClaimDue, so a held account is simply never claimed.
type PG struct {
	pool     pgxQuerier
	maxFails int
	holdFor  time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed tracker.
func NewPG(pool *pgxpool.Pool, maxFails int, holdFor time.Duration) *PG {
	return &PG{pool: pool, maxFails: maxFails, holdFor: holdFor}
}

// NewPGWithQuerier constructs a tracker over any pgx querier (tests).
func NewPGWithQuerier(q pgxQuerier, maxFails int, holdFor time.Duration) *PG {
	return &PG{pool: q, maxFails: maxFails, holdFor: holdFor}
}

// Success resets the failure counter for an account.
func (t *PG) Success(ctx context.Context, accountID uuid.UUID) error {
	const q = `
INSERT INTO sync_backoff (account_id, fails, held_until, updated_at)
VALUES ($1,0,'epoch',now())
ON CONFLICT (account_id)
DO UPDATE SET fails=0, held_until='epoch', updated_at=now()`
	_, err := t.pool.Exec(ctx, q, accountID)
	return err
}

// Failure increments the counter; at the threshold a hold is placed.
func (t *PG) Failure(ctx context.Context, accountID uuid.UUID) (bool, time.Time, error) {
	const q = `
INSERT INTO sync_backoff (account_id, fails, held_until, updated_at)
VALUES ($1,1,'epoch',now())
ON CONFLICT (account_id) DO UPDATE
SET fails = sync_backoff.fails + 1, updated_at = now()
RETURNING fails`
	var fails int
	if err := t.pool.QueryRow(ctx, q, accountID).Scan(&fails); err != nil {
		return false, time.Time{}, err
	}
	if fails < t.maxFails {
		return false, time.Time{}, nil
	}
	heldUntil := time.Now().Add(t.holdFor)
	const upd = `UPDATE sync_backoff SET held_until=$2 WHERE account_id=$1`
	if _, err := t.pool.Exec(ctx, upd, accountID, heldUntil); err != nil {
		return false, time.Time{}, err
	}
	return true, heldUntil, nil
}

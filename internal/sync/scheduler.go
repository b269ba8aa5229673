package sync

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/pulseplan/calsync/internal/model"
	"github.com/pulseplan/calsync/internal/queue"
	"github.com/pulseplan/calsync/internal/repository"
)

// Queue job names.
const (
	JobSyncCheck   = "calendar-sync-check"
	JobAccountSync = "calendar-account-sync"
)

// Scheduling defaults.
const (
	// DefaultCheckCron fires the periodic sync check every 5 minutes.
	DefaultCheckCron = "*/5 * * * *"
	// DefaultStaleAfter is how old a successful sync must be before the
	// account qualifies again.
	DefaultStaleAfter = 15 * time.Minute
	// DefaultBatchSize caps accounts claimed per tick.
	DefaultBatchSize = 100
	// DefaultConcurrency bounds parallel account syncs.
	DefaultConcurrency = 5
)

// Scheduler claims due accounts and enqueues one sync job per account. The
// claim flips accounts to 'syncing' atomically in the store, so overlapping
// ticks never double-enqueue an account.
type Scheduler struct {
	accounts   repository.AccountRepository
	q          queue.Queue
	log        *zap.Logger
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
}

// NewScheduler constructs a scheduler. Zero staleAfter/batchSize fall back to
// the defaults.
func NewScheduler(accounts repository.AccountRepository, q queue.Queue, log *zap.Logger, staleAfter time.Duration, batchSize int) *Scheduler {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Scheduler{
		accounts:   accounts,
		q:          q,
		log:        log,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		now:        time.Now,
	}
}

// Handle is the queue handler for the periodic sync check.
func (s *Scheduler) Handle(ctx context.Context, _ []byte) error {
	_, err := s.Tick(ctx)
	return err
}

// Tick runs one scheduling pass and returns the number of jobs queued.
// Individual account failures do not abort the batch: an account whose job
// cannot be enqueued is rolled back to 'error' so it is not stuck in
// 'syncing' forever.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter)
	due, err := s.accounts.ClaimDue(ctx, cutoff, s.batchSize)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, acc := range due {
		payload, err := json.Marshal(model.SyncJob{
			AccountID: acc.ID,
			UserID:    acc.UserID,
			Provider:  acc.Provider,
		})
		if err == nil {
			err = s.q.Enqueue(ctx, JobAccountSync, payload)
		}
		if err != nil {
			s.log.Error("enqueue account sync",
				zap.String("accountID", acc.ID.String()), zap.Error(err))
			if merr := s.accounts.MarkError(ctx, acc.ID, "enqueue sync job: "+err.Error()); merr != nil {
				s.log.Error("roll back claimed account", zap.String("accountID", acc.ID.String()), zap.Error(merr))
			}
			continue
		}
		queued++
	}

	if queued > 0 {
		s.log.Info("sync check", zap.Int("queued", queued), zap.Int("claimed", len(due)))
	}
	return queued, nil
}

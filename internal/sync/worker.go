// Package sync contains the scheduler, the per-account sync worker and the
// reconciliation engine that together keep local calendar mirrors consistent
// with their providers.
package sync

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/pulseplan/calsync/internal/backoff"
	"github.com/pulseplan/calsync/internal/crypto"
	"github.com/pulseplan/calsync/internal/errs"
	"github.com/pulseplan/calsync/internal/model"
	"github.com/pulseplan/calsync/internal/notify"
	"github.com/pulseplan/calsync/internal/provider"
	"github.com/pulseplan/calsync/internal/repository"
)

// EventSyncCompleted is the notification name published after each successful
// account sync.
const EventSyncCompleted = "calendar.sync.completed"

// DefaultSyncTimeout bounds one account sync so a hung provider call cannot
// pin a worker slot indefinitely.
const DefaultSyncTimeout = 2 * time.Minute

// TokenSource yields a currently-valid access token for an OAuth account.
// Implemented by token.Refresher.
type TokenSource interface {
	AccessToken(ctx context.Context, acc *model.CalendarAccount) (string, error)
}

// Worker executes one account's sync end to end: resolve the provider,
// prepare credentials, fetch the window, reconcile, persist sync tokens and
// status, publish the completion notification.
type Worker struct {
	accounts  repository.AccountRepository
	calendars repository.CalendarRepository
	events    repository.EventRepository
	providers *provider.Registry
	tokens    TokenSource
	codec     *crypto.Codec
	reconcile *Reconciler
	tracker   backoff.Tracker
	publisher notify.Publisher
	log       *zap.Logger

	timeout time.Duration
	now     func() time.Time
}

// WorkerConfig collects the worker's dependencies.
type WorkerConfig struct {
	Accounts  repository.AccountRepository
	Calendars repository.CalendarRepository
	Events    repository.EventRepository
	Providers *provider.Registry
	Tokens    TokenSource
	Codec     *crypto.Codec
	Tracker   backoff.Tracker
	Publisher notify.Publisher
	Log       *zap.Logger
	// Timeout bounds one sync; zero means DefaultSyncTimeout.
	Timeout time.Duration
}

// NewWorker constructs a worker.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSyncTimeout
	}
	return &Worker{
		accounts:  cfg.Accounts,
		calendars: cfg.Calendars,
		events:    cfg.Events,
		providers: cfg.Providers,
		tokens:    cfg.Tokens,
		codec:     cfg.Codec,
		reconcile: NewReconciler(cfg.Events),
		tracker:   cfg.Tracker,
		publisher: cfg.Publisher,
		log:       cfg.Log,
		timeout:   cfg.Timeout,
		now:       time.Now,
	}
}

// Handle is the queue handler for account sync jobs.
func (w *Worker) Handle(ctx context.Context, payload []byte) error {
	var job model.SyncJob
	if err := json.Unmarshal(payload, &job); err != nil {
		w.log.Error("bad sync job payload", zap.Error(err))
		return nil // unparseable, nothing to retry
	}
	return w.Run(ctx, job)
}

// Run syncs one account. Provider, credential and reconciliation failures are
// converted into account state (status error + message) and swallowed: the
// queue must not retry a possibly revoked credential, the next scheduler tick
// re-selects the account instead.
func (w *Worker) Run(ctx context.Context, job model.SyncJob) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	log := w.log.With(zap.String("accountID", job.AccountID.String()), zap.String("provider", string(job.Provider)))

	acc, err := w.accounts.GetByID(ctx, job.AccountID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			log.Debug("account gone, skipping")
			return nil
		}
		return err
	}
	if !acc.Active {
		log.Debug("account inactive, releasing")
		return w.accounts.MarkIdle(noCancel(ctx), acc.ID)
	}

	cals, err := w.calendars.ListByAccount(ctx, acc.ID)
	if err != nil {
		w.fail(ctx, acc, err)
		return nil
	}
	if len(cals) == 0 {
		log.Debug("no calendars, releasing")
		return w.accounts.MarkIdle(noCancel(ctx), acc.ID)
	}

	summary, err := w.syncAccount(ctx, acc, cals)
	if err != nil {
		w.fail(ctx, acc, err)
		return nil
	}

	syncedAt := w.now().UTC()
	if err := w.accounts.MarkSynced(noCancel(ctx), acc.ID, syncedAt); err != nil {
		return err
	}
	if err := w.tracker.Success(noCancel(ctx), acc.ID); err != nil {
		log.Warn("backoff reset", zap.Error(err))
	}

	if err := w.publisher.Publish(ctx, acc.UserID, EventSyncCompleted, summary); err != nil {
		// Fire and forget: a missed notification never fails the sync.
		log.Warn("publish sync notification", zap.Error(err))
	}
	log.Info("account synced",
		zap.Int("upserted", summary.EventsUpserted),
		zap.Int("deleted", summary.EventsDeleted),
	)
	return nil
}

// syncAccount runs steps 3-7: window, credentials, fetch, reconcile, tokens.
func (w *Worker) syncAccount(ctx context.Context, acc *model.CalendarAccount, cals []model.Calendar) (model.SyncSummary, error) {
	window := model.WindowAround(w.now())

	refs := make([]provider.CalendarRef, 0, len(cals))
	for _, cal := range cals {
		known, err := w.events.ListExternalIDs(ctx, cal.ID)
		if err != nil {
			return model.SyncSummary{}, err
		}
		ref := provider.CalendarRef{
			ID:               cal.ID,
			ExternalID:       cal.ExternalID,
			KnownExternalIDs: known,
		}
		if acc.Provider.IsOAuth() {
			ref.SyncToken = cal.SyncToken
		}
		refs = append(refs, ref)
	}

	creds, err := w.credentials(ctx, acc)
	if err != nil {
		return model.SyncSummary{}, err
	}

	adapter, err := w.providers.For(acc.Provider)
	if err != nil {
		return model.SyncSummary{}, err
	}
	res, err := adapter.FetchEvents(ctx, creds, refs, window)
	if err != nil {
		return model.SyncSummary{}, err
	}

	upserted, deleted, err := w.reconcile.Apply(ctx, acc.UserID, res.Events, res.DeletedExternalIDs)
	if err != nil {
		return model.SyncSummary{}, err
	}

	for calID, tok := range res.SyncTokens {
		if err := w.calendars.SaveSyncToken(ctx, calID, tok); err != nil {
			return model.SyncSummary{}, err
		}
	}

	return model.SyncSummary{
		AccountID:      acc.ID,
		EventsUpserted: int(upserted),
		EventsDeleted:  int(deleted),
	}, nil
}

// credentials decrypts the account's secrets into adapter credentials. OAuth
// accounts go through the token refresh manager first.
func (w *Worker) credentials(ctx context.Context, acc *model.CalendarAccount) (provider.Credentials, error) {
	if acc.Provider.IsOAuth() {
		access, err := w.tokens.AccessToken(ctx, acc)
		if err != nil {
			return provider.Credentials{}, err
		}
		return provider.Credentials{AccessToken: access}, nil
	}

	if len(acc.PasswordEnc) == 0 || acc.ServerURL == "" {
		return provider.Credentials{}, errs.ErrNoCredentials
	}
	password, err := w.codec.DecryptString(acc.PasswordEnc)
	if err != nil {
		return provider.Credentials{}, err
	}
	return provider.Credentials{
		Username:  acc.Email,
		Password:  password,
		ServerURL: acc.ServerURL,
	}, nil
}

// fail records the error on the account and feeds the failure tracker. State
// writes use a detached context so a sync timeout cannot also kill the
// bookkeeping.
func (w *Worker) fail(ctx context.Context, acc *model.CalendarAccount, cause error) {
	ctx = noCancel(ctx)
	log := w.log.With(zap.String("accountID", acc.ID.String()))
	log.Warn("account sync failed", zap.Error(cause))

	if err := w.accounts.MarkError(ctx, acc.ID, cause.Error()); err != nil {
		log.Error("record sync error", zap.Error(err))
	}
	held, until, err := w.tracker.Failure(ctx, acc.ID)
	if err != nil {
		log.Error("backoff record", zap.Error(err))
		return
	}
	if held {
		log.Warn("account held out after repeated failures", zap.Time("heldUntil", until))
	}
}

func noCancel(ctx context.Context) context.Context { return context.WithoutCancel(ctx) }

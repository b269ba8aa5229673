// Package model defines domain entities used by the sync engine and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// ProviderKind enumerates the supported external calendar systems.
type ProviderKind string

const (
	ProviderGoogle  ProviderKind = "google"
	ProviderOutlook ProviderKind = "outlook"
	// ProviderICloud is the CalDAV variant: basic-auth against a server URL,
	// no OAuth tokens and no incremental sync tokens.
	ProviderICloud ProviderKind = "icloud"
)

// IsOAuth reports whether the provider uses OAuth tokens (as opposed to CalDAV
// password auth).
func (p ProviderKind) IsOAuth() bool {
	return p == ProviderGoogle || p == ProviderOutlook
}

// Valid reports whether p is one of the known provider kinds.
func (p ProviderKind) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderOutlook, ProviderICloud:
		return true
	}
	return false
}

// SyncStatus is the per-account sync state machine. It doubles as the
// cross-process mutex: only the scheduler moves an account into StatusSyncing
// (atomically, see AccountRepository.ClaimDue) and only the worker that owns
// that sync moves it back out.
type SyncStatus string

const (
	StatusIdle    SyncStatus = "idle"
	StatusSyncing SyncStatus = "syncing"
	StatusError   SyncStatus = "error"
)

// CalendarAccount is one user's connection to one external calendar provider.
// Token and password fields hold ciphertext produced by the secrets codec;
// plaintext credentials never touch the database.
type CalendarAccount struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Provider ProviderKind
	Email    string

	// OAuth credentials (google/outlook).
	AccessTokenEnc  []byte
	RefreshTokenEnc []byte
	TokenExpiresAt  time.Time

	// CalDAV credentials (icloud).
	PasswordEnc []byte
	ServerURL   string

	Status       SyncStatus
	LastError    string
	LastSyncedAt *time.Time
	Active       bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Calendar is one calendar folder within an account. Sync tokens live here,
// not on the account, because providers issue them at calendar granularity.
type Calendar struct {
	ID         uuid.UUID
	AccountID  uuid.UUID
	ExternalID string
	Name       string
	SyncToken  string
}

// CalendarEvent is the local mirror of one provider event. The reconciliation
// identity key is (CalendarID, ExternalID); no component other than the
// reconciliation engine creates or mutates rows.
type CalendarEvent struct {
	ID         uuid.UUID
	CalendarID uuid.UUID
	ExternalID string
	Title      string
	StartsAt   time.Time
	EndsAt     time.Time
	AllDay     bool
	// Recurrence is the provider's recurrence rule, stored opaquely.
	// Expansion into occurrences happens elsewhere.
	Recurrence string
	Status     string // confirmed | tentative | cancelled
	ETag       string
	UpdatedAt  time.Time
}

// EventUpsert is one fetched provider event bound to its local calendar,
// ready for reconciliation.
type EventUpsert struct {
	CalendarID uuid.UUID
	ExternalID string
	Title      string
	StartsAt   time.Time
	EndsAt     time.Time
	AllDay     bool
	Recurrence string
	Status     string
	ETag       string
}

// SyncWindow is the rolling date range fetched on each cycle.
type SyncWindow struct {
	From time.Time
	To   time.Time
}

// WindowAround returns the sync window for now: whole-day boundaries from
// 7 days back to 30 days ahead, in UTC. Recomputed every cycle, never
// persisted.
func WindowAround(now time.Time) SyncWindow {
	day := now.UTC().Truncate(24 * time.Hour)
	return SyncWindow{
		From: day.AddDate(0, 0, -7),
		To:   day.AddDate(0, 0, 31), // ceiling of now+30d
	}
}

// SyncJob is the payload carried by one account sync job on the queue.
type SyncJob struct {
	AccountID uuid.UUID    `json:"accountId"`
	UserID    uuid.UUID    `json:"userId"`
	Provider  ProviderKind `json:"provider"`
}

// SyncSummary is the payload of the completion notification.
type SyncSummary struct {
	AccountID      uuid.UUID `json:"accountId"`
	EventsUpserted int       `json:"eventsUpserted"`
	EventsDeleted  int       `json:"eventsDeleted"`
}

// Package provider contains the adapters that talk to external calendar
// systems. All adapters expose one capability: given credentials, calendars
// and a time window, report the events currently in the window and the
// external ids removed since the last sync.
package provider

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/pulseplan/calsync/internal/model"
)

// Credentials carries decrypted provider credentials for one fetch. OAuth
// providers use AccessToken; the CalDAV variant uses Username/Password against
// ServerURL.
type Credentials struct {
	AccessToken string
	Username    string
	Password    string
	ServerURL   string
}

// CalendarRef identifies one calendar to fetch. SyncToken is the provider's
// incremental cursor from the previous cycle (empty forces a full fetch).
// KnownExternalIDs lists the event ids currently mirrored locally so
// full-window fetches can report deletions by diff.
type CalendarRef struct {
	ID               uuid.UUID
	ExternalID       string
	SyncToken        string
	KnownExternalIDs []string
}

// FetchResult is the uniform output of one account-wide fetch.
type FetchResult struct {
	Events             []model.EventUpsert
	DeletedExternalIDs []string
	// SyncTokens maps local calendar id to the provider's next incremental
	// cursor. Empty for the CalDAV variant.
	SyncTokens map[uuid.UUID]string
}

// Adapter is the uniform capability implemented per provider kind.
type Adapter interface {
	FetchEvents(ctx context.Context, creds Credentials, calendars []CalendarRef, window model.SyncWindow) (*FetchResult, error)
}

// Registry resolves an adapter for a provider kind.
type Registry struct {
	adapters map[model.ProviderKind]Adapter
}

// NewRegistry builds the default registry with all three adapters.
func NewRegistry() *Registry {
	return &Registry{adapters: map[model.ProviderKind]Adapter{
		model.ProviderGoogle:  NewGoogle(),
		model.ProviderOutlook: NewOutlook(),
		model.ProviderICloud:  NewCalDAV(),
	}}
}

// NewRegistryWith builds a registry from explicit adapters (tests, partial
// deployments).
func NewRegistryWith(adapters map[model.ProviderKind]Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// For returns the adapter for a provider kind.
func (r *Registry) For(kind model.ProviderKind) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter for provider %q", kind)
	}
	return a, nil
}

// diffDeleted returns the known ids that are absent from fetched. Used by
// full-window fetches, where the provider does not enumerate deletions.
func diffDeleted(known []string, fetched map[string]struct{}) []string {
	var out []string
	for _, id := range known {
		if _, ok := fetched[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

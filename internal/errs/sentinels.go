// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAccountInactive indicates a sync was requested for a disconnected account.
	ErrAccountInactive = errors.New("account inactive")

	// ErrSyncTokenInvalid indicates the provider rejected an incremental sync
	// token as stale; the caller must fall back to a full-window fetch.
	ErrSyncTokenInvalid = errors.New("sync token invalid")

	// ErrTokenRefresh indicates the refresh-token exchange was rejected
	// (revoked or expired grant).
	ErrTokenRefresh = errors.New("token refresh rejected")

	// ErrNoCredentials indicates the account row is missing the credential
	// fields its provider kind requires.
	ErrNoCredentials = errors.New("missing credentials")
)

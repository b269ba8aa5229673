// Package token implements the OAuth access-token lifecycle for sync accounts.
package token

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/pulseplan/calsync/internal/crypto"
	"github.com/pulseplan/calsync/internal/errs"
	"github.com/pulseplan/calsync/internal/model"
	"github.com/pulseplan/calsync/internal/repository"
)

// Token endpoints for the supported OAuth providers.
const (
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	microsoftTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
)

// DefaultMargin is the safety margin before expiry at which a token is
// considered expired and refreshed preemptively.
const DefaultMargin = 60 * time.Second

// Endpoints returns the standard oauth2 configs for both OAuth providers,
// keyed by provider kind.
func Endpoints(googleID, googleSecret, outlookID, outlookSecret string) map[model.ProviderKind]*oauth2.Config {
	return map[model.ProviderKind]*oauth2.Config{
		model.ProviderGoogle: {
			ClientID:     googleID,
			ClientSecret: googleSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: googleTokenURL},
		},
		model.ProviderOutlook: {
			ClientID:     outlookID,
			ClientSecret: outlookSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: microsoftTokenURL},
		},
	}
}

// Refresher returns a currently-valid access token for an account, refreshing
// and persisting rotated tokens when the stored one is at or past the safety
// margin.
type Refresher struct {
	codec    *crypto.Codec
	accounts repository.AccountRepository
	configs  map[model.ProviderKind]*oauth2.Config
	margin   time.Duration

	now func() time.Time // test hook
}

// NewRefresher constructs a refresher. A zero margin falls back to DefaultMargin.
func NewRefresher(codec *crypto.Codec, accounts repository.AccountRepository, configs map[model.ProviderKind]*oauth2.Config, margin time.Duration) *Refresher {
	if margin <= 0 {
		margin = DefaultMargin
	}
	return &Refresher{codec: codec, accounts: accounts, configs: configs, margin: margin, now: time.Now}
}

// AccessToken returns a valid plaintext access token for the account. The
// stored token is reused while its expiry is beyond the margin; otherwise the
// refresh token is exchanged and the rotated tokens are persisted before the
// new access token is returned. A rejected exchange wraps ErrTokenRefresh so
// the worker can surface it as an account-level credential error.
func (r *Refresher) AccessToken(ctx context.Context, acc *model.CalendarAccount) (string, error) {
	if !acc.Provider.IsOAuth() {
		return "", fmt.Errorf("provider %q does not use OAuth tokens", acc.Provider)
	}
	if len(acc.AccessTokenEnc) == 0 || len(acc.RefreshTokenEnc) == 0 {
		return "", errs.ErrNoCredentials
	}

	if acc.TokenExpiresAt.After(r.now().Add(r.margin)) {
		return r.codec.DecryptString(acc.AccessTokenEnc)
	}

	cfg, ok := r.configs[acc.Provider]
	if !ok {
		return "", fmt.Errorf("no oauth config for provider %q", acc.Provider)
	}
	refreshToken, err := r.codec.DecryptString(acc.RefreshTokenEnc)
	if err != nil {
		return "", fmt.Errorf("decrypt refresh token: %w", err)
	}

	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrTokenRefresh, err)
	}

	accessEnc, err := r.codec.EncryptString(tok.AccessToken)
	if err != nil {
		return "", fmt.Errorf("encrypt access token: %w", err)
	}
	// Providers may rotate the refresh token on exchange; keep the old one
	// when they do not.
	newRefresh := refreshToken
	if tok.RefreshToken != "" {
		newRefresh = tok.RefreshToken
	}
	refreshEnc, err := r.codec.EncryptString(newRefresh)
	if err != nil {
		return "", fmt.Errorf("encrypt refresh token: %w", err)
	}

	if err := r.accounts.SaveTokens(ctx, acc.ID, accessEnc, refreshEnc, tok.Expiry); err != nil {
		return "", fmt.Errorf("persist tokens: %w", err)
	}
	return tok.AccessToken, nil
}

package oauth

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/underscoreTells/streaming-enhancement/internal/credentials"
	"github.com/underscoreTells/streaming-enhancement/internal/errors"
	"github.com/underscoreTells/streaming-enhancement/internal/metrics"
	"github.com/underscoreTells/streaming-enhancement/internal/secrets"
)

// Provider supplies the platform-specific half of the flow: endpoint URLs and
// the two token-endpoint exchanges. Implementations live in the platform
// packages and issue their HTTP calls through the resilient REST client.
type Provider interface {
	Platform() string
	AuthorizeURL() string
	ExchangeCode(ctx context.Context, code string) (*TokenResponse, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// Flow is the generic token lifecycle for one platform. It owns persistence
// and refresh concurrency; the provider owns wire formats.
type Flow struct {
	provider Provider
	cred     *credentials.Credential
	store    secrets.Store
	clock    clockwork.Clock
	locks    *lockTable
}

func NewFlow(provider Provider, cred *credentials.Credential, store secrets.Store, clock clockwork.Clock) *Flow {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Flow{
		provider: provider,
		cred:     cred,
		store:    store,
		clock:    clock,
		locks:    newLockTable(),
	}
}

// Platform returns the provider's platform name.
func (f *Flow) Platform() string {
	return f.provider.Platform()
}

// AuthorizationURL builds the provider authorization URL and the state nonce
// the caller must verify on the redirect callback. The scope parameter is
// omitted entirely when no scopes are configured.
func (f *Flow) AuthorizationURL() (string, string, error) {
	state, err := newState()
	if err != nil {
		return "", "", errors.Internal("failed to generate authorization state", err)
	}

	query := url.Values{}
	query.Set("client_id", f.cred.ClientID)
	query.Set("redirect_uri", f.cred.RedirectURI)
	query.Set("response_type", "code")
	query.Set("state", state)
	if len(f.cred.Scopes) > 0 {
		query.Set("scope", strings.Join(f.cred.Scopes, " "))
	}

	return f.provider.AuthorizeURL() + "?" + query.Encode(), state, nil
}

// ExchangeCode trades an authorization code for tokens and persists the
// result for the user. This is the callback half of the authorization flow.
func (f *Flow) ExchangeCode(ctx context.Context, username, code string) (*TokenSet, error) {
	resp, err := f.provider.ExchangeCode(ctx, code)
	if err != nil {
		metrics.TokenExchangesTotal.WithLabelValues(f.Platform(), "failure").Inc()
		return nil, errors.RefreshFailed(
			fmt.Sprintf("code exchange failed for %s user %q", f.Platform(), username), err)
	}
	metrics.TokenExchangesTotal.WithLabelValues(f.Platform(), "success").Inc()

	return f.ProcessAccessToken(ctx, username, resp)
}

// ProcessAccessToken turns a raw provider token response into a stored
// TokenSet for the user, fully overwriting any prior record.
func (f *Flow) ProcessAccessToken(ctx context.Context, username string, resp *TokenResponse) (*TokenSet, error) {
	tokens := NewTokenSet(resp, "", f.clock.Now())
	if err := f.save(ctx, username, tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// AccessToken returns a valid TokenSet for the user, refreshing it first when
// the refresh buffer has been reached. Concurrent callers for the same user
// share a single refresh.
func (f *Flow) AccessToken(ctx context.Context, username string) (*TokenSet, error) {
	tokens, err := f.load(ctx, username)
	if err != nil {
		return nil, err
	}
	if !tokens.Due(f.clock.Now()) {
		return tokens, nil
	}

	// Stale. Whoever wins the lock refreshes; everyone else re-reads the
	// record the winner wrote.
	return f.refreshLocked(ctx, username, func(current *TokenSet) bool {
		return !current.Due(f.clock.Now())
	})
}

// Refresh forces a refresh of the user's tokens. If another caller refreshed
// while this one waited for the lock, the already-refreshed record is
// returned instead of triggering a second provider call.
func (f *Flow) Refresh(ctx context.Context, username string) (*TokenSet, error) {
	tokens, err := f.load(ctx, username)
	if err != nil {
		return nil, err
	}
	seen := tokens.AccessToken

	return f.refreshLocked(ctx, username, func(current *TokenSet) bool {
		return current.AccessToken != seen
	})
}

// refreshLocked performs the single-flight refresh. After acquiring the
// per-user lock it re-reads the stored record; if satisfied reports the
// record as already fresh, the provider is not called. A failed refresh
// leaves the stored record untouched.
func (f *Flow) refreshLocked(ctx context.Context, username string, satisfied func(*TokenSet) bool) (*TokenSet, error) {
	key := secrets.OAuthAccount(f.Platform(), username)
	if waited := f.locks.Acquire(key); waited {
		metrics.RefreshLockWaits.WithLabelValues(f.Platform()).Inc()
	}
	defer f.locks.Release(key)

	tokens, err := f.load(ctx, username)
	if err != nil {
		return nil, err
	}
	if satisfied(tokens) {
		return tokens, nil
	}

	if !tokens.Refreshable() {
		metrics.TokenRefreshesTotal.WithLabelValues(f.Platform(), "failure").Inc()
		return nil, errors.RefreshFailed(
			fmt.Sprintf("cannot refresh %s token for user %q", f.Platform(), username),
			fmt.Errorf("no refresh token available"))
	}

	resp, err := f.provider.RefreshAccessToken(ctx, tokens.RefreshToken)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(f.Platform(), "failure").Inc()
		return nil, errors.RefreshFailed(
			fmt.Sprintf("token refresh failed for %s user %q", f.Platform(), username), err)
	}

	refreshed := NewTokenSet(resp, tokens.RefreshToken, f.clock.Now())
	if err := f.save(ctx, username, refreshed); err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(f.Platform(), "failure").Inc()
		return nil, err
	}

	metrics.TokenRefreshesTotal.WithLabelValues(f.Platform(), "success").Inc()
	slog.Debug("Refreshed access token",
		"platform", f.Platform(),
		"username", username,
		"expires_at", refreshed.ExpiresAt,
	)
	return refreshed, nil
}

func (f *Flow) load(ctx context.Context, username string) (*TokenSet, error) {
	value, err := f.store.Get(ctx, secrets.Namespace, secrets.OAuthAccount(f.Platform(), username))
	if err != nil {
		if stderrors.Is(err, secrets.ErrNotFound) {
			return nil, errors.NotFound(
				fmt.Sprintf("no stored %s token for user %q", f.Platform(), username))
		}
		return nil, errors.Internal(
			fmt.Sprintf("failed to read %s token for user %q", f.Platform(), username), err)
	}
	return DecodeTokenSet(value)
}

func (f *Flow) save(ctx context.Context, username string, tokens *TokenSet) error {
	encoded, err := tokens.Encode()
	if err != nil {
		return errors.Internal(
			fmt.Sprintf("failed to encode %s token for user %q", f.Platform(), username), err)
	}
	if err := f.store.Set(ctx, secrets.Namespace, secrets.OAuthAccount(f.Platform(), username), encoded); err != nil {
		return errors.Internal(
			fmt.Sprintf("failed to store %s token for user %q", f.Platform(), username), err)
	}
	return nil
}

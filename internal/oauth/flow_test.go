package oauth

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/underscoreTells/streaming-enhancement/internal/credentials"
	"github.com/underscoreTells/streaming-enhancement/internal/errors"
	"github.com/underscoreTells/streaming-enhancement/internal/secrets"
)

type fakeProvider struct {
	refreshCalls  atomic.Int32
	exchangeCalls atomic.Int32
	refreshDelay  time.Duration
	refreshErr    error
	response      *TokenResponse
}

func (p *fakeProvider) Platform() string     { return "twitch" }
func (p *fakeProvider) AuthorizeURL() string { return "https://id.twitch.tv/oauth2/authorize" }

func (p *fakeProvider) ExchangeCode(_ context.Context, code string) (*TokenResponse, error) {
	p.exchangeCalls.Add(1)
	return p.response, nil
}

func (p *fakeProvider) RefreshAccessToken(_ context.Context, refreshToken string) (*TokenResponse, error) {
	p.refreshCalls.Add(1)
	if p.refreshDelay > 0 {
		time.Sleep(p.refreshDelay)
	}
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	return p.response, nil
}

func testCredential(scopes ...string) *credentials.Credential {
	return &credentials.Credential{
		Platform:     "twitch",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:8080/auth/twitch/callback",
		Scopes:       scopes,
	}
}

func newTestFlow(provider *fakeProvider, clock clockwork.Clock, scopes ...string) (*Flow, secrets.Store) {
	store := secrets.NewMemoryStore()
	return NewFlow(provider, testCredential(scopes...), store, clock), store
}

func TestAuthorizationURL_Parameters(t *testing.T) {
	flow, _ := newTestFlow(&fakeProvider{}, nil, "chat:read", "chat:edit")

	authURL, state, err := flow.AuthorizationURL()
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	query := parsed.Query()

	assert.Equal(t, "client-id", query.Get("client_id"))
	assert.Equal(t, "http://localhost:8080/auth/twitch/callback", query.Get("redirect_uri"))
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, state, query.Get("state"))
	assert.Equal(t, "chat:read chat:edit", query.Get("scope"))
	assert.Contains(t, authURL, "scope=chat%3Aread+chat%3Aedit")
}

func TestAuthorizationURL_EmptyScopesOmitParameter(t *testing.T) {
	flow, _ := newTestFlow(&fakeProvider{}, nil)

	authURL, _, err := flow.AuthorizationURL()
	require.NoError(t, err)
	assert.NotContains(t, authURL, "scope=")
}

func TestAuthorizationURL_StatesAreUnique(t *testing.T) {
	flow, _ := newTestFlow(&fakeProvider{}, nil)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		authURL, state, err := flow.AuthorizationURL()
		require.NoError(t, err)
		assert.False(t, seen[state], "state %q repeated", state)
		seen[state] = true
		assert.Contains(t, authURL, "state="+state)
	}
}

func TestProcessAccessToken_RoundTrip(t *testing.T) {
	clock := clockwork.NewFakeClock()
	flow, _ := newTestFlow(&fakeProvider{}, clock)

	_, err := flow.ProcessAccessToken(context.Background(), "alice", &TokenResponse{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresIn:    3600,
		Scope:        ScopeList{"chat:read"},
	})
	require.NoError(t, err)

	tokens, err := flow.AccessToken(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "A1", tokens.AccessToken)
	assert.Equal(t, "R1", tokens.RefreshToken)
	assert.Equal(t, []string{"chat:read"}, tokens.Scope)
	assert.Equal(t, tokens.ExpiresAt.Add(-RefreshBuffer), tokens.RefreshAt)
}

func TestProcessAccessToken_OverwritesPriorRecord(t *testing.T) {
	clock := clockwork.NewFakeClock()
	flow, _ := newTestFlow(&fakeProvider{}, clock)
	ctx := context.Background()

	_, err := flow.ProcessAccessToken(ctx, "alice", &TokenResponse{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: 3600})
	require.NoError(t, err)
	_, err = flow.ProcessAccessToken(ctx, "alice", &TokenResponse{AccessToken: "A2", ExpiresIn: 3600})
	require.NoError(t, err)

	tokens, err := flow.AccessToken(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "A2", tokens.AccessToken)
	assert.Empty(t, tokens.RefreshToken)
}

func TestAccessToken_UnknownUser(t *testing.T) {
	flow, _ := newTestFlow(&fakeProvider{}, nil)

	_, err := flow.AccessToken(context.Background(), "nobody")

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeNotFound))
	assert.Contains(t, err.Error(), "nobody")
}

func TestAccessToken_FreshTokenSkipsProvider(t *testing.T) {
	clock := clockwork.NewFakeClock()
	provider := &fakeProvider{}
	flow, _ := newTestFlow(provider, clock)
	ctx := context.Background()

	_, err := flow.ProcessAccessToken(ctx, "alice", &TokenResponse{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: 3600})
	require.NoError(t, err)

	_, err = flow.AccessToken(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, provider.refreshCalls.Load())
}

func TestAccessToken_RefreshesWhenDue(t *testing.T) {
	clock := clockwork.NewFakeClock()
	provider := &fakeProvider{response: &TokenResponse{AccessToken: "A2", ExpiresIn: 3600}}
	flow, _ := newTestFlow(provider, clock)
	ctx := context.Background()

	_, err := flow.ProcessAccessToken(ctx, "alice", &TokenResponse{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: 3600})
	require.NoError(t, err)

	clock.Advance(time.Hour)

	tokens, err := flow.AccessToken(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "A2", tokens.AccessToken)
	assert.Equal(t, int32(1), provider.refreshCalls.Load())
}

func TestRefresh_PreservesRefreshTokenWhenResponseOmitsOne(t *testing.T) {
	clock := clockwork.NewFakeClock()
	provider := &fakeProvider{response: &TokenResponse{AccessToken: "A2", ExpiresIn: 3600}}
	flow, _ := newTestFlow(provider, clock)
	ctx := context.Background()

	_, err := flow.ProcessAccessToken(ctx, "alice", &TokenResponse{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: 3600})
	require.NoError(t, err)

	tokens, err := flow.Refresh(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "A2", tokens.AccessToken)
	assert.Equal(t, "R1", tokens.RefreshToken)

	// The preserved refresh token is in the stored record, not just the
	// returned value.
	stored, err := flow.AccessToken(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "R1", stored.RefreshToken)
}

func TestRefresh_NoRefreshTokenAvailable(t *testing.T) {
	clock := clockwork.NewFakeClock()
	provider := &fakeProvider{}
	flow, _ := newTestFlow(provider, clock)
	ctx := context.Background()

	_, err := flow.ProcessAccessToken(ctx, "alice", &TokenResponse{AccessToken: "A1", ExpiresIn: 3600})
	require.NoError(t, err)

	_, err = flow.Refresh(ctx, "alice")

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeRefreshFailed))
	assert.Contains(t, err.Error(), "no refresh token available")
	assert.Zero(t, provider.refreshCalls.Load())
}

func TestRefresh_UnknownUser(t *testing.T) {
	flow, _ := newTestFlow(&fakeProvider{}, nil)

	_, err := flow.Refresh(context.Background(), "nobody")

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeNotFound))
	assert.Contains(t, err.Error(), "nobody")
}

func TestRefresh_FailureLeavesStoredRecordUntouched(t *testing.T) {
	clock := clockwork.NewFakeClock()
	provider := &fakeProvider{refreshErr: fmt.Errorf("provider rejected the token")}
	flow, store := newTestFlow(provider, clock)
	ctx := context.Background()

	_, err := flow.ProcessAccessToken(ctx, "alice", &TokenResponse{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: 3600})
	require.NoError(t, err)
	before, err := store.Get(ctx, secrets.Namespace, secrets.OAuthAccount("twitch", "alice"))
	require.NoError(t, err)

	_, err = flow.Refresh(ctx, "alice")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeRefreshFailed))

	after, err := store.Get(ctx, secrets.Namespace, secrets.OAuthAccount("twitch", "alice"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAccessToken_ConcurrentCallersShareOneRefresh(t *testing.T) {
	clock := clockwork.NewFakeClock()
	provider := &fakeProvider{
		response:     &TokenResponse{AccessToken: "A2", ExpiresIn: 3600},
		refreshDelay: 30 * time.Millisecond,
	}
	flow, _ := newTestFlow(provider, clock)
	ctx := context.Background()

	_, err := flow.ProcessAccessToken(ctx, "alice", &TokenResponse{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: 3600})
	require.NoError(t, err)

	clock.Advance(time.Hour)

	const callers = 5
	results := make([]*TokenSet, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = flow.AccessToken(ctx, "alice")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), provider.refreshCalls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "A2", results[i].AccessToken)
	}
}

func TestRefresh_ConcurrentForcedRefreshesCoalesce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	provider := &fakeProvider{
		response:     &TokenResponse{AccessToken: "A2", ExpiresIn: 3600},
		refreshDelay: 30 * time.Millisecond,
	}
	flow, _ := newTestFlow(provider, clock)
	ctx := context.Background()

	_, err := flow.ProcessAccessToken(ctx, "alice", &TokenResponse{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: 3600})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens, err := flow.Refresh(ctx, "alice")
			if assert.NoError(t, err) {
				assert.Equal(t, "A2", tokens.AccessToken)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), provider.refreshCalls.Load())
}

func TestAuthorizationURL_StateIsURLSafe(t *testing.T) {
	flow, _ := newTestFlow(&fakeProvider{}, nil)

	_, state, err := flow.AuthorizationURL()
	require.NoError(t, err)
	assert.NotEmpty(t, state)
	assert.Equal(t, state, url.QueryEscape(state))
}

func TestExchangeCode_PersistsTokens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	provider := &fakeProvider{response: &TokenResponse{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: 3600}}
	flow, _ := newTestFlow(provider, clock)
	ctx := context.Background()

	tokens, err := flow.ExchangeCode(ctx, "alice", "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "A1", tokens.AccessToken)
	assert.Equal(t, int32(1), provider.exchangeCalls.Load())

	stored, err := flow.AccessToken(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "A1", stored.AccessToken)
}

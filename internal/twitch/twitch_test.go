package twitch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/underscoreTells/streaming-enhancement/internal/credentials"
	"github.com/underscoreTells/streaming-enhancement/internal/oauth"
	"github.com/underscoreTells/streaming-enhancement/internal/rest"
	"github.com/underscoreTells/streaming-enhancement/internal/secrets"
)

func fastRest() rest.Options {
	return rest.Options{
		Timeout:          2 * time.Second,
		BaseBackoff:      time.Millisecond,
		MaxBackoff:       4 * time.Millisecond,
		RateLimitDelay:   time.Millisecond,
		DispatchInterval: time.Millisecond,
	}
}

func testCredential() *credentials.Credential {
	return &credentials.Credential{
		Platform:     "twitch",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:8080/auth/twitch/callback",
		Scopes:       []string{"chat:read"},
	}
}

func TestProvider_ExchangeCode(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"access_token":"A1","refresh_token":"R1","expires_in":3600,"scope":["chat:read"]}`))
	}))
	defer server.Close()

	provider := NewProvider(testCredential(), Options{IdentityURL: server.URL, Rest: fastRest()})
	resp, err := provider.ExchangeCode(context.Background(), "the-code")

	require.NoError(t, err)
	assert.Equal(t, "/oauth2/token", gotPath)
	assert.Equal(t, "authorization_code", gotBody["grant_type"])
	assert.Equal(t, "the-code", gotBody["code"])
	assert.Equal(t, "client-id", gotBody["client_id"])
	assert.Equal(t, "http://localhost:8080/auth/twitch/callback", gotBody["redirect_uri"])
	assert.Equal(t, "A1", resp.AccessToken)
	assert.Equal(t, oauth.ScopeList{"chat:read"}, resp.Scope)
}

func TestProvider_RefreshAccessToken(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"access_token":"A2","expires_in":3600}`))
	}))
	defer server.Close()

	provider := NewProvider(testCredential(), Options{IdentityURL: server.URL, Rest: fastRest()})
	resp, err := provider.RefreshAccessToken(context.Background(), "R1")

	require.NoError(t, err)
	assert.Equal(t, "refresh_token", gotBody["grant_type"])
	assert.Equal(t, "R1", gotBody["refresh_token"])
	assert.Equal(t, "A2", resp.AccessToken)
	assert.Empty(t, resp.RefreshToken)
}

func TestProvider_AuthorizeURL(t *testing.T) {
	provider := NewProvider(testCredential(), Options{})
	assert.Equal(t, "https://id.twitch.tv/oauth2/authorize", provider.AuthorizeURL())
}

func newClientFixture(t *testing.T, apiURL string) *Client {
	t.Helper()

	cred := testCredential()
	provider := NewProvider(cred, Options{Rest: fastRest()})
	flow := oauth.NewFlow(provider, cred, secrets.NewMemoryStore(), nil)

	_, err := flow.ProcessAccessToken(context.Background(), "alice", &oauth.TokenResponse{
		AccessToken: "A1", RefreshToken: "R1", ExpiresIn: 3600,
	})
	require.NoError(t, err)

	return NewClient(flow, cred, "alice", Options{APIURL: apiURL, Rest: fastRest()})
}

func TestClient_GetUser(t *testing.T) {
	var gotAuth, gotClientID, gotLogin string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotClientID = r.Header.Get("Client-Id")
		gotLogin = r.URL.Query().Get("login")
		_, _ = w.Write([]byte(`{"data":[{"id":"123","login":"sodapoppin","display_name":"Sodapoppin"}]}`))
	}))
	defer server.Close()

	client := newClientFixture(t, server.URL)
	user, err := client.GetUser(context.Background(), "sodapoppin")

	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "123", user.ID)
	assert.Equal(t, "Sodapoppin", user.DisplayName)
	assert.Equal(t, "sodapoppin", gotLogin)
	assert.Equal(t, "Bearer A1", gotAuth)
	assert.Equal(t, "client-id", gotClientID)
}

func TestClient_GetUser_NotFoundIsAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"user not found"}`))
	}))
	defer server.Close()

	client := newClientFixture(t, server.URL)
	user, err := client.GetUser(context.Background(), "nobody")

	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestClient_GetUser_EmptyDataIsAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client := newClientFixture(t, server.URL)
	user, err := client.GetUser(context.Background(), "nobody")

	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestClient_GetUser_OtherErrorsPropagate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid token"}`))
	}))
	defer server.Close()

	client := newClientFixture(t, server.URL)
	_, err := client.GetUser(context.Background(), "sodapoppin")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token")
}

// Package twitch supplies the Twitch half of the OAuth flow (authorize and
// token endpoints on id.twitch.tv) and a small Helix API client authorized
// with a user's stored tokens.
package twitch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/underscoreTells/streaming-enhancement/internal/credentials"
	"github.com/underscoreTells/streaming-enhancement/internal/oauth"
	"github.com/underscoreTells/streaming-enhancement/internal/rest"
)

const (
	defaultIdentityURL = "https://id.twitch.tv"
	defaultAPIURL      = "https://api.twitch.tv"

	tokenPath     = "/oauth2/token"
	authorizePath = "/oauth2/authorize"
)

// Options configures the Twitch provider and client. URLs default to the
// production hosts and are overridable for tests.
type Options struct {
	IdentityURL string
	APIURL      string
	Rest        rest.Options
}

func (o *Options) applyDefaults() {
	if o.IdentityURL == "" {
		o.IdentityURL = defaultIdentityURL
	}
	if o.APIURL == "" {
		o.APIURL = defaultAPIURL
	}
	if o.Rest.Platform == "" {
		o.Rest.Platform = "twitch"
	}
}

// Provider implements the platform-specific token exchanges for the OAuth
// flow. Token-endpoint calls go through the resilient REST client like any
// other outbound request.
type Provider struct {
	identityURL string
	cred        *credentials.Credential
	rest        *rest.Client
}

func NewProvider(cred *credentials.Credential, opts Options) *Provider {
	opts.applyDefaults()
	return &Provider{
		identityURL: opts.IdentityURL,
		cred:        cred,
		rest:        rest.NewClient(opts.IdentityURL, opts.Rest),
	}
}

func (p *Provider) Platform() string { return "twitch" }

func (p *Provider) AuthorizeURL() string { return p.identityURL + authorizePath }

func (p *Provider) ExchangeCode(ctx context.Context, code string) (*oauth.TokenResponse, error) {
	return p.tokenRequest(ctx, map[string]any{
		"grant_type":    "authorization_code",
		"client_id":     p.cred.ClientID,
		"client_secret": p.cred.ClientSecret,
		"code":          code,
		"redirect_uri":  p.cred.RedirectURI,
	})
}

func (p *Provider) RefreshAccessToken(ctx context.Context, refreshToken string) (*oauth.TokenResponse, error) {
	return p.tokenRequest(ctx, map[string]any{
		"grant_type":    "refresh_token",
		"client_id":     p.cred.ClientID,
		"client_secret": p.cred.ClientSecret,
		"refresh_token": refreshToken,
	})
}

func (p *Provider) tokenRequest(ctx context.Context, body map[string]any) (*oauth.TokenResponse, error) {
	raw, err := p.rest.Post(ctx, tokenPath, body)
	if err != nil {
		return nil, err
	}

	var resp oauth.TokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse twitch token response: %w", err)
	}
	return &resp, nil
}

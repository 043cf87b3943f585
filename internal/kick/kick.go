// Package kick supplies the Kick half of the OAuth flow (id.kick.com) and a
// small public API client authorized with a user's stored tokens. Kick
// returns granted scopes as a single space-joined string rather than an
// array; the token response type handles both.
package kick

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/underscoreTells/streaming-enhancement/internal/credentials"
	"github.com/underscoreTells/streaming-enhancement/internal/oauth"
	"github.com/underscoreTells/streaming-enhancement/internal/rest"
)

const (
	defaultIdentityURL = "https://id.kick.com"
	defaultAPIURL      = "https://api.kick.com"

	tokenPath     = "/oauth/token"
	authorizePath = "/oauth/authorize"
)

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
		o.Rest.Platform = "kick"
	}
}

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

func (p *Provider) Platform() string { return "kick" }

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
		return nil, fmt.Errorf("failed to parse kick token response: %w", err)
	}
	return &resp, nil
}

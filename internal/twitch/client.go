package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/underscoreTells/streaming-enhancement/internal/credentials"
	"github.com/underscoreTells/streaming-enhancement/internal/errors"
	"github.com/underscoreTells/streaming-enhancement/internal/oauth"
	"github.com/underscoreTells/streaming-enhancement/internal/rest"
)

// User is the subset of the Helix user object the service reads.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	CreatedAt   string `json:"created_at"`
}

// Client calls the Helix API on behalf of one user. The bearer token is
// resolved from the flow on every attempt, so refreshes happen transparently.
type Client struct {
	rest *rest.Client
}

func NewClient(flow *oauth.Flow, cred *credentials.Credential, username string, opts Options) *Client {
	opts.applyDefaults()
	restOpts := opts.Rest
	restOpts.Headers = map[string]string{"Client-Id": cred.ClientID}
	restOpts.BearerSource = func(ctx context.Context) (string, error) {
		tokens, err := flow.AccessToken(ctx, username)
		if err != nil {
			return "", err
		}
		return tokens.AccessToken, nil
	}
	return &Client{rest: rest.NewClient(opts.APIURL, restOpts)}
}

// GetUser looks up a user by login name. A missing user is absent, not an
// error: both a 404 and an empty Helix data array return (nil, nil).
func (c *Client) GetUser(ctx context.Context, login string) (*User, error) {
	raw, err := c.rest.Get(ctx, "/helix/users", map[string]any{"login": login})
	if err != nil {
		if status, ok := errors.StatusOf(err); ok && status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	var resp struct {
		Data []User `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse helix users response: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	return &resp.Data[0], nil
}

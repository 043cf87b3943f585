package kick

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/underscoreTells/streaming-enhancement/internal/errors"
	"github.com/underscoreTells/streaming-enhancement/internal/oauth"
	"github.com/underscoreTells/streaming-enhancement/internal/rest"
)

// Channel is the subset of the Kick channel object the service reads.
type Channel struct {
	BroadcasterUserID  int    `json:"broadcaster_user_id"`
	Slug               string `json:"slug"`
	ChannelDescription string `json:"channel_description"`
	Stream             struct {
		IsLive      bool   `json:"is_live"`
		ViewerCount int    `json:"viewer_count"`
		StreamTitle string `json:"stream_title"`
	} `json:"stream"`
}

// Client calls the Kick public API on behalf of one user.
type Client struct {
	rest *rest.Client
}

func NewClient(flow *oauth.Flow, username string, opts Options) *Client {
	opts.applyDefaults()
	restOpts := opts.Rest
	restOpts.BearerSource = func(ctx context.Context) (string, error) {
		tokens, err := flow.AccessToken(ctx, username)
		if err != nil {
			return "", err
		}
		return tokens.AccessToken, nil
	}
	return &Client{rest: rest.NewClient(opts.APIURL, restOpts)}
}

// GetChannel looks up a channel by slug. A missing channel is absent, not an
// error: both a 404 and an empty data array return (nil, nil).
func (c *Client) GetChannel(ctx context.Context, slug string) (*Channel, error) {
	raw, err := c.rest.Get(ctx, "/public/v1/channels", map[string]any{"slug": slug})
	if err != nil {
		if status, ok := errors.StatusOf(err); ok && status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	var resp struct {
		Data []Channel `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse kick channels response: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	return &resp.Data[0], nil
}

// Package oauth implements the platform-agnostic token lifecycle: building
// authorization URLs, turning provider token responses into stored token
// records, and refreshing expiring tokens with single-flight locking per
// (platform, user).
package oauth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// RefreshBuffer is the safety margin before hard expiry at which a token
	// becomes due for refresh. Refreshing early avoids races against provider
	// clock skew.
	RefreshBuffer = 5 * time.Minute

	// DefaultLifetime is assumed when a provider omits expires_in.
	DefaultLifetime = 24 * time.Hour
)

// TokenSet is the persisted credential record for one (platform, user). It is
// always written whole; a refresh replaces the full record.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        []string  `json:"scope"`
	ExpiresAt    time.Time `json:"expires_at"`
	RefreshAt    time.Time `json:"refresh_at"`
}

// Refreshable reports whether the record carries a refresh token.
func (t *TokenSet) Refreshable() bool {
	return t.RefreshToken != ""
}

// Due reports whether the token should be refreshed at the given time.
func (t *TokenSet) Due(now time.Time) bool {
	return !now.Before(t.RefreshAt)
}

// Encode serializes the record for the secret store.
func (t *TokenSet) Encode() (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to encode token set: %w", err)
	}
	return string(raw), nil
}

// DecodeTokenSet parses a stored record.
func DecodeTokenSet(value string) (*TokenSet, error) {
	var t TokenSet
	if err := json.Unmarshal([]byte(value), &t); err != nil {
		return nil, fmt.Errorf("failed to decode token set: %w", err)
	}
	return &t, nil
}

// TokenResponse is the raw shape of a provider's code-exchange or refresh
// response.
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int       `json:"expires_in"`
	Scope        ScopeList `json:"scope"`
}

// ScopeList tolerates both provider encodings of granted scopes: a JSON array
// of strings (Twitch) and a single space-joined string (Kick).
type ScopeList []string

func (s *ScopeList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}

	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("scope is neither a string list nor a string: %s", data)
	}
	*s = strings.Fields(joined)
	return nil
}

// NewTokenSet builds the stored record from a provider response. When the
// response omits a refresh token the previous one is carried forward, so a
// refresh never loses the ability to refresh again. A lifetime shorter than
// the refresh buffer clamps refresh_at to now, forcing a refresh on the next
// access.
func NewTokenSet(resp *TokenResponse, previousRefreshToken string, now time.Time) *TokenSet {
	lifetime := DefaultLifetime
	if resp.ExpiresIn > 0 {
		lifetime = time.Duration(resp.ExpiresIn) * time.Second
	}

	expiresAt := now.Add(lifetime)
	refreshAt := expiresAt.Add(-RefreshBuffer)
	if refreshAt.Before(now) {
		refreshAt = now
	}

	refreshToken := resp.RefreshToken
	if refreshToken == "" {
		refreshToken = previousRefreshToken
	}

	return &TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: refreshToken,
		Scope:        resp.Scope,
		ExpiresAt:    expiresAt,
		RefreshAt:    refreshAt,
	}
}

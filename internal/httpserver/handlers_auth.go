package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/underscoreTells/streaming-enhancement/internal/errors"
	"github.com/underscoreTells/streaming-enhancement/internal/oauth"
)

// oauthFlowRef pairs a flow with the platform name it was registered under.
type oauthFlowRef struct {
	platform string
	flow     *oauth.Flow
}

func (s *Server) registerAuthRoutes(rateLimiter echo.MiddlewareFunc) {
	s.echo.GET("/auth/:platform/login", s.handleLogin, rateLimiter)
	s.echo.GET("/auth/:platform/callback", s.handleCallback, rateLimiter)
}

func (s *Server) flowFor(c echo.Context) (*oauthFlowRef, error) {
	platform := c.Param("platform")
	flow, ok := s.flows[platform]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("unknown platform %q", platform))
	}
	return &oauthFlowRef{platform: platform, flow: flow}, nil
}

// handleLogin starts the authorization flow: mints the state, stashes it in
// the session for the callback to verify, and redirects to the provider.
// The username query parameter names the account the tokens will be stored
// under.
func (s *Server) handleLogin(c echo.Context) error {
	ref, err := s.flowFor(c)
	if err != nil {
		return err
	}

	username := c.QueryParam("username")
	if username == "" {
		return errors.Validation("username query parameter is required")
	}

	authURL, state, err := ref.flow.AuthorizationURL()
	if err != nil {
		return err
	}

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		slog.Error("Failed to get session for OAuth state", "error", err)
	}
	session.Values[sessionKeyOAuthState] = state
	session.Values[sessionKeyUsername] = username
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return errors.Internal("failed to save session", err)
	}

	return c.Redirect(http.StatusFound, authURL)
}

// handleCallback verifies the state from the provider redirect and exchanges
// the authorization code for tokens.
func (s *Server) handleCallback(c echo.Context) error {
	ref, err := s.flowFor(c)
	if err != nil {
		return err
	}

	if errParam := c.QueryParam("error"); errParam != "" {
		return errors.Validation(fmt.Sprintf("authorization denied: %s", errParam))
	}

	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return errors.Validation("code and state query parameters are required")
	}

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return errors.Validation("no session for callback")
	}

	expectedState, _ := session.Values[sessionKeyOAuthState].(string)
	username, _ := session.Values[sessionKeyUsername].(string)
	if expectedState == "" || state != expectedState {
		slog.Warn("OAuth state mismatch", "platform", ref.platform)
		return errors.Validation("state parameter does not match")
	}
	if username == "" {
		return errors.Validation("session does not name a user")
	}

	// State is single use.
	delete(session.Values, sessionKeyOAuthState)
	delete(session.Values, sessionKeyUsername)
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return errors.Internal("failed to save session", err)
	}

	tokens, err := ref.flow.ExchangeCode(c.Request().Context(), username, code)
	if err != nil {
		return err
	}

	slog.Info("Authorized user",
		"platform", ref.platform,
		"username", username,
		"expires_at", tokens.ExpiresAt,
	)

	return c.JSON(http.StatusOK, map[string]any{
		"platform":   ref.platform,
		"username":   username,
		"expires_at": tokens.ExpiresAt,
		"scope":      tokens.Scope,
	})
}

// Package httpserver exposes the authorization redirect flow over HTTP: login
// redirects to the platform's consent page, the callback exchanges the code
// and stores the tokens. It also serves health probes, version and metrics.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"

	"github.com/underscoreTells/streaming-enhancement/internal/oauth"
	"github.com/underscoreTells/streaming-enhancement/internal/platform/config"
)

const (
	sessionName          = "streaming-enhancement-session"
	sessionKeyOAuthState = "oauth_state"
	sessionKeyUsername   = "username"
)

// HealthCheck is a named readiness check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	flows        map[string]*oauth.Flow
	sessionStore *sessions.CookieStore
	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer wires the echo instance. flows maps platform name ("twitch",
// "kick") to its configured OAuth flow; only registered platforms get auth
// routes served.
func NewServer(cfg *config.Config, flows map[string]*oauth.Flow, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		flows:        flows,
		sessionStore: setupSessionStore(cfg),
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options.HttpOnly = true
	store.Options.Secure = cfg.AppEnv == "production"
	store.Options.MaxAge = int(cfg.SessionMaxAge.Seconds())
	store.Options.Path = "/"
	return store
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/underscoreTells/streaming-enhancement/internal/credentials"
	"github.com/underscoreTells/streaming-enhancement/internal/httpserver"
	"github.com/underscoreTells/streaming-enhancement/internal/kick"
	"github.com/underscoreTells/streaming-enhancement/internal/oauth"
	"github.com/underscoreTells/streaming-enhancement/internal/platform/config"
	"github.com/underscoreTells/streaming-enhancement/internal/platform/logging"
	"github.com/underscoreTells/streaming-enhancement/internal/platform/version"
	"github.com/underscoreTells/streaming-enhancement/internal/rest"
	"github.com/underscoreTells/streaming-enhancement/internal/secrets"
	"github.com/underscoreTells/streaming-enhancement/internal/twitch"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := secrets.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// setupSecretStore layers encryption at rest over the redis store when a key
// is configured.
func setupSecretStore(cfg *config.Config, redisClient *goredis.Client) secrets.Store {
	var store secrets.Store = secrets.NewRedisStore(redisClient)

	if cfg.TokenEncryptionKey != "" {
		sealed, err := secrets.NewSealedStore(store, cfg.TokenEncryptionKey)
		if err != nil {
			slog.Error("Failed to initialize token encryption", "error", err)
			os.Exit(1)
		}
		store = sealed
		slog.Info("Token encryption at rest enabled")
	}

	return store
}

// setupCredentials prefers the database-backed repository when DATABASE_URL
// is set, and falls back to credentials from the environment.
func setupCredentials(cfg *config.Config) (credentials.Repository, *pgxpool.Pool) {
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := credentials.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}

		repo := credentials.NewPostgresRepository(pool)
		if err := repo.RunMigrations(ctx); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
		return repo, pool
	}

	repo := credentials.NewStaticRepository()
	if cfg.TwitchClientID != "" {
		repo.Register(credentials.Credential{
			Platform:     "twitch",
			ClientID:     cfg.TwitchClientID,
			ClientSecret: cfg.TwitchClientSecret,
			RedirectURI:  cfg.TwitchRedirectURI,
			Scopes:       config.SplitScopes(cfg.TwitchScopes),
		})
	}
	if cfg.KickClientID != "" {
		repo.Register(credentials.Credential{
			Platform:     "kick",
			ClientID:     cfg.KickClientID,
			ClientSecret: cfg.KickClientSecret,
			RedirectURI:  cfg.KickRedirectURI,
			Scopes:       config.SplitScopes(cfg.KickScopes),
		})
	}
	return repo, nil
}

func restOptions(platform string, cfg *config.Config) rest.Options {
	return rest.Options{
		Platform: platform,
		Timeout:  cfg.RequestTimeout,
	}
}

// setupFlows builds one OAuth flow per platform with registered credentials.
func setupFlows(cfg *config.Config, repo credentials.Repository, store secrets.Store, clock clockwork.Clock) map[string]*oauth.Flow {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	flows := make(map[string]*oauth.Flow)

	if cred, err := repo.GetCredential(ctx, "twitch"); err == nil {
		provider := twitch.NewProvider(cred, twitch.Options{
			Rest: restOptions("twitch", cfg),
		})
		flows["twitch"] = oauth.NewFlow(provider, cred, store, clock)
	}
	if cred, err := repo.GetCredential(ctx, "kick"); err == nil {
		provider := kick.NewProvider(cred, kick.Options{
			Rest: restOptions("kick", cfg),
		})
		flows["kick"] = oauth.NewFlow(provider, cred, store, clock)
	}

	if len(flows) == 0 {
		slog.Error("No platform credentials configured")
		os.Exit(1)
	}
	return flows
}

func runGracefulShutdown(srv *httpserver.Server) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting",
		"env", cfg.AppEnv,
		"port", cfg.Port,
		"version", version.Version,
	)

	redisClient := setupRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	store := setupSecretStore(cfg, redisClient)

	repo, pool := setupCredentials(cfg)
	if pool != nil {
		defer pool.Close()
	}

	flows := setupFlows(cfg, repo, store, clock)

	healthChecks := []httpserver.HealthCheck{
		{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}},
	}
	if pgRepo, ok := repo.(*credentials.PostgresRepository); ok {
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name: "postgres", Check: pgRepo.HealthCheck,
		})
	}

	srv := httpserver.NewServer(cfg, flows, healthChecks)
	done := runGracefulShutdown(srv)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server stopped", "error", err)
	}

	<-done
	slog.Info("Shutdown complete")
}

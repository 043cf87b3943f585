package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository reads per-platform OAuth client credentials from the
// platform_credentials table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx pool and verifies the connection.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// RunMigrations creates the credentials schema if it does not exist.
func (r *PostgresRepository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS platform_credentials (
			platform TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			client_secret TEXT NOT NULL,
			redirect_uri TEXT NOT NULL,
			scopes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, migration := range migrations {
		if _, err := r.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return nil
}

func (r *PostgresRepository) GetCredential(ctx context.Context, platform string) (*Credential, error) {
	var cred Credential
	var scopes string

	err := r.pool.QueryRow(ctx, `
		SELECT platform, client_id, client_secret, redirect_uri, scopes
		FROM platform_credentials
		WHERE platform = $1
	`, platform).Scan(&cred.Platform, &cred.ClientID, &cred.ClientSecret, &cred.RedirectURI, &scopes)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFoundError(platform)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s credentials: %w", platform, err)
	}

	cred.Scopes = strings.Fields(scopes)
	return &cred, nil
}

// Upsert stores or replaces the credential for its platform.
func (r *PostgresRepository) Upsert(ctx context.Context, cred Credential) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO platform_credentials (platform, client_id, client_secret, redirect_uri, scopes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (platform) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			redirect_uri = EXCLUDED.redirect_uri,
			scopes = EXCLUDED.scopes,
			updated_at = NOW()
	`, cred.Platform, cred.ClientID, cred.ClientSecret, cred.RedirectURI, strings.Join(cred.Scopes, " "))

	if err != nil {
		return fmt.Errorf("failed to upsert %s credentials: %w", cred.Platform, err)
	}
	return nil
}

// HealthCheck pings the database with a short deadline, for readiness probes.
func (r *PostgresRepository) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.pool.Ping(ctx)
}

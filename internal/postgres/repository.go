package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gamesync-backend/internal/config"
	"github.com/gamesync-backend/internal/domain"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			player_id BIGINT PRIMARY KEY,
			data JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS purchase_tokens (
			token TEXT PRIMARY KEY,
			player_id BIGINT NOT NULL,
			product_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			state TEXT NOT NULL,
			raw_response JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS wallet_ledger (
			id BIGSERIAL PRIMARY KEY,
			player_id BIGINT NOT NULL,
			delta BIGINT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_updated ON profiles(updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_purchase_tokens_player ON purchase_tokens(player_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_wallet_ledger_player ON wallet_ledger(player_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// EnsureProfile guarantees a profile row exists with an empty document.
// Concurrent calls for the same player converge on the same row.
func (r *Repository) EnsureProfile(ctx context.Context, playerID int64) error {
	query := `
		INSERT INTO profiles (player_id, data, updated_at)
		VALUES ($1, '{}'::jsonb, now())
		ON CONFLICT (player_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, playerID); err != nil {
		return fmt.Errorf("ensuring profile: %w", err)
	}
	return nil
}

// GetProfile retrieves a player's stored document
func (r *Repository) GetProfile(ctx context.Context, playerID int64) (*domain.Profile, error) {
	query := `SELECT data, updated_at FROM profiles WHERE player_id = $1`

	profile := domain.Profile{PlayerID: playerID}
	err := r.pool.QueryRow(ctx, query, playerID).Scan(&profile.Data, &profile.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	if profile.Data == nil {
		profile.Data = map[string]any{}
	}
	return &profile, nil
}

// ReplaceProfileData atomically sets the document and refreshes the
// timestamp. The row's own coins value always survives the write: the
// incoming document may carry a stale balance read before a concurrent
// credit or debit committed, so the authoritative field is re-pinned from
// the current row inside the upsert itself.
func (r *Repository) ReplaceProfileData(ctx context.Context, playerID int64, data map[string]any) (*domain.Profile, error) {
	query := `
		INSERT INTO profiles (player_id, data, updated_at)
		VALUES ($1, ($2::jsonb) - 'coins', now())
		ON CONFLICT (player_id) DO UPDATE
		SET data = CASE
				WHEN profiles.data ? 'coins'
					THEN jsonb_set(EXCLUDED.data, '{coins}', profiles.data->'coins')
				ELSE EXCLUDED.data - 'coins'
			END,
			updated_at = now()
		RETURNING data, updated_at
	`
	profile := domain.Profile{PlayerID: playerID}
	err := r.pool.QueryRow(ctx, query, playerID, data).Scan(&profile.Data, &profile.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("replacing profile data: %w", err)
	}
	if profile.Data == nil {
		profile.Data = map[string]any{}
	}
	return &profile, nil
}

// GetBalance returns the player's coin balance, zero for a missing profile
func (r *Repository) GetBalance(ctx context.Context, playerID int64) (int64, error) {
	query := `SELECT data FROM profiles WHERE player_id = $1`

	var data map[string]any
	err := r.pool.QueryRow(ctx, query, playerID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("getting balance: %w", err)
	}
	return domain.Coins(data), nil
}

// RecentlyUpdatedProfiles returns profiles written since the given time,
// most recent first, for cache warming
func (r *Repository) RecentlyUpdatedProfiles(ctx context.Context, since time.Time, limit int) ([]domain.Profile, error) {
	query := `
		SELECT player_id, data, updated_at
		FROM profiles
		WHERE updated_at >= $1
		ORDER BY updated_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recently updated profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		var profile domain.Profile
		if err := rows.Scan(&profile.PlayerID, &profile.Data, &profile.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		if profile.Data == nil {
			profile.Data = map[string]any{}
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

// isUniqueViolation reports whether err is a PostgreSQL duplicate-key error
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

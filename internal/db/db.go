package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oatsaysai/collect-in-telegram/internal/config"
)

// Connect creates and pings the PostgreSQL connection pool
func Connect(ctx context.Context, cfg config.PostgreSQLConfig) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable search_path=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DBName,
		cfg.Schema,
	)

	connectConf, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PostgreSQL config: %w", err)
	}

	connectConf.MaxConns = int32(cfg.PoolMaxConns)
	connectConf.HealthCheckPeriod = 15 * time.Second
	connectConf.ConnConfig.ConnectTimeout = 5 * time.Second

	// Set timezone to PGX runtime
	if s := os.Getenv("TZ"); s != "" {
		connectConf.ConnConfig.RuntimeParams["timezone"] = s
	}

	pool, err := pgxpool.NewWithConfig(ctx, connectConf)
	if err != nil {
		return nil, fmt.Errorf("unable to create PostgreSQL connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach PostgreSQL: %w", err)
	}

	log.Println("Connected to PostgreSQL successfully")
	return pool, nil
}

// Migrate sets up the database schema
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Println("Starting database migration...")

	usersSchema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		telegram_id BIGINT NOT NULL UNIQUE,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		language_code TEXT NOT NULL DEFAULT '',
		last_seen_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_users_telegram_id ON users(telegram_id);
	CREATE INDEX IF NOT EXISTS idx_users_last_seen_at ON users(last_seen_at);`
	if _, err := pool.Exec(ctx, usersSchema); err != nil {
		return fmt.Errorf("failed to migrate users table: %w", err)
	}

	poolsSchema := `
	CREATE TABLE IF NOT EXISTS pools (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id),
		title TEXT NOT NULL,
		amount_type TEXT NOT NULL CHECK (amount_type IN ('total', 'per_person')),
		total_amount BIGINT NOT NULL DEFAULT 0,
		per_person_amount BIGINT NOT NULL DEFAULT 0,
		share_amount BIGINT NOT NULL DEFAULT 0,
		expected_participants_count INT NOT NULL DEFAULT 1,
		payment_details TEXT NOT NULL,
		join_code TEXT NOT NULL UNIQUE,
		currency TEXT NOT NULL DEFAULT 'RUB',
		is_closed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_pools_owner_id ON pools(owner_id);
	CREATE INDEX IF NOT EXISTS idx_pools_join_code ON pools(join_code);
	CREATE INDEX IF NOT EXISTS idx_pools_created_at ON pools(created_at);`
	if _, err := pool.Exec(ctx, poolsSchema); err != nil {
		return fmt.Errorf("failed to migrate pools table: %w", err)
	}

	participantsSchema := `
	CREATE TABLE IF NOT EXISTS pool_participants (
		id TEXT PRIMARY KEY,
		pool_id TEXT NOT NULL REFERENCES pools(id) ON DELETE CASCADE,
		user_id TEXT REFERENCES users(id),
		display_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'invited'
			CHECK (status IN ('invited', 'joined', 'marked_paid', 'confirmed', 'declined')),
		paid_amount BIGINT NOT NULL DEFAULT 0,
		expected_amount BIGINT NOT NULL DEFAULT 0,
		pay_method TEXT NOT NULL DEFAULT 'unknown'
			CHECK (pay_method IN ('transfer', 'cash', 'unknown')),
		note TEXT NOT NULL DEFAULT '',
		joined_at TIMESTAMPTZ,
		marked_at TIMESTAMPTZ,
		confirmed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_pool_participants_pool_user
		ON pool_participants(pool_id, user_id) WHERE user_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_pool_participants_pool_id ON pool_participants(pool_id);
	CREATE INDEX IF NOT EXISTS idx_pool_participants_user_id ON pool_participants(user_id);
	CREATE INDEX IF NOT EXISTS idx_pool_participants_status ON pool_participants(status);`
	if _, err := pool.Exec(ctx, participantsSchema); err != nil {
		return fmt.Errorf("failed to migrate pool_participants table: %w", err)
	}

	log.Println("Database migration completed successfully")
	return nil
}

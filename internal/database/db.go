package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"kis-trading-bot/config"
	"kis-trading-bot/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger *logging.Logger
}

// Connect opens the connection pool and verifies it with a ping
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger := logging.WithComponent("database")
	logger.Info("connected to PostgreSQL", "dbname", cfg.DBName, "host", cfg.Host)
	return &DB{Pool: pool, logger: logger}, nil
}

// Close shuts the pool down
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("database connection closed")
	}
}

// Migrate brings the schema up to date. Every statement is idempotent,
// so running this on each start is safe.
func (db *DB) Migrate(ctx context.Context) error {
	db.logger.Info("running database migrations")

	migrations := []string{
		// One row per completed order
		`CREATE TABLE IF NOT EXISTS trades (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			market VARCHAR(4) NOT NULL,
			exchange VARCHAR(8) NOT NULL,
			side VARCHAR(4) NOT NULL,
			quantity BIGINT NOT NULL,
			price DECIMAL(20, 6) NOT NULL,
			amount_krw DECIMAL(20, 2) NOT NULL DEFAULT 0,
			strategy VARCHAR(20),
			style VARCHAR(10),
			profit_pct DECIMAL(10, 4) NOT NULL DEFAULT 0,
			executed_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades(executed_at)`,

		// One row per per-market scan pass
		`CREATE TABLE IF NOT EXISTS scan_cycles (
			id UUID PRIMARY KEY,
			market VARCHAR(4) NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			targets INTEGER NOT NULL DEFAULT 0,
			analyzed INTEGER NOT NULL DEFAULT 0,
			candidates INTEGER NOT NULL DEFAULT 0,
			selected INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_cycles_finished_at ON scan_cycles(finished_at)`,
		// Per-target verdicts from the cycle's analysis pass
		`ALTER TABLE scan_cycles ADD COLUMN IF NOT EXISTS results JSONB NOT NULL DEFAULT '[]'`,

		// Runtime toggles, mirrored from the in-memory settings store
		`CREATE TABLE IF NOT EXISTS settings (
			key VARCHAR(64) PRIMARY KEY,
			enabled BOOLEAN NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,

		// Win/loss tally per entry strategy, feeds screening hints
		`CREATE TABLE IF NOT EXISTS strategy_stats (
			strategy VARCHAR(20) PRIMARY KEY,
			trades INTEGER NOT NULL DEFAULT 0,
			wins INTEGER NOT NULL DEFAULT 0,
			total_profit_pct DECIMAL(12, 4) NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for i, stmt := range migrations {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}

	db.logger.Info("migrations complete", "statements", len(migrations))
	return nil
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Configure connection pool
	poolConfig.MaxConns = 25
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	poolConfig.MinConns = min(5, poolConfig.MaxConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logging.DatabaseContext("connect", "").Info("connected to PostgreSQL", "database", cfg.Name)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		logging.DatabaseContext("close", "").Info("database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log := logging.DatabaseContext("migrate", "")
	log.Info("running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id VARCHAR(64) PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			timeframe VARCHAR(4) NOT NULL,
			higher_timeframe VARCHAR(4) NOT NULL,
			direction VARCHAR(4) NOT NULL,
			order_type VARCHAR(10) NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			stop_loss DOUBLE PRECISION NOT NULL,
			take_profit_1 DOUBLE PRECISION NOT NULL,
			take_profit_2 DOUBLE PRECISION NOT NULL,
			take_profit_3 DOUBLE PRECISION NOT NULL,
			tp1_percentage DOUBLE PRECISION NOT NULL,
			tp2_percentage DOUBLE PRECISION NOT NULL,
			tp3_percentage DOUBLE PRECISION NOT NULL,
			confidence_score INTEGER NOT NULL,
			risk_reward_ratio DOUBLE PRECISION NOT NULL,
			quality VARCHAR(32) NOT NULL,
			trace TEXT NOT NULL,
			analysis_summary JSONB NOT NULL,
			contributions JSONB NOT NULL,
			methods TEXT NOT NULL DEFAULT '[]',
			degraded BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'active',
			entry_hit_at BIGINT,
			tp1_hit_at BIGINT,
			tp2_hit_at BIGINT,
			tp3_hit_at BIGINT,
			sl_hit_at BIGINT,
			break_even BOOLEAN NOT NULL DEFAULT FALSE,
			current_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			pnl_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
			closed_at BIGINT,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals(created_at)`,

		`CREATE TABLE IF NOT EXISTS signal_updates (
			id BIGSERIAL PRIMARY KEY,
			signal_id VARCHAR(64) NOT NULL REFERENCES signals(id) ON DELETE CASCADE,
			update_type VARCHAR(16) NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			pnl_percent DOUBLE PRECISION NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_updates_signal ON signal_updates(signal_id)`,

		`CREATE TABLE IF NOT EXISTS signal_rejections (
			id BIGSERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			timeframe VARCHAR(4) NOT NULL,
			reason VARCHAR(32) NOT NULL,
			achieved INTEGER NOT NULL,
			threshold INTEGER NOT NULL,
			risk_reward DOUBLE PRECISION NOT NULL DEFAULT 0,
			trace TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_rejections_created_at ON signal_rejections(created_at)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info("database migrations completed", "count", len(migrations))
	return nil
}

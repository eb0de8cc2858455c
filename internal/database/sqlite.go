package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"smc-signal-engine/internal/logging"
)

// SQLiteStore persists signals to a local SQLite file for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serialises writers; WAL lets readers proceed
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
// ":memory:" is accepted for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logging.DatabaseContext("open", "").Info("sqlite store opened", "path", path)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id                TEXT PRIMARY KEY,
			symbol            TEXT NOT NULL,
			timeframe         TEXT NOT NULL,
			higher_timeframe  TEXT NOT NULL,
			direction         TEXT NOT NULL,
			order_type        TEXT NOT NULL,
			entry_price       REAL NOT NULL,
			stop_loss         REAL NOT NULL,
			take_profit_1     REAL NOT NULL,
			take_profit_2     REAL NOT NULL,
			take_profit_3     REAL NOT NULL,
			tp1_percentage    REAL NOT NULL,
			tp2_percentage    REAL NOT NULL,
			tp3_percentage    REAL NOT NULL,
			confidence_score  INTEGER NOT NULL,
			risk_reward_ratio REAL NOT NULL,
			quality           TEXT NOT NULL,
			trace             TEXT NOT NULL,
			analysis_summary  TEXT NOT NULL,
			contributions     TEXT NOT NULL,
			methods           TEXT NOT NULL DEFAULT '[]',
			degraded          INTEGER NOT NULL DEFAULT 0,
			created_at        INTEGER NOT NULL,
			status            TEXT NOT NULL DEFAULT 'active',
			entry_hit_at      INTEGER,
			tp1_hit_at        INTEGER,
			tp2_hit_at        INTEGER,
			tp3_hit_at        INTEGER,
			sl_hit_at         INTEGER,
			break_even        INTEGER NOT NULL DEFAULT 0,
			current_price     REAL NOT NULL DEFAULT 0,
			pnl_percent       REAL NOT NULL DEFAULT 0,
			closed_at         INTEGER,
			updated_at        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals(created_at)`,

		`CREATE TABLE IF NOT EXISTS signal_updates (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			signal_id   TEXT NOT NULL REFERENCES signals(id) ON DELETE CASCADE,
			update_type TEXT NOT NULL,
			price       REAL NOT NULL,
			pnl_percent REAL NOT NULL,
			note        TEXT NOT NULL DEFAULT '',
			created_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_updates_signal ON signal_updates(signal_id)`,

		`CREATE TABLE IF NOT EXISTS signal_rejections (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol      TEXT NOT NULL,
			timeframe   TEXT NOT NULL,
			reason      TEXT NOT NULL,
			achieved    INTEGER NOT NULL,
			threshold   INTEGER NOT NULL,
			risk_reward REAL NOT NULL DEFAULT 0,
			trace       TEXT NOT NULL,
			created_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_rejections_created_at ON signal_rejections(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// HealthCheck pings the database
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteStore) Close() {
	if err := s.db.Close(); err != nil {
		logging.DatabaseContext("close", "").Warn("sqlite close failed", "error", err)
	}
}

func (s *SQLiteStore) SaveSignal(ctx context.Context, rec *SignalRecord) error {
	args, err := signalArgs(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, insertSignalSQL, args...); err != nil {
		return fmt.Errorf("insert signal %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetSignal(ctx context.Context, id string) (*SignalRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+signalColumns+" FROM signals WHERE id = ?", id)
	rec, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSignalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get signal %s: %w", id, err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListSignals(ctx context.Context, filter SignalFilter) ([]*SignalRecord, error) {
	query, args := buildListQuery(filter)
	return s.querySignals(ctx, query, args...)
}

func (s *SQLiteStore) ListActiveSignals(ctx context.Context) ([]*SignalRecord, error) {
	return s.querySignals(ctx, "SELECT "+signalColumns+" FROM signals WHERE status = ? ORDER BY created_at", StatusActive)
}

func (s *SQLiteStore) UpdateLifecycle(ctx context.Context, id string, state LifecycleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, updateLifecycleSQL, append(lifecycleArgs(state), id)...)
	if err != nil {
		return fmt.Errorf("update lifecycle %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSignalNotFound
	}
	return nil
}

func (s *SQLiteStore) AddSignalUpdate(ctx context.Context, u *SignalUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, insertUpdateSQL,
		u.SignalID, u.UpdateType, u.Price, u.PnLPercent, u.Note, toMillis(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert update for %s: %w", u.SignalID, err)
	}
	u.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListSignalUpdates(ctx context.Context, signalID string) ([]*SignalUpdate, error) {
	rows, err := s.db.QueryContext(ctx, listUpdatesSQL, signalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []*SignalUpdate
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

func (s *SQLiteStore) SaveRejection(ctx context.Context, rej *Rejection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, insertRejectionSQL,
		rej.Symbol, rej.Timeframe, rej.Reason, rej.Achieved, rej.Threshold, rej.RiskReward,
		rej.Trace, toMillis(rej.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert rejection: %w", err)
	}
	rej.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ConfidenceOutcomes(ctx context.Context, bucketSize int) ([]ConfidenceBucket, error) {
	rows, err := s.db.QueryContext(ctx, outcomesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return BucketOutcomes(outcomes, bucketSize), nil
}

func (s *SQLiteStore) querySignals(ctx context.Context, query string, args ...any) ([]*SignalRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []*SignalRecord
	for rows.Next() {
		rec, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, rec)
	}
	return signals, rows.Err()
}

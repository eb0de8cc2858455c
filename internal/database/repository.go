package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Repository is the PostgreSQL Store
type Repository struct {
	db *DB
}

var _ Store = (*Repository)(nil)

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// Close releases the pool
func (r *Repository) Close() {
	r.db.Close()
}

// ============================================================================
// SIGNALS
// ============================================================================

// SaveSignal inserts a new signal
func (r *Repository) SaveSignal(ctx context.Context, rec *SignalRecord) error {
	args, err := signalArgs(rec)
	if err != nil {
		return err
	}
	if _, err := r.db.Pool.Exec(ctx, rebind(insertSignalSQL), args...); err != nil {
		return fmt.Errorf("insert signal %s: %w", rec.ID, err)
	}
	return nil
}

// GetSignal retrieves a signal by ID
func (r *Repository) GetSignal(ctx context.Context, id string) (*SignalRecord, error) {
	row := r.db.Pool.QueryRow(ctx, rebind("SELECT "+signalColumns+" FROM signals WHERE id = ?"), id)
	rec, err := scanSignal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSignalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get signal %s: %w", id, err)
	}
	return rec, nil
}

// ListSignals returns signals matching the filter, newest first
func (r *Repository) ListSignals(ctx context.Context, filter SignalFilter) ([]*SignalRecord, error) {
	query, args := buildListQuery(filter)
	return r.querySignals(ctx, rebind(query), args...)
}

// ListActiveSignals returns every signal the lifecycle monitor still tracks
func (r *Repository) ListActiveSignals(ctx context.Context) ([]*SignalRecord, error) {
	query := "SELECT " + signalColumns + " FROM signals WHERE status = ? ORDER BY created_at"
	return r.querySignals(ctx, rebind(query), StatusActive)
}

// UpdateLifecycle overwrites the mutable lifecycle columns
func (r *Repository) UpdateLifecycle(ctx context.Context, id string, state LifecycleState) error {
	args := append(lifecycleArgs(state), id)
	tag, err := r.db.Pool.Exec(ctx, rebind(updateLifecycleSQL), args...)
	if err != nil {
		return fmt.Errorf("update lifecycle %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSignalNotFound
	}
	return nil
}

func (r *Repository) querySignals(ctx context.Context, query string, args ...interface{}) ([]*SignalRecord, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
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

// ============================================================================
// SIGNAL UPDATES
// ============================================================================

// AddSignalUpdate records a lifecycle transition
func (r *Repository) AddSignalUpdate(ctx context.Context, u *SignalUpdate) error {
	query := rebind(insertUpdateSQL) + " RETURNING id"
	err := r.db.Pool.QueryRow(ctx, query,
		u.SignalID, u.UpdateType, u.Price, u.PnLPercent, u.Note, toMillis(u.CreatedAt),
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("insert update for %s: %w", u.SignalID, err)
	}
	return nil
}

// ListSignalUpdates returns the transitions of one signal in order
func (r *Repository) ListSignalUpdates(ctx context.Context, signalID string) ([]*SignalUpdate, error) {
	rows, err := r.db.Pool.Query(ctx, rebind(listUpdatesSQL), signalID)
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

// ============================================================================
// REJECTIONS & ANALYSIS
// ============================================================================

// SaveRejection records a blocked generation
func (r *Repository) SaveRejection(ctx context.Context, rej *Rejection) error {
	query := rebind(insertRejectionSQL) + " RETURNING id"
	err := r.db.Pool.QueryRow(ctx, query,
		rej.Symbol, rej.Timeframe, rej.Reason, rej.Achieved, rej.Threshold, rej.RiskReward,
		rej.Trace, toMillis(rej.CreatedAt),
	).Scan(&rej.ID)
	if err != nil {
		return fmt.Errorf("insert rejection: %w", err)
	}
	return nil
}

// ConfidenceOutcomes aggregates closed signals per confidence bucket
func (r *Repository) ConfidenceOutcomes(ctx context.Context, bucketSize int) ([]ConfidenceBucket, error) {
	rows, err := r.db.Pool.Query(ctx, outcomesSQL)
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

package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"smc-signal-engine/config"
)

// ErrSignalNotFound is returned when no signal matches the given ID
var ErrSignalNotFound = errors.New("signal not found")

// DefaultListLimit caps ListSignals when the filter has no limit
const DefaultListLimit = 100

// Store persists signals, their lifecycle updates and rejected generations
type Store interface {
	SaveSignal(ctx context.Context, rec *SignalRecord) error
	GetSignal(ctx context.Context, id string) (*SignalRecord, error)
	ListSignals(ctx context.Context, filter SignalFilter) ([]*SignalRecord, error)
	ListActiveSignals(ctx context.Context) ([]*SignalRecord, error)
	UpdateLifecycle(ctx context.Context, id string, state LifecycleState) error
	AddSignalUpdate(ctx context.Context, update *SignalUpdate) error
	ListSignalUpdates(ctx context.Context, signalID string) ([]*SignalUpdate, error)
	SaveRejection(ctx context.Context, rej *Rejection) error
	ConfidenceOutcomes(ctx context.Context, bucketSize int) ([]ConfidenceBucket, error)
	HealthCheck(ctx context.Context) error
	Close()
}

// Open returns the store selected by cfg.Driver and applies migrations
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := NewDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return NewRepository(db), nil
	case "sqlite", "":
		return NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Both stores share one column list so a single scanner handles either driver.
// Timestamps are unix milliseconds.
const signalColumns = `id, symbol, timeframe, higher_timeframe, direction, order_type,
	entry_price, stop_loss, take_profit_1, take_profit_2, take_profit_3,
	tp1_percentage, tp2_percentage, tp3_percentage, confidence_score, risk_reward_ratio,
	quality, trace, analysis_summary, contributions, methods, degraded, created_at,
	status, entry_hit_at, tp1_hit_at, tp2_hit_at, tp3_hit_at, sl_hit_at, break_even,
	current_price, pnl_percent, closed_at, updated_at`

const insertSignalSQL = `INSERT INTO signals (` + signalColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const updateLifecycleSQL = `UPDATE signals SET
	status = ?, entry_hit_at = ?, tp1_hit_at = ?, tp2_hit_at = ?, tp3_hit_at = ?,
	sl_hit_at = ?, break_even = ?, current_price = ?, pnl_percent = ?, closed_at = ?, updated_at = ?
	WHERE id = ?`

const insertUpdateSQL = `INSERT INTO signal_updates
	(signal_id, update_type, price, pnl_percent, note, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

const listUpdatesSQL = `SELECT id, signal_id, update_type, price, pnl_percent, note, created_at
	FROM signal_updates WHERE signal_id = ? ORDER BY created_at, id`

const insertRejectionSQL = `INSERT INTO signal_rejections
	(symbol, timeframe, reason, achieved, threshold, risk_reward, trace, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

const outcomesSQL = `SELECT confidence_score, status, pnl_percent, tp1_hit_at
	FROM signals WHERE status <> 'active'`

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func signalArgs(rec *SignalRecord) ([]any, error) {
	methods, err := json.Marshal(rec.Methods)
	if err != nil {
		return nil, fmt.Errorf("encode methods: %w", err)
	}
	summary := string(rec.Summary)
	if summary == "" {
		summary = "{}"
	}
	contributions := string(rec.Contributions)
	if contributions == "" {
		contributions = "[]"
	}

	args := []any{
		rec.ID, rec.Symbol, rec.Timeframe, rec.HigherTimeframe, rec.Direction, rec.OrderType,
		rec.EntryPrice, rec.StopLoss, rec.TakeProfit1, rec.TakeProfit2, rec.TakeProfit3,
		rec.TPPercent1, rec.TPPercent2, rec.TPPercent3, rec.ConfidenceScore, rec.RiskRewardRatio,
		rec.Quality, rec.Trace, summary, contributions, string(methods), rec.Degraded, toMillis(rec.CreatedAt),
	}
	return append(args, lifecycleArgs(rec.LifecycleState)...), nil
}

func lifecycleArgs(s LifecycleState) []any {
	return []any{
		s.Status, toMillisPtr(s.EntryHitAt), toMillisPtr(s.TP1HitAt), toMillisPtr(s.TP2HitAt),
		toMillisPtr(s.TP3HitAt), toMillisPtr(s.SLHitAt), s.BreakEven, s.CurrentPrice, s.PnLPercent,
		toMillisPtr(s.ClosedAt), toMillis(s.UpdatedAt),
	}
}

func scanSignal(row rowScanner) (*SignalRecord, error) {
	var (
		rec                                          SignalRecord
		summary, contributions, methods              string
		createdAt, updatedAt                         int64
		entryHit, tp1Hit, tp2Hit, tp3Hit, sl, closed *int64
	)
	err := row.Scan(
		&rec.ID, &rec.Symbol, &rec.Timeframe, &rec.HigherTimeframe, &rec.Direction, &rec.OrderType,
		&rec.EntryPrice, &rec.StopLoss, &rec.TakeProfit1, &rec.TakeProfit2, &rec.TakeProfit3,
		&rec.TPPercent1, &rec.TPPercent2, &rec.TPPercent3, &rec.ConfidenceScore, &rec.RiskRewardRatio,
		&rec.Quality, &rec.Trace, &summary, &contributions, &methods, &rec.Degraded, &createdAt,
		&rec.Status, &entryHit, &tp1Hit, &tp2Hit, &tp3Hit, &sl, &rec.BreakEven,
		&rec.CurrentPrice, &rec.PnLPercent, &closed, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Summary = json.RawMessage(summary)
	rec.Contributions = json.RawMessage(contributions)
	if err := json.Unmarshal([]byte(methods), &rec.Methods); err != nil {
		return nil, fmt.Errorf("decode methods of %s: %w", rec.ID, err)
	}
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	rec.EntryHitAt = fromMillisPtr(entryHit)
	rec.TP1HitAt = fromMillisPtr(tp1Hit)
	rec.TP2HitAt = fromMillisPtr(tp2Hit)
	rec.TP3HitAt = fromMillisPtr(tp3Hit)
	rec.SLHitAt = fromMillisPtr(sl)
	rec.ClosedAt = fromMillisPtr(closed)
	return &rec, nil
}

func scanUpdate(row rowScanner) (*SignalUpdate, error) {
	var (
		u         SignalUpdate
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.SignalID, &u.UpdateType, &u.Price, &u.PnLPercent, &u.Note, &createdAt); err != nil {
		return nil, err
	}
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

func scanOutcome(row rowScanner) (Outcome, error) {
	var (
		o      Outcome
		tp1Hit *int64
	)
	if err := row.Scan(&o.Confidence, &o.Status, &o.PnLPercent, &tp1Hit); err != nil {
		return Outcome{}, err
	}
	o.TP1Hit = tp1Hit != nil
	return o, nil
}

// buildListQuery renders the filtered signal query with ? placeholders
func buildListQuery(f SignalFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, strings.ToUpper(f.Symbol))
	}
	if f.Timeframe != "" {
		where = append(where, "timeframe = ?")
		args = append(args, f.Timeframe)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Direction != "" {
		where = append(where, "direction = ?")
		args = append(args, strings.ToLower(f.Direction))
	}
	if f.MinConfidence > 0 {
		where = append(where, "confidence_score >= ?")
		args = append(args, f.MinConfidence)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + signalColumns + " FROM signals")
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC LIMIT ? OFFSET ?")
	args = append(args, limit, offset)
	return sb.String(), args
}

// rebind rewrites ? placeholders to PostgreSQL's $n form
func rebind(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// BucketOutcomes groups closed signals by confidence. A signal counts as a win when
// it completed, or when it stopped out after TP1 (break-even stop).
func BucketOutcomes(outcomes []Outcome, bucketSize int) []ConfidenceBucket {
	if bucketSize <= 0 || bucketSize > 100 {
		bucketSize = 10
	}

	count := (100 + bucketSize - 1) / bucketSize
	buckets := make([]ConfidenceBucket, count)
	sums := make([]float64, count)
	for i := range buckets {
		buckets[i].Low = i * bucketSize
		buckets[i].High = min((i+1)*bucketSize-1, 100)
	}
	buckets[count-1].High = 100

	for _, o := range outcomes {
		conf := max(0, min(o.Confidence, 100))
		idx := min(conf/bucketSize, count-1)
		b := &buckets[idx]
		b.Total++
		sums[idx] += o.PnLPercent
		switch {
		case o.Status == StatusCompleted, o.Status == StatusStopped && o.TP1Hit:
			b.Wins++
		case o.Status == StatusStopped:
			b.Losses++
		default:
			b.Expired++
		}
	}

	result := make([]ConfidenceBucket, 0, count)
	for i, b := range buckets {
		if b.Total == 0 {
			continue
		}
		if decided := b.Wins + b.Losses; decided > 0 {
			b.WinRate = round1(float64(b.Wins) / float64(decided) * 100)
		}
		b.AvgPnL = round1(sums[i] / float64(b.Total))
		result = append(result, b)
	}
	return result
}

func round1(v float64) float64 {
	return float64(int64(v*10+sign(v)*0.5)) / 10
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func toMillisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func fromMillisPtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

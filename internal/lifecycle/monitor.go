package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"smc-signal-engine/internal/database"
	"smc-signal-engine/internal/events"
	"smc-signal-engine/internal/marketdata"
)

// Defaults for the monitor loop
const (
	DefaultInterval = 15 * time.Second
	DefaultExpiry   = 72 * time.Hour
)

// PriceSource resolves a current price; *marketdata.PriceService satisfies it
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string, fallback float64) (float64, marketdata.PriceSource, error)
}

// Monitor periodically advances every active signal
type Monitor struct {
	store    database.Store
	prices   PriceSource
	bus      *events.EventBus
	interval time.Duration
	expiry   time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	mu      sync.Mutex
	lastRun time.Time
	tracked int
	running bool
}

// NewMonitor creates a monitor. Zero interval or expiry take the defaults; bus may be nil.
func NewMonitor(store database.Store, prices PriceSource, bus *events.EventBus, interval, expiry time.Duration, logger zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Monitor{
		store:    store,
		prices:   prices,
		bus:      bus,
		interval: interval,
		expiry:   expiry,
		now:      time.Now,
		logger:   logger.With().Str("component", "LifecycleMonitor").Logger(),
	}
}

// WithClock overrides the time source
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Run ticks until ctx is cancelled
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("lifecycle monitor already running")
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	m.logger.Info().Dur("interval", m.interval).Dur("expiry", m.expiry).Msg("Lifecycle monitor started")
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.Tick(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error().Err(err).Msg("Lifecycle tick failed")
		}
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Lifecycle monitor stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick advances all active signals once and returns how many transitions were recorded.
// A failing signal is logged and skipped.
func (m *Monitor) Tick(ctx context.Context) (int, error) {
	active, err := m.store.ListActiveSignals(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active signals: %w", err)
	}

	total := 0
	for _, rec := range active {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := m.advance(ctx, rec)
		if err != nil {
			m.logger.Warn().Err(err).Str("signal_id", rec.ID).Str("symbol", rec.Symbol).Msg("Failed to advance signal")
			continue
		}
		total += n
	}

	m.mu.Lock()
	m.lastRun = m.now()
	m.tracked = len(active)
	m.mu.Unlock()
	return total, nil
}

func (m *Monitor) advance(ctx context.Context, rec *database.SignalRecord) (int, error) {
	fallback := rec.CurrentPrice
	if fallback <= 0 {
		fallback = rec.EntryPrice
	}
	price, _, err := m.prices.CurrentPrice(ctx, rec.Symbol, fallback)
	if err != nil {
		return 0, err
	}

	state, transitions := Advance(rec, price, m.now(), m.expiry)
	if err := m.store.UpdateLifecycle(ctx, rec.ID, state); err != nil {
		return 0, err
	}

	for _, t := range transitions {
		update := &database.SignalUpdate{
			SignalID:   rec.ID,
			UpdateType: t.Type,
			Price:      t.Price,
			PnLPercent: state.PnLPercent,
			CreatedAt:  t.At,
		}
		if t.Type == database.UpdateTP1Hit {
			update.Note = "stop moved to break-even"
		}
		if err := m.store.AddSignalUpdate(ctx, update); err != nil {
			return 0, err
		}
		if m.bus != nil {
			m.bus.PublishSignalUpdate(rec.ID, rec.Symbol, t.Type, t.Price, state.PnLPercent)
		}
		m.logger.Info().
			Str("signal_id", rec.ID).
			Str("symbol", rec.Symbol).
			Str("update", t.Type).
			Float64("price", t.Price).
			Float64("pnl_percent", state.PnLPercent).
			Msg("Signal transition")
	}
	return len(transitions), nil
}

// Status reports the last tick time and how many signals it covered
func (m *Monitor) Status() (lastRun time.Time, tracked int, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun, m.tracked, m.running
}

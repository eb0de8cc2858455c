package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smc-signal-engine/internal/database"
	"smc-signal-engine/internal/events"
	"smc-signal-engine/internal/marketdata"
)

var created = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func buyRecord(orderType string) *database.SignalRecord {
	return &database.SignalRecord{
		ID:          "sig-buy",
		Symbol:      "BTCUSDT",
		Timeframe:   "1h",
		Direction:   "buy",
		OrderType:   orderType,
		EntryPrice:  100,
		StopLoss:    95,
		TakeProfit1: 110,
		TakeProfit2: 115,
		TakeProfit3: 125,
		CreatedAt:   created,
		LifecycleState: database.LifecycleState{
			Status:    database.StatusActive,
			UpdatedAt: created,
		},
	}
}

func types(ts []Transition) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Type
	}
	return out
}

func TestAdvanceMarketBuyPath(t *testing.T) {
	rec := buyRecord("market")
	now := created.Add(time.Minute)

	state, ts := Advance(rec, 101, now, DefaultExpiry)
	assert.Equal(t, []string{database.UpdateEntryHit}, types(ts))
	assert.Equal(t, 1.0, state.PnLPercent)
	rec.LifecycleState = state

	state, ts = Advance(rec, 111, now, DefaultExpiry)
	assert.Equal(t, []string{database.UpdateTP1Hit}, types(ts))
	assert.True(t, state.BreakEven)
	rec.LifecycleState = state

	// Price gaps through TP2 and TP3 at once: both fire in order and the signal completes
	state, ts = Advance(rec, 130, now, DefaultExpiry)
	assert.Equal(t, []string{database.UpdateTP2Hit, database.UpdateTP3Hit}, types(ts))
	assert.Equal(t, database.StatusCompleted, state.Status)
	assert.NotNil(t, state.ClosedAt)
	assert.Equal(t, 30.0, state.PnLPercent)
	rec.LifecycleState = state

	_, ts = Advance(rec, 90, now, DefaultExpiry)
	assert.Empty(t, ts, "closed signals do not move")
}

func TestAdvanceBreakEvenStop(t *testing.T) {
	rec := buyRecord("market")
	now := created.Add(time.Minute)
	state, _ := Advance(rec, 100, now, DefaultExpiry)
	rec.LifecycleState = state
	state, _ = Advance(rec, 110, now, DefaultExpiry)
	rec.LifecycleState = state

	// Above the original stop but below entry: the break-even stop fires
	state, ts := Advance(rec, 99.5, now, DefaultExpiry)
	assert.Equal(t, []string{database.UpdateSLHit}, types(ts))
	assert.Equal(t, database.StatusStopped, state.Status)
	assert.Equal(t, -0.5, state.PnLPercent)
}

func TestAdvanceGapMarksLowerTargets(t *testing.T) {
	rec := buyRecord("market")
	now := created.Add(time.Minute)
	state, _ := Advance(rec, 100, now, DefaultExpiry)
	rec.LifecycleState = state

	// Gap past TP2 before TP1 was ever observed
	state, ts := Advance(rec, 116, now, DefaultExpiry)
	assert.Equal(t, []string{database.UpdateTP1Hit, database.UpdateTP2Hit}, types(ts))
	assert.NotNil(t, state.TP1HitAt)
	assert.NotNil(t, state.TP2HitAt)
	assert.True(t, state.BreakEven)
	assert.Equal(t, database.StatusActive, state.Status)
	rec.LifecycleState = state

	// Reversal to the original stop exits at break-even after TP1
	state, ts = Advance(rec, 95, now, DefaultExpiry)
	assert.Equal(t, []string{database.UpdateSLHit}, types(ts))
	assert.Equal(t, database.StatusStopped, state.Status)
	assert.NotNil(t, state.TP1HitAt, "counted as a win by the outcome statistics")
}

func TestAdvanceStopCheckedFirst(t *testing.T) {
	rec := buyRecord("market")
	rec.Direction = "sell"
	rec.EntryPrice, rec.StopLoss = 100, 105
	rec.TakeProfit1, rec.TakeProfit2, rec.TakeProfit3 = 90, 85, 75

	state, ts := Advance(rec, 106, created, DefaultExpiry)
	assert.Equal(t, []string{database.UpdateEntryHit, database.UpdateSLHit}, types(ts))
	assert.Equal(t, database.StatusStopped, state.Status)
	assert.Equal(t, -6.0, state.PnLPercent)
}

func TestAdvanceLimitEntryAndExpiry(t *testing.T) {
	rec := buyRecord("limit")

	state, ts := Advance(rec, 102, created.Add(time.Hour), DefaultExpiry)
	assert.Empty(t, ts, "buy limit waits for price at or below entry")
	assert.Nil(t, state.EntryHitAt)
	assert.Zero(t, state.PnLPercent)
	assert.Equal(t, 102.0, state.CurrentPrice)

	state, ts = Advance(rec, 102, created.Add(DefaultExpiry), DefaultExpiry)
	assert.Equal(t, []string{database.UpdateExpired}, types(ts))
	assert.Equal(t, database.StatusExpired, state.Status)

	state, ts = Advance(rec, 99.9, created.Add(time.Hour), DefaultExpiry)
	assert.Equal(t, []string{database.UpdateEntryHit}, types(ts))
	assert.NotNil(t, state.EntryHitAt)
}

func TestPnLPercent(t *testing.T) {
	assert.Equal(t, 2.5, PnLPercent("buy", 200, 205))
	assert.Equal(t, -2.5, PnLPercent("sell", 200, 205))
	assert.Equal(t, 0.0, PnLPercent("buy", 0, 205))
}

type scriptedPrices struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
}

func (p *scriptedPrices) set(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

func (p *scriptedPrices) CurrentPrice(_ context.Context, symbol string, _ float64) (float64, marketdata.PriceSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, "", p.err
	}
	return p.prices[symbol], marketdata.PriceFromLive, nil
}

func TestMonitorTickPersistsAndPublishes(t *testing.T) {
	store, err := database.NewSQLiteStore(filepath.Join(t.TempDir(), "lifecycle.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	ctx := context.Background()
	require.NoError(t, store.SaveSignal(ctx, buyRecord("market")))

	bus := events.NewEventBus()
	updates := make(chan events.Event, 8)
	bus.Subscribe(events.EventSignalUpdate, func(e events.Event) { updates <- e })

	prices := &scriptedPrices{prices: map[string]float64{"BTCUSDT": 111}}
	m := NewMonitor(store, prices, bus, time.Second, time.Hour, zerolog.Nop()).
		WithClock(func() time.Time { return created.Add(time.Minute) })

	n, err := m.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "entry and TP1 on the first tick")

	rec, err := store.GetSignal(ctx, "sig-buy")
	require.NoError(t, err)
	assert.True(t, rec.EntryHit())
	assert.True(t, rec.BreakEven)
	assert.Equal(t, 11.0, rec.PnLPercent)

	history, err := store.ListSignalUpdates(ctx, "sig-buy")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, database.UpdateEntryHit, history[0].UpdateType)
	assert.Equal(t, "stop moved to break-even", history[1].Note)

	for i := 0; i < 2; i++ {
		select {
		case <-updates:
		case <-time.After(time.Second):
			t.Fatal("missing SIGNAL_UPDATE event")
		}
	}

	prices.set("BTCUSDT", 126)
	n, err = m.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "TP2 and TP3 crossed together")

	active, err := store.ListActiveSignals(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, tracked, _ := m.Status()
	assert.Equal(t, 1, tracked)
}

func TestMonitorSkipsPriceFailures(t *testing.T) {
	store, err := database.NewSQLiteStore(filepath.Join(t.TempDir(), "lifecycle.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.SaveSignal(context.Background(), buyRecord("market")))

	prices := &scriptedPrices{prices: map[string]float64{}, err: errors.New("no price")}
	m := NewMonitor(store, prices, nil, 0, 0, zerolog.Nop())

	n, err := m.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	store, err := database.NewSQLiteStore(filepath.Join(t.TempDir(), "lifecycle.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	m := NewMonitor(store, &scriptedPrices{prices: map[string]float64{}}, nil, 10*time.Millisecond, 0, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		last, _, running := m.Status()
		return running && !last.IsZero()
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

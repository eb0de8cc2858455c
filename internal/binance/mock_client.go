package binance

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// MockClient provides simulated market data for development/testing.
// Series are seeded by symbol and interval, so the same clock yields the same candles.
type MockClient struct {
	mu       sync.RWMutex
	prices   map[string]float64 // Price overrides set by SetPrice
	failures map[string]error   // Symbols whose requests fail
	now      func() time.Time
}

// NewMockClient creates a new mock client
func NewMockClient() *MockClient {
	return &MockClient{
		prices:   make(map[string]float64),
		failures: make(map[string]error),
		now:      time.Now,
	}
}

// WithClock fixes the clock the candle series are anchored to
func (mc *MockClient) WithClock(now func() time.Time) *MockClient {
	mc.mu.Lock()
	mc.now = now
	mc.mu.Unlock()
	return mc
}

// SetPrice overrides the current price of a symbol
func (mc *MockClient) SetPrice(symbol string, price float64) {
	mc.mu.Lock()
	mc.prices[strings.ToUpper(symbol)] = price
	mc.mu.Unlock()
}

// FailWith makes every request for the symbol return err (nil clears it)
func (mc *MockClient) FailWith(symbol string, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if err == nil {
		delete(mc.failures, strings.ToUpper(symbol))
		return
	}
	mc.failures[strings.ToUpper(symbol)] = err
}

func (mc *MockClient) failure(symbol string) error {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.failures[strings.ToUpper(symbol)]
}

func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	default:
		return time.Minute
	}
}

func seedFor(symbol, interval string) int64 {
	h := fnv.New64a()
	h.Write([]byte(strings.ToUpper(symbol) + "|" + interval))
	return int64(h.Sum64())
}

// GetKlines returns a simulated random walk ending at the current interval
func (mc *MockClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := mc.failure(symbol); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, ErrNoData
	}

	mc.mu.RLock()
	now := mc.now()
	mc.mu.RUnlock()

	step := intervalDuration(interval)
	end := now.UTC().Truncate(step)
	rng := rand.New(rand.NewSource(seedFor(symbol, interval)))
	basePrice := BasePrice(symbol)

	klines := make([]Kline, limit)
	currentPrice := basePrice
	volatility := 0.01
	for i := 0; i < limit; i++ {
		openTime := end.Add(-time.Duration(limit-1-i) * step)

		open := currentPrice
		// Slow sine drift gives the walk swings to work with
		drift := math.Sin(float64(i)/9) * volatility * 0.6
		change := drift + (rng.Float64()-0.5)*volatility
		closePrice := open * (1 + change)

		high := math.Max(open, closePrice) * (1 + rng.Float64()*volatility*0.4)
		low := math.Min(open, closePrice) * (1 - rng.Float64()*volatility*0.4)

		klines[i] = Kline{
			OpenTime:  openTime.UnixMilli(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    1000 + rng.Float64()*5000,
			CloseTime: openTime.Add(step).UnixMilli() - 1,
		}

		currentPrice = closePrice
	}

	return klines, nil
}

// GetCurrentPrice returns the override price, or the close of the latest simulated 1m candle
func (mc *MockClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := mc.failure(symbol); err != nil {
		return 0, err
	}

	mc.mu.RLock()
	price, ok := mc.prices[strings.ToUpper(symbol)]
	mc.mu.RUnlock()
	if ok {
		return price, nil
	}

	klines, err := mc.GetKlines(ctx, symbol, "1m", 1)
	if err != nil {
		return 0, err
	}
	return klines[0].Close, nil
}

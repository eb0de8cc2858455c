package marketdata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/binance"
	"smc-signal-engine/internal/cache"
)

var fixedNow = time.Date(2025, 3, 10, 12, 34, 56, 0, time.UTC)

// countingClient wraps the mock and counts calls; price requests can be gated
type countingClient struct {
	*binance.MockClient
	klineCalls atomic.Int32
	priceCalls atomic.Int32
	priceGate  chan struct{}
	priceErr   error
}

func newCountingClient() *countingClient {
	return &countingClient{MockClient: binance.NewMockClient().WithClock(func() time.Time { return fixedNow })}
}

func (c *countingClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]binance.Kline, error) {
	c.klineCalls.Add(1)
	return c.MockClient.GetKlines(ctx, symbol, interval, limit)
}

func (c *countingClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	c.priceCalls.Add(1)
	if c.priceGate != nil {
		<-c.priceGate
	}
	if c.priceErr != nil {
		return 0, c.priceErr
	}
	return c.MockClient.GetCurrentPrice(ctx, symbol)
}

func TestFetchPairLive(t *testing.T) {
	client := newCountingClient()
	f := NewFetcher(client, WithFetcherClock(func() time.Time { return fixedNow }))

	pair, err := f.FetchPair(context.Background(), "btcusdt", analysis.TF1h)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", pair.Symbol)
	assert.Equal(t, analysis.TF1h, pair.Working.Timeframe)
	assert.Equal(t, analysis.TF1D, pair.Higher.Timeframe)
	assert.Len(t, pair.Working.Candles, DefaultCandleLimit)
	assert.Len(t, pair.Higher.Candles, DefaultCandleLimit)
	assert.Equal(t, SourceLive, pair.Working.Source)
	assert.False(t, pair.Degraded())
	assert.Equal(t, pair.Working.Candles[DefaultCandleLimit-1].Close, pair.LastClose())
	assert.Equal(t, int32(2), client.klineCalls.Load())

	// Second fetch is served by the candle cache
	again, err := f.FetchPair(context.Background(), "BTCUSDT", analysis.TF1h)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, again.Working.Source)
	assert.Equal(t, SourceCache, again.Higher.Source)
	assert.Equal(t, int32(2), client.klineCalls.Load())
}

func TestFetchPairFallsBackToStaleCache(t *testing.T) {
	now := fixedNow
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	client := newCountingClient()
	f := NewFetcher(client, WithFetcherClock(clock), WithCandleLimit(60))

	first, err := f.FetchPair(context.Background(), "ETHUSDT", analysis.TF15m)
	require.NoError(t, err)
	require.False(t, first.Degraded())

	mu.Lock()
	now = now.Add(24 * time.Hour)
	mu.Unlock()
	client.FailWith("ETHUSDT", errors.New("exchange down"))

	second, err := f.FetchPair(context.Background(), "ETHUSDT", analysis.TF15m)
	require.NoError(t, err)
	assert.True(t, second.Degraded())
	assert.Equal(t, SourceStale, second.Working.Source)
	assert.Error(t, second.Working.Err)
	assert.Equal(t, first.Working.Candles, second.Working.Candles)
}

func TestFetchPairSyntheticFallback(t *testing.T) {
	client := newCountingClient()
	client.FailWith("XAUUSD", errors.New("unsupported symbol"))
	f := NewFetcher(client, WithFetcherClock(func() time.Time { return fixedNow }), WithCandleLimit(50))

	pair, err := f.FetchPair(context.Background(), "XAUUSD", analysis.TF4h)
	require.NoError(t, err)
	assert.True(t, pair.Degraded())
	assert.Equal(t, SourceSynthetic, pair.Working.Source)
	assert.Equal(t, SourceSynthetic, pair.Higher.Source)
	require.Len(t, pair.Working.Candles, 50)

	last := pair.Working.Candles[49]
	assert.Equal(t, 2650.0, last.Close)
	assert.InDelta(t, 2676.5, last.High, 1e-9)
	assert.InDelta(t, 2623.5, last.Low, 1e-9)
	assert.Equal(t, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), last.Time)
}

func TestFetchPairRequiresSymbol(t *testing.T) {
	_, err := NewFetcher(newCountingClient()).FetchPair(context.Background(), "  ", analysis.TF1h)
	assert.Error(t, err)
}

func TestCandleCachePrune(t *testing.T) {
	now := fixedNow
	c := NewCandleCache()
	c.now = func() time.Time { return now }

	c.Set("a", []analysis.Candle{{Close: 1}}, time.Minute)
	c.Set("b", []analysis.Candle{{Close: 2}}, time.Hour)

	now = now.Add(2 * time.Hour)
	assert.Nil(t, c.Get("a"))
	stale, ok := c.GetStale("a")
	assert.True(t, ok)
	assert.Len(t, stale, 1)

	assert.Equal(t, 1, c.Prune(90*time.Minute))
	assert.Equal(t, 1, c.Len())
}

func TestPriceCacheTTL(t *testing.T) {
	now := fixedNow
	c := NewPriceCache(2 * time.Second).WithClock(func() time.Time { return now })

	c.Set("btcusdt", 95000)
	p, ok := c.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 95000.0, p)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("BTCUSDT")
	assert.False(t, ok, "entry at exactly the TTL is stale")

	entry, ok := c.GetStale("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 95000.0, entry.Price)

	hits, misses, rate := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 50.0, rate)
}

func TestPriceCacheObserveKeepsNewest(t *testing.T) {
	c := NewPriceCache(time.Minute)
	c.Observe("ETHUSDT", 3500, fixedNow)
	c.Observe("ETHUSDT", 3400, fixedNow.Add(-time.Second))
	c.Observe("ETHUSDT", 0, fixedNow.Add(time.Second))

	entry, ok := c.GetStale("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, 3500.0, entry.Price)
}

func TestPriceServiceFallbackOrder(t *testing.T) {
	now := fixedNow
	client := newCountingClient()
	pc := NewPriceCache(2 * time.Second).WithClock(func() time.Time { return now })
	svc := NewPriceService(client, pc, nil)
	ctx := context.Background()

	// 1. Live fetch fills the cache
	client.SetPrice("SOLUSDT", 181)
	price, src, err := svc.CurrentPrice(ctx, "SOLUSDT", 0)
	require.NoError(t, err)
	assert.Equal(t, 181.0, price)
	assert.Equal(t, PriceFromLive, src)

	// 2. Fresh cache answers without a request
	price, src, err = svc.CurrentPrice(ctx, "SOLUSDT", 0)
	require.NoError(t, err)
	assert.Equal(t, PriceFromCache, src)
	assert.Equal(t, int32(1), client.priceCalls.Load())

	// 3. Expired and live fails: stale cache
	now = now.Add(5 * time.Second)
	client.priceErr = errors.New("timeout")
	price, src, err = svc.CurrentPrice(ctx, "SOLUSDT", 150)
	require.NoError(t, err)
	assert.Equal(t, 181.0, price)
	assert.Equal(t, PriceFromStale, src)

	// 4. Nothing cached: caller fallback
	price, src, err = svc.CurrentPrice(ctx, "ADAUSDT", 0.91)
	require.NoError(t, err)
	assert.Equal(t, 0.91, price)
	assert.Equal(t, PriceFromFallback, src)

	// 5. No fallback: newest 1m candle close
	price, src, err = svc.CurrentPrice(ctx, "ADAUSDT", 0)
	require.NoError(t, err)
	assert.Greater(t, price, 0.0)
	assert.Equal(t, PriceFromCandle, src)

	// 6. Everything fails
	client.FailWith("ADAUSDT", errors.New("delisted"))
	_, _, err = svc.CurrentPrice(ctx, "ADAUSDT", 0)
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestPriceServiceDeduplicatesConcurrentMisses(t *testing.T) {
	client := newCountingClient()
	client.SetPrice("BNBUSDT", 620)
	client.priceGate = make(chan struct{})
	svc := NewPriceService(client, NewPriceCache(time.Minute), nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]float64, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, _ = svc.CurrentPrice(context.Background(), "BNBUSDT", 0)
		}(i)
	}

	require.Eventually(t, func() bool { return client.priceCalls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(client.priceGate)
	wg.Wait()

	assert.LessOrEqual(t, client.priceCalls.Load(), int32(2))
	for _, r := range results {
		assert.Equal(t, 620.0, r)
	}
}

type fakeShared struct {
	mu     sync.Mutex
	prices map[string]cache.CachedPrice
	err    error
}

func (f *fakeShared) GetPrice(_ context.Context, symbol string) (cache.CachedPrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return cache.CachedPrice{}, f.err
	}
	p, ok := f.prices[symbol]
	if !ok {
		return cache.CachedPrice{}, cache.ErrCacheMiss
	}
	return p, nil
}

func (f *fakeShared) SetPrice(_ context.Context, symbol string, price float64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.prices[symbol] = cache.CachedPrice{Price: price, UpdatedAt: at}
	return nil
}

func TestPriceServiceSharedCache(t *testing.T) {
	shared := &fakeShared{prices: map[string]cache.CachedPrice{
		"XRPUSDT": {Price: 2.61, UpdatedAt: fixedNow.Add(-time.Second)},
	}}
	client := newCountingClient()
	client.SetPrice("ETHUSDT", 3501)
	pc := NewPriceCache(2 * time.Second).WithClock(func() time.Time { return fixedNow })
	svc := NewPriceService(client, pc, shared)

	price, src, err := svc.CurrentPrice(context.Background(), "XRPUSDT", 0)
	require.NoError(t, err)
	assert.Equal(t, 2.61, price)
	assert.Equal(t, PriceFromShared, src)
	assert.Equal(t, int32(0), client.priceCalls.Load())

	_, src, err = svc.CurrentPrice(context.Background(), "ETHUSDT", 0)
	require.NoError(t, err)
	assert.Equal(t, PriceFromLive, src)
	assert.Equal(t, 3501.0, shared.prices["ETHUSDT"].Price)

	// A degraded shared cache is skipped silently
	shared.err = cache.ErrCircuitOpen
	_, src, err = svc.CurrentPrice(context.Background(), "LTCUSDT", 0)
	require.NoError(t, err)
	assert.Equal(t, PriceFromLive, src)
}

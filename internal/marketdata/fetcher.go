// Package marketdata acquires the candle pairs and live prices signal generation runs on.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/binance"
	"smc-signal-engine/internal/logging"
)

// DefaultCandleLimit is the number of bars fetched per timeframe
const DefaultCandleLimit = 200

// Source tells where a series came from
type Source string

const (
	SourceLive      Source = "live"
	SourceCache     Source = "cache"
	SourceStale     Source = "stale_cache"
	SourceSynthetic Source = "synthetic"
)

// Series is one fetched timeframe
type Series struct {
	Timeframe analysis.Timeframe
	Candles   []analysis.Candle
	Source    Source
	Err       error // The fetch failure that forced a fallback, if any
}

// Degraded reports whether the series did not come from a successful fetch
func (s Series) Degraded() bool {
	return s.Source == SourceStale || s.Source == SourceSynthetic
}

// Pair holds the working and higher timeframe series of one symbol
type Pair struct {
	Symbol    string
	Working   Series
	Higher    Series
	FetchedAt time.Time
}

// Degraded reports whether either side fell back
func (p *Pair) Degraded() bool {
	return p.Working.Degraded() || p.Higher.Degraded()
}

// LastClose returns the close of the newest working candle, or 0
func (p *Pair) LastClose() float64 {
	if n := len(p.Working.Candles); n > 0 {
		return p.Working.Candles[n-1].Close
	}
	return 0
}

// Fetcher loads both timeframes of a signal request concurrently
type Fetcher struct {
	client  binance.MarketDataClient
	cache   *CandleCache
	limit   int
	timeout time.Duration
	now     func() time.Time
	logger  *logging.Logger
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithCandleLimit sets the bars per timeframe
func WithCandleLimit(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.limit = n
		}
	}
}

// WithTimeout bounds both fetches together
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithFetcherClock replaces the time source used for cache expiry and synthetic series
func WithFetcherClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		f.now = now
		f.cache.now = now
	}
}

// NewFetcher creates a fetcher with its own candle cache
func NewFetcher(client binance.MarketDataClient, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:  client,
		cache:   NewCandleCache(),
		limit:   DefaultCandleLimit,
		timeout: 15 * time.Second,
		now:     time.Now,
		logger:  logging.WithComponent("marketdata"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Cache exposes the candle cache for maintenance
func (f *Fetcher) Cache() *CandleCache {
	return f.cache
}

// FetchPair fetches the working timeframe and its higher timeframe in parallel.
// Fetch failures never surface as errors: the series falls back to stale cache,
// then to a synthetic base-price series, and is flagged degraded.
func (f *Fetcher) FetchPair(ctx context.Context, symbol string, tf analysis.Timeframe) (*Pair, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, errors.New("symbol is required")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	pair := &Pair{
		Symbol:    symbol,
		FetchedAt: f.now(),
	}
	htf := analysis.HigherTimeframe(tf)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pair.Working = f.fetchSeries(ctx, symbol, tf)
	}()
	go func() {
		defer wg.Done()
		pair.Higher = f.fetchSeries(ctx, symbol, htf)
	}()
	wg.Wait()

	return pair, nil
}

func (f *Fetcher) fetchSeries(ctx context.Context, symbol string, tf analysis.Timeframe) Series {
	interval := binance.IntervalFor(tf)
	key := fmt.Sprintf("%s:%s:%d", symbol, interval, f.limit)
	series := Series{Timeframe: tf}

	if cached := f.cache.Get(key); cached != nil {
		series.Candles = cached
		series.Source = SourceCache
		return series
	}

	start := time.Now()
	klines, err := f.client.GetKlines(ctx, symbol, interval, f.limit)
	if err == nil && len(klines) == 0 {
		err = binance.ErrNoData
	}
	if err == nil {
		series.Candles = binance.ToCandles(klines)
		series.Source = SourceLive
		f.cache.Set(key, series.Candles, TTLFor(tf))
		logging.FetchContext(symbol, string(tf)).WithDuration(time.Since(start)).
			Debug("candles fetched", "count", len(series.Candles))
		return series
	}

	series.Err = fmt.Errorf("fetch %s %s: %w", symbol, interval, err)
	log := logging.FetchContext(symbol, string(tf)).WithError(err)

	if stale, ok := f.cache.GetStale(key); ok {
		log.Warn("candle fetch failed, using stale cache", "count", len(stale))
		series.Candles = stale
		series.Source = SourceStale
		return series
	}

	log.Warn("candle fetch failed, using synthetic base price series", "base_price", binance.BasePrice(symbol))
	series.Candles = SyntheticCandles(symbol, tf, f.limit, f.now())
	series.Source = SourceSynthetic
	return series
}

package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"smc-signal-engine/internal/binance"
	"smc-signal-engine/internal/cache"
	"smc-signal-engine/internal/logging"
)

// ErrNoPrice is returned when every price source failed
var ErrNoPrice = errors.New("no price available")

// PriceSource tells which step of the fallback chain answered
type PriceSource string

const (
	PriceFromCache    PriceSource = "cache"
	PriceFromShared   PriceSource = "shared_cache"
	PriceFromLive     PriceSource = "live"
	PriceFromStale    PriceSource = "stale_cache"
	PriceFromFallback PriceSource = "fallback"
	PriceFromCandle   PriceSource = "last_candle"
)

// SharedPriceStore is a cross-instance price cache such as cache.CacheService
type SharedPriceStore interface {
	GetPrice(ctx context.Context, symbol string) (cache.CachedPrice, error)
	SetPrice(ctx context.Context, symbol string, price float64, at time.Time) error
}

// PriceService resolves the current price of a symbol. Concurrent misses for the
// same symbol share one live request.
type PriceService struct {
	client binance.MarketDataClient
	cache  *PriceCache
	shared SharedPriceStore
	group  singleflight.Group
	logger *logging.Logger
}

// NewPriceService creates the service; shared may be nil
func NewPriceService(client binance.MarketDataClient, priceCache *PriceCache, shared SharedPriceStore) *PriceService {
	if priceCache == nil {
		priceCache = NewPriceCache(DefaultPriceTTL)
	}
	return &PriceService{
		client: client,
		cache:  priceCache,
		shared: shared,
		logger: logging.WithComponent("price"),
	}
}

// Cache returns the injected per-symbol cache
func (s *PriceService) Cache() *PriceCache {
	return s.cache
}

// SeedPrice records a known price, e.g. the last close of a fresh fetch
func (s *PriceService) SeedPrice(symbol string, price float64) {
	s.cache.Set(symbol, price)
}

// CurrentPrice walks fresh cache, shared cache, live fetch, stale cache, the caller's
// fallback and finally the newest 1m candle close.
func (s *PriceService) CurrentPrice(ctx context.Context, symbol string, fallback float64) (float64, PriceSource, error) {
	symbol = strings.ToUpper(symbol)

	if price, ok := s.cache.Get(symbol); ok {
		return price, PriceFromCache, nil
	}

	if s.shared != nil {
		if p, err := s.shared.GetPrice(ctx, symbol); err == nil && p.Price > 0 &&
			s.cache.now().Sub(p.UpdatedAt) < s.cache.TTL() {
			s.cache.Observe(symbol, p.Price, p.UpdatedAt)
			return p.Price, PriceFromShared, nil
		}
	}

	v, err, _ := s.group.Do(symbol, func() (interface{}, error) {
		price, err := s.client.GetCurrentPrice(ctx, symbol)
		if err != nil {
			return 0.0, err
		}
		now := s.cache.now()
		s.cache.Observe(symbol, price, now)
		if s.shared != nil {
			if err := s.shared.SetPrice(ctx, symbol, price, now); err != nil && !errors.Is(err, cache.ErrCircuitOpen) {
				s.logger.Debug("shared price write failed", "symbol", symbol, "error", err)
			}
		}
		return price, nil
	})
	if err == nil {
		return v.(float64), PriceFromLive, nil
	}
	s.logger.Warn("live price fetch failed", "symbol", symbol, "error", err)

	if entry, ok := s.cache.GetStale(symbol); ok {
		return entry.Price, PriceFromStale, nil
	}
	if fallback > 0 {
		return fallback, PriceFromFallback, nil
	}

	klines, kerr := s.client.GetKlines(ctx, symbol, "1m", 1)
	if kerr == nil && len(klines) > 0 && klines[len(klines)-1].Close > 0 {
		return klines[len(klines)-1].Close, PriceFromCandle, nil
	}

	return 0, "", fmt.Errorf("%w for %s: %v", ErrNoPrice, symbol, err)
}

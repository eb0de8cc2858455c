package marketdata

import (
	"sync"
	"time"

	"smc-signal-engine/internal/analysis"
)

// CandleCache keeps fetched series per symbol/interval/limit. Expired entries stay
// readable through GetStale so a failed refresh can fall back to them.
type CandleCache struct {
	data map[string]*CacheEntry
	mu   sync.RWMutex
	now  func() time.Time
}

// CacheEntry represents a cached candle dataset
type CacheEntry struct {
	Candles   []analysis.Candle
	FetchedAt time.Time
	ExpiresAt time.Time
}

// NewCandleCache creates a new candle cache
func NewCandleCache() *CandleCache {
	return &CandleCache{
		data: make(map[string]*CacheEntry),
		now:  time.Now,
	}
}

// TTLFor returns the cache TTL for a timeframe; longer bars change less often
func TTLFor(tf analysis.Timeframe) time.Duration {
	switch tf {
	case analysis.TF1m:
		return 30 * time.Second
	case analysis.TF5m:
		return 2 * time.Minute
	case analysis.TF15m, analysis.TF30m:
		return 5 * time.Minute
	case analysis.TF1h:
		return 10 * time.Minute
	case analysis.TF4h:
		return 30 * time.Minute
	case analysis.TF1D:
		return 2 * time.Hour
	case analysis.TF1W:
		return 12 * time.Hour
	default:
		return time.Minute
	}
}

// Get retrieves cached candles if not expired
func (c *CandleCache) Get(key string) []analysis.Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[key]
	if !exists || c.now().After(entry.ExpiresAt) {
		return nil
	}
	return entry.Candles
}

// GetStale retrieves cached candles regardless of expiry
func (c *CandleCache) GetStale(key string) ([]analysis.Candle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[key]
	if !exists {
		return nil, false
	}
	return entry.Candles, true
}

// Set stores candles in cache with expiration
func (c *CandleCache) Set(key string, candles []analysis.Candle, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.data[key] = &CacheEntry{
		Candles:   candles,
		FetchedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Prune removes entries that expired more than maxStale ago
func (c *CandleCache) Prune(maxStale time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-maxStale)
	removed := 0
	for key, entry := range c.data {
		if entry.ExpiresAt.Before(cutoff) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached series
func (c *CandleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

package marketdata

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPriceTTL is how long a cached price counts as fresh
const DefaultPriceTTL = 2 * time.Second

// PriceEntry is one cached price observation
type PriceEntry struct {
	Price     float64
	UpdatedAt time.Time
}

// PriceCache is a per-symbol TTL cache. Entries are keyed independently, so
// concurrent readers of different symbols never contend on a shared lock.
type PriceCache struct {
	ttl     time.Duration
	entries sync.Map // symbol -> PriceEntry
	now     func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// NewPriceCache creates a cache; a non-positive ttl means DefaultPriceTTL
func NewPriceCache(ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultPriceTTL
	}
	return &PriceCache{ttl: ttl, now: time.Now}
}

// WithClock replaces the time source
func (c *PriceCache) WithClock(now func() time.Time) *PriceCache {
	c.now = now
	return c
}

// TTL returns the freshness window
func (c *PriceCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the price if it is still fresh
func (c *PriceCache) Get(symbol string) (float64, bool) {
	if entry, ok := c.load(symbol); ok && c.now().Sub(entry.UpdatedAt) < c.ttl {
		c.hits.Add(1)
		return entry.Price, true
	}
	c.misses.Add(1)
	return 0, false
}

// GetStale returns the last known price regardless of age
func (c *PriceCache) GetStale(symbol string) (PriceEntry, bool) {
	return c.load(symbol)
}

// Set records a price observed now
func (c *PriceCache) Set(symbol string, price float64) {
	c.Observe(symbol, price, c.now())
}

// Observe records a price observed at a given time; older observations never replace newer ones.
// The signature matches binance.PriceHandler so a ticker stream can feed the cache.
func (c *PriceCache) Observe(symbol string, price float64, at time.Time) {
	if price <= 0 {
		return
	}
	key := strings.ToUpper(symbol)
	next := PriceEntry{Price: price, UpdatedAt: at}
	for {
		v, loaded := c.entries.LoadOrStore(key, next)
		if !loaded {
			return
		}
		old := v.(PriceEntry)
		if old.UpdatedAt.After(at) {
			return
		}
		if c.entries.CompareAndSwap(key, old, next) {
			return
		}
	}
}

func (c *PriceCache) load(symbol string) (PriceEntry, bool) {
	v, ok := c.entries.Load(strings.ToUpper(symbol))
	if !ok {
		return PriceEntry{}, false
	}
	return v.(PriceEntry), true
}

// Stats returns cache hit/miss statistics
func (c *PriceCache) Stats() (hits, misses int64, hitRate float64) {
	hits = c.hits.Load()
	misses = c.misses.Load()
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return
}

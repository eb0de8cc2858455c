package scanner

import (
	"sync"
	"time"
)

// CooldownCache remembers which targets produced a signal recently so scheduled
// scans do not stack duplicate signals on the same setup.
type CooldownCache struct {
	mu    sync.RWMutex
	cache map[string]*CooldownEntry // key: symbol:timeframe
	ttl   time.Duration
	now   func() time.Time
}

// NewCooldownCache creates a new cache; a zero TTL disables it
func NewCooldownCache(ttl time.Duration) *CooldownCache {
	return &CooldownCache{
		cache: make(map[string]*CooldownEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Active returns the signal ID holding the cooldown for key, if not expired
func (cc *CooldownCache) Active(key string) (string, bool) {
	if cc.ttl <= 0 {
		return "", false
	}
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	entry, exists := cc.cache[key]
	if !exists || !cc.now().Before(entry.ExpiresAt) {
		return "", false
	}
	return entry.SignalID, true
}

// Mark starts a cooldown for key
func (cc *CooldownCache) Mark(key, signalID string) {
	if cc.ttl <= 0 {
		return
	}
	cc.mu.Lock()
	defer cc.mu.Unlock()

	cc.cache[key] = &CooldownEntry{
		SignalID:  signalID,
		ExpiresAt: cc.now().Add(cc.ttl),
	}
}

// Clear removes all cooldowns
func (cc *CooldownCache) Clear() {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	cc.cache = make(map[string]*CooldownEntry)
}

// CleanupExpired removes expired entries
func (cc *CooldownCache) CleanupExpired() {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	now := cc.now()
	for key, entry := range cc.cache {
		if !now.Before(entry.ExpiresAt) {
			delete(cc.cache, key)
		}
	}
}

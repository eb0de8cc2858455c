package binance

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"smc-signal-engine/internal/logging"
)

// RateLimiter implements proactive weight-based rate limiting with a circuit breaker
type RateLimiter struct {
	mu sync.Mutex

	// Circuit breaker state
	circuitOpen bool
	banUntil    time.Time

	// Weight tracking (Binance uses weight-based limits)
	currentWeight int
	weightResetAt time.Time
	maxWeight     int

	// Backoff state
	consecutiveErrors int
}

// Endpoint weights for Binance spot market data
var endpointWeights = map[string]int{
	"/api/v3/klines":       2,
	"/api/v3/ticker/price": 2,
}

// budgetShare keeps headroom for other processes sharing the IP
const budgetShare = 0.6

// NewRateLimiter creates a new rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		maxWeight:     6000, // Binance spot limit per minute
		weightResetAt: time.Now().Add(time.Minute),
	}
}

func getEndpointWeight(endpoint string) int {
	if w, ok := endpointWeights[endpoint]; ok {
		return w
	}
	return 1
}

// TryAcquire atomically checks AND records the weight of one request.
// It returns the suggested wait when the slot is not available.
func (r *RateLimiter) TryAcquire(endpoint string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if r.circuitOpen {
		if now.Before(r.banUntil) {
			return false, r.banUntil.Sub(now)
		}
		r.circuitOpen = false
		logging.WithComponent("binance").Info("rate limit circuit closed")
	}

	if now.After(r.weightResetAt) {
		r.currentWeight = 0
		r.weightResetAt = now.Add(time.Minute)
	}

	weight := getEndpointWeight(endpoint)
	threshold := int(float64(r.maxWeight) * budgetShare)
	if r.currentWeight+weight > threshold {
		return false, r.weightResetAt.Sub(now)
	}

	r.currentWeight += weight
	return true, 0
}

// Wait blocks until a slot is acquired or ctx is done
func (r *RateLimiter) Wait(ctx context.Context, endpoint string) error {
	for {
		ok, wait := r.TryAcquire(endpoint)
		if ok {
			return nil
		}

		r.mu.Lock()
		banned := r.circuitOpen
		r.mu.Unlock()
		if banned {
			return fmt.Errorf("%w: retry in %s", ErrRateLimited, wait.Round(time.Second))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RecordStatus opens the circuit on 429/418 responses. Retry-After (seconds) is honored
// when present, otherwise the ban grows with consecutive errors.
func (r *RateLimiter) RecordStatus(statusCode int, retryAfter string) {
	if statusCode != 429 && statusCode != 418 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecutiveErrors++
	ban := time.Duration(r.consecutiveErrors) * 30 * time.Second
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
		ban = time.Duration(secs) * time.Second
	}
	if ban > 10*time.Minute {
		ban = 10 * time.Minute
	}

	r.circuitOpen = true
	r.banUntil = time.Now().Add(ban)
	logging.WithComponent("binance").Warn("rate limit circuit opened", "status", statusCode, "ban", ban.String())
}

// RecordSuccess resets the backoff counter
func (r *RateLimiter) RecordSuccess() {
	r.mu.Lock()
	r.consecutiveErrors = 0
	r.mu.Unlock()
}

// IsCircuitOpen reports whether requests are currently blocked
func (r *RateLimiter) IsCircuitOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.circuitOpen && time.Now().Before(r.banUntil)
}

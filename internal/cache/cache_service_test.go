package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/logging"
)

func TestNewCacheServiceDisabled(t *testing.T) {
	_, err := NewCacheService(config.RedisConfig{Enabled: false})
	assert.Error(t, err)
}

func TestCacheServiceDegradedMode(t *testing.T) {
	// Nothing listens on port 1, so the service starts degraded
	cs, err := NewCacheService(config.RedisConfig{Enabled: true, Address: "127.0.0.1:1", PoolSize: 1})
	require.NoError(t, err)
	require.NotNil(t, cs)
	defer cs.Close()

	assert.False(t, cs.IsHealthy())

	ctx := context.Background()
	_, err = cs.Get(ctx, "any")
	assert.ErrorIs(t, err, ErrCircuitOpen)

	assert.ErrorIs(t, cs.SetPrice(ctx, "BTCUSDT", 95000, time.Now()), ErrCircuitOpen)

	_, err = cs.GetPrice(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, ErrCircuitOpen)

	stats := cs.GetStats()
	assert.False(t, stats.Healthy)
	assert.Equal(t, "127.0.0.1:1", stats.Address)
}

func TestRecordFailureOpensCircuit(t *testing.T) {
	cs := &CacheService{healthy: true, maxFailures: 3, logger: logging.Nop()}

	cs.recordFailure()
	cs.recordFailure()
	assert.True(t, cs.IsHealthy())
	cs.recordFailure()
	assert.False(t, cs.IsHealthy())

	cs.recordSuccess()
	assert.True(t, cs.IsHealthy())
	assert.Equal(t, 0, cs.GetStats().FailureCount)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "price:BTCUSDT", PriceKey("btcusdt"))
	assert.Equal(t, "signal:abc", SignalKey("abc"))
	assert.Equal(t, "signal:latest:ETHUSDT:1h", LatestSignalKey("ethusdt", "1h"))
}

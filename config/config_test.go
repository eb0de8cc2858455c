package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, 35, cfg.EngineConfig.DefaultMinConfidence)
	assert.Equal(t, 200, cfg.EngineConfig.CandleLimit)
	assert.Equal(t, 2*time.Second, cfg.EngineConfig.PriceTTL())
	assert.Equal(t, []float64{2, 3, 5}, cfg.EngineConfig.TakeProfitMultiples)
	assert.Equal(t, 1.2, cfg.EngineConfig.MinRiskReward)
	assert.Equal(t, "sqlite", cfg.DatabaseConfig.Driver)
	assert.Equal(t, 8080, cfg.ServerConfig.Port)
	assert.Len(t, cfg.ScannerConfig.Watchlist, 2)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
engine:
  default_min_confidence: 50
  take_profit_multiples: [1.5, 2.5, 4]
scanner:
  enabled: true
  schedule: "0 0 * * * *"
  watchlist:
    - symbol: SOLUSDT
      timeframe: 4h
database:
  driver: postgres
  host: db.internal
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.EngineConfig.DefaultMinConfidence)
	assert.Equal(t, []float64{1.5, 2.5, 4}, cfg.EngineConfig.TakeProfitMultiples)
	assert.Equal(t, 50, cfg.ScannerConfig.MinConfidence)
	require.Len(t, cfg.ScannerConfig.Watchlist, 1)
	assert.Equal(t, "SOLUSDT", cfg.ScannerConfig.Watchlist[0].Symbol)
	assert.Equal(t, "postgres://signals:@db.internal:5432/signals?sslmode=disable", cfg.DatabaseConfig.DSN())
}

func TestLoadJSONWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"engine":{"candle_limit":300},"server":{"port":9000}}`), 0o644))

	t.Setenv("WEB_PORT", "9100")
	t.Setenv("ENGINE_MIN_CONFIDENCE", "60")
	t.Setenv("MOCK_MODE", "true")
	t.Setenv("ENGINE_PRICE_TTL_MS", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.EngineConfig.CandleLimit)
	assert.Equal(t, 9100, cfg.ServerConfig.Port)
	assert.Equal(t, 60, cfg.EngineConfig.DefaultMinConfidence)
	assert.True(t, cfg.BinanceConfig.MockMode)
	assert.Equal(t, 2000, cfg.EngineConfig.PriceTTLMs, "unparsable env keeps the configured value")
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"engine":`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"confidence above 100", func(c *Config) { c.EngineConfig.DefaultMinConfidence = 101 }, false},
		{"candle limit too small", func(c *Config) { c.EngineConfig.CandleLimit = 10 }, false},
		{"decreasing multiples", func(c *Config) { c.EngineConfig.TakeProfitMultiples = []float64{3, 2, 5} }, false},
		{"two multiples", func(c *Config) { c.EngineConfig.TakeProfitMultiples = []float64{2, 3} }, false},
		{"unknown driver", func(c *Config) { c.DatabaseConfig.Driver = "mysql" }, false},
		{"scanner bad order type", func(c *Config) {
			c.ScannerConfig.Enabled = true
			c.ScannerConfig.OrderType = "stop"
		}, false},
		{"vault without token", func(c *Config) { c.VaultConfig.Enabled = true }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			applyDefaults(cfg)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestGenerateSampleConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	require.NoError(t, GenerateSampleConfig(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.ScannerConfig.Enabled)
	assert.True(t, cfg.LifecycleConfig.Enabled)
}

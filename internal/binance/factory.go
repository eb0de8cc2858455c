package binance

import (
	"time"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/logging"
)

// NewMarketDataClient picks the live REST client or the simulated one based on mock mode
func NewMarketDataClient(cfg config.BinanceConfig) MarketDataClient {
	if cfg.MockMode {
		logging.WithComponent("binance").Warn("mock mode enabled, market data is simulated")
		return NewMockClient()
	}
	return NewClient(cfg.BaseURL, time.Duration(cfg.RequestTimeout)*time.Second)
}

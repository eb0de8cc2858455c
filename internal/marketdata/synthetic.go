package marketdata

import (
	"time"

	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/binance"
)

// SyntheticCandles builds a flat series around the symbol's base price, ending at the bar
// containing now. High/low sit 1% either side of the base price.
func SyntheticCandles(symbol string, tf analysis.Timeframe, limit int, now time.Time) []analysis.Candle {
	if limit <= 0 {
		return nil
	}
	step := tf.Duration()
	if step == 0 {
		step = 15 * time.Minute
	}
	base := binance.BasePrice(symbol)
	end := now.UTC().Truncate(step)

	candles := make([]analysis.Candle, limit)
	for i := range candles {
		candles[i] = analysis.Candle{
			Time:   end.Add(-time.Duration(limit-1-i) * step),
			Open:   base,
			High:   base * 1.01,
			Low:    base * 0.99,
			Close:  base,
			Volume: 1_000_000,
		}
	}
	return candles
}

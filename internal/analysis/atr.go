package analysis

import (
	"github.com/markcheno/go-talib"
)

const (
	DefaultATRPeriod  = 14
	atrBaselineBars   = 50
	atrBaselinePeriod = 20
)

// CalculateATR averages the true range over the trailing period.
// With fewer than period+1 bars it degrades to the mean high-low range.
func CalculateATR(candles []Candle, period int) float64 {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	if len(candles) == 0 {
		return 0
	}

	if len(candles) < period+1 {
		sum := 0.0
		for _, c := range candles {
			sum += c.Range()
		}
		return sum / float64(len(candles))
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}

	// TRange leaves index 0 empty: the first bar has no previous close
	trueRanges := talib.TRange(highs, lows, closes)[1:]
	recent := trueRanges[len(trueRanges)-period:]

	sum := 0.0
	for _, tr := range recent {
		sum += tr
	}
	return sum / float64(period)
}

// ATRRatio compares the current ATR against a 20-period ATR of the last 50 bars
func ATRRatio(candles []Candle) float64 {
	current := CalculateATR(candles, DefaultATRPeriod)
	baseline := CalculateATR(Tail(candles, atrBaselineBars), atrBaselinePeriod)
	if baseline == 0 {
		return 1
	}
	return current / baseline
}

package analysis

import (
	"github.com/markcheno/go-talib"
)

const (
	rsiPeriod  = 14
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

// MACD holds the latest MACD line, signal line and histogram values
type MACD struct {
	Value     float64 `json:"value"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// IndicatorSnapshot is the latest value of each summary indicator.
// Indicators without enough history fall back to neutral values: RSI 50,
// EMAs at the last close, MACD zero.
type IndicatorSnapshot struct {
	RSI    float64 `json:"rsi"`
	MACD   MACD    `json:"macd"`
	EMA20  float64 `json:"ema_20"`
	EMA50  float64 `json:"ema_50"`
	EMA200 float64 `json:"ema_200"`
	Volume float64 `json:"volume"`
}

// ComputeIndicators evaluates the summary indicators on the closes of the series
func ComputeIndicators(candles []Candle) IndicatorSnapshot {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	last := LastClose(candles)

	snap := IndicatorSnapshot{
		RSI:    50,
		EMA20:  lastEMA(closes, 20, last),
		EMA50:  lastEMA(closes, 50, last),
		EMA200: lastEMA(closes, 200, last),
	}
	if len(candles) > 0 {
		snap.Volume = candles[len(candles)-1].Volume
	}

	if len(closes) > rsiPeriod {
		rsi := talib.Rsi(closes, rsiPeriod)
		snap.RSI = rsi[len(rsi)-1]
	}

	if len(closes) >= macdSlow+macdSignal {
		line, signal, hist := talib.Macd(closes, macdFast, macdSlow, macdSignal)
		n := len(closes) - 1
		snap.MACD = MACD{Value: line[n], Signal: signal[n], Histogram: hist[n]}
	}

	return snap
}

func lastEMA(closes []float64, period int, fallback float64) float64 {
	if len(closes) < period {
		return fallback
	}
	ema := talib.Ema(closes, period)
	return ema[len(ema)-1]
}

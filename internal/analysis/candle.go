package analysis

import (
	"math"
	"time"
)

// Candle is a single OHLCV bar. Series are ordered by Time ascending and are
// never mutated by the analysis functions.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Body returns the absolute size of the candle body
func (c Candle) Body() float64 {
	return math.Abs(c.Close - c.Open)
}

// Range returns high minus low
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// IsBullish reports a close above the open
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish reports a close below the open
func (c Candle) IsBearish() bool {
	return c.Close < c.Open
}

// Tail returns the last n candles (or all of them when fewer exist).
// The returned slice shares the backing array with the input.
func Tail(candles []Candle, n int) []Candle {
	if n <= 0 {
		return nil
	}
	if len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}

// Highest returns the max high of the series, or 0 for an empty series
func Highest(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	high := candles[0].High
	for _, c := range candles[1:] {
		if c.High > high {
			high = c.High
		}
	}
	return high
}

// Lowest returns the min low of the series, or 0 for an empty series
func Lowest(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	low := candles[0].Low
	for _, c := range candles[1:] {
		if c.Low < low {
			low = c.Low
		}
	}
	return low
}

// AverageBody returns the mean body size of the series
func AverageBody(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range candles {
		sum += c.Body()
	}
	return sum / float64(len(candles))
}

// LastClose returns the close of the final candle, or 0 for an empty series
func LastClose(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}

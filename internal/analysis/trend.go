package analysis

// Trend represents the working-timeframe market direction
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// SwingKind tells swing highs and swing lows apart
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint represents a fractal price extreme
type SwingPoint struct {
	Price  float64
	Index  int // Absolute index into the series it was detected on
	Kind   SwingKind
	Volume float64
}

// Transitions counts structure changes between consecutive swings of each kind
type Transitions struct {
	HigherHighs int
	LowerHighs  int
	HigherLows  int
	LowerLows   int
}

const trendWindow = 20

// FindSwingPoints identifies fractal swing points.
// A bar is a swing high when its high is strictly above the high of every bar
// within lookback on both sides (mirror rule for swing lows). A bar can be both.
// Output is ordered by index.
func FindSwingPoints(candles []Candle, lookback int) []SwingPoint {
	if lookback <= 0 {
		lookback = 5
	}

	var swings []SwingPoint
	for i := lookback; i < len(candles)-lookback; i++ {
		current := candles[i]
		isHigh, isLow := true, true

		for j := 1; j <= lookback; j++ {
			if candles[i-j].High >= current.High || candles[i+j].High >= current.High {
				isHigh = false
			}
			if candles[i-j].Low <= current.Low || candles[i+j].Low <= current.Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}

		if isHigh {
			swings = append(swings, SwingPoint{Price: current.High, Index: i, Kind: SwingHigh, Volume: current.Volume})
		}
		if isLow {
			swings = append(swings, SwingPoint{Price: current.Low, Index: i, Kind: SwingLow, Volume: current.Volume})
		}
	}

	return swings
}

// SplitSwings separates highs and lows, preserving index order
func SplitSwings(swings []SwingPoint) (highs, lows []SwingPoint) {
	for _, s := range swings {
		if s.Kind == SwingHigh {
			highs = append(highs, s)
		} else {
			lows = append(lows, s)
		}
	}
	return highs, lows
}

// CountTransitions counts higher/lower highs and lows across consecutive swings
func CountTransitions(highs, lows []SwingPoint) Transitions {
	var t Transitions
	for i := 1; i < len(highs); i++ {
		if highs[i].Price > highs[i-1].Price {
			t.HigherHighs++
		} else if highs[i].Price < highs[i-1].Price {
			t.LowerHighs++
		}
	}
	for i := 1; i < len(lows); i++ {
		if lows[i].Price > lows[i-1].Price {
			t.HigherLows++
		} else if lows[i].Price < lows[i-1].Price {
			t.LowerLows++
		}
	}
	return t
}

// ClassifyTrend compares the extremes of the last 20 bars against the 20 before them
func ClassifyTrend(candles []Candle) Trend {
	if len(candles) <= trendWindow {
		return TrendNeutral
	}

	recent := candles[len(candles)-trendWindow:]
	olderStart := len(candles) - 2*trendWindow
	if olderStart < 0 {
		olderStart = 0
	}
	older := candles[olderStart : len(candles)-trendWindow]

	recentHigh, recentLow := Highest(recent), Lowest(recent)
	olderHigh, olderLow := Highest(older), Lowest(older)

	switch {
	case recentHigh > olderHigh && recentLow > olderLow:
		return TrendBullish
	case recentHigh < olderHigh && recentLow < olderLow:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

package analysis

import "fmt"

// Bias is the higher-timeframe structural direction
type Bias string

const (
	BiasBullish Bias = "BULLISH"
	BiasBearish Bias = "BEARISH"
	BiasNone    Bias = "NONE"
)

// Zone classifies price within the dealing range
type Zone string

const (
	ZonePremium     Zone = "PREMIUM"
	ZoneDiscount    Zone = "DISCOUNT"
	ZoneEquilibrium Zone = "EQUILIBRIUM"
)

const (
	htfSwingRadius     = 5
	htfMinSwingsEach   = 3
	htfMinTransitions  = 2
	htfFallbackBars    = 50
	htfRangeSwingCount = 3
)

// HTFBias is the higher-timeframe structure read
type HTFBias struct {
	Bias        Bias
	SwingHigh   float64
	SwingLow    float64
	Transitions Transitions
	Sufficient  bool // False when fewer than 3 swings of either kind exist
	Description string
}

// DealingRange is the swing range the current price is measured against
type DealingRange struct {
	High        float64
	Low         float64
	Equilibrium float64
	Range       float64
}

// AnalyzeHTFStructure derives bias and the dealing range extremes from a higher-timeframe series
func AnalyzeHTFStructure(candles []Candle) HTFBias {
	highs, lows := SplitSwings(FindSwingPoints(candles, htfSwingRadius))

	if len(highs) < htfMinSwingsEach || len(lows) < htfMinSwingsEach {
		recent := Tail(candles, htfFallbackBars)
		return HTFBias{
			Bias:        BiasNone,
			SwingHigh:   Highest(recent),
			SwingLow:    Lowest(recent),
			Sufficient:  false,
			Description: fmt.Sprintf("Insufficient swing points for HTF bias (highs: %d, lows: %d)", len(highs), len(lows)),
		}
	}

	t := CountTransitions(highs, lows)
	bias := HTFBias{
		SwingHigh:   maxPrice(highs[len(highs)-htfRangeSwingCount:]),
		SwingLow:    minPrice(lows[len(lows)-htfRangeSwingCount:]),
		Transitions: t,
		Sufficient:  true,
	}

	switch {
	case t.HigherHighs >= htfMinTransitions && t.HigherLows >= htfMinTransitions:
		bias.Bias = BiasBullish
		bias.Description = fmt.Sprintf("BULLISH structure (HH: %d, HL: %d)", t.HigherHighs, t.HigherLows)
	case t.LowerHighs >= htfMinTransitions && t.LowerLows >= htfMinTransitions:
		bias.Bias = BiasBearish
		bias.Description = fmt.Sprintf("BEARISH structure (LH: %d, LL: %d)", t.LowerHighs, t.LowerLows)
	default:
		bias.Bias = BiasNone
		bias.Description = fmt.Sprintf("No clear structure (HH:%d HL:%d LH:%d LL:%d)",
			t.HigherHighs, t.HigherLows, t.LowerHighs, t.LowerLows)
	}

	return bias
}

// DealingRange builds the range from the bias swing extremes
func (b HTFBias) DealingRange() DealingRange {
	return DealingRange{
		High:        b.SwingHigh,
		Low:         b.SwingLow,
		Equilibrium: (b.SwingHigh + b.SwingLow) / 2,
		Range:       b.SwingHigh - b.SwingLow,
	}
}

// Zone classifies a price against the equilibrium
func (r DealingRange) Zone(price float64) Zone {
	switch {
	case price > r.Equilibrium:
		return ZonePremium
	case price < r.Equilibrium:
		return ZoneDiscount
	default:
		return ZoneEquilibrium
	}
}

// PercentOfRange locates price inside the range (0 = low, 100 = high)
func (r DealingRange) PercentOfRange(price float64) float64 {
	if r.Range == 0 {
		return 50
	}
	return (price - r.Low) / r.Range * 100
}

func maxPrice(swings []SwingPoint) float64 {
	high := swings[0].Price
	for _, s := range swings[1:] {
		if s.Price > high {
			high = s.Price
		}
	}
	return high
}

func minPrice(swings []SwingPoint) float64 {
	low := swings[0].Price
	for _, s := range swings[1:] {
		if s.Price < low {
			low = s.Price
		}
	}
	return low
}

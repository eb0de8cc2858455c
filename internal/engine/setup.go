package engine

import (
	"math"

	"github.com/shopspring/decimal"

	"smc-signal-engine/internal/analysis"
)

const (
	pricePrecision     = 5 // Minimum decimal places; sub-unit prices keep 5 significant digits
	percentPrecision   = 1
	stopSwingCount     = 10
	stopSwingRadius    = 5
	stopSwingBuffer    = 0.002
	stopATRMultiple    = 1.5
	stopMinPercent     = 0.008
	limitFallbackShift = 0.005
)

// TradeSetup is the entry, stop and targets derived for a direction
type TradeSetup struct {
	Direction    analysis.Direction
	EntryPrice   float64
	EntrySource  string
	StopLoss     float64
	StopDistance float64
	SwingStop    float64 // Zero when no swing of the needed kind exists
	ATR          float64
	TakeProfits  [3]float64
	TPPercents   [3]float64
	RiskReward   float64
}

// deriveEntry picks the entry for the order type. Limit orders retrace to the first
// supporting order block, then the first side-valid FVG, then a fixed 0.5% offset.
func deriveEntry(direction analysis.Direction, orderType OrderType, price float64,
	blocks []analysis.OrderBlock, fvgs []analysis.FVG) (float64, string) {
	if orderType != OrderLimit {
		return price, "market price"
	}

	for _, ob := range blocks {
		if ob.Supports(direction, price) {
			return ob.Midpoint(), "order block midpoint"
		}
	}
	for _, fvg := range fvgs {
		if fvg.OnSide(direction, price) {
			return fvg.Midpoint(), "FVG midpoint"
		}
	}

	if direction == analysis.DirectionBuy {
		return price * (1 - limitFallbackShift), "0.5% retracement"
	}
	return price * (1 + limitFallbackShift), "0.5% retracement"
}

// swingStop places the structural stop beyond the extreme of the recent swings
func swingStop(candles []analysis.Candle, direction analysis.Direction) float64 {
	swings := analysis.FindSwingPoints(candles, stopSwingRadius)
	if len(swings) > stopSwingCount {
		swings = swings[len(swings)-stopSwingCount:]
	}

	stop, found := 0.0, false
	for _, s := range swings {
		switch {
		case direction == analysis.DirectionBuy && s.Kind == analysis.SwingLow:
			if !found || s.Price < stop {
				stop, found = s.Price, true
			}
		case direction == analysis.DirectionSell && s.Kind == analysis.SwingHigh:
			if !found || s.Price > stop {
				stop, found = s.Price, true
			}
		}
	}
	if !found {
		return 0
	}

	if direction == analysis.DirectionBuy {
		return stop * (1 - stopSwingBuffer)
	}
	return stop * (1 + stopSwingBuffer)
}

// buildSetup computes stop distance as max(swing distance, 1.5x ATR, 0.8% of entry)
// and places targets at the configured R multiples.
func buildSetup(candles []analysis.Candle, direction analysis.Direction, entry float64,
	entrySource string, multiples [3]float64) TradeSetup {
	setup := TradeSetup{
		Direction:   direction,
		EntryPrice:  entry,
		EntrySource: entrySource,
		ATR:         analysis.CalculateATR(candles, analysis.DefaultATRPeriod),
		SwingStop:   swingStop(candles, direction),
	}

	swingDistance := 0.0
	if setup.SwingStop > 0 {
		swingDistance = math.Abs(entry - setup.SwingStop)
	}
	minDistance := math.Max(setup.ATR*stopATRMultiple, entry*stopMinPercent)
	setup.StopDistance = math.Max(swingDistance, minDistance)

	sign := 1.0
	if direction == analysis.DirectionSell {
		sign = -1.0
	}
	setup.StopLoss = entry - sign*setup.StopDistance

	totalR := 0.0
	for i, r := range multiples {
		setup.TakeProfits[i] = entry + sign*setup.StopDistance*r
		setup.TPPercents[i] = setup.StopDistance * r / entry * 100
		totalR += r
	}
	setup.RiskReward = totalR / float64(len(multiples))

	return setup
}

// rounded returns the setup with prices at PriceDecimals(entry) and percentages/RR at 1 dp
func (s TradeSetup) rounded() TradeSetup {
	places := PriceDecimals(s.EntryPrice)
	s.EntryPrice = roundTo(s.EntryPrice, places)
	s.StopLoss = roundTo(s.StopLoss, places)
	s.StopDistance = roundTo(s.StopDistance, places)
	for i := range s.TakeProfits {
		s.TakeProfits[i] = roundTo(s.TakeProfits[i], places)
		s.TPPercents[i] = roundTo(s.TPPercents[i], percentPrecision)
	}
	s.RiskReward = roundTo(s.RiskReward, percentPrecision)
	return s
}

// PriceDecimals returns the decimal places used for a price: 5 for prices of 0.1
// and above, otherwise enough to keep 5 significant digits after the leading zeros.
func PriceDecimals(price float64) int32 {
	price = math.Abs(price)
	if price == 0 || price >= 0.1 || math.IsInf(price, 0) || math.IsNaN(price) {
		return pricePrecision
	}
	leadingZeros := int32(-math.Floor(math.Log10(price))) - 1
	return leadingZeros + pricePrecision
}

func roundTo(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

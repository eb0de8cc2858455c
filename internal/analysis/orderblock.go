package analysis

// ZoneKind is the polarity of an order block or imbalance
type ZoneKind string

const (
	ZoneBullish ZoneKind = "bullish"
	ZoneBearish ZoneKind = "bearish"
)

const displacementWindow = 50

// OrderBlock is the opposite-colored candle preceding a displacement candle
type OrderBlock struct {
	Kind      ZoneKind
	Price     float64 // Far edge: low for bullish blocks, high for bearish blocks
	High      float64
	Low       float64
	Index     int
	Mitigated bool
}

// Midpoint returns the middle of the block's range
func (ob OrderBlock) Midpoint() float64 {
	return (ob.High + ob.Low) / 2
}

// IsMitigated reports whether price has traded through the block's far edge
func (ob OrderBlock) IsMitigated(price float64) bool {
	if ob.Kind == ZoneBullish {
		return price < ob.Low
	}
	return price > ob.High
}

// Supports reports whether an unmitigated block sits on the retracement side of price
func (ob OrderBlock) Supports(direction Direction, price float64) bool {
	if ob.Mitigated {
		return false
	}
	if direction == DirectionBuy {
		return ob.Kind == ZoneBullish && ob.Price < price
	}
	return ob.Kind == ZoneBearish && ob.Price > price
}

// FindDisplacementCandles returns absolute indices of bars in the trailing 50 whose body
// is at least 1.5x the average body of those 50 bars
func FindDisplacementCandles(candles []Candle) []int {
	recent := Tail(candles, displacementWindow)
	offset := len(candles) - len(recent)
	avgBody := AverageBody(recent)
	if avgBody == 0 {
		return nil
	}

	var indices []int
	for i, c := range recent {
		if c.Body() >= avgBody*displacementMultiple {
			indices = append(indices, i+offset)
		}
	}
	return indices
}

// FindOrderBlocks derives order blocks from displacement candles. Mitigation is computed
// against the supplied price so callers can re-evaluate at any time.
func FindOrderBlocks(candles []Candle, displacement []int, price float64) []OrderBlock {
	var blocks []OrderBlock

	for _, idx := range displacement {
		if idx <= 0 || idx >= len(candles) {
			continue
		}
		disp := candles[idx]
		prev := candles[idx-1]

		var ob OrderBlock
		switch {
		case disp.IsBullish() && prev.IsBearish():
			ob = OrderBlock{Kind: ZoneBullish, Price: prev.Low, High: prev.High, Low: prev.Low, Index: idx - 1}
		case disp.IsBearish() && prev.IsBullish():
			ob = OrderBlock{Kind: ZoneBearish, Price: prev.High, High: prev.High, Low: prev.Low, Index: idx - 1}
		default:
			continue
		}
		ob.Mitigated = ob.IsMitigated(price)
		blocks = append(blocks, ob)
	}

	return blocks
}

// RefreshMitigation returns a copy of the blocks with mitigation re-evaluated at price
func RefreshMitigation(blocks []OrderBlock, price float64) []OrderBlock {
	refreshed := make([]OrderBlock, len(blocks))
	for i, ob := range blocks {
		ob.Mitigated = ob.IsMitigated(price)
		refreshed[i] = ob
	}
	return refreshed
}

// UnmitigatedCount counts blocks that are still valid
func UnmitigatedCount(blocks []OrderBlock) int {
	n := 0
	for _, ob := range blocks {
		if !ob.Mitigated {
			n++
		}
	}
	return n
}

package analysis

// FVG represents a three-candle Fair Value Gap
type FVG struct {
	Kind                  ZoneKind
	Bottom                float64
	Top                   float64
	Index                 int // Index of the third candle
	CreatedInDisplacement bool
}

// Midpoint returns the middle of the gap
func (f FVG) Midpoint() float64 {
	return (f.Top + f.Bottom) / 2
}

// Contains reports whether price is inside the gap
func (f FVG) Contains(price float64) bool {
	return price >= f.Bottom && price <= f.Top
}

// OnSide reports whether the gap lies on the retracement side of price for the direction
func (f FVG) OnSide(direction Direction, price float64) bool {
	if direction == DirectionBuy {
		return f.Kind == ZoneBullish && f.Top < price
	}
	return f.Kind == ZoneBearish && f.Bottom > price
}

// Supports reports whether a displacement-born gap backs the direction
func (f FVG) Supports(direction Direction, price float64) bool {
	return f.CreatedInDisplacement && f.OnSide(direction, price)
}

// FVGDetector detects Fair Value Gaps in candlestick data
type FVGDetector struct {
	maxRetained int // Most recent gaps kept
}

// NewFVGDetector creates a new FVG detector
func NewFVGDetector(maxRetained int) *FVGDetector {
	if maxRetained <= 0 {
		maxRetained = 10
	}
	return &FVGDetector{maxRetained: maxRetained}
}

// DetectFVGs scans the whole history for gaps between candle i-2 and candle i and
// keeps the most recent ones. A gap is tagged as created in displacement when the
// middle or the third candle is a displacement bar.
func (fd *FVGDetector) DetectFVGs(candles []Candle, displacement []int) []FVG {
	if len(candles) < 3 {
		return nil
	}

	isDisplacement := make(map[int]bool, len(displacement))
	for _, idx := range displacement {
		isDisplacement[idx] = true
	}

	var fvgs []FVG
	for i := 2; i < len(candles); i++ {
		c1 := candles[i-2]
		c3 := candles[i]
		inDisplacement := isDisplacement[i-1] || isDisplacement[i]

		// Bearish: c1.Low > c3.High
		if c1.Low > c3.High {
			fvgs = append(fvgs, FVG{
				Kind:                  ZoneBearish,
				Bottom:                c3.High,
				Top:                   c1.Low,
				Index:                 i,
				CreatedInDisplacement: inDisplacement,
			})
		}

		// Bullish: c1.High < c3.Low
		if c1.High < c3.Low {
			fvgs = append(fvgs, FVG{
				Kind:                  ZoneBullish,
				Bottom:                c1.High,
				Top:                   c3.Low,
				Index:                 i,
				CreatedInDisplacement: inDisplacement,
			})
		}
	}

	if len(fvgs) > fd.maxRetained {
		fvgs = fvgs[len(fvgs)-fd.maxRetained:]
	}
	return fvgs
}

// DisplacementFVGCount counts gaps tagged as created in displacement
func DisplacementFVGCount(fvgs []FVG) int {
	n := 0
	for _, f := range fvgs {
		if f.CreatedInDisplacement {
			n++
		}
	}
	return n
}

// FindFVGs detects gaps over the whole history and keeps the last ten
func FindFVGs(candles []Candle, displacement []int) []FVG {
	return NewFVGDetector(10).DetectFVGs(candles, displacement)
}

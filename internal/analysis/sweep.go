package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Direction is the side of a prospective trade
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Upper returns the direction in capitals for reports
func (d Direction) Upper() string {
	return strings.ToUpper(string(d))
}

// SweepGrade grades a liquidity raid
type SweepGrade string

const (
	SweepFull    SweepGrade = "full"    // Pierced, reclaimed, displacement confirmed
	SweepPartial SweepGrade = "partial" // Pierced but reclaim or displacement missing
	SweepNone    SweepGrade = "none"
)

const (
	sweepWindow          = 30
	sweepScanBars        = 10
	sweepBodyWindow      = 20
	displacementMultiple = 1.5
)

// LiquiditySweep is the result of the sweep validator
type LiquiditySweep struct {
	Grade           SweepGrade
	SweptPrice      float64
	SweepIndex      int // Absolute index of the piercing candle, -1 when none
	Reclaimed       bool
	HasDisplacement bool
	Description     string
}

// Swept reports whether any pool was pierced
func (s LiquiditySweep) Swept() bool {
	return s.Grade != SweepNone
}

// ValidateLiquiditySweep looks for a raid of opposite-side liquidity in the trailing bars.
// Buys need swept lows, sells need swept highs. Pools are tried nearest to price first
// and the first piercing candle decides the outcome.
func ValidateLiquiditySweep(candles []Candle, pools LiquidityPools, direction Direction, price float64) LiquiditySweep {
	candidates := pools.Lows
	poolName := "equal lows"
	if direction == DirectionSell {
		candidates = pools.Highs
		poolName = "equal highs"
	}

	if len(candidates) == 0 {
		return LiquiditySweep{
			Grade:       SweepNone,
			SweepIndex:  -1,
			Description: fmt.Sprintf("No %s to sweep", poolName),
		}
	}

	sorted := make([]LiquidityPool, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].Price-price) < math.Abs(sorted[j].Price-price)
	})

	recent := Tail(candles, sweepWindow)
	offset := len(candles) - len(recent)
	avgBody := AverageBody(Tail(recent, sweepBodyWindow))

	start := len(recent) - sweepScanBars
	if start < 0 {
		start = 0
	}

	for _, pool := range sorted {
		for i := start; i < len(recent); i++ {
			if !pierces(recent[i], pool.Price, direction) {
				continue
			}

			sweep := LiquiditySweep{
				Grade:      SweepPartial,
				SweptPrice: pool.Price,
				SweepIndex: i + offset,
			}

			sweep.Reclaimed = reclaims(recent[i], pool.Price, direction)
			hasNext := i+1 < len(recent)
			if !sweep.Reclaimed && hasNext {
				sweep.Reclaimed = reclaims(recent[i+1], pool.Price, direction)
			}
			if hasNext {
				sweep.HasDisplacement = avgBody > 0 && recent[i+1].Body() >= avgBody*displacementMultiple
			}

			switch {
			case sweep.Reclaimed && sweep.HasDisplacement:
				sweep.Grade = SweepFull
				sweep.Description = fmt.Sprintf("Liquidity swept at %.5f, closed back inside, displacement confirmed", pool.Price)
			case sweep.Reclaimed:
				sweep.Description = fmt.Sprintf("Swept at %.5f but no displacement candle", pool.Price)
			default:
				sweep.Description = fmt.Sprintf("Swept at %.5f but did not close back inside", pool.Price)
			}
			return sweep
		}
	}

	return LiquiditySweep{
		Grade:       SweepNone,
		SweepIndex:  -1,
		Description: fmt.Sprintf("No valid liquidity sweep for %s", direction.Upper()),
	}
}

func pierces(c Candle, level float64, direction Direction) bool {
	if direction == DirectionBuy {
		return c.Low < level
	}
	return c.High > level
}

func reclaims(c Candle, level float64, direction Direction) bool {
	if direction == DirectionBuy {
		return c.Close > level
	}
	return c.Close < level
}

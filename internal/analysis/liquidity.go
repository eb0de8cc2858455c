package analysis

import "math"

const (
	liquidityWindow       = 100
	liquiditySwingRadius  = 3
	liquidityTolerancePct = 0.1
	liquidityMinMembers   = 2
)

// LiquidityPool is a cluster of near-equal swing highs or lows
type LiquidityPool struct {
	Price   float64 // Mean price of the cluster
	Kind    SwingKind
	Indices []int // Absolute candle indices of the members
}

// LiquidityPools holds equal-high and equal-low clusters
type LiquidityPools struct {
	Highs []LiquidityPool
	Lows  []LiquidityPool
}

// Empty reports whether no pool of either kind was found
func (p LiquidityPools) Empty() bool {
	return len(p.Highs) == 0 && len(p.Lows) == 0
}

// Count returns the total number of pools
func (p LiquidityPools) Count() int {
	return len(p.Highs) + len(p.Lows)
}

// IdentifyLiquidityPools clusters swing points of the last 100 bars into equal highs/lows.
// Clustering is first-found greedy: a swing seeds a cluster with every later unused swing
// within 0.1% of the seed price, and a swing joins at most one pool.
func IdentifyLiquidityPools(candles []Candle) LiquidityPools {
	recent := Tail(candles, liquidityWindow)
	offset := len(candles) - len(recent)

	highs, lows := SplitSwings(FindSwingPoints(recent, liquiditySwingRadius))

	return LiquidityPools{
		Highs: clusterSwings(highs, SwingHigh, offset),
		Lows:  clusterSwings(lows, SwingLow, offset),
	}
}

func clusterSwings(swings []SwingPoint, kind SwingKind, offset int) []LiquidityPool {
	var pools []LiquidityPool
	used := make([]bool, len(swings))

	for i := range swings {
		if used[i] {
			continue
		}
		members := []int{i}
		seed := swings[i].Price

		for j := i + 1; j < len(swings); j++ {
			if used[j] || seed == 0 {
				continue
			}
			diffPct := math.Abs(seed-swings[j].Price) / seed * 100
			if diffPct <= liquidityTolerancePct {
				members = append(members, j)
			}
		}

		if len(members) < liquidityMinMembers {
			continue
		}

		sum := 0.0
		indices := make([]int, 0, len(members))
		for _, m := range members {
			used[m] = true
			sum += swings[m].Price
			indices = append(indices, swings[m].Index+offset)
		}

		pools = append(pools, LiquidityPool{
			Price:   sum / float64(len(members)),
			Kind:    kind,
			Indices: indices,
		})
	}

	return pools
}

package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

// zigzag builds a triangle wave with a 12-bar period (peaks at 6 mod 12, troughs at 0 mod 12)
// on top of a linear drift. Highs and lows sit 0.2 around the close so fractal extremes are strict.
func zigzag(n int, base, amplitude, drift float64) []Candle {
	candles := make([]Candle, n)
	for i := 0; i < n; i++ {
		phase := float64(i % 12)
		tri := amplitude * (1 - math.Abs(phase-6)/6)
		price := base + drift*float64(i) + tri
		candles[i] = Candle{
			Time:   baseTime.Add(time.Duration(i) * time.Hour),
			Open:   price - 0.1,
			High:   price + 0.2,
			Low:    price - 0.2,
			Close:  price,
			Volume: 1000,
		}
	}
	return candles
}

func rising(n int, start, stepPct float64) []Candle {
	candles := make([]Candle, n)
	price := start
	for i := 0; i < n; i++ {
		candles[i] = Candle{
			Time:   baseTime.Add(time.Duration(i) * time.Hour),
			Open:   price * 0.9995,
			High:   price * 1.0005,
			Low:    price * 0.999,
			Close:  price,
			Volume: 1000,
		}
		price *= 1 + stepPct/100
	}
	return candles
}

func flat(n int, price float64) []Candle {
	candles := make([]Candle, n)
	for i := range candles {
		candles[i] = Candle{
			Time:   baseTime.Add(time.Duration(i) * time.Hour),
			Open:   price,
			High:   price + 0.5,
			Low:    price - 0.2,
			Close:  price + 0.2,
			Volume: 1000,
		}
	}
	return candles
}

func TestFindSwingPoints(t *testing.T) {
	candles := zigzag(60, 100, 12, 0)
	highs, lows := SplitSwings(FindSwingPoints(candles, 5))

	require.Len(t, highs, 5)
	require.Len(t, lows, 4)
	assert.Equal(t, []int{6, 18, 30, 42, 54}, []int{highs[0].Index, highs[1].Index, highs[2].Index, highs[3].Index, highs[4].Index})
	assert.Equal(t, 12, lows[0].Index)
	assert.InDelta(t, 112.2, highs[0].Price, 1e-9)
	assert.InDelta(t, 99.8, lows[0].Price, 1e-9)
}

func TestFindSwingPoints_MonotonicSeriesHasNone(t *testing.T) {
	assert.Empty(t, FindSwingPoints(rising(40, 100, 0.1), 5))
	assert.Empty(t, FindSwingPoints(nil, 5))
}

func TestCalculateATR(t *testing.T) {
	assert.Equal(t, 0.0, CalculateATR(nil, 14))

	// Fewer than period+1 bars: mean high-low range
	short := flat(5, 100)
	assert.InDelta(t, 0.7, CalculateATR(short, 14), 1e-9)

	// Constant closes: true range equals the bar range
	long := flat(30, 100)
	assert.InDelta(t, 0.7, CalculateATR(long, 14), 1e-9)
	assert.InDelta(t, 1.0, ATRRatio(long), 1e-9)
}

func TestCalculateATR_UsesPreviousClose(t *testing.T) {
	candles := flat(20, 100)
	// Gap up: previous close 100.2, this bar's low 110 -> true range = 110.5 - 100.2
	candles = append(candles, Candle{Open: 110, High: 110.5, Low: 110, Close: 110.2})

	got := CalculateATR(candles, 1)
	assert.InDelta(t, 10.3, got, 1e-9)
}

func TestClassifyTrend(t *testing.T) {
	assert.Equal(t, TrendNeutral, ClassifyTrend(rising(20, 100, 0.1)))
	assert.Equal(t, TrendBullish, ClassifyTrend(rising(45, 100, 0.1)))

	falling := rising(45, 100, -0.1)
	assert.Equal(t, TrendBearish, ClassifyTrend(falling))
	assert.Equal(t, TrendNeutral, ClassifyTrend(flat(45, 100)))
}

func TestAnalyzeHTFStructure_Bullish(t *testing.T) {
	bias := AnalyzeHTFStructure(zigzag(60, 100, 12, 0.5))

	assert.Equal(t, BiasBullish, bias.Bias)
	assert.True(t, bias.Sufficient)
	assert.GreaterOrEqual(t, bias.Transitions.HigherHighs, 2)
	assert.GreaterOrEqual(t, bias.Transitions.HigherLows, 2)
	assert.Contains(t, bias.Description, "BULLISH structure")
	assert.Greater(t, bias.SwingHigh, bias.SwingLow)
}

func TestAnalyzeHTFStructure_Bearish(t *testing.T) {
	bias := AnalyzeHTFStructure(zigzag(60, 200, 12, -0.5))

	assert.Equal(t, BiasBearish, bias.Bias)
	assert.Contains(t, bias.Description, "BEARISH structure")
}

func TestAnalyzeHTFStructure_InsufficientSwings(t *testing.T) {
	candles := rising(20, 100, 0.1)
	bias := AnalyzeHTFStructure(candles)

	assert.Equal(t, BiasNone, bias.Bias)
	assert.False(t, bias.Sufficient)
	assert.Equal(t, Highest(candles), bias.SwingHigh)
	assert.Equal(t, Lowest(candles), bias.SwingLow)
	assert.Contains(t, bias.Description, "Insufficient swing points")
}

func TestDealingRangeZone(t *testing.T) {
	r := HTFBias{SwingHigh: 120, SwingLow: 100}.DealingRange()

	assert.Equal(t, 110.0, r.Equilibrium)
	assert.Equal(t, ZonePremium, r.Zone(115))
	assert.Equal(t, ZoneDiscount, r.Zone(105))
	assert.Equal(t, ZoneEquilibrium, r.Zone(110))
	assert.InDelta(t, 25.0, r.PercentOfRange(105), 1e-9)
	assert.Equal(t, 50.0, DealingRange{}.PercentOfRange(1))
}

func TestHigherTimeframe(t *testing.T) {
	tests := map[Timeframe]Timeframe{
		TF1m:  TF15m,
		TF5m:  TF1h,
		TF15m: TF4h,
		TF30m: TF4h,
		TF1h:  TF1D,
		TF4h:  TF1D,
		TF1D:  TF1W,
		TF1W:  TF1W,
		"3m":  TF1D,
	}
	for tf, want := range tests {
		assert.Equal(t, want, HigherTimeframe(tf), "timeframe %s", tf)
	}
	assert.False(t, Timeframe("3m").Known())
	assert.Equal(t, 4*time.Hour, TF4h.Duration())
}

func TestIdentifyLiquidityPools(t *testing.T) {
	candles := zigzag(60, 100, 12, 0)
	pools := IdentifyLiquidityPools(candles)

	require.Len(t, pools.Highs, 1)
	require.Len(t, pools.Lows, 1)
	assert.Equal(t, 2, pools.Count())
	assert.False(t, pools.Empty())

	assert.InDelta(t, 112.2, pools.Highs[0].Price, 1e-9)
	assert.Equal(t, []int{6, 18, 30, 42, 54}, pools.Highs[0].Indices)
	assert.Equal(t, SwingLow, pools.Lows[0].Kind)
}

func TestIdentifyLiquidityPools_NoEqualLevels(t *testing.T) {
	// Peaks rise 6 per cycle, far beyond the 0.1% tolerance
	pools := IdentifyLiquidityPools(zigzag(60, 100, 12, 0.5))
	assert.True(t, pools.Empty())
}

func TestIdentifyLiquidityPools_AbsoluteIndices(t *testing.T) {
	candles := append(flat(40, 106), zigzag(100, 100, 12, 0)...)
	pools := IdentifyLiquidityPools(candles)

	require.NotEmpty(t, pools.Highs)
	for _, idx := range pools.Highs[0].Indices {
		assert.GreaterOrEqual(t, idx, 40)
		assert.InDelta(t, 112.2, candles[idx].High, 1e-9)
	}
}

func sweepSeries(nextBody float64, pierceLow float64) []Candle {
	candles := flat(40, 101)
	pierce := Candle{Open: 100.8, High: 101.0, Low: pierceLow, Close: 100.5, Volume: 1000}
	next := Candle{Open: 100.5, High: 100.5 + nextBody + 0.1, Low: 100.4, Close: 100.5 + nextBody, Volume: 1000}
	return append(candles, pierce, next)
}

func TestValidateLiquiditySweep(t *testing.T) {
	pools := LiquidityPools{Lows: []LiquidityPool{{Price: 100, Kind: SwingLow}}}

	t.Run("full sweep with displacement", func(t *testing.T) {
		candles := sweepSeries(2, 99)
		sweep := ValidateLiquiditySweep(candles, pools, DirectionBuy, LastClose(candles))

		assert.Equal(t, SweepFull, sweep.Grade)
		assert.True(t, sweep.Reclaimed)
		assert.True(t, sweep.HasDisplacement)
		assert.Equal(t, len(candles)-2, sweep.SweepIndex)
		assert.Contains(t, sweep.Description, "displacement confirmed")
	})

	t.Run("partial sweep without displacement", func(t *testing.T) {
		candles := sweepSeries(0.2, 99)
		sweep := ValidateLiquiditySweep(candles, pools, DirectionBuy, LastClose(candles))

		assert.Equal(t, SweepPartial, sweep.Grade)
		assert.True(t, sweep.Swept())
		assert.False(t, sweep.HasDisplacement)
	})

	t.Run("no pierce", func(t *testing.T) {
		candles := sweepSeries(2, 100.2)
		sweep := ValidateLiquiditySweep(candles, pools, DirectionBuy, LastClose(candles))

		assert.Equal(t, SweepNone, sweep.Grade)
		assert.Equal(t, -1, sweep.SweepIndex)
		assert.Equal(t, "No valid liquidity sweep for BUY", sweep.Description)
	})

	t.Run("no opposite pools", func(t *testing.T) {
		candles := sweepSeries(2, 99)
		sweep := ValidateLiquiditySweep(candles, pools, DirectionSell, LastClose(candles))

		assert.Equal(t, SweepNone, sweep.Grade)
		assert.Equal(t, "No equal highs to sweep", sweep.Description)
	})
}

func TestValidateLiquiditySweep_NearestPoolFirst(t *testing.T) {
	candles := sweepSeries(2, 99)
	pools := LiquidityPools{Lows: []LiquidityPool{
		{Price: 99.5, Kind: SwingLow},
		{Price: 100, Kind: SwingLow},
	}}

	sweep := ValidateLiquiditySweep(candles, pools, DirectionBuy, LastClose(candles))
	assert.Equal(t, 100.0, sweep.SweptPrice)
}

func TestValidateBOS_InsufficientData(t *testing.T) {
	bos := ValidateBOS(flat(30, 100), DirectionBuy)

	assert.False(t, bos.Valid)
	assert.Equal(t, -1, bos.Index)
	assert.Contains(t, bos.Description, "Insufficient data")
}

func TestValidateBOS(t *testing.T) {
	// Swing structure first, then a quiet stretch, then a breakout bar
	candles := zigzag(72, 100, 12, 0)
	candles = append(candles, flat(27, 105)...)
	breakout := Candle{Open: 105, High: 116, Low: 104.9, Close: 115, Volume: 5000}
	candles = append(candles, breakout)

	bos := ValidateBOS(candles, DirectionBuy)

	require.True(t, bos.Valid, bos.Description)
	assert.InDelta(t, 112.2, bos.Reference, 1e-9)
	assert.Equal(t, len(candles)-1, bos.Index)
	assert.GreaterOrEqual(t, bos.BodyStrength, 1.5)
	assert.GreaterOrEqual(t, bos.VolumeRatio, 1.0)

	sell := ValidateBOS(candles, DirectionSell)
	assert.False(t, sell.Valid)
	assert.Contains(t, sell.Description, "No valid BOS beyond")
}

func TestOrderBlockMitigation(t *testing.T) {
	candles := flat(10, 100)
	candles = append(candles,
		Candle{Open: 100.5, High: 100.8, Low: 99.5, Close: 99.8, Volume: 1000}, // bearish origin
		Candle{Open: 99.8, High: 105, Low: 99.7, Close: 104.8, Volume: 3000},  // bullish displacement
	)

	displacement := FindDisplacementCandles(candles)
	require.Contains(t, displacement, len(candles)-1)

	blocks := FindOrderBlocks(candles, displacement, 104.8)
	require.Len(t, blocks, 1)
	ob := blocks[0]
	assert.Equal(t, ZoneBullish, ob.Kind)
	assert.Equal(t, 99.5, ob.Price)
	assert.False(t, ob.Mitigated)
	assert.True(t, ob.Supports(DirectionBuy, 104.8))
	assert.Equal(t, 1, UnmitigatedCount(blocks))

	// Price trades through the block's low
	refreshed := RefreshMitigation(blocks, 99.4)
	assert.True(t, refreshed[0].Mitigated)
	assert.False(t, blocks[0].Mitigated, "refresh must not mutate the input")
	assert.False(t, refreshed[0].Supports(DirectionBuy, 99.4))
	assert.Equal(t, 0, UnmitigatedCount(refreshed))
}

func TestFindDisplacementCandles_FlatSeries(t *testing.T) {
	candles := flat(60, 100)
	for i := range candles {
		candles[i].Close = candles[i].Open
	}
	assert.Nil(t, FindDisplacementCandles(candles))
}

func TestApplyElliottWaveFilter(t *testing.T) {
	t.Run("insufficient swings pass", func(t *testing.T) {
		filter := ApplyElliottWaveFilter(rising(40, 100, 0.1))
		assert.False(t, filter.Block)
		assert.False(t, filter.Sufficient)
		assert.Equal(t, "Unknown", filter.Wave)
	})

	t.Run("equal legs pass", func(t *testing.T) {
		filter := ApplyElliottWaveFilter(zigzag(100, 100, 12, 0))
		assert.False(t, filter.Block)
		assert.Equal(t, "Wave 2 or 4", filter.Wave)
	})

	t.Run("extended third leg blocks", func(t *testing.T) {
		// Swing sequence 100, 110, 105, 135, 130, 140: legs of 10, 30 and 10
		prices := []float64{108, 100, 110, 105, 135, 130, 140, 135}
		var candles []Candle
		for _, p := range prices {
			candles = append(candles, legTo(candles, p, 6)...)
		}

		filter := ApplyElliottWaveFilter(candles)
		require.True(t, filter.Sufficient)
		assert.True(t, filter.Block)
		assert.Equal(t, "Wave 5", filter.Wave)
		assert.Equal(t, [3]float64{10, 30, 10}, filter.Legs)
	})
}

// legTo extends a series linearly to target over n bars
func legTo(existing []Candle, target float64, n int) []Candle {
	start := target
	if len(existing) > 0 {
		start = existing[len(existing)-1].Close
	}
	out := make([]Candle, n)
	for i := 0; i < n; i++ {
		p := start + (target-start)*float64(i+1)/float64(n)
		out[i] = Candle{Open: p, High: p + 0.2, Low: p - 0.2, Close: p, Volume: 1000}
	}
	return out
}

func TestIdentifyMarketType(t *testing.T) {
	tests := []struct {
		symbol string
		want   MarketCategory
	}{
		{"BTCUSDT", MarketCrypto},
		{"ethbtc", MarketCrypto},
		{"EURUSD", MarketForex},
		{"XAUUSD", MarketForex},
		{"US30", MarketIndices},
		{"NAS100", MarketIndices},
		{"CRUDEOIL", MarketCommodities},
		{"XAGX", MarketCommodities},
		{"AAPL", MarketStocks},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IdentifyMarketType(tt.symbol), tt.symbol)
	}
}

func TestApplySessionFilter(t *testing.T) {
	candles := flat(60, 100)

	tests := []struct {
		name       string
		category   MarketCategory
		hour       int
		adjustment int
	}{
		{"forex asian", MarketForex, 3, -10},
		{"forex london", MarketForex, 9, 5},
		{"forex overlap", MarketForex, 14, 10},
		{"forex new york", MarketForex, 19, 5},
		{"stocks closed", MarketStocks, 10, -15},
		{"stocks midday", MarketStocks, 17, -10},
		{"stocks open", MarketStocks, 15, 5},
		{"indices closed", MarketIndices, 23, -10},
		{"indices open", MarketIndices, 20, 5},
		{"commodities peak", MarketCommodities, 10, 5},
		{"commodities off-peak", MarketCommodities, 2, -5},
		{"crypto killzone", MarketCrypto, 9, 5},
		{"crypto quiet", MarketCrypto, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := ApplySessionFilter(tt.category, candles, tt.hour)
			assert.Equal(t, tt.adjustment, filter.Adjustment)
			assert.False(t, filter.VolumeExpansion)
			assert.Contains(t, filter.Description, string(tt.category))
		})
	}
}

func TestApplySessionFilter_VolumeExpansion(t *testing.T) {
	candles := flat(40, 100)
	for i := 20; i < 40; i++ {
		candles[i].Volume = 2000
	}

	filter := ApplySessionFilter(MarketCrypto, candles, 4)
	assert.True(t, filter.VolumeExpansion)
	assert.Equal(t, 5, filter.Adjustment)
	assert.InDelta(t, 2.0, filter.Volume.Ratio, 1e-9)
}

func TestComputeIndicators(t *testing.T) {
	short := flat(10, 100)
	snap := ComputeIndicators(short)
	assert.Equal(t, 50.0, snap.RSI)
	assert.Equal(t, LastClose(short), snap.EMA200)
	assert.Equal(t, MACD{}, snap.MACD)

	long := rising(250, 100, 0.2)
	snap = ComputeIndicators(long)
	assert.Greater(t, snap.RSI, 70.0)
	assert.Greater(t, snap.EMA20, snap.EMA50)
	assert.Greater(t, snap.EMA50, snap.EMA200)
	assert.Greater(t, snap.MACD.Value, 0.0)
}

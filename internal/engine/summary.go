package engine

import (
	"fmt"

	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/confluence"
)

const summaryListLimit = 2

// stageResults carries every stage output needed after scoring
type stageResults struct {
	bias      analysis.HTFBias
	trend     analysis.Trend
	pools     analysis.LiquidityPools
	sweep     analysis.LiquiditySweep
	bos       analysis.BOSValidation
	blocks    []analysis.OrderBlock
	fvgs      []analysis.FVG
	wave      analysis.WaveFilter
	session   analysis.SessionFilter
	direction analysis.Direction
}

func buildSummary(tf, htf analysis.Timeframe, score int, r stageResults, working []analysis.Candle) AnalysisSummary {
	summary := AnalysisSummary{
		Timeframes:      [2]analysis.Timeframe{tf, htf},
		ConfluenceCount: confluence.ConfluenceCount(score),
		Direction:       r.direction,
	}

	ict := ICTSummary{
		OrderBlocks:    []string{},
		FairValueGaps:  []string{},
		LiquidityZones: []string{},
	}
	for i, ob := range r.blocks {
		if i == summaryListLimit {
			break
		}
		ict.OrderBlocks = append(ict.OrderBlocks, fmt.Sprintf("%s OB at %.5f", ob.Kind, ob.Price))
	}
	for i, f := range r.fvgs {
		if i == summaryListLimit {
			break
		}
		ict.FairValueGaps = append(ict.FairValueGaps, fmt.Sprintf("%s FVG %.5f-%.5f", f.Kind, f.Bottom, f.Top))
	}
	for i, p := range r.pools.Highs {
		if i == summaryListLimit {
			break
		}
		ict.LiquidityZones = append(ict.LiquidityZones, fmt.Sprintf("Equal high at %.5f", p.Price))
	}
	for i, p := range r.pools.Lows {
		if i == summaryListLimit {
			break
		}
		ict.LiquidityZones = append(ict.LiquidityZones, fmt.Sprintf("Equal low at %.5f", p.Price))
	}
	ict.Description = fmt.Sprintf("%d liquidity pools, %d OBs, %d FVGs", r.pools.Count(), len(r.blocks), len(r.fvgs))
	summary.ICT = ict

	summary.SMC = SMCSummary{
		MarketStructure:   r.bias.Description,
		BreakOfStructure:  r.bos.Valid,
		ChangeOfCharacter: changeOfCharacter(r.bias.Bias, r.trend),
		Description:       r.bos.Description,
	}

	summary.ElliottWave = ElliottWaveSummary{
		CurrentWave: r.wave.Wave,
		WavePattern: r.wave.Pattern,
		Description: r.wave.Description,
	}

	summary.Indicators = IndicatorSummary{
		IndicatorSnapshot: analysis.ComputeIndicators(working),
		Description:       r.session.Description,
	}

	return summary
}

// changeOfCharacter flags a working-timeframe trend running against the HTF bias
func changeOfCharacter(bias analysis.Bias, trend analysis.Trend) bool {
	return (bias == analysis.BiasBullish && trend == analysis.TrendBearish) ||
		(bias == analysis.BiasBearish && trend == analysis.TrendBullish)
}

package engine

import (
	"fmt"
	"strings"

	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/confluence"
	"smc-signal-engine/internal/logging"
)

// Stage deltas
const (
	deltaBias          = 15
	deltaNoBias        = -5
	deltaPremium       = 15
	deltaWrongZone     = -10
	deltaNoLiquidity   = -3
	deltaSweepFull     = 20
	deltaSweepPartial  = 10
	deltaNoSweep       = -3
	deltaBOS           = 20
	deltaNoBOS         = -3
	deltaRetest        = 15
	deltaNoRetest      = -3
	deltaWaveBlocked   = -5
	deltaWavePassed    = 10
	deltaVolumeExpands = 5
)

// Config tunes the trade-setup stage
type Config struct {
	TakeProfitMultiples [3]float64 `json:"take_profit_multiples" yaml:"take_profit_multiples"`
	MinRiskReward       float64    `json:"min_risk_reward" yaml:"min_risk_reward"`
}

// DefaultConfig returns 2R/3R/5R targets and a 1.2 risk/reward floor
func DefaultConfig() Config {
	return Config{
		TakeProfitMultiples: [3]float64{2, 3, 5},
		MinRiskReward:       MinRiskReward,
	}
}

// Engine runs the staged classifier. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	cfg    Config
	logger *logging.Logger
}

// New creates an engine. Zero config fields take their defaults.
func New(cfg Config, logger *logging.Logger) *Engine {
	def := DefaultConfig()
	if cfg.TakeProfitMultiples == ([3]float64{}) {
		cfg.TakeProfitMultiples = def.TakeProfitMultiples
	}
	if cfg.MinRiskReward <= 0 {
		cfg.MinRiskReward = def.MinRiskReward
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Engine{cfg: cfg, logger: logger.WithComponent("engine")}
}

// Evaluate runs the pipeline against one snapshot. It returns either a Signal or a
// *RejectionError; any other error means the request itself was unusable.
func (e *Engine) Evaluate(req Request, snap Snapshot) (*Signal, error) {
	if len(snap.Working) == 0 {
		return nil, fmt.Errorf("%w: no working timeframe candles for %s", ErrInvalidRequest, req.Symbol)
	}
	if req.OrderType == "" {
		req.OrderType = OrderMarket
	}
	if !req.OrderType.Valid() {
		return nil, fmt.Errorf("%w: unsupported order type %q", ErrInvalidRequest, req.OrderType)
	}

	price := snap.Price
	if price <= 0 {
		price = analysis.LastClose(snap.Working)
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: no usable price for %s", ErrInvalidRequest, req.Symbol)
	}

	htf := snap.HigherTimeframe
	if htf == "" {
		htf = analysis.HigherTimeframe(req.Timeframe)
	}
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = snap.Working[len(snap.Working)-1].Time
	}

	card := confluence.NewScoreCard()
	tr := newTrace(req.Symbol, string(req.Timeframe), string(htf))
	var r stageResults

	// HTF structure
	r.bias = analysis.AnalyzeHTFStructure(snap.HigherTF)
	tr.section(fmt.Sprintf("%s (%s)", sectionHTF, htf))
	tr.line("%s", r.bias.Description)
	if r.bias.Bias != analysis.BiasNone {
		card.Add(confluence.StageHTFBias, deltaBias, r.bias.Description)
		tr.delta(fmt.Sprintf("HTF bias %s", r.bias.Bias), deltaBias)
	} else {
		card.Add(confluence.StageHTFBias, deltaNoBias, r.bias.Description)
		tr.delta("No clear HTF bias", deltaNoBias)
	}

	// Dealing range and direction
	dr := r.bias.DealingRange()
	zone := dr.Zone(price)
	tr.section(sectionRange)
	dp := int(PriceDecimals(price))
	tr.line("Range: %.*f - %.*f", dp, dr.Low, dp, dr.High)
	tr.line("Equilibrium: %.*f", dp, dr.Equilibrium)
	tr.line("Current: %.*f (%.1f%% of range)", dp, price, dr.PercentOfRange(price))
	tr.line("Zone: %s", zone)
	if zone == analysis.ZonePremium {
		card.Add(confluence.StageDealingRange, deltaPremium, "Price in premium zone")
		tr.delta("Price in premium zone", deltaPremium)
	}

	r.trend = analysis.ClassifyTrend(snap.Working)
	switch r.bias.Bias {
	case analysis.BiasBullish:
		r.direction = analysis.DirectionBuy
		if zone != analysis.ZoneDiscount {
			card.Add(confluence.StageDealingRange, deltaWrongZone, "Bullish bias but not in discount zone")
			tr.delta("Bullish bias but not in discount zone", deltaWrongZone)
		}
	case analysis.BiasBearish:
		r.direction = analysis.DirectionSell
		if zone != analysis.ZonePremium {
			card.Add(confluence.StageDealingRange, deltaWrongZone, "Bearish bias but not in premium zone")
			tr.delta("Bearish bias but not in premium zone", deltaWrongZone)
		}
	default:
		r.direction = analysis.DirectionBuy
		if r.trend == analysis.TrendBearish {
			r.direction = analysis.DirectionSell
		}
		tr.line("Using working trend (%s) for direction", r.trend)
	}
	tr.line("Direction: %s", r.direction.Upper())

	// Liquidity pools
	r.pools = analysis.IdentifyLiquidityPools(snap.Working)
	tr.section(sectionLiquidity)
	tr.line("Equal highs: %d", len(r.pools.Highs))
	tr.line("Equal lows: %d", len(r.pools.Lows))
	if r.pools.Empty() {
		card.Add(confluence.StageLiquidity, deltaNoLiquidity, "No equal liquidity pools detected")
		tr.delta("No equal liquidity pools detected", deltaNoLiquidity)
	} else {
		card.Add(confluence.StageLiquidity, 0, "Liquidity pools identified")
		tr.line("Liquidity pools identified")
	}

	// Liquidity sweep
	r.sweep = analysis.ValidateLiquiditySweep(snap.Working, r.pools, r.direction, price)
	tr.section(sectionSweep)
	tr.line("%s", r.sweep.Description)
	switch r.sweep.Grade {
	case analysis.SweepFull:
		card.Add(confluence.StageSweep, deltaSweepFull, r.sweep.Description)
		tr.delta("Full liquidity sweep", deltaSweepFull)
	case analysis.SweepPartial:
		card.Add(confluence.StageSweep, deltaSweepPartial, r.sweep.Description)
		tr.delta("Partial liquidity sweep", deltaSweepPartial)
	default:
		card.Add(confluence.StageSweep, deltaNoSweep, r.sweep.Description)
		tr.delta("No liquidity sweep", deltaNoSweep)
	}

	// Break of structure
	r.bos = analysis.ValidateBOS(snap.Working, r.direction)
	tr.section(sectionBOS)
	tr.line("%s", r.bos.Description)
	if r.bos.Valid {
		card.Add(confluence.StageBOS, deltaBOS, r.bos.Description)
		tr.delta("Valid BOS", deltaBOS)
	} else {
		card.Add(confluence.StageBOS, deltaNoBOS, r.bos.Description)
		tr.delta("No clear BOS", deltaNoBOS)
	}

	// Order blocks and fair value gaps
	displacement := analysis.FindDisplacementCandles(snap.Working)
	r.blocks = analysis.FindOrderBlocks(snap.Working, displacement, price)
	r.fvgs = analysis.FindFVGs(snap.Working, displacement)
	tr.section(sectionOrderFlow)
	tr.line("Valid order blocks: %d", analysis.UnmitigatedCount(r.blocks))
	tr.line("Valid FVGs: %d", analysis.DisplacementFVGCount(r.fvgs))
	if hasRetestZone(r.direction, price, r.blocks, r.fvgs) {
		card.Add(confluence.StageOrderFlow, deltaRetest, "Valid retest zone identified")
		tr.delta("Valid retest zone identified", deltaRetest)
	} else {
		card.Add(confluence.StageOrderFlow, deltaNoRetest, "No specific retest zone")
		tr.delta("No specific retest zone", deltaNoRetest)
	}

	// Elliott wave filter
	r.wave = analysis.ApplyElliottWaveFilter(snap.Working)
	tr.section(sectionWave)
	tr.line("%s", r.wave.Description)
	if r.wave.Block {
		card.Add(confluence.StageWave, deltaWaveBlocked, r.wave.Reason)
		tr.delta("Elliott wave warning", deltaWaveBlocked)
		e.logger.Warn("wave filter flagged entry", "symbol", req.Symbol, "reason", r.wave.Reason)
	} else {
		card.Add(confluence.StageWave, deltaWavePassed, r.wave.Description)
		tr.delta("Wave filter passed", deltaWavePassed)
	}

	// Session and volatility
	r.session = analysis.ApplySessionFilter(analysis.IdentifyMarketType(req.Symbol), snap.Working, asOf.UTC().Hour())
	card.Add(confluence.StageSession, r.session.Adjustment, r.session.Description)
	if r.session.VolumeExpansion {
		card.Add(confluence.StageVolume, deltaVolumeExpands, "Volume expansion")
	}

	score := card.Total()
	threshold := req.Threshold()
	tr.section(sectionConfidence)
	tr.line("Session: %s (%+d)", r.session.Description, r.session.Adjustment)
	if r.session.VolumeExpansion {
		tr.delta("Volume expansion", deltaVolumeExpands)
	}
	if snap.Degraded {
		tr.line("Data quality: degraded (synthetic fallback used)")
	}
	tr.line("Total score: %d", score)
	tr.line("Minimum required: %d", threshold)

	for _, c := range card.Contributions() {
		e.logger.Debug("stage contribution", "symbol", req.Symbol, "stage", string(c.Stage), "delta", c.Delta)
	}

	// Gate 1
	if !confluence.Passes(score, threshold) {
		tr.line("Score below minimum threshold (%d < %d)", score, threshold)
		rej := &RejectionError{
			Reason:        ConfidenceTooLow,
			Achieved:      score,
			Threshold:     threshold,
			Trace:         tr.String(),
			Contributions: card.Contributions(),
		}
		e.logger.Info("signal rejected", "symbol", req.Symbol, "reason", string(rej.Reason),
			"achieved", score, "threshold", threshold)
		return nil, rej
	}
	quality := confluence.QualityFor(score)
	tr.line("Score: %d/100 (%s)", score, quality)

	// Trade setup and Gate 2
	entry, source := deriveEntry(r.direction, req.OrderType, price, r.blocks, r.fvgs)
	setup := buildSetup(snap.Working, r.direction, entry, source, e.cfg.TakeProfitMultiples).rounded()

	tr.section(sectionSetup)
	if setup.RiskReward < e.cfg.MinRiskReward {
		tr.line("Risk management failed: RR %.1f (minimum %.1f required)", setup.RiskReward, e.cfg.MinRiskReward)
		rej := &RejectionError{
			Reason:        RiskRewardTooLow,
			Achieved:      score,
			Threshold:     threshold,
			RiskReward:    setup.RiskReward,
			Trace:         tr.String(),
			Contributions: card.Contributions(),
		}
		e.logger.Info("signal rejected", "symbol", req.Symbol, "reason", string(rej.Reason),
			"risk_reward", setup.RiskReward)
		return nil, rej
	}

	tr.line("Signal: %s", r.direction.Upper())
	dp = int(PriceDecimals(setup.EntryPrice))
	tr.line("Entry: %.*f (%s)", dp, setup.EntryPrice, setup.EntrySource)
	tr.line("Stop Loss: %.*f", dp, setup.StopLoss)
	for i, tp := range setup.TakeProfits {
		tr.line("TP%d: %.*f (%.1f%%)", i+1, dp, tp, setup.TPPercents[i])
	}
	tr.line("Risk/Reward: 1:%.1f", setup.RiskReward)
	tr.line("Confidence: %d/100", score)

	signal := &Signal{
		Symbol:          strings.ToUpper(req.Symbol),
		Timeframe:       req.Timeframe,
		HigherTimeframe: htf,
		Direction:       r.direction,
		OrderType:       req.OrderType,
		EntryPrice:      setup.EntryPrice,
		StopLoss:        setup.StopLoss,
		TakeProfit1:     setup.TakeProfits[0],
		TakeProfit2:     setup.TakeProfits[1],
		TakeProfit3:     setup.TakeProfits[2],
		TPPercent1:      setup.TPPercents[0],
		TPPercent2:      setup.TPPercents[1],
		TPPercent3:      setup.TPPercents[2],
		ConfidenceScore: score,
		RiskRewardRatio: setup.RiskReward,
		Quality:         quality,
		Contributions:   card.Contributions(),
		Trace:           tr.String(),
		Summary:         buildSummary(req.Timeframe, htf, score, r, snap.Working),
		CurrentPrice:    roundTo(price, PriceDecimals(price)),
		Methods:         append([]string(nil), req.Methods...),
		Degraded:        snap.Degraded,
		GeneratedAt:     asOf.UTC(),
	}

	e.logger.Info("signal generated", "symbol", signal.Symbol, "direction", string(signal.Direction),
		"confidence", score, "breakdown", card.Breakdown())
	return signal, nil
}

func hasRetestZone(direction analysis.Direction, price float64, blocks []analysis.OrderBlock, fvgs []analysis.FVG) bool {
	for _, ob := range blocks {
		if ob.Supports(direction, price) {
			return true
		}
	}
	for _, f := range fvgs {
		if f.Supports(direction, price) {
			return true
		}
	}
	return false
}

package engine

import (
	"time"

	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/confluence"
)

// OrderType selects how the entry price is derived
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// Valid reports whether the order type is supported
func (o OrderType) Valid() bool {
	return o == OrderMarket || o == OrderLimit
}

// DefaultMinConfidence is the threshold used when a caller does not supply one
const DefaultMinConfidence = 35

// Request describes one signal generation
type Request struct {
	Symbol        string             `json:"symbol"`
	Timeframe     analysis.Timeframe `json:"timeframe"`
	OrderType     OrderType          `json:"order_type"`
	Methods       []string           `json:"methods"`                  // Advisory only
	MinConfidence *int               `json:"min_confidence,omitempty"` // Nil means DefaultMinConfidence
	AsOf          time.Time          `json:"as_of"`                    // Session clock; zero means the last working candle time
}

// Threshold returns the confidence gate for the request
func (r Request) Threshold() int {
	if r.MinConfidence == nil {
		return DefaultMinConfidence
	}
	return *r.MinConfidence
}

// MinConfidence returns a pointer to v for Request.MinConfidence
func MinConfidence(v int) *int {
	return &v
}

// Snapshot is the immutable market data one evaluation runs against
type Snapshot struct {
	Working         []analysis.Candle
	HigherTF        []analysis.Candle
	HigherTimeframe analysis.Timeframe
	Price           float64 // Live price; zero means the last working close
	Degraded        bool    // Some data came from the synthetic fallback
}

// Signal is a successful pipeline result
type Signal struct {
	ID              string                    `json:"id"`
	Symbol          string                    `json:"symbol"`
	Timeframe       analysis.Timeframe        `json:"timeframe"`
	HigherTimeframe analysis.Timeframe        `json:"higher_timeframe"`
	Direction       analysis.Direction        `json:"direction"`
	OrderType       OrderType                 `json:"order_type"`
	EntryPrice      float64                   `json:"entry_price"`
	StopLoss        float64                   `json:"stop_loss"`
	TakeProfit1     float64                   `json:"take_profit_1"`
	TakeProfit2     float64                   `json:"take_profit_2"`
	TakeProfit3     float64                   `json:"take_profit_3"`
	TPPercent1      float64                   `json:"tp1_percentage"`
	TPPercent2      float64                   `json:"tp2_percentage"`
	TPPercent3      float64                   `json:"tp3_percentage"`
	ConfidenceScore int                       `json:"confidence_score"`
	RiskRewardRatio float64                   `json:"risk_reward_ratio"`
	Quality         confluence.Quality        `json:"quality"`
	Contributions   []confluence.Contribution `json:"contributions"`
	Trace           string                    `json:"trace"`
	Summary         AnalysisSummary           `json:"analysis_summary"`
	CurrentPrice    float64                   `json:"current_price"`
	Methods         []string                  `json:"methods"`
	Degraded        bool                      `json:"degraded"`
	GeneratedAt     time.Time                 `json:"generated_at"`
}

// ICTSummary describes liquidity and imbalance findings
type ICTSummary struct {
	OrderBlocks    []string `json:"order_blocks"`
	FairValueGaps  []string `json:"fair_value_gaps"`
	LiquidityZones []string `json:"liquidity_zones"`
	Description    string   `json:"description"`
}

// SMCSummary describes structure findings
type SMCSummary struct {
	MarketStructure   string `json:"market_structure"`
	BreakOfStructure  bool   `json:"break_of_structure"`
	ChangeOfCharacter bool   `json:"change_of_character"`
	Description       string `json:"description"`
}

// ElliottWaveSummary describes the wave filter verdict
type ElliottWaveSummary struct {
	CurrentWave string `json:"current_wave"`
	WavePattern string `json:"wave_pattern"`
	Description string `json:"description"`
}

// IndicatorSummary carries the latest indicator values and the session verdict
type IndicatorSummary struct {
	analysis.IndicatorSnapshot
	Description string `json:"description"`
}

// AnalysisSummary is the per-methodology breakdown attached to a signal
type AnalysisSummary struct {
	Timeframes      [2]analysis.Timeframe `json:"timeframes"`
	ConfluenceCount int                   `json:"confluence_count"`
	Direction       analysis.Direction    `json:"direction"`
	ICT             ICTSummary            `json:"ict"`
	SMC             SMCSummary            `json:"smc"`
	ElliottWave     ElliottWaveSummary    `json:"elliott_wave"`
	Indicators      IndicatorSummary      `json:"indicators"`
}

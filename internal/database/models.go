package database

import (
	"time"

	json "github.com/goccy/go-json"

	"smc-signal-engine/internal/confluence"
	"smc-signal-engine/internal/engine"
)

// Signal statuses
const (
	StatusActive    = "active"    // Waiting for entry or running
	StatusCompleted = "completed" // TP3 reached
	StatusStopped   = "stopped"   // Stop loss hit
	StatusExpired   = "expired"   // TTL elapsed before completion
)

// Signal update types
const (
	UpdateEntryHit = "entry_hit"
	UpdateTP1Hit   = "tp1_hit"
	UpdateTP2Hit   = "tp2_hit"
	UpdateTP3Hit   = "tp3_hit"
	UpdateSLHit    = "sl_hit"
	UpdateExpired  = "expired"
)

// SignalRecord is a persisted signal plus its lifecycle state
type SignalRecord struct {
	ID              string          `json:"id"`
	Symbol          string          `json:"symbol"`
	Timeframe       string          `json:"timeframe"`
	HigherTimeframe string          `json:"higher_timeframe"`
	Direction       string          `json:"direction"`
	OrderType       string          `json:"order_type"`
	EntryPrice      float64         `json:"entry_price"`
	StopLoss        float64         `json:"stop_loss"`
	TakeProfit1     float64         `json:"take_profit_1"`
	TakeProfit2     float64         `json:"take_profit_2"`
	TakeProfit3     float64         `json:"take_profit_3"`
	TPPercent1      float64         `json:"tp1_percentage"`
	TPPercent2      float64         `json:"tp2_percentage"`
	TPPercent3      float64         `json:"tp3_percentage"`
	ConfidenceScore int             `json:"confidence_score"`
	RiskRewardRatio float64         `json:"risk_reward_ratio"`
	Quality         string          `json:"quality"`
	Trace           string          `json:"trace"`
	Summary         json.RawMessage `json:"analysis_summary"`
	Contributions   json.RawMessage `json:"contributions"`
	Methods         []string        `json:"methods"`
	Degraded        bool            `json:"degraded"`
	CreatedAt       time.Time       `json:"created_at"`

	LifecycleState
}

// LifecycleState is the mutable part of a signal, owned by the lifecycle monitor
type LifecycleState struct {
	Status       string     `json:"status"`
	EntryHitAt   *time.Time `json:"entry_hit_at,omitempty"`
	TP1HitAt     *time.Time `json:"tp1_hit_at,omitempty"`
	TP2HitAt     *time.Time `json:"tp2_hit_at,omitempty"`
	TP3HitAt     *time.Time `json:"tp3_hit_at,omitempty"`
	SLHitAt      *time.Time `json:"sl_hit_at,omitempty"`
	BreakEven    bool       `json:"break_even"`
	CurrentPrice float64    `json:"current_price"`
	PnLPercent   float64    `json:"pnl_percent"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// EntryHit reports whether the entry price has been reached
func (s LifecycleState) EntryHit() bool {
	return s.EntryHitAt != nil
}

// Closed reports whether the signal reached a terminal status
func (s LifecycleState) Closed() bool {
	return s.Status != StatusActive
}

// SignalUpdate is one lifecycle transition
type SignalUpdate struct {
	ID         int64     `json:"id"`
	SignalID   string    `json:"signal_id"`
	UpdateType string    `json:"update_type"`
	Price      float64   `json:"price"`
	PnLPercent float64   `json:"pnl_percent"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Rejection is a blocked generation kept for confidence analysis
type Rejection struct {
	ID         int64     `json:"id"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Reason     string    `json:"reason"`
	Achieved   int       `json:"achieved"`
	Threshold  int       `json:"threshold"`
	RiskReward float64   `json:"risk_reward"`
	Trace      string    `json:"trace"`
	CreatedAt  time.Time `json:"created_at"`
}

// SignalFilter narrows ListSignals; zero fields match everything
type SignalFilter struct {
	Symbol        string
	Timeframe     string
	Status        string
	Direction     string
	MinConfidence int
	Limit         int
	Offset        int
}

// ConfidenceBucket aggregates closed signal outcomes within a confidence range
type ConfidenceBucket struct {
	Low     int     `json:"low"`
	High    int     `json:"high"`
	Total   int     `json:"total"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	Expired int     `json:"expired"`
	WinRate float64 `json:"win_rate"`
	AvgPnL  float64 `json:"avg_pnl"`
}

// Outcome is the minimal closed-signal row the confidence analysis needs
type Outcome struct {
	Confidence int
	Status     string
	PnLPercent float64
	TP1Hit     bool
}

// NewSignalRecord converts an engine signal into an active record
func NewSignalRecord(sig *engine.Signal) (*SignalRecord, error) {
	summary, err := json.Marshal(sig.Summary)
	if err != nil {
		return nil, err
	}
	contribs := sig.Contributions
	if contribs == nil {
		contribs = []confluence.Contribution{}
	}
	contributions, err := json.Marshal(contribs)
	if err != nil {
		return nil, err
	}

	methods := sig.Methods
	if methods == nil {
		methods = []string{}
	}

	return &SignalRecord{
		ID:              sig.ID,
		Symbol:          sig.Symbol,
		Timeframe:       string(sig.Timeframe),
		HigherTimeframe: string(sig.HigherTimeframe),
		Direction:       string(sig.Direction),
		OrderType:       string(sig.OrderType),
		EntryPrice:      sig.EntryPrice,
		StopLoss:        sig.StopLoss,
		TakeProfit1:     sig.TakeProfit1,
		TakeProfit2:     sig.TakeProfit2,
		TakeProfit3:     sig.TakeProfit3,
		TPPercent1:      sig.TPPercent1,
		TPPercent2:      sig.TPPercent2,
		TPPercent3:      sig.TPPercent3,
		ConfidenceScore: sig.ConfidenceScore,
		RiskRewardRatio: sig.RiskRewardRatio,
		Quality:         string(sig.Quality),
		Trace:           sig.Trace,
		Summary:         summary,
		Contributions:   contributions,
		Methods:         methods,
		Degraded:        sig.Degraded,
		CreatedAt:       sig.GeneratedAt,
		LifecycleState: LifecycleState{
			Status:       StatusActive,
			CurrentPrice: sig.CurrentPrice,
			UpdatedAt:    sig.GeneratedAt,
		},
	}, nil
}

// NewRejection converts an engine rejection into a record
func NewRejection(symbol, timeframe string, rej *engine.RejectionError, at time.Time) *Rejection {
	return &Rejection{
		Symbol:     symbol,
		Timeframe:  timeframe,
		Reason:     string(rej.Reason),
		Achieved:   rej.Achieved,
		Threshold:  rej.Threshold,
		RiskReward: rej.RiskReward,
		Trace:      rej.Trace,
		CreatedAt:  at,
	}
}

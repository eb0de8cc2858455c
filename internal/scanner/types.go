package scanner

import (
	"time"

	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/engine"
)

// Job statuses
const (
	StatusGenerated = "generated"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped" // Still cooling down after a recent signal
)

// Target is one watchlist entry
type Target struct {
	Symbol    string             `json:"symbol"`
	Timeframe analysis.Timeframe `json:"timeframe"`
}

func (t Target) key() string {
	return t.Symbol + ":" + string(t.Timeframe)
}

// JobResult is the outcome of one target within a scan
type JobResult struct {
	Symbol     string             `json:"symbol"`
	Timeframe  analysis.Timeframe `json:"timeframe"`
	Status     string             `json:"status"`
	SignalID   string             `json:"signal_id,omitempty"`
	Direction  string             `json:"direction,omitempty"`
	Confidence int                `json:"confidence"`
	Reason     string             `json:"reason,omitempty"`
	Error      string             `json:"error,omitempty"`
	Degraded   bool               `json:"degraded"`
	Timestamp  time.Time          `json:"timestamp"`
}

// ScanResult aggregates all job results from a scan
type ScanResult struct {
	ScanID         string        `json:"scan_id"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	Duration       time.Duration `json:"duration"`
	TargetsScanned int           `json:"targets_scanned"`
	Generated      int           `json:"generated"`
	Rejected       int           `json:"rejected"`
	Failed         int           `json:"failed"`
	Skipped        int           `json:"skipped"`
	Results        []JobResult   `json:"results"`
}

// ScannerConfig holds scanner configuration
type ScannerConfig struct {
	Enabled       bool
	Schedule      string // Cron spec with a seconds field
	Watchlist     []Target
	WorkerCount   int
	MinConfidence int
	OrderType     engine.OrderType
	Cooldown      time.Duration
	ScanTimeout   time.Duration
}

// CooldownEntry marks a target that recently produced a signal
type CooldownEntry struct {
	SignalID  string
	ExpiresAt time.Time
}

package analysis

import "time"

// Timeframe represents a chart timeframe as requested by callers
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1D  Timeframe = "1D"
	TF1W  Timeframe = "1W"
)

var higherTimeframes = map[Timeframe]Timeframe{
	TF1m:  TF15m,
	TF5m:  TF1h,
	TF15m: TF4h,
	TF30m: TF4h,
	TF1h:  TF1D,
	TF4h:  TF1D,
	TF1D:  TF1W,
	TF1W:  TF1W,
}

// HigherTimeframe maps a working timeframe to the timeframe used for structural bias.
// Unmapped timeframes default to daily.
func HigherTimeframe(tf Timeframe) Timeframe {
	if htf, ok := higherTimeframes[tf]; ok {
		return htf
	}
	return TF1D
}

// Known reports whether the timeframe has an explicit mapping
func (tf Timeframe) Known() bool {
	_, ok := higherTimeframes[tf]
	return ok
}

// Duration returns the bar length, or zero for unknown timeframes
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF30m:
		return 30 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1D:
		return 24 * time.Hour
	case TF1W:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

package engine

import (
	"errors"
	"fmt"

	"smc-signal-engine/internal/confluence"
)

// RejectionReason discriminates expected pipeline rejections
type RejectionReason string

const (
	ConfidenceTooLow RejectionReason = "CONFIDENCE_TOO_LOW"
	RiskRewardTooLow RejectionReason = "RISK_REWARD_TOO_LOW"
)

// MinRiskReward is the Gate 2 floor
const MinRiskReward = 1.2

// ErrInvalidRequest is returned for requests the engine cannot evaluate at all
var ErrInvalidRequest = errors.New("invalid signal request")

// RejectionError is a business rejection, not a fault. The trace covers every
// stage evaluated up to the failing gate.
type RejectionError struct {
	Reason        RejectionReason           `json:"reason"`
	Achieved      int                       `json:"achieved"`
	Threshold     int                       `json:"threshold"`
	RiskReward    float64                   `json:"risk_reward,omitempty"`
	Trace         string                    `json:"trace"`
	Contributions []confluence.Contribution `json:"contributions"`
}

func (e *RejectionError) Error() string {
	switch e.Reason {
	case ConfidenceTooLow:
		return fmt.Sprintf("signal blocked: confidence score too low (%d/%d)", e.Achieved, e.Threshold)
	case RiskRewardTooLow:
		return fmt.Sprintf("signal blocked: risk/reward ratio too low (%.1f)", e.RiskReward)
	default:
		return fmt.Sprintf("signal blocked: %s", e.Reason)
	}
}

// IsRejection reports whether err is (or wraps) a RejectionError
func IsRejection(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}

// AsRejection extracts the RejectionError from err
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

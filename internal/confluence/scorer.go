package confluence

import (
	"fmt"
	"strings"
)

// Stage names a pipeline step that contributes to the confidence score
type Stage string

const (
	StageHTFBias      Stage = "htf_bias"
	StageDealingRange Stage = "dealing_range"
	StageLiquidity    Stage = "liquidity"
	StageSweep        Stage = "liquidity_sweep"
	StageBOS          Stage = "break_of_structure"
	StageOrderFlow    Stage = "order_block_fvg"
	StageWave         Stage = "wave_filter"
	StageSession      Stage = "session"
	StageVolume       Stage = "volume_expansion"
)

// Contribution is one (stage, delta, description) term of the score
type Contribution struct {
	Stage       Stage  `json:"stage"`
	Delta       int    `json:"delta"`
	Description string `json:"description"`
}

// Quality is the human-facing rating of a final score
type Quality string

const (
	QualityRare       Quality = "RARE HIGH QUALITY"
	QualityHigh       Quality = "HIGH QUALITY"
	QualityGood       Quality = "GOOD QUALITY"
	QualityAcceptable Quality = "ACCEPTABLE"
)

// ScoreCard is an ordered list of contributions. The confidence score is the
// fold of their deltas starting from zero.
type ScoreCard struct {
	contributions []Contribution
}

// NewScoreCard creates an empty score card
func NewScoreCard() *ScoreCard {
	return &ScoreCard{contributions: make([]Contribution, 0, 12)}
}

// Add appends a contribution. Zero deltas are recorded too so the card mirrors every decision.
func (sc *ScoreCard) Add(stage Stage, delta int, description string) {
	sc.contributions = append(sc.contributions, Contribution{
		Stage:       stage,
		Delta:       delta,
		Description: description,
	})
}

// Total folds the contributions into the confidence score
func (sc *ScoreCard) Total() int {
	return Fold(sc.contributions)
}

// Contributions returns a copy of the recorded terms in order
func (sc *ScoreCard) Contributions() []Contribution {
	out := make([]Contribution, len(sc.contributions))
	copy(out, sc.contributions)
	return out
}

// Stage returns the summed delta of one stage
func (sc *ScoreCard) Stage(stage Stage) int {
	total := 0
	for _, c := range sc.contributions {
		if c.Stage == stage {
			total += c.Delta
		}
	}
	return total
}

// Breakdown renders "stage:+delta" pairs for logs
func (sc *ScoreCard) Breakdown() string {
	parts := make([]string, 0, len(sc.contributions))
	for _, c := range sc.contributions {
		parts = append(parts, fmt.Sprintf("%s:%+d", c.Stage, c.Delta))
	}
	return strings.Join(parts, " ")
}

// Fold sums contribution deltas
func Fold(contributions []Contribution) int {
	total := 0
	for _, c := range contributions {
		total += c.Delta
	}
	return total
}

// Passes reports whether the score clears a caller-supplied threshold
func Passes(score, threshold int) bool {
	return score >= threshold
}

// QualityFor converts a score to its quality rating
func QualityFor(score int) Quality {
	if score >= 85 {
		return QualityRare
	} else if score >= 70 {
		return QualityHigh
	} else if score >= 55 {
		return QualityGood
	}
	return QualityAcceptable
}

// ConfluenceCount converts a score to the number of confirming methodologies reported
func ConfluenceCount(score int) int {
	if score >= 85 {
		return 4
	} else if score >= 70 {
		return 3
	}
	return 2
}

package confluence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreCardFold(t *testing.T) {
	card := NewScoreCard()
	card.Add(StageHTFBias, 15, "BULLISH")
	card.Add(StageDealingRange, -10, "not in discount")
	card.Add(StageSweep, 20, "full")
	card.Add(StageWave, 0, "neutral")

	assert.Equal(t, 25, card.Total())
	assert.Equal(t, -10, card.Stage(StageDealingRange))
	assert.Len(t, card.Contributions(), 4)
	assert.Equal(t, "htf_bias:+15 dealing_range:-10 liquidity_sweep:+20 wave_filter:+0", card.Breakdown())
}

func TestScoreCardContributionsIsCopy(t *testing.T) {
	card := NewScoreCard()
	card.Add(StageBOS, 20, "valid")

	got := card.Contributions()
	got[0].Delta = -100

	assert.Equal(t, 20, card.Total())
}

func TestQualityFor(t *testing.T) {
	tests := []struct {
		score   int
		quality Quality
		count   int
	}{
		{95, QualityRare, 4},
		{85, QualityRare, 4},
		{84, QualityHigh, 3},
		{70, QualityHigh, 3},
		{55, QualityGood, 2},
		{40, QualityAcceptable, 2},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.quality, QualityFor(tt.score), "score %d", tt.score)
		assert.Equal(t, tt.count, ConfluenceCount(tt.score), "score %d", tt.score)
	}
}

func TestPasses(t *testing.T) {
	assert.True(t, Passes(35, 35))
	assert.False(t, Passes(34, 35))
	assert.Equal(t, 0, Fold(nil))
}

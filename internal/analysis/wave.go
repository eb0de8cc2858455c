package analysis

import "math"

const (
	waveSwingRadius = 5
	waveMinSwings   = 5
	waveRecentSwing = 8
)

// WaveFilter is the Elliott-wave heuristic verdict
type WaveFilter struct {
	Block       bool
	Reason      string
	Wave        string
	Pattern     string
	Legs        [3]float64 // Amplitudes of the wave 1/3/5 proxies
	Sufficient  bool
	Description string
}

// ApplyElliottWaveFilter vetoes entries when the third proxy leg is the largest,
// which reads as either a fifth-wave exhaustion or an entry mid-way through wave three.
func ApplyElliottWaveFilter(candles []Candle) WaveFilter {
	swings := FindSwingPoints(candles, waveSwingRadius)
	if len(swings) < waveMinSwings {
		return WaveFilter{
			Wave:        "Unknown",
			Pattern:     "Insufficient data",
			Description: "Wave count uncertain - allowing trade",
		}
	}

	recent := swings
	if len(recent) > waveRecentSwing {
		recent = recent[len(recent)-waveRecentSwing:]
	}

	leg := func(a, b int) float64 {
		if b >= len(recent) {
			return 0
		}
		return math.Abs(recent[b].Price - recent[a].Price)
	}
	wave1, wave3, wave5 := leg(0, 1), leg(2, 3), leg(4, 5)

	filter := WaveFilter{Legs: [3]float64{wave1, wave3, wave5}, Sufficient: true}
	thirdLongest := wave3 > wave1 && wave3 > wave5

	switch {
	case thirdLongest && wave5 > 0:
		filter.Block = true
		filter.Reason = "Wave 5 detected - exhaustion phase"
		filter.Wave = "Wave 5"
		filter.Pattern = "Impulse (Exhaustion)"
		filter.Description = "Wave 5 exhaustion - NO ENTRY"
	case thirdLongest:
		filter.Block = true
		filter.Reason = "Mid-Wave 3 entry (too late)"
		filter.Wave = "Wave 3"
		filter.Pattern = "Impulse"
		filter.Description = "Wave 3 already in motion - too late for entry"
	default:
		filter.Wave = "Wave 2 or 4"
		filter.Pattern = "Impulse Setup"
		filter.Description = "Valid wave structure for entry (Wave 2/4 completion zone)"
	}

	return filter
}

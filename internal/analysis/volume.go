package analysis

// VolumeProfile compares the most recent volume window against the one before it
type VolumeProfile struct {
	CurrentAverage  float64 // Mean volume of the last window
	TrailingAverage float64 // Mean volume of the window before it
	Ratio           float64 // Current / Trailing
	Expansion       bool    // Ratio > 1.3
	Contraction     bool    // Ratio < 0.7
}

const (
	volumeWindow         = 20
	volumeExpansionRatio = 1.3
	volumeLowRatio       = 0.7
)

// AverageVolume calculates the mean volume of the series
func AverageVolume(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range candles {
		sum += c.Volume
	}
	return sum / float64(len(candles))
}

// AnalyzeVolume builds the volume profile used by the session filter.
// With fewer than two windows of history the trailing average falls back to
// the current one, so neither expansion nor contraction is reported.
func AnalyzeVolume(candles []Candle) VolumeProfile {
	current := Tail(candles, volumeWindow)
	profile := VolumeProfile{CurrentAverage: AverageVolume(current)}

	var trailing []Candle
	if len(candles) > volumeWindow {
		end := len(candles) - volumeWindow
		start := end - volumeWindow
		if start < 0 {
			start = 0
		}
		trailing = candles[start:end]
	}

	if len(trailing) == 0 {
		profile.TrailingAverage = profile.CurrentAverage
	} else {
		profile.TrailingAverage = AverageVolume(trailing)
	}

	if profile.TrailingAverage > 0 {
		profile.Ratio = profile.CurrentAverage / profile.TrailingAverage
	} else {
		profile.Ratio = 1
	}

	profile.Expansion = profile.CurrentAverage > profile.TrailingAverage*volumeExpansionRatio
	profile.Contraction = profile.CurrentAverage < profile.TrailingAverage*volumeLowRatio
	return profile
}

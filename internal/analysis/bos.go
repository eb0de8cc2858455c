package analysis

import "fmt"

const (
	bosMinBars        = 50
	bosStructureBars  = 100
	bosExcludeRecent  = 30
	bosSwingRadius    = 5
	bosAverageBars    = 20
	bosScanBars       = 5
	bosBodyMultiple   = 1.5
	bosVolumeMultiple = 1.0
)

// BOSValidation is the result of the break-of-structure validator
type BOSValidation struct {
	Valid        bool
	Reference    float64 // Structural level that had to be broken
	Price        float64 // Close of the breaking candle
	Index        int     // Absolute index of the breaking candle, -1 when invalid
	BodyStrength float64 // Body / average body
	VolumeRatio  float64 // Volume / average volume
	Description  string
}

// ValidateBOS checks the last five bars for a high-conviction close beyond the prior
// swing extreme. The reference is the highest swing high (buy) or lowest swing low (sell)
// of the last 100 bars that formed before the most recent 30. The first qualifying bar wins.
func ValidateBOS(candles []Candle, direction Direction) BOSValidation {
	invalid := BOSValidation{Index: -1}

	if len(candles) < bosMinBars {
		invalid.Description = fmt.Sprintf("Insufficient data for BOS validation (%d bars, need %d)", len(candles), bosMinBars)
		return invalid
	}

	structure := Tail(candles, bosStructureBars)
	offset := len(candles) - len(structure)
	cutoff := len(candles) - bosExcludeRecent

	reference, found := 0.0, false
	for _, s := range FindSwingPoints(structure, bosSwingRadius) {
		if s.Index+offset >= cutoff {
			continue
		}
		switch {
		case direction == DirectionBuy && s.Kind == SwingHigh:
			if !found || s.Price > reference {
				reference, found = s.Price, true
			}
		case direction == DirectionSell && s.Kind == SwingLow:
			if !found || s.Price < reference {
				reference, found = s.Price, true
			}
		}
	}

	if !found {
		invalid.Description = "No prior structure level to break"
		return invalid
	}
	invalid.Reference = reference

	recent := Tail(candles, bosExcludeRecent)
	recentOffset := len(candles) - len(recent)
	baseline := recent[:bosAverageBars]
	avgBody := AverageBody(baseline)
	avgVolume := AverageVolume(baseline)

	for i := len(recent) - bosScanBars; i < len(recent); i++ {
		c := recent[i]

		bodyStrength, volumeRatio := 0.0, 0.0
		if avgBody > 0 {
			bodyStrength = c.Body() / avgBody
		}
		if avgVolume > 0 {
			volumeRatio = c.Volume / avgVolume
		}

		beyond := c.Close > reference
		if direction == DirectionSell {
			beyond = c.Close < reference
		}

		if beyond && bodyStrength >= bosBodyMultiple && volumeRatio >= bosVolumeMultiple {
			return BOSValidation{
				Valid:        true,
				Reference:    reference,
				Price:        c.Close,
				Index:        i + recentOffset,
				BodyStrength: bodyStrength,
				VolumeRatio:  volumeRatio,
				Description: fmt.Sprintf("Valid BOS at %.5f beyond %.5f (Body: %.2fx, Vol: %.2fx)",
					c.Close, reference, bodyStrength, volumeRatio),
			}
		}
	}

	invalid.Description = fmt.Sprintf("No valid BOS beyond %.5f (needs close beyond structure + 1.5x body + volume)", reference)
	return invalid
}

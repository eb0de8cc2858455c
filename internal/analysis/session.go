package analysis

import (
	"fmt"
	"strings"
)

// MarketCategory groups instruments by trading hours behaviour
type MarketCategory string

const (
	MarketCrypto      MarketCategory = "crypto"
	MarketForex       MarketCategory = "forex"
	MarketStocks      MarketCategory = "stocks"
	MarketIndices     MarketCategory = "indices"
	MarketCommodities MarketCategory = "commodities"
)

// IdentifyMarketType classifies a symbol by its name. Checks run in order, so a
// symbol quoted in a fiat currency is treated as forex before the index and
// commodity lists are consulted.
func IdentifyMarketType(symbol string) MarketCategory {
	upper := strings.ToUpper(symbol)

	switch {
	case containsAny(upper, "USDT", "BTC", "ETH"):
		return MarketCrypto
	case containsAny(upper, "USD", "EUR", "GBP", "JPY", "AUD", "CAD", "NZD"):
		return MarketForex
	case upper == "US30" || upper == "NAS100" || upper == "SPX" || upper == "DJI":
		return MarketIndices
	case containsAny(upper, "XAU", "XAG", "CRUDE", "OIL", "NGAS", "COPPER"):
		return MarketCommodities
	default:
		return MarketStocks
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// SessionFilter is the session/volatility verdict. It never blocks.
type SessionFilter struct {
	Category        MarketCategory
	Hour            int
	Adjustment      int
	VolumeExpansion bool
	ATRRatio        float64
	Volume          VolumeProfile
	Description     string
}

// Session hour windows (UTC, inclusive)
const (
	londonOpen, londonClose   = 8, 16
	newYorkOpen, newYorkClose = 13, 21
	equitiesOpen, equitiesEnd = 14, 21
	middayStart, middayEnd    = 16, 18
)

func inHours(hour, from, to int) bool {
	return hour >= from && hour <= to
}

// ApplySessionFilter scores the trading window for the category at the given UTC hour
func ApplySessionFilter(category MarketCategory, candles []Candle, hour int) SessionFilter {
	volume := AnalyzeVolume(candles)
	filter := SessionFilter{
		Category:        category,
		Hour:            hour,
		ATRRatio:        ATRRatio(candles),
		Volume:          volume,
		VolumeExpansion: volume.Expansion,
	}

	london := inHours(hour, londonOpen, londonClose)
	newYork := inHours(hour, newYorkOpen, newYorkClose)

	switch category {
	case MarketCrypto:
		var notes []string
		switch {
		case volume.Contraction:
			filter.Adjustment -= 5
			notes = append(notes, "low volume (-5)")
		case volume.Expansion:
			filter.Adjustment += 5
			notes = append(notes, "volume expansion (+5)")
		}
		if filter.ATRRatio < 0.5 {
			filter.Adjustment -= 5
			notes = append(notes, "very low volatility (-5)")
		}
		if inHours(hour, 8, 10) || inHours(hour, 13, 15) {
			filter.Adjustment += 5
			notes = append(notes, "killzone (+5)")
		}
		filter.Description = "24/7 market"
		if len(notes) > 0 {
			filter.Description += ", " + strings.Join(notes, ", ")
		}

	case MarketForex:
		switch {
		case !london && !newYork:
			filter.Adjustment = -10
			filter.VolumeExpansion = false
			filter.Description = "Asian session - reduced confidence"
		case london && newYork:
			filter.Adjustment = 10
			filter.Description = "London-NY overlap"
		case london:
			filter.Adjustment = 5
			filter.Description = "London session"
		default:
			filter.Adjustment = 5
			filter.Description = "NY session"
		}

	case MarketStocks:
		switch {
		case !inHours(hour, equitiesOpen, equitiesEnd):
			filter.Adjustment = -15
			filter.VolumeExpansion = false
			filter.Description = "Market closed - use with caution"
		case inHours(hour, middayStart, middayEnd):
			filter.Adjustment = -10
			filter.Description = "Market open (midday - lower confidence)"
		default:
			filter.Adjustment = 5
			filter.Description = "Market open"
		}

	case MarketIndices:
		if !inHours(hour, equitiesOpen, equitiesEnd) {
			filter.Adjustment = -10
			filter.VolumeExpansion = false
			filter.Description = "Outside primary session"
		} else {
			filter.Adjustment = 5
			filter.Description = "NY session active"
		}

	case MarketCommodities:
		filter.Description = "Commodity session"
		switch {
		case filter.ATRRatio < 0.5:
			filter.Adjustment -= 10
			filter.Description = "Very low volatility"
		case filter.ATRRatio < 0.7:
			filter.Adjustment -= 5
			filter.Description += " (lower volatility)"
		}
		if london || newYork {
			filter.Adjustment += 5
			filter.Description += " (optimal hours)"
		} else {
			filter.Adjustment -= 5
			filter.Description += " (off-peak)"
		}

	default:
		filter.Description = "Session filter passed"
	}

	filter.Description = fmt.Sprintf("%s [%s, %02d:00 UTC, ATR ratio %.2f]",
		filter.Description, category, hour, filter.ATRRatio)
	return filter
}

package binance

import "strings"

// DefaultBasePrice is used for symbols missing from the table
const DefaultBasePrice = 100.0

// basePrices are reference levels used when live data is unavailable
var basePrices = map[string]float64{
	"BTCUSDT": 95000,
	"ETHUSDT": 3500,
	"BNBUSDT": 620,
	"SOLUSDT": 180,
	"XRPUSDT": 2.5,
	"ADAUSDT": 0.95,
	"EURUSD":  1.0850,
	"GBPUSD":  1.2650,
	"USDJPY":  148.50,
	"AUDUSD":  0.6450,
	"USDCAD":  1.3550,
	"NZDUSD":  0.5950,
	"AAPL":    185,
	"GOOGL":   145,
	"MSFT":    415,
	"AMZN":    175,
	"TSLA":    245,
	"NVDA":    725,
	"XAUUSD":  2650,
	"XAGUSD":  30.5,
	"CRUDE":   82,
	"NGAS":    3.2,
	"COPPER":  4.15,
	"WHEAT":   6.8,
}

// BasePrice returns the reference price for a symbol
func BasePrice(symbol string) float64 {
	if p, ok := basePrices[strings.ToUpper(symbol)]; ok {
		return p
	}
	return DefaultBasePrice
}

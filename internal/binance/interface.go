package binance

import (
	"context"
	"errors"
	"fmt"
)

// MarketDataClient defines the market data operations the signal pipeline needs
type MarketDataClient interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
}

var (
	// ErrNoData is returned when the exchange answers with an empty payload
	ErrNoData = errors.New("no market data received")
	// ErrRateLimited is returned while the rate limiter circuit is open
	ErrRateLimited = errors.New("rate limited by exchange")
)

// APIError is a non-200 exchange response
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Ensure both Client and MockClient implement MarketDataClient
var _ MarketDataClient = (*Client)(nil)
var _ MarketDataClient = (*MockClient)(nil)

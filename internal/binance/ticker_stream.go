package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultStreamURL is the public spot market stream endpoint
const DefaultStreamURL = "wss://stream.binance.com:9443"

// PriceHandler receives every validated mini-ticker close
type PriceHandler func(symbol string, price float64, at time.Time)

// TickerStream subscribes to combined mini-ticker streams and forwards last prices.
// It reconnects with exponential backoff until the context is cancelled.
type TickerStream struct {
	baseURL  string
	symbols  []string
	handler  PriceHandler
	validate *validator.Validate
	logger   zerolog.Logger
	dialer   *websocket.Dialer

	mu         sync.RWMutex
	connected  bool
	reconnects int
	lastUpdate time.Time

	minBackoff time.Duration
	maxBackoff time.Duration
}

// streamMsg is the combined-stream wrapper: {"stream": "btcusdt@miniTicker", "data": {...}}
type streamMsg struct {
	Stream string          `json:"stream" validate:"required"`
	Data   json.RawMessage `json:"data" validate:"required"`
}

// miniTicker is the 24h rolling mini ticker payload
type miniTicker struct {
	EventType string `json:"e" validate:"required,eq=24hrMiniTicker"`
	EventTime int64  `json:"E" validate:"required,gt=0"`
	Symbol    string `json:"s" validate:"required"`
	Close     string `json:"c" validate:"required,numeric"`
	Open      string `json:"o" validate:"omitempty,numeric"`
	High      string `json:"h" validate:"omitempty,numeric"`
	Low       string `json:"l" validate:"omitempty,numeric"`
	Volume    string `json:"v" validate:"omitempty,numeric"`
}

// NewTickerStream creates a stream for the given symbols. An empty baseURL means the public endpoint.
func NewTickerStream(baseURL string, symbols []string, handler PriceHandler, logger zerolog.Logger) (*TickerStream, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("ticker stream: no symbols")
	}
	if handler == nil {
		return nil, fmt.Errorf("ticker stream: nil price handler")
	}
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}

	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.TrimSpace(s); s != "" {
			normalized = append(normalized, strings.ToLower(s))
		}
	}

	return &TickerStream{
		baseURL:    strings.TrimRight(baseURL, "/"),
		symbols:    normalized,
		handler:    handler,
		validate:   validator.New(),
		logger:     logger.With().Str("component", "ticker_stream").Logger(),
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		minBackoff: time.Second,
		maxBackoff: time.Minute,
	}, nil
}

// URL builds the combined stream URL, e.g. /stream?streams=btcusdt@miniTicker/ethusdt@miniTicker
func (s *TickerStream) URL() string {
	streams := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		streams[i] = sym + "@miniTicker"
	}
	return s.baseURL + "/stream?streams=" + strings.Join(streams, "/")
}

// Run connects and reads until ctx is done
func (s *TickerStream) Run(ctx context.Context) error {
	backoff := s.minBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, _, err := s.dialer.DialContext(ctx, s.URL(), nil)
		if err != nil {
			s.mu.Lock()
			s.reconnects++
			s.mu.Unlock()
			s.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("ticker stream connection failed")
		} else {
			backoff = s.minBackoff
			s.setConnected(true)
			s.logger.Info().Int("symbols", len(s.symbols)).Msg("ticker stream connected")

			s.readLoop(ctx, conn)

			s.setConnected(false)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn().Dur("retry_in", backoff).Msg("ticker stream lost, reconnecting")
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

func (s *TickerStream) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Msg("ticker stream read error")
			}
			return
		}
		if err := s.HandleMessage(message); err != nil {
			s.logger.Debug().Err(err).Msg("ticker message dropped")
		}
	}
}

// HandleMessage decodes, validates and forwards a single combined-stream frame
func (s *TickerStream) HandleMessage(raw []byte) error {
	var m streamMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	if err := s.validate.Struct(m); err != nil {
		return fmt.Errorf("invalid frame: %w", err)
	}

	var t miniTicker
	if err := json.Unmarshal(m.Data, &t); err != nil {
		return fmt.Errorf("decode mini ticker: %w", err)
	}
	if err := s.validate.Struct(t); err != nil {
		return fmt.Errorf("invalid mini ticker: %w", err)
	}

	price, err := decimal.NewFromString(t.Close)
	if err != nil {
		return fmt.Errorf("parse close %q: %w", t.Close, err)
	}
	if !price.IsPositive() {
		return fmt.Errorf("non-positive close for %s", t.Symbol)
	}

	at := time.UnixMilli(t.EventTime).UTC()
	s.mu.Lock()
	s.lastUpdate = at
	s.mu.Unlock()

	s.handler(strings.ToUpper(t.Symbol), price.InexactFloat64(), at)
	return nil
}

func (s *TickerStream) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// Status reports connection state, failed dial attempts and the last event time
func (s *TickerStream) Status() (connected bool, reconnects int, lastUpdate time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected, s.reconnects, s.lastUpdate
}

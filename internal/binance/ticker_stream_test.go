package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type priceRecorder struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (p *priceRecorder) handle(symbol string, price float64, _ time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

func (p *priceRecorder) get(symbol string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.prices[symbol]
	return v, ok
}

func newRecorder() *priceRecorder {
	return &priceRecorder{prices: make(map[string]float64)}
}

const btcFrame = `{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1700000000000,"s":"BTCUSDT","c":"95123.45","o":"94000.00","h":"95500.00","l":"93800.00","v":"1234.5"}}`

func TestTickerStreamURL(t *testing.T) {
	s, err := NewTickerStream("wss://example.test/", []string{"BTCUSDT", " ethusdt "}, newRecorder().handle, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "wss://example.test/stream?streams=btcusdt@miniTicker/ethusdt@miniTicker", s.URL())
}

func TestNewTickerStreamValidation(t *testing.T) {
	_, err := NewTickerStream("", nil, newRecorder().handle, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewTickerStream("", []string{"BTCUSDT"}, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestTickerStreamHandleMessage(t *testing.T) {
	rec := newRecorder()
	s, err := NewTickerStream("", []string{"BTCUSDT"}, rec.handle, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.HandleMessage([]byte(btcFrame)))
	price, ok := rec.get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 95123.45, price)

	_, _, last := s.Status()
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), last)

	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `not json`},
		{"missing stream", `{"data":{"e":"24hrMiniTicker","E":1,"s":"X","c":"1"}}`},
		{"wrong event", `{"stream":"x","data":{"e":"trade","E":1,"s":"X","c":"1"}}`},
		{"non numeric close", `{"stream":"x","data":{"e":"24hrMiniTicker","E":1,"s":"X","c":"abc"}}`},
		{"zero close", `{"stream":"x","data":{"e":"24hrMiniTicker","E":1,"s":"X","c":"0"}}`},
		{"missing symbol", `{"stream":"x","data":{"e":"24hrMiniTicker","E":1,"c":"10"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, s.HandleMessage([]byte(tt.frame)))
		})
	}
	_, ok = rec.get("X")
	assert.False(t, ok)
}

func TestTickerStreamRunAgainstServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stream", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(btcFrame))
		// Hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	rec := newRecorder()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s, err := NewTickerStream(wsURL, []string{"BTCUSDT"}, rec.handle, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := rec.get("BTCUSDT")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	connected, _, _ := s.Status()
	assert.True(t, connected)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}

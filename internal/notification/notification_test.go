package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/database"
	"smc-signal-engine/internal/events"
)

type captured struct {
	mu       sync.Mutex
	paths    []string
	payloads []map[string]interface{}
}

func (c *captured) server(t *testing.T, status int) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		c.mu.Lock()
		c.paths = append(c.paths, r.URL.Path)
		c.payloads = append(c.payloads, body)
		c.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (c *captured) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func TestTelegramSendSignal(t *testing.T) {
	var got captured
	srv := got.server(t, http.StatusOK)

	m := NewManager(50)
	m.AddNotifier(NewTelegramNotifier(TelegramConfig{BotToken: "tok", ChatID: "42", Enabled: true, APIURL: srv.URL}))

	require.NoError(t, m.SendSignal(context.Background(), "BTCUSDT", "1h", "buy", 72, 43250.5))
	require.Equal(t, 1, got.count())
	assert.Equal(t, "/bottok/sendMessage", got.paths[0])
	assert.Equal(t, "42", got.payloads[0]["chat_id"])
	assert.Contains(t, got.payloads[0]["text"], "BUY Signal: BTCUSDT 1h")

	// Below the announce threshold
	require.NoError(t, m.SendSignal(context.Background(), "BTCUSDT", "1h", "buy", 40, 43250.5))
	assert.Equal(t, 1, got.count())
}

func TestDiscordReportsFailures(t *testing.T) {
	var got captured
	srv := got.server(t, http.StatusBadRequest)

	m := NewManager(0)
	m.AddNotifier(NewDiscordNotifier(DiscordConfig{WebhookURL: srv.URL, Enabled: true}))

	err := m.SendSignalUpdate(context.Background(), "ETHUSDT", database.UpdateSLHit, 3100, -1.8)
	assert.ErrorContains(t, err, "status 400")

	embed := got.payloads[0]["embeds"].([]interface{})[0].(map[string]interface{})
	assert.Contains(t, embed["title"], "SL HIT")
	assert.Equal(t, float64(0xFF0000), embed["color"])
}

func TestFromConfigSkipsIncompleteProviders(t *testing.T) {
	m := FromConfig(config.NotificationConfig{
		Enabled:  true,
		Telegram: config.TelegramConfig{Enabled: true, BotToken: "tok"},
	})
	assert.False(t, m.Enabled(), "telegram without chat id cannot deliver")

	m = FromConfig(config.NotificationConfig{
		Enabled: true,
		Discord: config.DiscordConfig{Enabled: true, WebhookURL: "http://example.invalid"},
	})
	assert.True(t, m.Enabled())
}

func TestSubscribeDeliversBusEvents(t *testing.T) {
	var got captured
	srv := got.server(t, http.StatusNoContent)

	m := NewManager(0)
	m.AddNotifier(NewDiscordNotifier(DiscordConfig{WebhookURL: srv.URL, Enabled: true}))

	bus := events.NewEventBus()
	m.Subscribe(bus)
	bus.PublishSignalGenerated("sig-1", "SOLUSDT", "4h", "sell", 66, 142.3)
	bus.PublishSignalUpdate("sig-1", "SOLUSDT", database.UpdateTP1Hit, 138, 3.02)

	require.Eventually(t, func() bool { return got.count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

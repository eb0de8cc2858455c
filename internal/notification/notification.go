package notification

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/database"
	"smc-signal-engine/internal/events"
	"smc-signal-engine/internal/logging"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifySignal       NotificationType = "signal"
	NotifySignalUpdate NotificationType = "signal_update"
	NotifyError        NotificationType = "error"
)

// Notification represents a notification message
type Notification struct {
	Type       NotificationType
	Title      string
	Message    string
	Symbol     string
	Price      float64
	PnLPercent float64
	Timestamp  time.Time
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(ctx context.Context, notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans notifications out to every enabled provider
type Manager struct {
	notifiers     []Notifier
	minConfidence int
	timeout       time.Duration
	logger        *logging.Logger
}

// NewManager creates a new notification manager. Signals below minConfidence are not announced.
func NewManager(minConfidence int) *Manager {
	return &Manager{
		minConfidence: minConfidence,
		timeout:       10 * time.Second,
		logger:        logging.WithComponent("notification"),
	}
}

// FromConfig builds a manager with the configured providers
func FromConfig(cfg config.NotificationConfig) *Manager {
	m := NewManager(cfg.MinConfidence)
	if cfg.Telegram.Enabled {
		m.AddNotifier(NewTelegramNotifier(TelegramConfig{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
			Enabled:  true,
		}))
	}
	if cfg.Discord.Enabled {
		m.AddNotifier(NewDiscordNotifier(DiscordConfig{
			WebhookURL: cfg.Discord.WebhookURL,
			Enabled:    true,
		}))
	}
	return m
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Enabled reports whether any provider can deliver
func (m *Manager) Enabled() bool {
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			return true
		}
	}
	return false
}

// Send sends a notification to all enabled providers
func (m *Manager) Send(ctx context.Context, notification *Notification) error {
	var lastErr error
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			if err := n.Send(ctx, notification); err != nil {
				m.logger.Warn("notification delivery failed", "provider", n.Name(), "type", string(notification.Type), "error", err)
				lastErr = err
			}
		}
	}
	return lastErr
}

// SendSignal announces a newly generated signal
func (m *Manager) SendSignal(ctx context.Context, symbol, timeframe, direction string, confidence int, entry float64) error {
	if confidence < m.minConfidence {
		return nil
	}
	emoji := "🟢"
	if direction == "sell" {
		emoji = "🔴"
	}

	return m.Send(ctx, &Notification{
		Type:      NotifySignal,
		Title:     fmt.Sprintf("%s %s Signal: %s %s", emoji, strings.ToUpper(direction), symbol, timeframe),
		Message:   fmt.Sprintf("Entry: %.5f\nConfidence: %d", entry, confidence),
		Symbol:    symbol,
		Price:     entry,
		Timestamp: time.Now(),
	})
}

// SendSignalUpdate announces a lifecycle transition
func (m *Manager) SendSignalUpdate(ctx context.Context, symbol, updateType string, price, pnlPercent float64) error {
	emoji := "📈"
	switch updateType {
	case database.UpdateSLHit:
		emoji = "❌"
	case database.UpdateTP3Hit:
		emoji = "✅"
	case database.UpdateExpired:
		emoji = "⌛"
	}

	return m.Send(ctx, &Notification{
		Type:       NotifySignalUpdate,
		Title:      fmt.Sprintf("%s %s: %s", emoji, symbol, strings.ToUpper(strings.ReplaceAll(updateType, "_", " "))),
		Message:    fmt.Sprintf("Price: %.5f\nP&L: %+.2f%%", price, pnlPercent),
		Symbol:     symbol,
		Price:      price,
		PnLPercent: pnlPercent,
		Timestamp:  time.Now(),
	})
}

// Subscribe delivers generated signals and lifecycle updates from the bus
func (m *Manager) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventSignalGenerated, func(e events.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		m.SendSignal(ctx, str(e.Data["symbol"]), str(e.Data["timeframe"]), str(e.Data["direction"]),
			num[int](e.Data["confidence"]), num[float64](e.Data["entry_price"]))
	})
	bus.Subscribe(events.EventSignalUpdate, func(e events.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		m.SendSignalUpdate(ctx, str(e.Data["symbol"]), str(e.Data["update_type"]),
			num[float64](e.Data["price"]), num[float64](e.Data["pnl_percent"]))
	})
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func num[T int | float64](v interface{}) T {
	t, _ := v.(T)
	return t
}

func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}) (int, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

// TelegramNotifier sends notifications via Telegram
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiURL   string
	enabled  bool
	client   *http.Client
}

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
	APIURL   string // defaults to https://api.telegram.org
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	apiURL := config.APIURL
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		apiURL:   strings.TrimRight(apiURL, "/"),
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(ctx context.Context, notification *Notification) error {
	if !t.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n\n%s", notification.Title, notification.Message),
		"parse_mode": "Markdown",
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.botToken)
	status, err := postJSON(ctx, t.client, url, payload)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", status)
	}

	return nil
}

// =============================================================================
// DISCORD NOTIFIER
// =============================================================================

// DiscordNotifier sends notifications via Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordConfig holds Discord configuration
type DiscordConfig struct {
	WebhookURL string
	Enabled    bool
}

// NewDiscordNotifier creates a new Discord notifier
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func (d *DiscordNotifier) Send(ctx context.Context, notification *Notification) error {
	if !d.enabled {
		return nil
	}

	color := 0x00FF00 // Green
	if notification.Type == NotifyError || notification.PnLPercent < 0 {
		color = 0xFF0000 // Red
	}

	embed := map[string]interface{}{
		"title":       notification.Title,
		"description": notification.Message,
		"color":       color,
		"timestamp":   notification.Timestamp.Format(time.RFC3339),
	}

	if notification.Symbol != "" {
		fields := []map[string]interface{}{
			{"name": "Symbol", "value": notification.Symbol, "inline": true},
		}
		if notification.Price > 0 {
			fields = append(fields, map[string]interface{}{
				"name": "Price", "value": fmt.Sprintf("%.5f", notification.Price), "inline": true,
			})
		}
		if notification.PnLPercent != 0 {
			fields = append(fields, map[string]interface{}{
				"name": "P&L", "value": fmt.Sprintf("%+.2f%%", notification.PnLPercent), "inline": true,
			})
		}
		embed["fields"] = fields
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	status, err := postJSON(ctx, d.client, d.webhookURL, payload)
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", status)
	}

	return nil
}

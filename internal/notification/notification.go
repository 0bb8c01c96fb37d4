package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"kis-trading-bot/internal/logging"
	"kis-trading-bot/internal/trader"
)

// Type classifies a notification
type Type string

const (
	NotifyTrade Type = "trade"
	NotifyError Type = "error"
	NotifyInfo  Type = "info"
)

// Notification is one alert message
type Notification struct {
	Type      Type
	Title     string
	Message   string
	Symbol    string
	ProfitPct float64
	Timestamp time.Time
}

// Channel delivers notifications to one destination
type Channel interface {
	Send(n *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans notifications out to every enabled channel. Delivery is
// fire-and-forget: a dead webhook must never block an order path.
type Manager struct {
	channels []Channel
	enabled  bool
	logger   *logging.Logger
}

// NewManager creates an empty manager
func NewManager(enabled bool) *Manager {
	return &Manager{
		enabled: enabled,
		logger:  logging.WithComponent("notification"),
	}
}

// AddChannel registers a delivery channel
func (m *Manager) AddChannel(c Channel) {
	m.channels = append(m.channels, c)
	m.logger.Info("notification channel added", "channel", c.Name(), "enabled", c.IsEnabled())
}

// Send delivers to all enabled channels in the background
func (m *Manager) Send(n *Notification) {
	if !m.enabled {
		return
	}
	for _, c := range m.channels {
		if !c.IsEnabled() {
			continue
		}
		go func(c Channel) {
			if err := c.Send(n); err != nil {
				m.logger.Warn("notification delivery failed", "channel", c.Name(), "error", err)
			}
		}(c)
	}
}

// TradeExecuted announces a completed order. Satisfies trader.Notifier.
func (m *Manager) TradeExecuted(_ context.Context, t trader.Trade) {
	var title, message string
	if t.Side == "buy" {
		title = fmt.Sprintf("Bought %s (%s)", t.Symbol, t.Market)
		message = fmt.Sprintf("%d shares @ %.4f (%.0f KRW)", t.Quantity, t.Price, t.AmountKRW)
	} else {
		verdict := "profit"
		if t.ProfitPct < 0 {
			verdict = "loss"
		}
		title = fmt.Sprintf("Sold %s (%s) at a %s", t.Symbol, t.Market, verdict)
		message = fmt.Sprintf("%d shares @ %.4f, %+.2f%%", t.Quantity, t.Price, t.ProfitPct)
	}
	if t.Strategy != "" {
		message += fmt.Sprintf("\nStrategy: %s", t.Strategy)
	}

	m.Send(&Notification{
		Type:      NotifyTrade,
		Title:     title,
		Message:   message,
		Symbol:    t.Symbol,
		ProfitPct: t.ProfitPct,
		Timestamp: time.Now(),
	})
}

// SendError announces an operational problem
func (m *Manager) SendError(title, message string) {
	m.Send(&Notification{
		Type:      NotifyError,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// TelegramChannel delivers via the Telegram bot API
type TelegramChannel struct {
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

// NewTelegramChannel creates a Telegram channel. It disables itself
// when the token or chat id is missing.
func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		botToken: botToken,
		chatID:   chatID,
		enabled:  botToken != "" && chatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) IsEnabled() bool { return t.enabled }

func (t *TelegramChannel) Send(n *Notification) error {
	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n\n%s", n.Title, n.Message),
		"parse_mode": "Markdown",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

// DiscordChannel delivers via a Discord webhook
type DiscordChannel struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// NewDiscordChannel creates a Discord channel. It disables itself when
// the webhook URL is missing.
func NewDiscordChannel(webhookURL string) *DiscordChannel {
	return &DiscordChannel{
		webhookURL: webhookURL,
		enabled:    webhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordChannel) Name() string { return "discord" }

func (d *DiscordChannel) IsEnabled() bool { return d.enabled }

func (d *DiscordChannel) Send(n *Notification) error {
	color := 0x2ECC71
	if n.Type == NotifyError || (n.Type == NotifyTrade && n.ProfitPct < 0) {
		color = 0xE74C3C
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{{
			"title":       n.Title,
			"description": n.Message,
			"color":       color,
			"timestamp":   n.Timestamp.UTC().Format(time.RFC3339),
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("sending discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}
	return nil
}

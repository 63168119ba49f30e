package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
)

const telegramAPIBase = "https://api.telegram.org"

type telegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// TelegramChannel posts alerts to a chat through the Telegram Bot API
type TelegramChannel struct {
	botToken string
	chatID   string
	baseURL  string
	tmpl     *template.Template
	client   *http.Client
}

// TelegramOption customises a TelegramChannel
type TelegramOption func(*TelegramChannel)

// WithTelegramBaseURL points the channel at another API host
func WithTelegramBaseURL(url string) TelegramOption {
	return func(c *TelegramChannel) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithTelegramHTTPClient replaces the default client
func WithTelegramHTTPClient(client *http.Client) TelegramOption {
	return func(c *TelegramChannel) {
		c.client = client
	}
}

// WithTelegramTemplate renders messages with a text/template executed against models.Alert
func WithTelegramTemplate(tmpl *template.Template) TelegramOption {
	return func(c *TelegramChannel) {
		c.tmpl = tmpl
	}
}

// ParseTelegramTemplate parses a message template with the formatTime helper available
func ParseTelegramTemplate(text string) (*template.Template, error) {
	funcMap := template.FuncMap{
		"formatTime": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}
	return template.New("telegram_message").Funcs(funcMap).Parse(text)
}

func NewTelegramChannel(botToken, chatID string, opts ...TelegramOption) *TelegramChannel {
	c := &TelegramChannel{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  telegramAPIBase,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TelegramChannel) Name() string {
	return "telegram"
}

func (c *TelegramChannel) Send(ctx context.Context, alert models.Alert) error {
	text, err := c.format(alert)
	if err != nil {
		return fmt.Errorf("%w: render telegram message: %v", models.ErrChannelDelivery, err)
	}

	body, err := json.Marshal(telegramMessage{ChatID: c.chatID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// The request URL carries the bot token; never surface it
		return fmt.Errorf("%w: telegram request failed", models.ErrChannelDelivery)
	}
	defer resp.Body.Close()

	var tr telegramResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&tr); err != nil {
		return fmt.Errorf("%w: telegram status %d", models.ErrChannelDelivery, resp.StatusCode)
	}
	if !tr.OK {
		return fmt.Errorf("%w: telegram API error: %s", models.ErrChannelDelivery, tr.Description)
	}
	return nil
}

func (c *TelegramChannel) format(alert models.Alert) (string, error) {
	if c.tmpl != nil {
		var buf bytes.Buffer
		if err := c.tmpl.Execute(&buf, alert); err != nil {
			return "", err
		}
		return buf.String(), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SECURITY ALERT: %s\n\n", alert.Type.Title())
	fmt.Fprintf(&b, "severity: %s\n", alert.Severity)
	fmt.Fprintf(&b, "time: %s\n", alert.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	if alert.IPAddress != nil {
		fmt.Fprintf(&b, "ip: %s\n", *alert.IPAddress)
	}
	fmt.Fprintf(&b, "description: %s", alert.Message)
	return b.String(), nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "gold-scalper/internal/errors"
	"gold-scalper/pkg/utils"
)

// TelegramConfig configures the Telegram bot channel.
type TelegramConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BotToken    string        `mapstructure:"bot_token"`
	ChatID      string        `mapstructure:"chat_id"`
	APIBase     string        `mapstructure:"api_base" default:"https://api.telegram.org"`
	Timeout     time.Duration `mapstructure:"timeout" default:"3s"`
	MaxAttempts int           `mapstructure:"max_attempts" default:"2" validate:"gte=1,lte=5"`
}

// TelegramNotifier sends plain-text messages via the Bot API.
type TelegramNotifier struct {
	cfg     TelegramConfig
	enabled bool
	client  *http.Client
}

// NewTelegramNotifier creates a new TelegramNotifier. It is disabled unless
// both token and chat id are set.
func NewTelegramNotifier(cfg TelegramConfig) *TelegramNotifier {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.telegram.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	return &TelegramNotifier{
		cfg:     cfg,
		enabled: cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the name of the notifier.
func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// IsEnabled returns whether the notifier is enabled.
func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts the message, retrying once on failure.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	if !t.enabled {
		return apperrors.ErrNotificationDisabled
	}

	body, err := json.Marshal(map[string]string{
		"chat_id": t.cfg.ChatID,
		"text":    text,
	})
	if err != nil {
		return apperrors.NewNotificationError(t.Name(), fmt.Errorf("failed to marshal payload: %w", err))
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.cfg.APIBase, "/"), t.cfg.BotToken)

	retry := utils.RetryConfig{
		MaxAttempts:   t.cfg.MaxAttempts,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2,
	}
	err = utils.Retry(ctx, retry, func() error {
		return t.post(ctx, url, body)
	})
	if err != nil {
		return apperrors.NewNotificationError(t.Name(), err)
	}
	return nil
}

func (t *TelegramNotifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	var tr telegramResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !tr.OK {
		return fmt.Errorf("telegram API not ok: %s", tr.Description)
	}
	return nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "gold-scalper/internal/errors"
)

// WebhookConfig configures a generic JSON webhook mirror of the Telegram
// feed.
type WebhookConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	URL     string            `mapstructure:"url" validate:"omitempty,url"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout" default:"5s"`
}

// WebhookNotifier posts {"text", "timestamp"} to a URL.
type WebhookNotifier struct {
	url     string
	headers map[string]string
	enabled bool
	client  *http.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:     cfg.URL,
		headers: cfg.Headers,
		enabled: cfg.Enabled && cfg.URL != "",
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled returns whether the notifier is enabled.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send sends a notification via webhook.
func (w *WebhookNotifier) Send(ctx context.Context, text string) error {
	if !w.enabled {
		return apperrors.ErrNotificationDisabled
	}

	body, err := json.Marshal(map[string]string{
		"text":      text,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return apperrors.NewNotificationError(w.Name(), fmt.Errorf("failed to marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return apperrors.NewNotificationError(w.Name(), fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return apperrors.NewNotificationError(w.Name(), fmt.Errorf("failed to send: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.NewNotificationError(w.Name(), fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}
	return nil
}

// Package notify delivers trader-facing messages (Telegram, webhook, console)
// and renders them.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Channel is one delivery target.
type Channel interface {
	Name() string
	IsEnabled() bool
	Send(ctx context.Context, text string) error
}

// Result is the outcome of one dispatch. Sent is true when at least one
// enabled channel accepted the message. A dispatch with no enabled channel
// is neither sent nor an error.
type Result struct {
	Sent     bool
	Latency  time.Duration
	Err      error
	Channels []string
}

// ErrorString returns the error text, empty when the dispatch succeeded.
func (r Result) ErrorString() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Sender is what the pipeline and the trade monitor depend on.
type Sender interface {
	Send(ctx context.Context, text string) Result
}

// MultiNotifier sends a message to every enabled channel.
type MultiNotifier struct {
	channels []Channel
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// NewMultiNotifier creates a notifier over the given channels.
func NewMultiNotifier(logger zerolog.Logger, channels ...Channel) *MultiNotifier {
	return &MultiNotifier{
		channels: channels,
		logger:   logger.With().Str("component", "notify").Logger(),
	}
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch Channel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Enabled reports whether any channel would deliver.
func (mn *MultiNotifier) Enabled() bool {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	for _, ch := range mn.channels {
		if ch.IsEnabled() {
			return true
		}
	}
	return false
}

// Send dispatches text to all enabled channels. Failures are collected and
// never abort the remaining channels.
func (mn *MultiNotifier) Send(ctx context.Context, text string) Result {
	mn.mu.RLock()
	channels := make([]Channel, len(mn.channels))
	copy(channels, mn.channels)
	mn.mu.RUnlock()

	start := time.Now()
	var res Result
	var errs []error
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, text); err != nil {
			mn.logger.Warn().Err(err).Str("channel", ch.Name()).Msg("notification failed")
			errs = append(errs, err)
			continue
		}
		res.Sent = true
		res.Channels = append(res.Channels, ch.Name())
	}
	res.Latency = time.Since(start)
	res.Err = errors.Join(errs...)
	return res
}

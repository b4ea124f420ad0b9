package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ConsoleNotifier prints messages to a terminal. It is the channel used for
// dry runs when no Telegram bot is configured.
type ConsoleNotifier struct {
	w       io.Writer
	enabled bool
	mu      sync.Mutex
}

// NewConsoleNotifier creates a console channel writing to w (stdout when nil).
func NewConsoleNotifier(w io.Writer, enabled bool) *ConsoleNotifier {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleNotifier{w: w, enabled: enabled}
}

// Name returns the name of the notifier.
func (c *ConsoleNotifier) Name() string {
	return "console"
}

// IsEnabled returns whether the notifier is enabled.
func (c *ConsoleNotifier) IsEnabled() bool {
	return c.enabled
}

// Send writes the message between two rules.
func (c *ConsoleNotifier) Send(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rule := strings.Repeat("─", 40)
	_, err := fmt.Fprintf(c.w, "%s %s\n%s\n%s\n", rule, time.Now().Format("15:04:05"), text, rule)
	return err
}

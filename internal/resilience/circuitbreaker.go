// Package resilience guards calls to the upstream feeds (the MT5 bridge and
// the news calendar) so a dead endpoint fails fast instead of stalling every
// decision cycle on its timeout.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"github.com/rs/zerolog"

	apperrors "gold-scalper/internal/errors"
)

// State is the breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit open")

// OpenError carries the breaker name and the time left before a probe is let
// through. It matches both ErrOpen and apperrors.ErrProviderDown.
type OpenError struct {
	Name    string
	RetryIn time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%s: circuit open, retry in %s", e.Name, e.RetryIn.Round(time.Second))
}

func (e *OpenError) Unwrap() []error {
	return []error{ErrOpen, apperrors.ErrProviderDown}
}

// BreakerConfig tunes a breaker.
type BreakerConfig struct {
	// Consecutive failures that open the circuit.
	FailureThreshold int `mapstructure:"failure_threshold" default:"5"`
	// How long the circuit stays open before a probe.
	OpenFor time.Duration `mapstructure:"open_for" default:"30s"`
	// Successful probes needed to close again.
	ProbeSuccesses int `mapstructure:"probe_successes" default:"1"`
}

// DefaultBreakerConfig returns the default thresholds.
func DefaultBreakerConfig() BreakerConfig {
	var c BreakerConfig
	_ = defaults.Set(&c)
	return c
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithLogger logs state transitions.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Breaker) { b.logger = logger }
}

// OnStateChange registers a transition hook. It runs with the breaker lock
// released.
func OnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	name     string
	cfg      BreakerConfig
	now      func() time.Time
	logger   zerolog.Logger
	onChange func(name string, from, to State)

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	probing   bool
	openedAt  time.Time
	lastErr   error
}

// NewBreaker creates a closed breaker. Zero config fields take defaults.
func NewBreaker(name string, cfg BreakerConfig, opts ...Option) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = def.OpenFor
	}
	if cfg.ProbeSuccesses <= 0 {
		cfg.ProbeSuccesses = def.ProbeSuccesses
	}
	b := &Breaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: zerolog.Nop(),
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Call runs fn through the breaker. Errors caused by the caller's own
// context ending are returned but not counted as upstream failures.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.acquire(); err != nil {
		return zero, err
	}
	v, err := fn(ctx)
	b.release(ctx, err)
	return v, err
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	var from State
	switch b.state {
	case StateOpen:
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.cfg.OpenFor {
			b.mu.Unlock()
			return &OpenError{Name: b.name, RetryIn: b.cfg.OpenFor - elapsed}
		}
		from = b.setState(StateHalfOpen)
		b.probing = true
		b.mu.Unlock()
		b.notify(from, StateHalfOpen)
		return nil
	case StateHalfOpen:
		// One probe at a time.
		if b.probing {
			b.mu.Unlock()
			return &OpenError{Name: b.name}
		}
		b.probing = true
	}
	b.mu.Unlock()
	return nil
}

func (b *Breaker) release(ctx context.Context, err error) {
	b.mu.Lock()
	if b.state == StateHalfOpen {
		b.probing = false
	}
	if err != nil && ctx.Err() != nil {
		b.mu.Unlock()
		return
	}

	var from, to State
	if err == nil {
		b.failures = 0
		b.lastErr = nil
		if b.state == StateHalfOpen {
			b.successes++
			if b.successes >= b.cfg.ProbeSuccesses {
				to = StateClosed
				from = b.setState(to)
			}
		}
	} else {
		b.lastErr = err
		switch b.state {
		case StateHalfOpen:
			to = StateOpen
			from = b.setState(to)
		case StateClosed:
			b.failures++
			if b.failures >= b.cfg.FailureThreshold {
				to = StateOpen
				from = b.setState(to)
			}
		}
	}
	b.mu.Unlock()

	if to != "" {
		b.notify(from, to)
	}
}

// setState must be called with mu held. It returns the previous state.
func (b *Breaker) setState(to State) State {
	from := b.state
	b.state = to
	b.successes = 0
	switch to {
	case StateOpen:
		b.openedAt = b.now()
	case StateClosed:
		b.failures = 0
	}
	return from
}

func (b *Breaker) notify(from, to State) {
	ev := b.logger.Info()
	if to == StateOpen {
		ev = b.logger.Warn()
		b.mu.Lock()
		if b.lastErr != nil {
			ev = ev.Err(b.lastErr)
		}
		b.mu.Unlock()
	}
	ev.Str("breaker", b.name).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("circuit state changed")
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}

// State returns the current state. An open breaker whose wait has elapsed
// still reports open until the next call probes it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// Snapshot is a point-in-time view for health reporting.
type Snapshot struct {
	Name      string     `json:"name"`
	State     State      `json:"state"`
	Failures  int        `json:"failures"`
	OpenedAt  *time.Time `json:"opened_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Snapshot returns the breaker's current view.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Snapshot{Name: b.name, State: b.state, Failures: b.failures}
	if b.state != StateClosed {
		t := b.openedAt
		s.OpenedAt = &t
	}
	if b.lastErr != nil {
		s.LastError = b.lastErr.Error()
	}
	return s
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.setState(StateClosed)
	b.probing = false
	b.lastErr = nil
	b.mu.Unlock()
	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}

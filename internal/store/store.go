// Package store persists the per-day trading state, the signal log, the
// trade outcome log and idempotency markers.
package store

import (
	"context"
	"time"

	"gold-scalper/internal/models"
)

// DayStore is the repository the pipeline and the trade monitor work
// against. Every read-modify-write of a day record goes through WithDay.
type DayStore interface {
	// WithDay loads the day record, runs fn on it and commits the result,
	// all under the day lock and inside one transaction. The record is not
	// written when fn returns an error.
	WithDay(ctx context.Context, day string, fn func(st *models.DayState) error) error
	GetDay(ctx context.Context, day string) (*models.DayState, error)

	// ApplyBreakeven moves the stop of the trade started at startedAt to
	// newStop only if breakeven was not applied yet. It reports whether a
	// row changed.
	ApplyBreakeven(ctx context.Context, day string, startedAt time.Time, newStop, partialPts float64, at time.Time) (bool, error)

	// AppendOutcome records a closed trade once per start timestamp and
	// reports whether it was new.
	AppendOutcome(ctx context.Context, o *models.TradeOutcome) (bool, error)
	Outcomes(ctx context.Context, day string) ([]models.TradeOutcome, error)

	SaveSignal(ctx context.Context, rec *models.SignalRecord) (int64, error)
	RecentSignals(ctx context.Context, filter SignalFilter) ([]models.SignalRecord, error)
	WasTelegramSent(ctx context.Context, signalKey string) (bool, error)

	// MarkOnce stores an idempotency key and reports whether it was absent.
	MarkOnce(ctx context.Context, key string, at time.Time) (bool, error)
	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error

	Summary(ctx context.Context, day string) (*models.DaySummary, error)
	ResetDay(ctx context.Context, day string, opts ResetOptions) error

	Close() error
}

// SignalFilter narrows RecentSignals.
type SignalFilter struct {
	Day    string
	Status models.DecisionStatus
	Limit  int
}

// ResetOptions selects what an admin reset clears.
type ResetOptions struct {
	ClearActive   bool
	ClearCooldown bool
	ClearLoss     bool
}

// Options configures the SQLite store.
type Options struct {
	Path          string  `mapstructure:"path" default:"data/gold_scalper.db"`
	DailyBudget   float64 `mapstructure:"-"`
	MaxOpenConns  int     `mapstructure:"max_open_conns" default:"4"`
	BusyTimeoutMS int     `mapstructure:"busy_timeout_ms" default:"5000"`
}

// Package trading turns analysis into decisions: session windows, the hard
// rule gate, the decision pipeline, the trade lifecycle monitor and the
// cycle runner.
package trading

import (
	"context"
	"time"

	"gold-scalper/internal/models"
	"gold-scalper/internal/notify"
)

// MarketData provides candles and quotes for the instrument.
type MarketData interface {
	Candles(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.Candle, error)
	Tick(ctx context.Context, symbol string) (models.Tick, error)
	Spread(ctx context.Context, symbol string) (float64, error)
	ServerTime(ctx context.Context) (time.Time, error)
}

// NewsLock reports the news lock and timing at a given instant. A degraded
// provider returns a state with ProviderOK=false rather than an error when
// it can.
type NewsLock interface {
	Lock(ctx context.Context, now time.Time) (models.NewsState, error)
}

// Notifier delivers trader-facing messages.
type Notifier interface {
	Send(ctx context.Context, text string) notify.Result
}

// Bridge acts on the live position. Both calls report success and never
// return errors; failures are logged by the implementation.
type Bridge interface {
	ModifyStopToBreakeven(ctx context.Context, symbol string, newStop float64, dir models.Direction) bool
	ClosePartial(ctx context.Context, symbol string, dir models.Direction, percent float64) bool
}

// Recorder receives cycle metrics. A nil Recorder is allowed everywhere.
type Recorder interface {
	RecordCycle(kind string, d time.Duration, err error)
	RecordDecision(status models.DecisionStatus, blockedBy models.BlockedBy, score int)
	RecordNotification(kind string, res notify.Result)
	RecordSuivi(status string)
	RecordBridge(action string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordCycle(string, time.Duration, error)                    {}
func (nopRecorder) RecordDecision(models.DecisionStatus, models.BlockedBy, int) {}
func (nopRecorder) RecordNotification(string, notify.Result)                    {}
func (nopRecorder) RecordSuivi(string)                                          {}
func (nopRecorder) RecordBridge(string, bool)                                   {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

// Clock returns the current time. Tests replace it.
type Clock func() time.Time

// Package news turns economic calendar events into the news lock and the
// timing hints used by the decision pipeline and the trade monitor.
package news

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/rs/zerolog"

	apperrors "gold-scalper/internal/errors"
	"gold-scalper/internal/logging"
	"gold-scalper/internal/models"
	"gold-scalper/internal/resilience"
)

// Provider names accepted in the configuration.
const (
	ProviderNone             = "none"
	ProviderStatic           = "static"
	ProviderMock             = "mock"
	ProviderAPI              = "api"
	ProviderCalendarAPI      = "calendar_api"
	ProviderTradingEconomics = "tradingeconomics"
)

// Normalized impact levels.
const (
	ImpactHigh   = "HIGH"
	ImpactMedium = "MEDIUM"
	ImpactLow    = "LOW"
)

// Params configures the news provider and the lock windows.
type Params struct {
	Provider         string   `mapstructure:"provider" default:"static" validate:"oneof=none static mock api calendar_api tradingeconomics"`
	CalendarPath     string   `mapstructure:"calendar_path" default:"data/news_calendar.yaml"`
	APIBaseURL       string   `mapstructure:"api_base_url" validate:"omitempty,url"`
	APIKey           string   `mapstructure:"api_key"`
	TEBaseURL        string   `mapstructure:"te_base_url" default:"https://api.tradingeconomics.com" validate:"omitempty,url"`
	TEAPIKey         string   `mapstructure:"te_api_key"`
	CacheTTLSec      int      `mapstructure:"cache_ttl_sec" default:"300" validate:"gte=0"`
	TimeoutSec       int      `mapstructure:"timeout_sec" default:"4" validate:"gt=0"`
	Retry            int      `mapstructure:"retry" default:"1" validate:"gte=0,lte=5"`
	FallbackToStatic bool     `mapstructure:"fallback_to_static" default:"true"`
	Currencies       []string `mapstructure:"currencies" default:"[\"USD\"]"`
	ImpactMin        string   `mapstructure:"impact_min" default:"HIGH" validate:"oneof=HIGH MEDIUM MED LOW"`
	Countries        []string `mapstructure:"countries" default:"[\"united states\"]"`
	ImportanceMin    int      `mapstructure:"importance_min" default:"2" validate:"gte=1,lte=3"`
	LookaheadHours   int      `mapstructure:"lookahead_hours" default:"24" validate:"gt=0"`
	PreAlertMinutes  []int    `mapstructure:"prealert_minutes" default:"[60,30,15]"`
	HighPreMin       int      `mapstructure:"lock_high_pre_min" default:"30" validate:"gte=0"`
	HighPostMin      int      `mapstructure:"lock_high_post_min" default:"90" validate:"gte=0"`
	MedPreMin        int      `mapstructure:"lock_med_pre_min" default:"10" validate:"gte=0"`
	MedPostMin       int      `mapstructure:"lock_med_post_min" default:"5" validate:"gte=0"`

	Breaker resilience.BreakerConfig `mapstructure:"breaker"`
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	var p Params
	_ = defaults.Set(&p)
	return p
}

func (p Params) timeout() time.Duration {
	return time.Duration(p.TimeoutSec) * time.Second
}

func (p Params) cacheTTL() time.Duration {
	return time.Duration(p.CacheTTLSec) * time.Second
}

// Window returns the lock window of an impact level in minutes relative to
// the event: locked from pre minutes before to post minutes after. ok is
// false for impacts that never lock.
func (p Params) Window(impact string) (pre, post int, ok bool) {
	switch NormalizeImpact(impact) {
	case ImpactHigh:
		return p.HighPreMin, p.HighPostMin, true
	case ImpactMedium:
		return p.MedPreMin, p.MedPostMin, true
	}
	return 0, 0, false
}

// NormalizeImpact maps provider spellings onto HIGH, MEDIUM and LOW.
func NormalizeImpact(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH", "H", "3":
		return ImpactHigh
	case "MEDIUM", "MED", "M", "2":
		return ImpactMedium
	}
	return ImpactLow
}

func impactRank(s string) int {
	switch NormalizeImpact(s) {
	case ImpactHigh:
		return 3
	case ImpactMedium:
		return 2
	}
	return 1
}

// Source returns raw calendar events.
type Source interface {
	Name() string
	Events(ctx context.Context, now time.Time) ([]models.NewsEvent, error)
}

// Provider computes the news state from a primary source, falling back to
// the static calendar when the primary fails.
type Provider struct {
	params   Params
	primary  Source
	fallback Source
	breaker  *resilience.Breaker
	logger   zerolog.Logger
}

// NewProvider creates a provider. fallback may be nil.
func NewProvider(params Params, primary, fallback Source, logger zerolog.Logger) *Provider {
	logger = logging.WithComponent(logger, "news")
	return &Provider{
		params:   params,
		primary:  primary,
		fallback: fallback,
		breaker:  resilience.NewBreaker("news:"+primary.Name(), params.Breaker, resilience.WithLogger(logger)),
		logger:   logger,
	}
}

// Circuit reports the primary source breaker.
func (p *Provider) Circuit() resilience.Snapshot {
	return p.breaker.Snapshot()
}

// Name returns the primary source name.
func (p *Provider) Name() string {
	return p.primary.Name()
}

// Lock returns the news state at now. When the primary source fails the
// state is still computed (from the fallback when configured) with
// ProviderOK false, and a ProviderDegradedError is returned alongside.
func (p *Provider) Lock(ctx context.Context, now time.Time) (models.NewsState, error) {
	events, err := resilience.Call(ctx, p.breaker, func(ctx context.Context) ([]models.NewsEvent, error) {
		return p.primary.Events(ctx, now)
	})

	var degraded error
	providerOK := true
	if err != nil {
		providerOK = false
		events = nil
		usedFallback := false
		if p.fallback != nil && p.params.FallbackToStatic {
			fb, ferr := p.fallback.Events(ctx, now)
			if ferr != nil {
				p.logger.Warn().Err(ferr).Msg("fallback calendar unavailable")
			} else {
				events, usedFallback = fb, true
			}
		}
		degraded = apperrors.NewProviderDegradedError(p.primary.Name(), usedFallback, err)
	}

	st := ComputeState(p.params, events, now)
	st.ProviderOK = providerOK
	return st, degraded
}

// Build assembles the provider named by params. Remote sources go through
// cache; the static calendar backs them up.
func Build(params Params, cache Cache, logger zerolog.Logger) (*Provider, error) {
	client := &http.Client{Timeout: params.timeout()}
	static := NewStaticSource(params.CalendarPath)

	var primary Source
	switch strings.ToLower(params.Provider) {
	case ProviderNone, "":
		primary = emptySource{}
	case ProviderStatic, ProviderMock:
		return NewProvider(params, static, nil, logger), nil
	case ProviderAPI:
		primary = NewCalendarSource(CalendarConfig{
			Name: ProviderAPI, BaseURL: params.APIBaseURL, Path: "/events",
			APIKey: params.APIKey, Retry: params.Retry,
		}, client, logger)
	case ProviderCalendarAPI:
		primary = NewCalendarSource(CalendarConfig{
			Name: ProviderCalendarAPI, BaseURL: params.APIBaseURL, Path: "/calendar",
			APIKey: params.APIKey, Retry: params.Retry,
			Currencies: params.Currencies, ImpactMin: params.ImpactMin,
		}, client, logger)
	case ProviderTradingEconomics:
		if params.TEAPIKey == "" {
			return nil, fmt.Errorf("%w: tradingeconomics needs te_api_key", apperrors.ErrConfigInvalid)
		}
		primary = NewTradingEconomicsSource(TEConfig{
			BaseURL: params.TEBaseURL, APIKey: params.TEAPIKey, Retry: params.Retry,
			Countries: params.Countries, ImportanceMin: params.ImportanceMin,
			Lookahead: time.Duration(params.LookaheadHours) * time.Hour,
		}, client, logger)
	default:
		return nil, fmt.Errorf("%w: unknown news provider %q", apperrors.ErrConfigInvalid, params.Provider)
	}

	if cache != nil && params.CacheTTLSec > 0 {
		primary = NewCachedSource(primary, cache, params.cacheTTL())
	}
	var fallback Source
	if params.FallbackToStatic {
		fallback = static
	}
	return NewProvider(params, primary, fallback, logger), nil
}

type emptySource struct{}

func (emptySource) Name() string { return ProviderNone }

func (emptySource) Events(context.Context, time.Time) ([]models.NewsEvent, error) {
	return nil, nil
}

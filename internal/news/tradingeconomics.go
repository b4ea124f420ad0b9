package news

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "gold-scalper/internal/errors"
	"gold-scalper/internal/logging"
	"gold-scalper/internal/models"
	"gold-scalper/pkg/utils"
)

// TEConfig configures the TradingEconomics calendar.
type TEConfig struct {
	BaseURL       string
	APIKey        string
	Retry         int
	Countries     []string
	ImportanceMin int
	Lookahead     time.Duration
}

// TradingEconomicsSource reads the per-country TradingEconomics calendar.
type TradingEconomicsSource struct {
	cfg    TEConfig
	client *http.Client
	retry  utils.RetryConfig
	logger zerolog.Logger
}

// NewTradingEconomicsSource creates the source.
func NewTradingEconomicsSource(cfg TEConfig, client *http.Client, logger zerolog.Logger) *TradingEconomicsSource {
	if client == nil {
		client = &http.Client{Timeout: 4 * time.Second}
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 24 * time.Hour
	}
	retry := utils.DefaultRetryConfig().Attempts(cfg.Retry + 1)
	retry.Retryable = retryableHTTP
	return &TradingEconomicsSource{
		cfg:    cfg,
		client: client,
		retry:  retry,
		logger: logging.WithComponent(logger, "news.tradingeconomics"),
	}
}

func (s *TradingEconomicsSource) Name() string { return ProviderTradingEconomics }

type teItem struct {
	CalendarID any    `json:"CalendarId"`
	ID         any    `json:"Id"`
	Date       string `json:"Date"`
	Time       string `json:"Time"`
	Country    string `json:"Country"`
	Currency   string `json:"Currency"`
	Event      string `json:"Event"`
	Title      string `json:"Title"`
	Importance any    `json:"Importance"`
	Actual     any    `json:"Actual"`
	Forecast   any    `json:"Forecast"`
	Previous   any    `json:"Previous"`
}

// Events fetches every configured country between now and the lookahead.
// A failing country fails the whole fetch so the provider falls back.
func (s *TradingEconomicsSource) Events(ctx context.Context, now time.Time) ([]models.NewsEvent, error) {
	var out []models.NewsEvent
	for _, country := range s.cfg.Countries {
		country = strings.TrimSpace(country)
		if country == "" {
			continue
		}
		items, err := s.country(ctx, country, now)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			ev, ok := s.convert(it, country)
			if !ok {
				continue
			}
			out = append(out, ev)
		}
	}
	return out, nil
}

// country tries the dated endpoint first and the undated one after.
func (s *TradingEconomicsSource) country(ctx context.Context, country string, now time.Time) ([]teItem, error) {
	start := now.UTC().Format("2006-01-02")
	end := now.UTC().Add(s.cfg.Lookahead).Format("2006-01-02")
	base := strings.TrimRight(s.cfg.BaseURL, "/") + "/calendar/country/" + url.PathEscape(country)

	items, err := s.get(ctx, base+"/"+start+"/"+end)
	if err == nil {
		return items, nil
	}
	s.logger.Debug().Err(err).Str("country", country).Msg("dated calendar failed, trying undated")
	items, ferr := s.get(ctx, base)
	if ferr != nil {
		return nil, fmt.Errorf("tradingeconomics %s: %w", country, err)
	}
	return items, nil
}

func (s *TradingEconomicsSource) get(ctx context.Context, endpoint string) ([]teItem, error) {
	body, err := utils.RetryWithResult(ctx, s.retry, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?c="+url.QueryEscape(s.cfg.APIKey), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build calendar request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		return doGet(s.client, req, s.logger)
	})
	if err != nil {
		return nil, err
	}
	var items []teItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, apperrors.NewMalformedResponseError(ProviderTradingEconomics, snippet(body), err)
	}
	return items, nil
}

func (s *TradingEconomicsSource) convert(it teItem, country string) (models.NewsEvent, bool) {
	ts, err := teTime(it.Date, it.Time)
	if err != nil {
		s.logger.Debug().Err(err).Msg("skipping calendar item")
		return models.NewsEvent{}, false
	}
	importance, known := teImportance(it.Importance)
	if known && importance < s.cfg.ImportanceMin {
		return models.NewsEvent{}, false
	}

	title := firstNonEmpty(it.Event, it.Title)
	ctry := firstNonEmpty(it.Country, country)
	id := firstNonEmpty(scalar(it.CalendarID), scalar(it.ID))
	if id == "" {
		id = StableID(title, ctry, ts)
	}
	return models.NewsEvent{
		ID:       id,
		Time:     ts,
		Impact:   importanceImpact(importance),
		Title:    title,
		Currency: strings.ToUpper(firstNonEmpty(it.Currency, ctry)),
		Country:  ctry,
		Actual:   scalar(it.Actual),
		Forecast: scalar(it.Forecast),
		Previous: scalar(it.Previous),
		Source:   ProviderTradingEconomics,
	}, true
}

// StableID identifies an event that came without an id.
func StableID(title, country string, t time.Time) string {
	sum := sha1.Sum([]byte(title + "|" + country + "|" + t.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:])
}

// teTime joins a Date (full timestamp or day) with an optional Time.
func teTime(date, clock string) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if clock != "" && len(date) == len("2006-01-02") {
		return ParseEventTime(date + " " + clock)
	}
	return ParseEventTime(date)
}

func teImportance(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	}
	return 0, false
}

func importanceImpact(n int) string {
	switch {
	case n >= 3:
		return ImpactHigh
	case n == 2:
		return ImpactMedium
	}
	return ImpactLow
}

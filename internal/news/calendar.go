package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "gold-scalper/internal/errors"
	"gold-scalper/internal/logging"
	"gold-scalper/internal/models"
	"gold-scalper/pkg/utils"
)

// CalendarConfig configures a Bearer-authenticated calendar API.
type CalendarConfig struct {
	Name    string
	BaseURL string
	Path    string
	APIKey  string
	Retry   int
	// Currencies and ImpactMin filter the events; empty disables the
	// filter and the matching query parameter.
	Currencies []string
	ImpactMin  string
}

// CalendarSource reads events from a JSON calendar API.
type CalendarSource struct {
	cfg        CalendarConfig
	client     *http.Client
	retry      utils.RetryConfig
	currencies map[string]bool
	logger     zerolog.Logger
}

// NewCalendarSource creates a calendar API source.
func NewCalendarSource(cfg CalendarConfig, client *http.Client, logger zerolog.Logger) *CalendarSource {
	if client == nil {
		client = &http.Client{Timeout: 4 * time.Second}
	}
	currencies := map[string]bool{}
	for _, c := range cfg.Currencies {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			currencies[c] = true
		}
	}
	retry := utils.DefaultRetryConfig().Attempts(cfg.Retry + 1)
	retry.Retryable = retryableHTTP
	return &CalendarSource{
		cfg:        cfg,
		client:     client,
		retry:      retry,
		currencies: currencies,
		logger:     logging.WithComponent(logger, "news."+cfg.Name),
	}
}

func (s *CalendarSource) Name() string { return s.cfg.Name }

// calendarItem accepts the field spellings of the calendar feeds we read.
type calendarItem struct {
	ID          any    `json:"id"`
	EventID     any    `json:"event_id"`
	DatetimeUTC string `json:"datetime_utc"`
	DatetimeISO string `json:"datetime_iso"`
	Datetime    string `json:"datetime"`
	Time        string `json:"time"`
	Currency    string `json:"currency"`
	Ccy         string `json:"ccy"`
	Country     string `json:"country"`
	Impact      string `json:"impact"`
	ImpactLevel string `json:"impact_level"`
	Title       string `json:"title"`
	Event       string `json:"event"`
	Name        string `json:"name"`
	Actual      any    `json:"actual"`
	Forecast    any    `json:"forecast"`
	Previous    any    `json:"previous"`
	Source      string `json:"source"`
}

type calendarResponse struct {
	Events []calendarItem `json:"events"`
	Source string         `json:"source"`
}

// Events fetches and filters the calendar.
func (s *CalendarSource) Events(ctx context.Context, _ time.Time) ([]models.NewsEvent, error) {
	if s.cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: %s base url not configured", apperrors.ErrConfigInvalid, s.cfg.Name)
	}
	body, err := utils.RetryWithResult(ctx, s.retry, func() ([]byte, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}

	resp, err := decodeCalendar(body)
	if err != nil {
		return nil, apperrors.NewMalformedResponseError(s.cfg.Name, snippet(body), err)
	}

	minRank := 0
	if s.cfg.ImpactMin != "" {
		minRank = impactRank(s.cfg.ImpactMin)
	}
	out := make([]models.NewsEvent, 0, len(resp.Events))
	for _, it := range resp.Events {
		ev, ok := s.convert(it, resp.Source)
		if !ok {
			continue
		}
		if len(s.currencies) > 0 && !s.currencies[ev.Currency] {
			continue
		}
		if impactRank(ev.Impact) < minRank {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *CalendarSource) fetch(ctx context.Context) ([]byte, error) {
	u := strings.TrimRight(s.cfg.BaseURL, "/") + s.cfg.Path
	q := url.Values{}
	if len(s.currencies) > 0 {
		list := make([]string, 0, len(s.currencies))
		for c := range s.currencies {
			list = append(list, c)
		}
		sort.Strings(list)
		q.Set("currencies", strings.Join(list, ","))
	}
	if s.cfg.ImpactMin != "" {
		q.Set("impact_min", NormalizeImpact(s.cfg.ImpactMin))
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build calendar request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	return doGet(s.client, req, s.logger)
}

func (s *CalendarSource) convert(it calendarItem, source string) (models.NewsEvent, bool) {
	raw := firstNonEmpty(it.DatetimeUTC, it.DatetimeISO, it.Datetime, it.Time)
	ts, err := ParseEventTime(raw)
	if err != nil {
		s.logger.Debug().Err(err).Msg("skipping calendar item")
		return models.NewsEvent{}, false
	}
	title := firstNonEmpty(it.Title, it.Event, it.Name)
	ccy := strings.ToUpper(firstNonEmpty(it.Currency, it.Ccy))
	id := firstNonEmpty(scalar(it.ID), scalar(it.EventID))
	if id == "" {
		id = fmt.Sprintf("%s-%s-%s", ccy, title, raw)
	}
	return models.NewsEvent{
		ID:       id,
		Time:     ts,
		Impact:   NormalizeImpact(firstNonEmpty(it.Impact, it.ImpactLevel)),
		Title:    title,
		Currency: ccy,
		Country:  it.Country,
		Actual:   scalar(it.Actual),
		Forecast: scalar(it.Forecast),
		Previous: scalar(it.Previous),
		Source:   firstNonEmpty(it.Source, source, s.cfg.Name),
	}, true
}

// decodeCalendar accepts {"events": [...]} or a bare list.
func decodeCalendar(body []byte) (calendarResponse, error) {
	var resp calendarResponse
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		err := json.Unmarshal(body, &resp.Events)
		return resp, err
	}
	err := json.Unmarshal(body, &resp)
	return resp, err
}

// httpStatusError is a non-2xx answer. Only 5xx and 429 are retried.
type httpStatusError struct {
	Status int
	Body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

func retryableHTTP(err error) bool {
	var se *httpStatusError
	if errors.As(err, &se) {
		return se.Status >= 500 || se.Status == http.StatusTooManyRequests
	}
	return true
}

func doGet(client *http.Client, req *http.Request, logger zerolog.Logger) ([]byte, error) {
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		logging.LogAPICall(logger, req.Method, req.URL.Path, time.Since(start), err)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrProviderDown, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = &httpStatusError{Status: resp.StatusCode, Body: snippet(body)}
	}
	logging.LogAPICall(logger, req.Method, req.URL.Path, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func snippet(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit])
	}
	return string(body)
}

// scalar renders an optional JSON scalar.
func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}

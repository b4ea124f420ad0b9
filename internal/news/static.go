package news

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gold-scalper/internal/models"
)

// StaticSource reads events from a local YAML or JSON calendar. A missing
// file is an empty calendar.
type StaticSource struct {
	path string
}

// NewStaticSource creates a static source.
func NewStaticSource(path string) *StaticSource {
	return &StaticSource{path: path}
}

func (s *StaticSource) Name() string { return ProviderStatic }

// staticEvent is one calendar entry. Times are kept as strings so that
// quoted JSON timestamps decode the same way as YAML ones.
type staticEvent struct {
	ID          string `yaml:"id"`
	DatetimeISO string `yaml:"datetime_iso"`
	DatetimeUTC string `yaml:"datetime_utc"`
	Impact      string `yaml:"impact"`
	Title       string `yaml:"title"`
	Currency    string `yaml:"currency"`
	Country     string `yaml:"country"`
	Forecast    string `yaml:"forecast"`
	Previous    string `yaml:"previous"`
}

// Events loads the file on every call; remote sources are the cached ones.
func (s *StaticSource) Events(_ context.Context, _ time.Time) ([]models.NewsEvent, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read news calendar: %w", err)
	}
	return ParseCalendar(data)
}

// ParseCalendar decodes a calendar document: either a list of events or a
// mapping with an "events" list. JSON is valid YAML.
func ParseCalendar(data []byte) ([]models.NewsEvent, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	var raw []staticEvent
	if err := yaml.Unmarshal(data, &raw); err != nil {
		var doc struct {
			Events []staticEvent `yaml:"events"`
		}
		if derr := yaml.Unmarshal(data, &doc); derr != nil {
			return nil, fmt.Errorf("failed to parse news calendar: %w", err)
		}
		raw = doc.Events
	}

	out := make([]models.NewsEvent, 0, len(raw))
	for i, e := range raw {
		ts, err := ParseEventTime(firstNonEmpty(e.DatetimeISO, e.DatetimeUTC))
		if err != nil {
			return nil, fmt.Errorf("news calendar entry %d: %w", i, err)
		}
		out = append(out, models.NewsEvent{
			ID:       e.ID,
			Time:     ts,
			Impact:   NormalizeImpact(e.Impact),
			Title:    e.Title,
			Currency: strings.ToUpper(e.Currency),
			Country:  e.Country,
			Forecast: e.Forecast,
			Previous: e.Previous,
			Source:   ProviderStatic,
		})
	}
	return out, nil
}

var eventTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseEventTime reads the timestamp spellings seen across calendars.
// Timestamps without an offset are UTC.
func ParseEventTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty event time")
	}
	if strings.HasSuffix(s, "Z") && !strings.Contains(s, "T") {
		s = strings.TrimSuffix(s, "Z")
	}
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized event time %q", s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

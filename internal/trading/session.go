package trading

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
)

// SessionMode selects how trading windows are evaluated.
type SessionMode string

const (
	// SessionWindows opens trading only inside the configured windows.
	SessionWindows SessionMode = "windows"
	// SessionMarketClose is open all day except the daily close window.
	SessionMarketClose SessionMode = "market_close"
	// SessionOff never restricts.
	SessionOff SessionMode = "off"
)

// SessionParams configures the session manager.
type SessionParams struct {
	Mode             SessionMode `mapstructure:"mode" default:"windows" validate:"oneof=windows market_close off"`
	Windows          []string    `mapstructure:"windows" default:"[\"14:30-18:30\",\"20:00-22:00\"]"`
	MarketCloseStart string      `mapstructure:"market_close_start" default:"23:55"`
	MarketCloseEnd   string      `mapstructure:"market_close_end" default:"00:05"`
	AlwaysInSession  bool        `mapstructure:"always_in_session"`
	Timezone         string      `mapstructure:"timezone" default:"Europe/Paris"`
	LiquidStartHour  int         `mapstructure:"liquidity_hour_start" default:"8" validate:"gte=0,lte=23"`
	LiquidEndHour    int         `mapstructure:"liquidity_hour_end" default:"23" validate:"gte=0,lte=23"`
}

// DefaultSessionParams returns the Paris afternoon and evening windows.
func DefaultSessionParams() SessionParams {
	var p SessionParams
	_ = defaults.Set(&p)
	return p
}

// Window is a time-of-day interval in minutes from midnight. End < Start
// means the window wraps midnight.
type Window struct {
	Start int
	End   int
}

// Contains reports whether minute-of-day m lies inside the window, bounds
// included.
func (w Window) Contains(m int) bool {
	if w.Start <= w.End {
		return m >= w.Start && m <= w.End
	}
	return m >= w.Start || m <= w.End
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

// SessionInfo describes the session at a given instant.
type SessionInfo struct {
	Open        bool
	Liquid      bool
	LocalTime   time.Time
	Window      *Window
	Description string
}

// SessionManager decides session and liquidity windows in the local
// (Paris) timezone.
type SessionManager struct {
	mode        SessionMode
	always      bool
	location    *time.Location
	windows     []Window
	marketClose Window
	liquidStart int
	liquidEnd   int
}

// NewSessionManager parses the session parameters.
func NewSessionManager(p SessionParams) (*SessionManager, error) {
	tz := p.Timezone
	if tz == "" {
		tz = "Europe/Paris"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", tz, err)
	}

	m := &SessionManager{
		mode:        p.Mode,
		always:      p.AlwaysInSession,
		location:    loc,
		liquidStart: p.LiquidStartHour,
		liquidEnd:   p.LiquidEndHour,
	}
	if m.mode == "" {
		m.mode = SessionWindows
	}

	for _, raw := range p.Windows {
		w, err := ParseWindow(raw)
		if err != nil {
			return nil, err
		}
		m.windows = append(m.windows, w)
	}

	start, err := parseHHMM(orDefault(p.MarketCloseStart, "23:55"))
	if err != nil {
		return nil, err
	}
	end, err := parseHHMM(orDefault(p.MarketCloseEnd, "00:05"))
	if err != nil {
		return nil, err
	}
	m.marketClose = Window{Start: start, End: end}
	return m, nil
}

// Location returns the local trading timezone.
func (m *SessionManager) Location() *time.Location {
	return m.location
}

// Day returns the local trading day (YYYY-MM-DD) of t.
func (m *SessionManager) Day(t time.Time) string {
	return t.In(m.location).Format("2006-01-02")
}

// InSession reports whether new signals may be emitted at t.
func (m *SessionManager) InSession(t time.Time) bool {
	return m.GetSessionAt(t).Open
}

// GetSessionAt returns the session at a specific time.
func (m *SessionManager) GetSessionAt(t time.Time) *SessionInfo {
	local := t.In(m.location)
	minute := local.Hour()*60 + local.Minute()
	info := &SessionInfo{LocalTime: local, Liquid: m.liquidHour(local.Hour())}

	switch {
	case m.always || m.mode == SessionOff:
		info.Open = true
		info.Description = "Session toujours ouverte"
	case m.mode == SessionMarketClose:
		info.Open = !m.marketClose.Contains(minute)
		if info.Open {
			info.Description = "Marché ouvert"
		} else {
			info.Description = "Clôture marché " + m.marketClose.String()
		}
	default:
		for i := range m.windows {
			if m.windows[i].Contains(minute) {
				w := m.windows[i]
				info.Open = true
				info.Window = &w
				info.Description = "Fenêtre " + w.String()
				break
			}
		}
		if !info.Open {
			info.Description = "Hors fenêtre de trading"
		}
	}
	return info
}

// LiquidityCheck reports whether the local hour of t is inside the liquid
// window; reason is set when it is not.
func (m *SessionManager) LiquidityCheck(t time.Time) (ok bool, reason string) {
	h := t.In(m.location).Hour()
	if m.liquidHour(h) {
		return true, ""
	}
	if m.liquidStart <= m.liquidEnd {
		return false, fmt.Sprintf("Hors heures liquides (%dh Paris, fenêtre %dh-%dh)", h, m.liquidStart, m.liquidEnd)
	}
	return false, fmt.Sprintf("Hors heures liquides (%dh Paris)", h)
}

func (m *SessionManager) liquidHour(h int) bool {
	if m.liquidStart <= m.liquidEnd {
		return h >= m.liquidStart && h <= m.liquidEnd
	}
	// night window, e.g. 22-6
	return !(h > m.liquidEnd && h < m.liquidStart)
}

// NextOpen returns the next instant at or after t when the session is open,
// searching minute by minute over two days. Zero when none is found.
func (m *SessionManager) NextOpen(t time.Time) time.Time {
	cur := t.Truncate(time.Minute)
	for i := 0; i < 2*24*60; i++ {
		if m.InSession(cur) {
			return cur
		}
		cur = cur.Add(time.Minute)
	}
	return time.Time{}
}

// ParseWindow parses "HH:MM-HH:MM".
func ParseWindow(raw string) (Window, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("invalid session window %q: want HH:MM-HH:MM", raw)
	}
	start, err := parseHHMM(parts[0])
	if err != nil {
		return Window{}, err
	}
	end, err := parseHHMM(parts[1])
	if err != nil {
		return Window{}, err
	}
	return Window{Start: start, End: end}, nil
}

func parseHHMM(raw string) (int, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return h*60 + mm, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

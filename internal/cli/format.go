package cli

import (
	"fmt"
	"strings"
	"time"

	"gold-scalper/internal/models"
	"gold-scalper/pkg/utils"
)

// FormatTime formats t as HH:MM:SS in loc.
func FormatTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("15:04:05")
}

// FormatDateTime formats t in loc.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04:05")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// FormatRiskReward formats a risk-reward ratio.
func FormatRiskReward(rr float64) string {
	return fmt.Sprintf("1:%.2f", rr)
}

// TruncateString truncates a string to maxLen runes with an ellipsis.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// packetLines renders the essentials of a decision packet for Box.
func packetLines(o *Output, p *models.DecisionPacket) []string {
	lines := make([]string, 0, 12)
	status := models.StatusNoGo
	if p.Decision != nil {
		status = p.Decision.Status
	}
	head := o.Status(status)
	if p.Decision != nil && p.Decision.BlockedBy != models.BlockedNone {
		head += "  " + o.Yellow(string(p.Decision.BlockedBy))
	}
	lines = append(lines, head)

	if p.Decision != nil {
		lines = append(lines, fmt.Sprintf("Score: %d (effective %d)  Quality: %s  Confidence: %d%%",
			p.Decision.ScoreTotal, p.Decision.ScoreEffective, p.Decision.Quality, p.Decision.Confidence))
	}
	if p.Direction.Valid() {
		lines = append(lines,
			fmt.Sprintf("Direction: %s  Setups: %s", p.Direction, strings.Join(p.Setups, ", ")),
			fmt.Sprintf("Entry: %s  SL: %s  TP1: %s  TP2: %s",
				utils.FormatPrice(p.Entry), utils.FormatPrice(p.StopLoss), utils.FormatPrice(p.TP1), utils.FormatPrice(p.TP2)),
			fmt.Sprintf("RR TP1: %s  RR TP2: %s  Risk: %.1f pts",
				FormatRiskReward(p.RRTP1), FormatRiskReward(p.RRTP2), p.RiskPoints()),
		)
	}
	price := "n/a"
	if p.CurrentPrice != nil {
		price = utils.FormatPrice(*p.CurrentPrice)
	}
	lines = append(lines,
		fmt.Sprintf("Price: %s  Spread: %.1f/%.1f  ATR: %.1f/%.1f", price, p.Spread, p.SpreadMax, p.ATR, p.ATRMax),
		fmt.Sprintf("Bias H1: %s  Structure: %s  Timing: %v", p.BiasH1, p.State.Structure, p.State.TimingReady),
	)
	if p.NewsState.NextEvent != nil {
		ev := p.NewsState.NextEvent
		news := fmt.Sprintf("News: %s (%s)", TruncateString(ev.Title, 40), ev.Impact)
		if p.NewsState.MinutesToEvent != nil {
			news += " in " + utils.FormatMinutes(time.Duration(*p.NewsState.MinutesToEvent)*time.Minute)
		}
		if p.NewsLock {
			news += "  " + o.Red("LOCK")
		}
		lines = append(lines, news)
	}
	if p.Decision != nil {
		for _, why := range p.Decision.Why {
			lines = append(lines, o.DimText("• "+why))
		}
	}
	lines = append(lines, o.DimText(fmt.Sprintf("%s  data %d ms", p.Timestamps.Local, p.DataLatencyMs)))
	return lines
}

package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"gold-scalper/internal/models"
)

// Feature: gold-scalper, Property 7: Truncated labels fit their column
//
// For any string and width, TruncateString returns at most width runes and
// returns short strings unchanged.
func TestProperty_TruncateStringFits(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("truncated string fits", prop.ForAll(
		func(s string, width int) bool {
			out := TruncateString(s, width)
			if utf8.RuneCountInString(s) <= width {
				return out == s
			}
			if utf8.RuneCountInString(out) != width {
				return false
			}
			return width <= 3 || strings.HasSuffix(out, "...")
		},
		gen.AnyString(),
		gen.IntRange(0, 60),
	))

	properties.TestingRun(t)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "12m 5s", FormatDuration(12*time.Minute+5*time.Second))
	assert.Equal(t, "2h 30m", FormatDuration(150*time.Minute))
	assert.Equal(t, "1d 3h", FormatDuration(27*time.Hour))
	assert.Equal(t, "45s", FormatDuration(-45*time.Second))
}

func TestFormatTime(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	ts := time.Date(2026, 3, 10, 14, 5, 9, 0, time.UTC)
	assert.Equal(t, "15:05:09", FormatTime(ts, paris))
	assert.Equal(t, "14:05:09", FormatTime(ts, nil))
	assert.Equal(t, "2026-03-10 15:05:09", FormatDateTime(ts, paris))
}

func plainOutput(buf *bytes.Buffer) *Output {
	return &Output{writer: buf, style: newPalette(false)}
}

func TestPacketLines(t *testing.T) {
	price := 5021.4
	mins := 25
	p := &models.DecisionPacket{
		Symbol:       "XAUUSD",
		Direction:    models.Buy,
		Setups:       []string{"BREAK_RETEST"},
		Entry:        5020,
		StopLoss:     4998,
		TP1:          5035,
		TP2:          5050,
		RRTP1:        0.68,
		RRTP2:        1.36,
		CurrentPrice: &price,
		Spread:       12,
		SpreadMax:    20,
		NewsLock:     true,
		NewsState: models.NewsState{
			MinutesToEvent: &mins,
			NextEvent:      &models.NewsEvent{Title: "CPI m/m", Impact: "HIGH"},
		},
		Decision: &models.Decision{
			Status:     models.StatusNoGo,
			BlockedBy:  models.BlockedNewsLock,
			ScoreTotal: 85,
			Why:        []string{"News lock"},
		},
	}

	var buf bytes.Buffer
	lines := packetLines(plainOutput(&buf), p)
	text := strings.Join(lines, "\n")

	assert.Equal(t, "● NO GO  NEWS_LOCK", lines[0])
	assert.Contains(t, text, "Entry: 5020.00  SL: 4998.00  TP1: 5035.00  TP2: 5050.00")
	assert.Contains(t, text, "Risk: 22.0 pts")
	assert.Contains(t, text, "Price: 5021.40")
	assert.Contains(t, text, "CPI m/m (HIGH) in 25 min  LOCK")
	assert.Contains(t, text, "• News lock")
}

func TestPacketLines_NoDirection(t *testing.T) {
	var buf bytes.Buffer
	lines := packetLines(plainOutput(&buf), &models.DecisionPacket{})
	text := strings.Join(lines, "\n")
	assert.Equal(t, "● NO GO", lines[0])
	assert.NotContains(t, text, "Entry:")
	assert.Contains(t, text, "Price: n/a")
}

func TestTableAndBox(t *testing.T) {
	var buf bytes.Buffer
	out := plainOutput(&buf)

	table := NewTable(out, "Dir", "Points")
	table.AddRow("BUY", "+15.0")
	table.AddRow("SELL", "-20.0")
	table.Render()

	out.Box("Active", []string{"BUY XAUUSD", "Entry 5020.00"})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, "Dir   Points", lines[0])
	assert.Equal(t, "BUY   +15.0", strings.TrimRight(lines[2], " "))
	assert.Equal(t, "┌───────────────┐", lines[4])
	assert.Equal(t, "│ Active        │", lines[5])
	assert.Equal(t, "│ Entry 5020.00 │", lines[8])
}

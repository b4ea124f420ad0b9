// Package cli provides the command-line interface of the scalper.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"gold-scalper/internal/models"
	"gold-scalper/pkg/utils"
)

// palette holds the styles used by the CLI. Every style is switched off
// together when colors are disabled.
type palette struct {
	good, bad, warn, info, bold, dim *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		good: color.New(color.FgGreen),
		bad:  color.New(color.FgRed),
		warn: color.New(color.FgYellow),
		info: color.New(color.FgCyan),
		bold: color.New(color.Bold),
		dim:  color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.good, p.bad, p.warn, p.info, p.bold, p.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Output writes human or JSON output for one command.
type Output struct {
	writer   io.Writer
	jsonMode bool
	style    palette
}

// NewOutput creates the output of cmd. Colors are used only on a terminal
// and never in JSON mode or when NO_COLOR is set.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	w := cmd.OutOrStdout()
	return &Output{
		writer:   w,
		jsonMode: jsonMode,
		style:    newPalette(!jsonMode && colorTerminal(w)),
	}
}

func colorTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsJSON reports whether --json was given.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON writes data as indented JSON.
func (o *Output) JSON(data any) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (o *Output) Println(args ...any) {
	fmt.Fprintln(o.writer, args...)
}

func (o *Output) Printf(format string, args ...any) {
	fmt.Fprintf(o.writer, format, args...)
}

func (o *Output) line(c *color.Color, format string, args ...any) {
	fmt.Fprintln(o.writer, c.Sprintf(format, args...))
}

func (o *Output) Success(format string, args ...any) { o.line(o.style.good, format, args...) }
func (o *Output) Error(format string, args ...any)   { o.line(o.style.bad, format, args...) }
func (o *Output) Warning(format string, args ...any) { o.line(o.style.warn, format, args...) }
func (o *Output) Info(format string, args ...any)    { o.line(o.style.info, format, args...) }
func (o *Output) Bold(format string, args ...any)    { o.line(o.style.bold, format, args...) }
func (o *Output) Dim(format string, args ...any)     { o.line(o.style.dim, format, args...) }

func (o *Output) Green(text string) string    { return o.style.good.Sprint(text) }
func (o *Output) Red(text string) string      { return o.style.bad.Sprint(text) }
func (o *Output) Yellow(text string) string   { return o.style.warn.Sprint(text) }
func (o *Output) BoldText(text string) string { return o.style.bold.Sprint(text) }
func (o *Output) DimText(text string) string  { return o.style.dim.Sprint(text) }

// Status renders a decision status.
func (o *Output) Status(s models.DecisionStatus) string {
	if s == models.StatusGo {
		return o.Green("● GO")
	}
	return o.Red("● NO GO")
}

// Points renders a signed result, green when positive and red when negative.
func (o *Output) Points(pts float64) string {
	text := utils.FormatPoints(pts)
	switch {
	case pts > 0:
		return o.Green(text)
	case pts < 0:
		return o.Red(text)
	}
	return text
}

// Table collects rows and prints them as aligned columns.
type Table struct {
	out     *Output
	headers []string
	rows    [][]string
}

// NewTable creates a table with the given column headers.
func NewTable(out *Output, headers ...string) *Table {
	return &Table{out: out, headers: headers}
}

// AddRow appends a row. Cells beyond the header count are dropped.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render prints the header, a rule and the rows.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visibleLen(h)
	}
	for _, row := range t.rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], visibleLen(row[i]))
		}
	}

	rule := make([]string, len(widths))
	for i, w := range widths {
		rule[i] = strings.Repeat("─", w)
	}

	t.out.Println(t.out.BoldText(t.format(t.headers, widths)))
	t.out.Println(t.out.DimText(strings.Join(rule, "──")))
	for _, row := range t.rows {
		t.out.Println(t.format(row, widths))
	}
}

func (t *Table) format(cells []string, widths []int) string {
	parts := make([]string, 0, len(widths))
	for i := 0; i < len(cells) && i < len(widths); i++ {
		parts = append(parts, pad(cells[i], widths[i]))
	}
	return strings.Join(parts, "  ")
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// visibleLen is the printed width of s: runes once color codes are removed.
func visibleLen(s string) int {
	return len([]rune(ansiEscape.ReplaceAllString(s, "")))
}

func pad(s string, width int) string {
	return s + strings.Repeat(" ", max(width-visibleLen(s), 0))
}

// Box prints content in a frame with the title on its own row.
func (o *Output) Box(title string, content []string) {
	inner := visibleLen(title)
	for _, line := range content {
		inner = max(inner, visibleLen(line))
	}
	border := strings.Repeat("─", inner+2)
	side := o.DimText("│")

	o.Println(o.DimText("┌" + border + "┐"))
	o.Printf("%s %s %s\n", side, o.BoldText(pad(title, inner)), side)
	o.Println(o.DimText("├" + border + "┤"))
	for _, line := range content {
		o.Printf("%s %s %s\n", side, pad(line, inner), side)
	}
	o.Println(o.DimText("└" + border + "┘"))
}

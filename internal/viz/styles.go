package viz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Styles are the lipgloss styles derived from a Theme.
type Styles struct {
	Panel  lipgloss.Style
	Header lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style
	Good   lipgloss.Style
	Warn   lipgloss.Style
	Bad    lipgloss.Style
	Subtle lipgloss.Style
}

func NewStyles(t Theme) Styles {
	return Styles{
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Border).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Text).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(t.Border),
		Label:  lipgloss.NewStyle().Foreground(t.Muted),
		Value:  lipgloss.NewStyle().Foreground(t.Primary).Bold(true),
		Good:   lipgloss.NewStyle().Foreground(t.Good).Bold(true),
		Warn:   lipgloss.NewStyle().Foreground(t.Warning).Bold(true),
		Bad:    lipgloss.NewStyle().Foreground(t.Bad).Bold(true),
		Subtle: lipgloss.NewStyle().Foreground(t.Muted).Italic(true),
	}
}

// Summary is what the CLI prints after a run.
type Summary struct {
	Title      string
	RunID      string
	Steps      int
	Wall       time.Duration
	SolveTime  time.Duration
	TickErrors int
	Metrics    map[string]float64
	// Axes holds one trajectory per tracked axis for the sparklines.
	Axes [][]float64
}

// Render lays the summary out in a bordered panel.
func (s Summary) Render(st Styles, width int) string {
	var b strings.Builder
	b.WriteString(st.Header.Render(s.Title))
	b.WriteString("\n")

	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", st.Label.Render(fmt.Sprintf("%-16s", label)), value)
	}
	if s.RunID != "" {
		row("run", st.Value.Render(s.RunID))
	}
	row("steps", st.Value.Render(fmt.Sprint(s.Steps)))
	row("wall time", st.Value.Render(s.Wall.Round(time.Microsecond).String()))
	row("controller time", st.Value.Render(s.SolveTime.Round(time.Microsecond).String()))

	errStyle := st.Good
	if s.TickErrors > 0 {
		errStyle = st.Bad
	}
	row("tick errors", errStyle.Render(fmt.Sprint(s.TickErrors)))

	names := make([]string, 0, len(s.Metrics))
	for name := range s.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := s.Metrics[name]
		if strings.HasSuffix(name, "_ratio") {
			row(name, Bar(st, v, 20)+" "+st.Value.Render(fmt.Sprintf("%.1f%%", 100*v)))
			continue
		}
		row(name, st.Value.Render(fmt.Sprintf("%.6g", v)))
	}

	for i, axis := range s.Axes {
		row(fmt.Sprintf("x[%d]", i), Sparkline(st, axis, width))
	}

	return st.Panel.Render(strings.TrimRight(b.String(), "\n"))
}

// Bar renders ratio in [0, 1] as a filled bar.
func Bar(st Styles, ratio float64, width int) string {
	filled := int(ratio * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	if ratio > 0.8 {
		return st.Good.Render(bar)
	} else if ratio > 0.4 {
		return st.Warn.Render(bar)
	}
	return st.Bad.Render(bar)
}

// Sparkline renders values as a one-line chart of at most width cells.
func Sparkline(st Styles, values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return strings.Repeat("─", max(width, 0))
	}

	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}

	step := len(values) / width
	if step < 1 {
		step = 1
	}

	var b strings.Builder
	for i := 0; i < width && i*step < len(values); i++ {
		norm := (values[i*step] - lo) / rng
		idx := int(norm * float64(len(chars)-1))
		idx = min(max(idx, 0), len(chars)-1)
		b.WriteRune(chars[idx])
	}
	return st.Value.Render(b.String())
}

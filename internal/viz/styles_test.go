package viz

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestGetTheme(t *testing.T) {
	if got := GetTheme("retro"); got.Name != "retro" {
		t.Errorf("got %q", got.Name)
	}
	if got := GetTheme("missing"); got.Name != ThemeDefault.Name {
		t.Errorf("unknown theme should fall back to default, got %q", got.Name)
	}
	if len(ThemeNames()) != len(Themes) {
		t.Error("theme names out of sync")
	}
}

func TestSparkline(t *testing.T) {
	st := NewStyles(ThemePlain)

	line := Sparkline(st, []float64{0, 1, 2, 3, 4, 5, 6, 7}, 8)
	if !strings.HasPrefix(line, "▁") || !strings.HasSuffix(line, "█") {
		t.Errorf("unexpected sparkline %q", line)
	}

	long := make([]float64, 100)
	if n := utf8.RuneCountInString(Sparkline(st, long, 10)); n != 10 {
		t.Errorf("expected 10 cells, got %d", n)
	}

	if got := Sparkline(st, nil, 4); got != "────" {
		t.Errorf("empty input: %q", got)
	}
}

func TestBarClamps(t *testing.T) {
	st := NewStyles(ThemePlain)
	if got := Bar(st, 2, 5); got != "█████" {
		t.Errorf("got %q", got)
	}
	if got := Bar(st, -1, 5); got != "░░░░░" {
		t.Errorf("got %q", got)
	}
}

func TestSummaryRender(t *testing.T) {
	s := Summary{
		Title:      "integrator/step",
		RunID:      "integrator_1",
		Steps:      500,
		Wall:       12 * time.Millisecond,
		TickErrors: 0,
		Metrics:    map[string]float64{"tracking_iae": 0.25, "settled_ratio": 0.5},
		Axes:       [][]float64{{0, 0.5, 1}},
	}
	out := s.Render(NewStyles(ThemePlain), 20)
	for _, want := range []string{"integrator/step", "integrator_1", "500", "tracking_iae", "50.0%", "x[0]"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "settled_ratio") > strings.Index(out, "tracking_iae") {
		t.Error("metrics should be sorted by name")
	}
}

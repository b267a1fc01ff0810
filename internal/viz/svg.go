package viz

import (
	"fmt"
	"io"
	"strings"
)

var seriesColors = []string{"#00ccff", "#ff00ff", "#ffcc00", "#00ff88", "#ff4444", "#ffffff"}

// WriteSVG draws each series against times as a polyline, plus a dashed
// horizontal reference line per entry of refs (nil entries are skipped).
func WriteSVG(w io.Writer, times []float64, series [][]float64, refs []*float64, width, height int) error {
	if len(times) < 2 || len(series) == 0 {
		return fmt.Errorf("viz: need at least two samples and one series")
	}

	minX, maxX := times[0], times[len(times)-1]
	minY, maxY := series[0][0], series[0][0]
	for _, s := range series {
		for _, v := range s {
			minY = min(minY, v)
			maxY = max(maxY, v)
		}
	}
	for _, r := range refs {
		if r != nil {
			minY = min(minY, *r)
			maxY = max(maxY, *r)
		}
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeY = maxY - minY

	px := func(t float64) float64 { return (t - minX) / rangeX * float64(width) }
	py := func(v float64) float64 { return float64(height) - (v-minY)/rangeY*float64(height) }

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	for i, r := range refs {
		if r == nil {
			continue
		}
		color := seriesColors[i%len(seriesColors)]
		fmt.Fprintf(&sb, `<line x1="0" y1="%.1f" x2="%d" y2="%.1f" stroke="%s" stroke-opacity="0.5" stroke-dasharray="6,4"/>
`, py(*r), width, py(*r), color)
	}

	for i, s := range series {
		color := seriesColors[i%len(seriesColors)]
		fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="M`, color)
		for k, v := range s {
			if k >= len(times) {
				break
			}
			if k == 0 {
				fmt.Fprintf(&sb, "%.1f,%.1f", px(times[k]), py(v))
			} else {
				fmt.Fprintf(&sb, " L%.1f,%.1f", px(times[k]), py(v))
			}
		}
		sb.WriteString("\"/>\n")
	}

	sb.WriteString("</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

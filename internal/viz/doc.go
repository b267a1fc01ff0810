// Package viz renders run summaries for the terminal with lipgloss.
//
// A [Theme] picks the palette; [Summary] lays out the metrics of one run with
// a sparkline per tracked axis.
package viz

package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/nmpc/internal/config"
	"github.com/san-kum/nmpc/internal/sim"
)

type ExportData struct {
	Model      string             `json:"model"`
	Integrator string             `json:"integrator"`
	Setpoint   []float64          `json:"setpoint"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	Steps      int                `json:"steps"`
	Times      []float64          `json:"times"`
	States     [][]float64        `json:"states"`
	Controls   [][]float64        `json:"controls"`
	Metrics    map[string]float64 `json:"metrics"`
}

func newExport(cfg *config.Config, result *sim.Result) ExportData {
	data := ExportData{
		Model:      cfg.Model,
		Integrator: cfg.Integrator,
		Setpoint:   cfg.Controller.Setpoint,
		Dt:         cfg.Dt,
		Duration:   cfg.Duration,
		Steps:      len(result.Times),
		Times:      result.Times,
		States:     make([][]float64, len(result.States)),
		Controls:   make([][]float64, len(result.Controls)),
		Metrics:    result.Metrics,
	}
	for i, s := range result.States {
		data.States[i] = s
	}
	for i, c := range result.Controls {
		data.Controls[i] = c
	}
	return data
}

// WriteJSON writes the run as one indented JSON document.
func WriteJSON(w io.Writer, cfg *config.Config, result *sim.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(newExport(cfg, result))
}

func ExportJSON(path string, cfg *config.Config, result *sim.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, cfg, result)
}

package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/nmpc/internal/config"
	"github.com/san-kum/nmpc/internal/experiment"
	"github.com/san-kum/nmpc/internal/sim"
)

const (
	metadataFile   = "metadata.json"
	statesFile     = "states.csv"
	configFile     = "config.yaml"
	checkpointFile = "checkpoint.json"
	controllerFile = "controller.cbor"
)

// ErrNoCheckpoint is returned when a run was saved without a checkpoint.
var ErrNoCheckpoint = errors.New("storage: run has no checkpoint")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID           string             `json:"id"`
	Model        string             `json:"model"`
	Timestamp    time.Time          `json:"timestamp"`
	Seed         int64              `json:"seed"`
	Dt           float64            `json:"dt"`
	Duration     float64            `json:"duration"`
	Integrator   string             `json:"integrator"`
	SamplePeriod string             `json:"sample_period"`
	Horizon      int                `json:"horizon"`
	Steps        int                `json:"steps"`
	TickErrors   int                `json:"tick_errors"`
	SolveTime    string             `json:"solve_time"`
	ResumedFrom  string             `json:"resumed_from,omitempty"`
	Metrics      map[string]float64 `json:"metrics"`
}

// Save writes the run's configuration, metadata and trajectory and returns
// its ID.
func (s *Store) Save(cfg *config.Config, result *sim.Result) (string, error) {
	return s.save(cfg, result, "")
}

// SaveResumed is Save for a run continued from a checkpoint of parent.
func (s *Store) SaveResumed(cfg *config.Config, result *sim.Result, parent string) (string, error) {
	return s.save(cfg, result, parent)
}

func (s *Store) save(cfg *config.Config, result *sim.Result, parent string) (string, error) {
	runID := fmt.Sprintf("%s_%d", cfg.Model, time.Now().UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:           runID,
		Model:        cfg.Model,
		Timestamp:    time.Now(),
		Seed:         cfg.Seed,
		Dt:           cfg.Dt,
		Duration:     cfg.Duration,
		Integrator:   cfg.Integrator,
		SamplePeriod: cfg.Controller.SamplePeriod.String(),
		Horizon:      cfg.Controller.Horizon,
		Steps:        result.StepsTaken,
		TickErrors:   len(result.Errors),
		SolveTime:    result.SolveTime.String(),
		ResumedFrom:  parent,
		Metrics:      result.Metrics,
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := config.Save(filepath.Join(runDir, configFile), cfg); err != nil {
		return "", err
	}
	if err := writeStates(filepath.Join(runDir, statesFile), result); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeStates(path string, result *sim.Result) error {
	csvFile, err := os.Create(path)
	if err != nil {
		return err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	defer w.Flush()

	if len(result.States) == 0 {
		return nil
	}

	header := []string{"time"}
	for i := range result.States[0] {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	numControls := 0
	if len(result.Controls) > 0 {
		numControls = len(result.Controls[0])
		for i := 0; i < numControls; i++ {
			header = append(header, fmt.Sprintf("u%d", i))
		}
	}
	if err := w.Write(header); err != nil {
		return err
	}

	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for i := range result.States {
		row := []string{format(result.Times[i])}
		for _, val := range result.States[i] {
			row = append(row, format(val))
		}
		for j := 0; j < numControls; j++ {
			if i < len(result.Controls) {
				row = append(row, format(result.Controls[i][j]))
			} else {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns all saved runs, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.baseDir, runID, configFile))
}

// Trace is a trajectory read back from states.csv. Controls is one shorter
// than States.
type Trace struct {
	Times    []float64
	States   [][]float64
	Controls [][]float64
}

func (s *Store) LoadStates(runID string) (*Trace, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, statesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	trace := &Trace{}
	if len(records) < 2 {
		return trace, nil
	}

	header := records[0]
	for _, record := range records[1:] {
		if len(record) != len(header) {
			continue
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			continue
		}

		var x, u []float64
		for j := 1; j < len(record); j++ {
			if record[j] == "" {
				continue
			}
			val, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, fmt.Errorf("%s row at t=%s: %w", statesFile, record[0], err)
			}
			if strings.HasPrefix(header[j], "u") {
				u = append(u, val)
			} else {
				x = append(x, val)
			}
		}
		trace.Times = append(trace.Times, t)
		trace.States = append(trace.States, x)
		if len(u) > 0 {
			trace.Controls = append(trace.Controls, u)
		}
	}
	return trace, nil
}

type checkpointRecord struct {
	Time       float64   `json:"time"`
	State      []float64 `json:"state"`
	NoiseDraws int       `json:"noise_draws,omitempty"`
}

// SaveCheckpoint stores cp next to run runID: the plant part as JSON and
// the frozen controller as an opaque blob.
func (s *Store) SaveCheckpoint(runID string, cp *experiment.Checkpoint) error {
	runDir := filepath.Join(s.baseDir, runID)
	if err := writeJSON(filepath.Join(runDir, checkpointFile), checkpointRecord{Time: cp.Time, State: cp.State, NoiseDraws: cp.NoiseDraws}); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(runDir, controllerFile), cp.Controller, 0644)
}

func (s *Store) LoadCheckpoint(runID string) (*experiment.Checkpoint, error) {
	runDir := filepath.Join(s.baseDir, runID)
	data, err := os.ReadFile(filepath.Join(runDir, checkpointFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", runID, ErrNoCheckpoint)
		}
		return nil, err
	}
	var rec checkpointRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(filepath.Join(runDir, controllerFile))
	if err != nil {
		return nil, err
	}
	return &experiment.Checkpoint{Time: rec.Time, State: rec.State, NoiseDraws: rec.NoiseDraws, Controller: blob}, nil
}

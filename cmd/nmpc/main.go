package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/nmpc/internal/config"
	"github.com/san-kum/nmpc/internal/experiment"
	"github.com/san-kum/nmpc/internal/logger"
	"github.com/san-kum/nmpc/internal/metrics"
	"github.com/san-kum/nmpc/internal/optim"
	"github.com/san-kum/nmpc/internal/sim"
	"github.com/san-kum/nmpc/internal/storage"
	"github.com/san-kum/nmpc/internal/viz"
)

var (
	dataDir    string
	theme      string
	log        *zap.SugaredLogger
	dt         float64
	duration   float64
	seed       int64
	noise      float64
	integrator string
	configFile string
	preset     string
	save       bool
	jsonOut    string
	// Checkpoint time in seconds; zero runs to the end.
	checkpointAt float64
	ensemble     int
	metricsAddr  string
	// Tuning grid
	tuneParams []string
	tuneMetric string
	tuneJobs   int
	// Baseline PID gains
	kp float64
	ki float64
	kd float64

	svgOut string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "nmpc",
		Short:         "rate-gated nonlinear MPC lab",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			log, err = logger.InitLogger()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.SyncLogger()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".nmpc", "data directory")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", "default", "summary theme ("+strings.Join(viz.ThemeNames(), ", ")+")")

	runCmd := &cobra.Command{
		Use:       "run [model]",
		Short:     "run a closed-loop simulation",
		Args:      modelArgs,
		ValidArgs: modelNames(),
		RunE:      runSimulation,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().BoolVar(&save, "save", true, "store the run under the data directory")
	runCmd.Flags().StringVar(&jsonOut, "json", "", "also export the run as JSON to this path")
	runCmd.Flags().Float64Var(&checkpointAt, "checkpoint-at", 0, "stop at this time (s) and store a checkpoint")
	runCmd.Flags().IntVar(&ensemble, "ensemble", 0, "run this many noise seeds in parallel and report mean metrics")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address after the run")

	resumeCmd := &cobra.Command{
		Use:   "resume [run_id]",
		Short: "continue a checkpointed run",
		Args:  cobra.ExactArgs(1),
		RunE:  resumeRun,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run states and controls",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&svgOut, "svg", "", "also write the state trajectories as SVG to this path")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	tuneCmd := &cobra.Command{
		Use:   "tune [model]",
		Short: "grid search controller weights",
		Long: "Grid search over controller parameters. Each --param is name=v1,v2,...; names are " +
			strings.Join([]string{optim.StateWeight, optim.ControlWeight, optim.TerminalWeight, optim.Horizon, optim.SamplePeriodMs}, ", ") + ".",
		Args:      modelArgs,
		ValidArgs: modelNames(),
		RunE:      tuneModel,
	}
	addConfigFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&tuneParams, "param", []string{optim.ControlWeight + "=0.001,0.01,0.1"}, "parameter grid")
	tuneCmd.Flags().StringVar(&tuneMetric, "metric", "tracking_iae", "metric to minimise")
	tuneCmd.Flags().IntVar(&tuneJobs, "jobs", 4, "experiments run at once")

	metricsCmd := &cobra.Command{
		Use:       "metrics [model]",
		Short:     "run a model and print its controller telemetry",
		Args:      modelArgs,
		ValidArgs: modelNames(),
		RunE:      printMetrics,
	}
	addConfigFlags(metricsCmd)

	compareCmd := &cobra.Command{
		Use:       "compare [model]",
		Short:     "compare the predictive controller with baseline controllers",
		Args:      modelArgs,
		ValidArgs: modelNames(),
		RunE:      compareControllers,
	}
	addConfigFlags(compareCmd)
	compareCmd.Flags().Float64Var(&kp, "kp", experiment.DefaultGains.Kp, "pid kp")
	compareCmd.Flags().Float64Var(&ki, "ki", experiment.DefaultGains.Ki, "pid ki")
	compareCmd.Flags().Float64Var(&kd, "kd", experiment.DefaultGains.Kd, "pid kd")

	rootCmd.AddCommand(runCmd, resumeCmd, listCmd, plotCmd, presetsCmd, tuneCmd, metricsCmd, compareCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// modelArgs accepts exactly one registered model name.
var modelArgs = cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs)

func modelNames() []string {
	return experiment.NewRegistry().ListModels()
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "harness timestep (s)")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration (s)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "measurement noise seed")
	cmd.Flags().Float64Var(&noise, "noise", 0, "measurement noise standard deviation")
	cmd.Flags().StringVar(&integrator, "integrator", "rk4", "plant integrator")
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
}

// loadConfig resolves the run configuration: a config file wins over a
// preset, and flags set on the command line override both.
func loadConfig(cmd *cobra.Command, model string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
		if cfg.Model != model {
			return nil, fmt.Errorf("config %s is for model %q, not %q", configFile, cfg.Model, model)
		}
	default:
		name := preset
		if name == "" {
			presets := config.ListPresets(model)
			if len(presets) == 0 {
				return nil, fmt.Errorf("unknown model: %s", model)
			}
			name = presets[0]
			if config.GetPreset(model, "step") != nil {
				name = "step"
			}
		}
		cfg = config.GetPreset(model, name)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", name, config.ListPresets(model))
		}
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("noise") {
		cfg.Noise = noise
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	return cfg, cfg.Validate()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	model := args[0]
	cfg, err := loadConfig(cmd, model)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	reg := experiment.NewRegistry()
	if ensemble > 1 {
		return runEnsemble(ctx, cfg, reg)
	}

	promReg := prometheus.NewRegistry()
	exp, err := experiment.New(cfg, reg,
		experiment.WithLogger(log),
		experiment.WithTelemetry(metrics.NewTelemetry(promReg)),
	)
	if err != nil {
		return err
	}

	fmt.Printf("running %s...\n", model)
	start := time.Now()

	var (
		result *sim.Result
		cp     *experiment.Checkpoint
	)
	if checkpointAt > 0 {
		result, cp, err = exp.RunFor(ctx, checkpointAt)
	} else {
		result, err = exp.Run(ctx)
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	var runID string
	if save || cp != nil {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		if runID, err = st.Save(cfg, result); err != nil {
			return err
		}
		if cp != nil {
			if err := st.SaveCheckpoint(runID, cp); err != nil {
				return err
			}
			fmt.Printf("checkpoint at t=%.3fs; continue with: nmpc resume %s\n", cp.Time, runID)
		}
	}
	if jsonOut != "" {
		if err := storage.ExportJSON(jsonOut, cfg, result); err != nil {
			return err
		}
	}

	printSummary(model, runID, result, elapsed)

	if metricsAddr != "" {
		return serveMetrics(ctx, promReg)
	}
	return nil
}

func runEnsemble(ctx context.Context, cfg *config.Config, reg *experiment.Registry) error {
	fmt.Printf("running %d members of %s...\n", ensemble, cfg.Model)
	start := time.Now()
	results, err := experiment.Ensemble(ctx, cfg, reg, ensemble)
	if err != nil {
		return err
	}
	st := viz.NewStyles(viz.GetTheme(theme))
	fmt.Println(viz.Summary{
		Title:   fmt.Sprintf("%s ensemble (%d members, noise %.3g)", cfg.Model, len(results), cfg.Noise),
		Steps:   results[0].StepsTaken,
		Wall:    time.Since(start),
		Metrics: sim.MeanMetrics(results),
	}.Render(st, 40))
	return nil
}

func serveMetrics(ctx context.Context, g prometheus.Gatherer) error {
	srv := &http.Server{
		Addr:              metricsAddr,
		Handler:           promhttp.HandlerFor(g, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Infow("serving metrics", "addr", metricsAddr)
	fmt.Printf("serving metrics on %s (ctrl-c to stop)\n", metricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func printSummary(title, runID string, result *sim.Result, wall time.Duration) {
	var axes [][]float64
	if len(result.States) > 0 {
		axes = make([][]float64, len(result.States[0]))
		for i := range axes {
			axes[i] = make([]float64, len(result.States))
			for k, x := range result.States {
				axes[i][k] = x[i]
			}
		}
	}
	st := viz.NewStyles(viz.GetTheme(theme))
	fmt.Println(viz.Summary{
		Title:      title,
		RunID:      runID,
		Steps:      result.StepsTaken,
		Wall:       wall,
		SolveTime:  result.SolveTime,
		TickErrors: len(result.Errors),
		Metrics:    result.Metrics,
		Axes:       axes,
	}.Render(st, 40))
	if len(result.Errors) > 0 {
		fmt.Printf("first tick error: %v\n", result.Errors[0])
	}
}

func resumeRun(cmd *cobra.Command, args []string) error {
	parent := args[0]
	st := storage.New(dataDir)
	cfg, err := st.LoadConfig(parent)
	if err != nil {
		return err
	}
	cp, err := st.LoadCheckpoint(parent)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	exp, err := experiment.New(cfg, experiment.NewRegistry(), experiment.WithLogger(log))
	if err != nil {
		return err
	}
	start := time.Now()
	result, err := exp.Resume(ctx, cp)
	if err != nil {
		return err
	}
	runID, err := st.SaveResumed(cfg, result, parent)
	if err != nil {
		return err
	}
	printSummary(fmt.Sprintf("%s resumed from %s at t=%.3fs", cfg.Model, parent, cp.Time), runID, result, time.Since(start))
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tDURATION\tDT\tPERIOD\tHORIZON\tERRORS\tPARENT")

	for _, run := range runs {
		parent := run.ResumedFrom
		if parent == "" {
			parent = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4fs\t%s\t%d\t%d\t%s\n",
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.SamplePeriod,
			run.Horizon,
			run.TickErrors,
			parent,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	cfg, err := st.LoadConfig(runID)
	if err != nil {
		return err
	}
	trace, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(trace.States) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("samples: %d\n\n", len(trace.States))

	for i := range trace.States[0] {
		data := column(trace.States, i)
		setpoint := make([]float64, len(data))
		for k := range setpoint {
			setpoint[k] = cfg.Controller.Setpoint[i]
		}
		fmt.Println(asciigraph.PlotMany([][]float64{data, setpoint},
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.SeriesColors(asciigraph.Cyan, asciigraph.DarkGray),
			asciigraph.Caption(fmt.Sprintf("%s vs setpoint %s", axisName(meta.Model, i), strconv.FormatFloat(cfg.Controller.Setpoint[i], 'g', -1, 64))),
		))
		fmt.Println()
	}

	if svgOut != "" {
		if err := writeSVG(svgOut, trace, cfg.Controller.Setpoint); err != nil {
			return err
		}
	}

	for i := 0; len(trace.Controls) > 0 && i < len(trace.Controls[0]); i++ {
		fmt.Println(asciigraph.Plot(column(trace.Controls, i),
			asciigraph.Height(6),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("u[%d]", i)),
		))
		fmt.Println()
	}
	return nil
}

func writeSVG(path string, trace *storage.Trace, setpoint []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	series := make([][]float64, len(trace.States[0]))
	refs := make([]*float64, len(series))
	for i := range series {
		series[i] = column(trace.States, i)
		if i < len(setpoint) {
			refs[i] = &setpoint[i]
		}
	}
	if err := viz.WriteSVG(f, trace.Times, series, refs, 800, 400); err != nil {
		return err
	}
	return f.Close()
}

func column(rows [][]float64, i int) []float64 {
	out := make([]float64, len(rows))
	for k, r := range rows {
		if i < len(r) {
			out[k] = r[i]
		}
	}
	return out
}

func axisName(model string, i int) string {
	switch model {
	case "pendulum":
		if i == 0 {
			return "theta (angle)"
		}
		return "omega (angular velocity)"
	case "attitude":
		return [...]string{"p (roll rate)", "q (pitch rate)", "r (yaw rate)"}[i%3]
	}
	return fmt.Sprintf("x[%d]", i)
}

func tuneModel(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(cmd, args[0])
	if err != nil {
		return err
	}

	names := make([]string, 0, len(tuneParams))
	ranges := make([][]float64, 0, len(tuneParams))
	for _, p := range tuneParams {
		name, values, err := parseGrid(p)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}

	reg := experiment.NewRegistry()
	build := func(params map[string]float64) (*experiment.Experiment, error) {
		cfg, err := optim.Apply(base, params)
		if err != nil {
			return nil, err
		}
		return experiment.New(cfg, reg)
	}

	ctx, cancel := signalContext()
	defer cancel()

	g := optim.NewGridSearch(names, ranges)
	g.SetWorkers(tuneJobs)
	fmt.Printf("searching %d points of %s...\n", len(g.Points()), base.Model)
	best, score, err := g.Search(ctx, build, tuneMetric)
	if err != nil {
		return err
	}

	fmt.Printf("best %s: %.6g\n", tuneMetric, score)
	for _, name := range names {
		fmt.Printf("  %s = %g\n", name, best[name])
	}
	return nil
}

// parseGrid reads name=v1,v2,...
func parseGrid(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return "", nil, fmt.Errorf("bad --param %q: want name=v1,v2,...", s)
	}
	var values []float64
	for _, f := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return "", nil, fmt.Errorf("bad --param %q: %w", s, err)
		}
		values = append(values, v)
	}
	return name, values, nil
}

func compareControllers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args[0])
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	reg := experiment.NewRegistry()
	exp, err := experiment.New(cfg, reg, experiment.WithLogger(log))
	if err != nil {
		return err
	}

	names := []string{"nmpc"}
	results := make(map[string]*sim.Result)
	if results["nmpc"], err = exp.Run(ctx); err != nil {
		return err
	}
	for _, kind := range experiment.Baselines {
		res, err := experiment.RunBaseline(ctx, cfg, reg, kind, experiment.Gains{Kp: kp, Ki: ki, Kd: kd})
		if err != nil {
			return err
		}
		names = append(names, kind)
		results[kind] = res
	}

	var metricNames []string
	for name := range results["nmpc"].Metrics {
		metricNames = append(metricNames, name)
	}
	sort.Strings(metricNames)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONTROLLER\t"+strings.ToUpper(strings.Join(metricNames, "\t"))+"\tCTRL TIME")
	for _, name := range names {
		res := results[name]
		row := []string{name}
		for _, m := range metricNames {
			row = append(row, strconv.FormatFloat(res.Metrics[m], 'g', 5, 64))
		}
		row = append(row, res.SolveTime.Round(time.Microsecond).String())
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

func printMetrics(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args[0])
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	promReg := prometheus.NewRegistry()
	exp, err := experiment.New(cfg, experiment.NewRegistry(),
		experiment.WithLogger(log),
		experiment.WithTelemetry(metrics.NewTelemetry(promReg)),
	)
	if err != nil {
		return err
	}
	if _, err := exp.Run(ctx); err != nil {
		return err
	}
	return metrics.WriteText(os.Stdout, promReg)
}

package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/san-kum/nmpc/internal/experiment"
)

// ErrNoCandidate is returned when every grid point failed to build or run.
var ErrNoCandidate = errors.New("optim: no grid point produced a result")

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges, workers: 4}
}

// SetWorkers bounds the number of experiments run at once.
func (g *GridSearch) SetWorkers(n int) {
	if n > 0 {
		g.workers = n
	}
}

// Points enumerates the grid in row-major order.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.collect(0, make(map[string]float64), &out)
	return out
}

func (g *GridSearch) collect(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		point := make(map[string]float64, len(current))
		for k, v := range current {
			point[k] = v
		}
		*out = append(*out, point)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		current[paramName] = val
		g.collect(depth+1, current, out)
	}
	delete(current, paramName)
}

// Search runs one experiment per grid point and returns the point that
// minimises metricName. Points whose experiment fails are skipped.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (map[string]float64, float64, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, fmt.Errorf("optim: %d parameter names for %d ranges", len(g.paramNames), len(g.ranges))
	}

	points := g.Points()
	scores := make([]float64, len(points))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < g.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				scores[idx] = evaluate(ctx, buildExperiment, points[idx], metricName)
			}
		}()
	}
	for i := range points {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	best := math.Inf(1)
	var bestParams map[string]float64
	for i, s := range scores {
		if s < best {
			best = s
			bestParams = points[i]
		}
	}
	if bestParams == nil {
		return nil, 0, ErrNoCandidate
	}
	return bestParams, best, nil
}

func evaluate(ctx context.Context, build func(map[string]float64) (*experiment.Experiment, error), params map[string]float64, metricName string) float64 {
	exp, err := build(params)
	if err != nil {
		return math.Inf(1)
	}
	result, err := exp.Run(ctx)
	if err != nil {
		return math.Inf(1)
	}
	val, ok := result.Metrics[metricName]
	if !ok || math.IsNaN(val) {
		return math.Inf(1)
	}
	return val
}

package voi

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"ceasim/domain/core"
	"ceasim/domain/model"
	"ceasim/internal/metrics"
)

// NegativeTolerance absorbs floating-point noise in the EVPI lower bound.
// Anything more negative than this is a calculation defect, not noise.
const NegativeTolerance = -1e-6

// EVPIPoint is one row of the EVPI table.
type EVPIPoint struct {
	WTP            float64
	Value          float64
	PopulationEVPI float64
	LowPrecision   bool
}

// Engine computes expected value of information from an existing draw
// collection; it never re-simulates for EVPI.
type Engine struct {
	grid          *model.WTPGrid
	policyWTP     float64
	population    float64
	cvThreshold   float64
	minIterations int
}

// NewEngine creates a value-of-information engine. Population EVPI is
// reported at every grid point using the eligible population size;
// policyWTP names the policy-relevant threshold for headline reporting.
func NewEngine(grid *model.WTPGrid, policyWTP, eligiblePopulation, cvThreshold float64, minIterations int) *Engine {
	return &Engine{
		grid:          grid,
		policyWTP:     policyWTP,
		population:    eligiblePopulation,
		cvThreshold:   cvThreshold,
		minIterations: minIterations,
	}
}

// EVPI computes E[max_s NMB(s,w)] − max_s E[NMB(s,w)] at every grid point.
// When the draw count is too small for a stable estimate (fewer than the
// configured minimum, or estimator coefficient of variation above the
// threshold) the point is flagged low-precision rather than silently
// returned.
func (e *Engine) EVPI(draws []model.SimulationDraw, nStrategies int) ([]EVPIPoint, error) {
	if len(draws) == 0 {
		return nil, core.ErrInsufficientDraws
	}

	points := make([]EVPIPoint, e.grid.Len())
	for wi := 0; wi < e.grid.Len(); wi++ {
		w := e.grid.At(wi)

		maxNMBs := make([]float64, len(draws))
		for i, d := range draws {
			maxNMBs[i] = d.NMB(d.OptimalStrategy(w), w)
		}
		meanMax, err := stats.Mean(maxNMBs)
		if err != nil {
			return nil, err
		}

		means := metrics.MeanNMB(draws, nStrategies, w)
		maxMean := means[0]
		for _, m := range means[1:] {
			if m > maxMean {
				maxMean = m
			}
		}

		evpi := meanMax - maxMean
		if evpi < NegativeTolerance {
			return nil, fmt.Errorf("EVPI %g at WTP %g below tolerance: expectation ordering violated", evpi, w)
		}
		if evpi < 0 {
			evpi = 0
		}

		points[wi] = EVPIPoint{
			WTP:            w,
			Value:          evpi,
			PopulationEVPI: evpi * e.population,
			LowPrecision:   e.lowPrecision(maxNMBs, evpi),
		}
	}
	return points, nil
}

// PolicyEVPI returns the grid point nearest the policy-relevant threshold.
func (e *Engine) PolicyEVPI(points []EVPIPoint) EVPIPoint {
	best := points[0]
	for _, p := range points[1:] {
		if math.Abs(p.WTP-e.policyWTP) < math.Abs(best.WTP-e.policyWTP) {
			best = p
		}
	}
	return best
}

// lowPrecision gates the estimate on the standard error of the mean-of-max
// term relative to the EVPI value itself.
func (e *Engine) lowPrecision(maxNMBs []float64, evpi float64) bool {
	n := len(maxNMBs)
	if n < 2 || n < e.minIterations {
		return true
	}
	sd, err := stats.StandardDeviationSample(maxNMBs)
	if err != nil {
		return true
	}
	se := sd / math.Sqrt(float64(n))
	if evpi <= 0 {
		// A zero estimate with nonzero sampling noise is indistinguishable
		// from an imprecise small value.
		return se > 0
	}
	return se/evpi > e.cvThreshold
}

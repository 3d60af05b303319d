package metrics

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"ceasim/domain/core"
	"ceasim/domain/model"
)

// QALYEpsilon bounds the incremental-QALY denominator: below it the ICER is
// reported undefined rather than a near-infinite number.
const QALYEpsilon = 1e-9

// StrategyResult is the deterministic (or mean) cost/QALY pair for one
// strategy, indexed in registry order.
type StrategyResult struct {
	Index int
	ID    string
	Cost  float64
	QALY  float64
}

// IncrementalResult is one strategy's comparison against the reference,
// plus its dominance status on the efficiency frontier.
type IncrementalResult struct {
	Index             int
	ID                string
	Cost              float64
	QALY              float64
	DeltaCost         float64
	DeltaQALY         float64
	ICER              float64
	ICERDefined       bool
	Dominated         bool // simple dominance
	ExtendedDominated bool
	OnFrontier        bool
}

// MeanResults reduces the draw collection to per-strategy mean cost/QALYs.
func MeanResults(draws []model.SimulationDraw, ids []string) ([]StrategyResult, error) {
	if len(draws) == 0 {
		return nil, core.ErrInsufficientDraws
	}
	n := len(ids)
	results := make([]StrategyResult, n)
	for s := 0; s < n; s++ {
		costs := make([]float64, len(draws))
		qalys := make([]float64, len(draws))
		for i, d := range draws {
			costs[i] = d.Cost[s]
			qalys[i] = d.QALY[s]
		}
		meanCost, err := stats.Mean(costs)
		if err != nil {
			return nil, err
		}
		meanQALY, err := stats.Mean(qalys)
		if err != nil {
			return nil, err
		}
		results[s] = StrategyResult{Index: s, ID: ids[s], Cost: meanCost, QALY: meanQALY}
	}
	return results, nil
}

// ComputeIncremental computes Δcost, Δqaly and ICER versus the reference
// strategy for every strategy, and marks simple and extended dominance from
// frontier construction.
func ComputeIncremental(results []StrategyResult, refIndex int) []IncrementalResult {
	ref := results[refIndex]
	frontier := Frontier(results)
	onFrontier := make(map[int]bool, len(frontier))
	for _, idx := range frontier {
		onFrontier[idx] = true
	}

	out := make([]IncrementalResult, len(results))
	for i, r := range results {
		inc := IncrementalResult{
			Index:      r.Index,
			ID:         r.ID,
			Cost:       r.Cost,
			QALY:       r.QALY,
			DeltaCost:  r.Cost - ref.Cost,
			DeltaQALY:  r.QALY - ref.QALY,
			Dominated:  isSimplyDominated(results, i),
			OnFrontier: onFrontier[r.Index],
		}
		inc.ExtendedDominated = !inc.Dominated && !inc.OnFrontier
		if i != refIndex && !inc.Dominated && math.Abs(inc.DeltaQALY) >= QALYEpsilon {
			inc.ICER = inc.DeltaCost / inc.DeltaQALY
			inc.ICERDefined = true
		}
		out[i] = inc
	}
	return out
}

// isSimplyDominated reports whether strategy i has higher cost and
// lower-or-equal QALY (or equal cost and strictly lower QALY) than some
// other strategy.
func isSimplyDominated(results []StrategyResult, i int) bool {
	for j, other := range results {
		if j == i {
			continue
		}
		if other.Cost <= results[i].Cost && other.QALY >= results[i].QALY &&
			(other.Cost < results[i].Cost || other.QALY > results[i].QALY) {
			return true
		}
	}
	return false
}

// Frontier constructs the efficiency frontier: strategies sorted by QALY
// ascending, simple-dominated strategies removed, then extended dominance
// removed by requiring non-decreasing ICERs along the frontier. The returned
// indices refer to the input slice. Construction is idempotent: re-running
// it on an already-filtered set returns the same set.
func Frontier(results []StrategyResult) []int {
	candidates := make([]int, 0, len(results))
	for i := range results {
		if !isSimplyDominated(results, i) {
			candidates = append(candidates, i)
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		ra, rb := results[candidates[a]], results[candidates[b]]
		if ra.QALY != rb.QALY {
			return ra.QALY < rb.QALY
		}
		return ra.Cost < rb.Cost
	})

	// Drop duplicates on the (QALY, cost) plane, keeping the first.
	deduped := candidates[:0]
	for _, idx := range candidates {
		if len(deduped) > 0 {
			last := results[deduped[len(deduped)-1]]
			if math.Abs(last.QALY-results[idx].QALY) < QALYEpsilon && last.Cost <= results[idx].Cost {
				continue
			}
		}
		deduped = append(deduped, idx)
	}

	// Lower convex hull on (QALY, cost): pop the middle point whenever the
	// ICER to the new point falls below the ICER that reached it.
	hull := make([]int, 0, len(deduped))
	for _, idx := range deduped {
		for len(hull) >= 2 {
			a := results[hull[len(hull)-2]]
			b := results[hull[len(hull)-1]]
			p := results[idx]
			if icerBetween(b, p) < icerBetween(a, b) {
				hull = hull[:len(hull)-1]
				continue
			}
			break
		}
		hull = append(hull, idx)
	}
	return hull
}

func icerBetween(from, to StrategyResult) float64 {
	dq := to.QALY - from.QALY
	if math.Abs(dq) < QALYEpsilon {
		return math.Inf(1)
	}
	return (to.Cost - from.Cost) / dq
}

package metrics

import (
	"ceasim/domain/core"
	"ceasim/domain/model"
)

// CEACPoint is one row of the cost-effectiveness acceptability curve table:
// for a willingness-to-pay threshold, the per-strategy probability of being
// optimal. Probabilities sum to 1 across strategies at every threshold.
type CEACPoint struct {
	WTP           float64
	ProbabilityOf []float64 // indexed in registry order
}

// CEAFPoint is one row of the acceptability frontier: the strategy with the
// highest expected NMB at a threshold, its expected NMB, and its CEAC value.
type CEAFPoint struct {
	WTP           float64
	StrategyIndex int
	StrategyID    string
	MeanNMB       float64
	Probability   float64
}

// CEAC computes acceptability curves over the WTP grid from the draw
// collection. For each draw and threshold the optimal strategy is the
// argmax-NMB with a lowest-index tie-break.
func CEAC(draws []model.SimulationDraw, nStrategies int, grid *model.WTPGrid) ([]CEACPoint, error) {
	if len(draws) == 0 {
		return nil, core.ErrInsufficientDraws
	}

	points := make([]CEACPoint, grid.Len())
	for wi := 0; wi < grid.Len(); wi++ {
		w := grid.At(wi)
		counts := make([]int, nStrategies)
		for _, d := range draws {
			counts[d.OptimalStrategy(w)]++
		}
		probs := make([]float64, nStrategies)
		for s := range probs {
			probs[s] = float64(counts[s]) / float64(len(draws))
		}
		points[wi] = CEACPoint{WTP: w, ProbabilityOf: probs}
	}
	return points, nil
}

// MeanNMB computes the expected NMB per strategy at one threshold.
func MeanNMB(draws []model.SimulationDraw, nStrategies int, wtp float64) []float64 {
	means := make([]float64, nStrategies)
	for _, d := range draws {
		for s := 0; s < nStrategies; s++ {
			means[s] += d.NMB(s, wtp)
		}
	}
	for s := range means {
		means[s] /= float64(len(draws))
	}
	return means
}

// CEAF traces the acceptability frontier: at each threshold, the strategy
// maximizing expected NMB (lowest index wins ties) with its probability of
// being optimal taken from the CEAC.
func CEAF(draws []model.SimulationDraw, ids []string, grid *model.WTPGrid) ([]CEAFPoint, error) {
	ceac, err := CEAC(draws, len(ids), grid)
	if err != nil {
		return nil, err
	}

	points := make([]CEAFPoint, grid.Len())
	for wi := 0; wi < grid.Len(); wi++ {
		w := grid.At(wi)
		means := MeanNMB(draws, len(ids), w)
		best := 0
		for s := 1; s < len(means); s++ {
			if means[s] > means[best] {
				best = s
			}
		}
		points[wi] = CEAFPoint{
			WTP:           w,
			StrategyIndex: best,
			StrategyID:    ids[best],
			MeanNMB:       means[best],
			Probability:   ceac[wi].ProbabilityOf[best],
		}
	}
	return points, nil
}

package voi

import (
	"context"
	"fmt"
	"sort"

	"ceasim/domain/core"
	"ceasim/domain/model"
	"ceasim/internal/metrics"
)

// Method selects the EVPPI estimator. The choice changes the bias/variance
// profile materially, so it is a configuration flag, never hard-coded.
type Method string

const (
	// MethodRegression partitions the outer draws into quantile bins of the
	// parameter-group value and averages NMB within bins (a conditional-
	// expectation estimator). No re-simulation; bias shrinks as draws grow.
	MethodRegression Method = "regression"
	// MethodNested re-simulates an inner Monte-Carlo loop per outer draw
	// with the group held fixed. Unbiased as the inner count grows, at
	// outer × inner cost.
	MethodNested Method = "nested"
)

// Resimulator runs the full per-iteration pipeline with the given parameters
// held fixed at their realized values, sampling the rest. Implemented by the
// runner for nested EVPPI.
type Resimulator interface {
	Resimulate(ctx context.Context, fixed model.Values, seed int64) (cost, qaly []float64, err error)
}

// EVPPIResult carries one parameter group's estimate at one threshold.
type EVPPIResult struct {
	Group        string
	WTP          float64
	Value        float64
	Method       Method
	LowPrecision bool
}

// EVPPI estimates the expected value of partial perfect information for one
// parameter group (one or more parameter names) at one threshold.
func (e *Engine) EVPPI(
	ctx context.Context,
	draws []model.SimulationDraw,
	nStrategies int,
	group string,
	groupParams []string,
	wtp float64,
	method Method,
	resim Resimulator,
	innerIterations int,
) (EVPPIResult, error) {
	if len(draws) == 0 {
		return EVPPIResult{}, core.ErrInsufficientDraws
	}
	if len(groupParams) == 0 {
		return EVPPIResult{}, core.NewValidationError("evppi", "parameter group is empty")
	}

	means := metrics.MeanNMB(draws, nStrategies, wtp)
	maxMean := means[0]
	for _, m := range means[1:] {
		if m > maxMean {
			maxMean = m
		}
	}

	var conditional float64
	var err error
	switch method {
	case MethodRegression:
		conditional, err = e.binnedConditionalMax(draws, nStrategies, groupParams[0], wtp)
	case MethodNested:
		if resim == nil {
			return EVPPIResult{}, core.NewValidationError("evppi", "nested method requires a resimulator")
		}
		conditional, err = e.nestedConditionalMax(ctx, draws, nStrategies, groupParams, wtp, resim, innerIterations)
	default:
		return EVPPIResult{}, core.NewValidationError("evppi", fmt.Sprintf("unknown method %q", method))
	}
	if err != nil {
		return EVPPIResult{}, err
	}

	value := conditional - maxMean
	if value < NegativeTolerance {
		return EVPPIResult{}, fmt.Errorf("EVPPI %g for group %s below tolerance", value, group)
	}
	if value < 0 {
		value = 0
	}

	return EVPPIResult{
		Group:        group,
		WTP:          wtp,
		Value:        value,
		Method:       method,
		LowPrecision: len(draws) < e.minIterations,
	}, nil
}

// binnedConditionalMax estimates E_group[max_s E[NMB|group]] by sorting the
// outer draws on the group's indexing parameter and averaging NMB within
// equal-count quantile bins.
func (e *Engine) binnedConditionalMax(draws []model.SimulationDraw, nStrategies int, indexParam string, wtp float64) (float64, error) {
	order := make([]int, len(draws))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return draws[order[a]].Params[indexParam] < draws[order[b]].Params[indexParam]
	})

	bins := len(draws) / 30
	if bins < 2 {
		bins = 2
	}
	if bins > 50 {
		bins = 50
	}
	if bins > len(draws) {
		bins = len(draws)
	}

	total := 0.0
	weight := 0.0
	for b := 0; b < bins; b++ {
		lo := b * len(draws) / bins
		hi := (b + 1) * len(draws) / bins
		if hi <= lo {
			continue
		}

		sums := make([]float64, nStrategies)
		for _, idx := range order[lo:hi] {
			d := draws[idx]
			for s := 0; s < nStrategies; s++ {
				sums[s] += d.NMB(s, wtp)
			}
		}
		maxMean := sums[0]
		for _, v := range sums[1:] {
			if v > maxMean {
				maxMean = v
			}
		}
		maxMean /= float64(hi - lo)

		total += maxMean * float64(hi-lo)
		weight += float64(hi - lo)
	}
	return total / weight, nil
}

// nestedConditionalMax re-simulates innerIterations draws per outer draw with
// the group parameters pinned to the outer draw's realized values.
func (e *Engine) nestedConditionalMax(
	ctx context.Context,
	draws []model.SimulationDraw,
	nStrategies int,
	groupParams []string,
	wtp float64,
	resim Resimulator,
	innerIterations int,
) (float64, error) {
	if innerIterations < 2 {
		return 0, core.NewValidationError("evppi", "nested method needs at least 2 inner iterations")
	}

	total := 0.0
	for outer, d := range draws {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		fixed := make(model.Values, len(groupParams))
		for _, name := range groupParams {
			v, ok := d.Params[name]
			if !ok {
				return 0, core.NewNotFoundError("parameter", name)
			}
			fixed[name] = v
		}

		sums := make([]float64, nStrategies)
		for inner := 0; inner < innerIterations; inner++ {
			// Seed derivation keeps the inner stream disjoint per outer draw.
			seed := d.Seed*int64(innerIterations+1) + int64(inner) + 1
			cost, qaly, err := resim.Resimulate(ctx, fixed, seed)
			if err != nil {
				return 0, fmt.Errorf("outer draw %d inner %d: %w", outer, inner, err)
			}
			for s := 0; s < nStrategies; s++ {
				sums[s] += wtp*qaly[s] - cost[s]
			}
		}
		maxMean := sums[0]
		for _, v := range sums[1:] {
			if v > maxMean {
				maxMean = v
			}
		}
		total += maxMean / float64(innerIterations)
	}
	return total / float64(len(draws)), nil
}

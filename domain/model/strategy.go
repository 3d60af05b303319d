package model

import (
	"gonum.org/v1/gonum/mat"
)

// RowSumTolerance is the tolerance for the row-stochastic invariant: every
// transition matrix row must sum to 1 within this bound.
const RowSumTolerance = 1e-9

// TransitionFunc builds the transition matrix for one cycle from the
// iteration's sampled parameter values. Entry (i,j) is the probability of
// moving from state i to state j during that cycle. The matrix may depend on
// the cycle index to represent time-varying relapse or waning effects.
type TransitionFunc func(cycle int, params Values) *mat.Dense

// CostFunc maps a health state to its per-cycle cost under the sampled
// parameter values.
type CostFunc func(state int, params Values) float64

// UtilityFunc maps a health state to its ANNUAL utility under the sampled
// parameter values; the aggregator converts to per-cycle.
type UtilityFunc func(state int, params Values) float64

// AmountFunc resolves a one-time cost amount from sampled parameters.
type AmountFunc func(params Values) float64

// WholeCohort marks a one-time cost applied to the entire surviving-and-dead
// cohort rather than a single state's occupancy.
const WholeCohort = -1

// OneTimeCost is a strategy-specific cost incurred once at a given cycle
// (e.g., an acute treatment course), not smeared across the horizon. When
// State >= 0 the amount is weighted by that state's occupancy at the cycle.
type OneTimeCost struct {
	Cycle  int
	State  int
	Amount AmountFunc
}

// StrategyArm holds one strategy's definitions: the parameters it requires
// and the transition/cost/utility functions the simulator consumes.
type StrategyArm struct {
	ID         string
	Name       string
	Parameters []string // required parameter names, validated by the registry

	Transition TransitionFunc
	Cost       CostFunc
	Utility    UtilityFunc
	OneTime    []OneTimeCost
}

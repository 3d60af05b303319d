package econ

import (
	"fmt"
	"math"

	"ceasim/domain/core"
	"ceasim/domain/model"
	"ceasim/internal/markov"
)

// Aggregator converts a cohort trace into discounted lifetime cost and QALY
// totals. Annual discount rates are compounded at the cycle frequency;
// annual utilities are converted to per-cycle.
type Aggregator struct {
	costRate      float64
	qalyRate      float64
	cyclesPerYear int
}

// New creates an aggregator with annual discount rates for costs and
// outcomes (jurisdictions commonly differ, e.g. 5% vs 3.5%).
func New(costRateAnnual, qalyRateAnnual float64, cyclesPerYear int) (*Aggregator, error) {
	if costRateAnnual < 0 || qalyRateAnnual < 0 {
		return nil, core.NewValidationError("aggregator", "discount rates cannot be negative")
	}
	if cyclesPerYear < 1 {
		return nil, core.NewValidationError("aggregator", "cycles per year must be positive")
	}
	return &Aggregator{costRate: costRateAnnual, qalyRate: qalyRateAnnual, cyclesPerYear: cyclesPerYear}, nil
}

// DiscountFactor returns the discount factor applied at the given cycle for
// the given annual rate: (1+r)^(-cycle/cyclesPerYear).
func (a *Aggregator) DiscountFactor(rate float64, cycle int) float64 {
	return math.Pow(1+rate, -float64(cycle)/float64(a.cyclesPerYear))
}

// Aggregate computes total discounted cost and QALYs for one strategy under
// one parameter realization. Per-cycle accrual uses the occupancy at the
// start of each cycle; one-time costs are added once at the cycle they
// occur, weighted by the occupancy they attach to.
func (a *Aggregator) Aggregate(trace *markov.Trace, arm model.StrategyArm, vals model.Values) (cost, qaly float64, err error) {
	states := len(trace.Occupancy[0])
	cycles := trace.Cycles()

	for cycle := 0; cycle < cycles; cycle++ {
		occ := trace.Occupancy[cycle]
		dfCost := a.DiscountFactor(a.costRate, cycle)
		dfQALY := a.DiscountFactor(a.qalyRate, cycle)

		for state := 0; state < states; state++ {
			if occ[state] == 0 {
				continue
			}
			cost += dfCost * occ[state] * arm.Cost(state, vals)
			qaly += dfQALY * occ[state] * arm.Utility(state, vals) / float64(a.cyclesPerYear)
		}
	}

	for _, otc := range arm.OneTime {
		if otc.Cycle < 0 || otc.Cycle >= len(trace.Occupancy) {
			continue // beyond the simulated horizon, never incurred
		}
		weight := 1.0
		if otc.State != model.WholeCohort {
			weight = trace.Occupancy[otc.Cycle][otc.State]
		}
		cost += a.DiscountFactor(a.costRate, otc.Cycle) * weight * otc.Amount(vals)
	}

	if cost < 0 || qaly < 0 {
		return 0, 0, fmt.Errorf("strategy %s: negative discounted total (cost=%g, qaly=%g)", arm.ID, cost, qaly)
	}
	return cost, qaly, nil
}

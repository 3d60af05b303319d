package budget

import (
	"sort"

	"ceasim/domain/core"
	"ceasim/domain/model"
)

// YearImpact is one row of the budget-impact table.
type YearImpact struct {
	Year             int
	StrategyCost     map[string]float64
	TotalCost        float64
	BaselineCost     float64
	Impact           float64
	CumulativeImpact float64
}

// Projector composes deterministic per-patient costs with multi-year
// adoption-share curves to produce population-level budget trajectories.
// It consumes the aggregator's deterministic output; it never re-runs the
// probabilistic analysis.
type Projector struct {
	population float64
	baselineID string
}

// New creates a projector. The baseline is the pre-adoption mix, modeled as
// 100% uptake of the named comparator strategy.
func New(eligiblePopulation float64, baselineStrategyID string) (*Projector, error) {
	if eligiblePopulation <= 0 {
		return nil, core.NewValidationError("budget", "eligible population must be positive")
	}
	if baselineStrategyID == "" {
		return nil, core.NewValidationError("budget", "baseline strategy is required")
	}
	return &Projector{population: eligiblePopulation, baselineID: baselineStrategyID}, nil
}

// Project computes per-year population cost per strategy, the impact versus
// the baseline mix, and the cumulative impact. The adoption curve has
// already rejected any year whose shares exceed 1.
func (p *Projector) Project(perPatientCost map[string]float64, curve *model.AdoptionCurve) ([]YearImpact, error) {
	baselineCostPerPatient, ok := perPatientCost[p.baselineID]
	if !ok {
		return nil, core.NewNotFoundError("strategy", p.baselineID)
	}

	// Accumulation order is part of the reproducibility contract: map
	// iteration would reorder the floating-point sums run to run.
	ids := make([]string, 0, len(perPatientCost))
	for id := range perPatientCost {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]YearImpact, curve.Years())
	cumulative := 0.0
	for y := 0; y < curve.Years(); y++ {
		row := YearImpact{Year: y + 1, StrategyCost: make(map[string]float64, len(perPatientCost))}

		adopted := 0.0
		for _, id := range ids {
			share := curve.Share(id, y)
			if id == p.baselineID {
				// Patients not captured by any new strategy stay on baseline.
				continue
			}
			popCost := p.population * share * perPatientCost[id]
			row.StrategyCost[id] = popCost
			row.TotalCost += popCost
			adopted += share
		}

		residual := 1 - adopted
		if residual < 0 {
			residual = 0
		}
		baselineResidualCost := p.population * residual * baselineCostPerPatient
		row.StrategyCost[p.baselineID] = baselineResidualCost
		row.TotalCost += baselineResidualCost

		row.BaselineCost = p.population * baselineCostPerPatient
		row.Impact = row.TotalCost - row.BaselineCost
		cumulative += row.Impact
		row.CumulativeImpact = cumulative
		rows[y] = row
	}
	return rows, nil
}

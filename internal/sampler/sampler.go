package sampler

import (
	"math"
	"math/rand"

	"ceasim/domain/core"
	"ceasim/domain/model"
)

// SnapshotRow records one realized parameter draw for the audit artifact.
// The runner attaches the iteration index.
type SnapshotRow struct {
	Parameter string
	Value     float64
}

// Sampler draws one realization of every declared parameter per call from an
// explicit seeded generator. There is no process-wide random state: the
// caller owns the generator, and repeating a run with the same seed
// reproduces bit-identical draws.
type Sampler struct {
	params *model.ParameterSet
}

// New validates every declared distribution eagerly and returns a sampler.
// Out-of-domain distribution parameters fail here, before any simulation.
func New(params *model.ParameterSet) (*Sampler, error) {
	for i := 0; i < params.Len(); i++ {
		p := params.At(i)
		if err := p.Dist.Validate(p.Name); err != nil {
			return nil, err
		}
	}
	return &Sampler{params: params}, nil
}

// Sample produces exactly one value per parameter, consuming uniforms from
// rng in declaration order. Parameters sharing a correlation group consume a
// single uniform (drawn when the group is first encountered) and transform
// it through their own inverse CDFs, so the group's rank correlation is 1 by
// construction. Fixed parameters consume no randomness.
func (s *Sampler) Sample(rng *rand.Rand) (model.Values, []SnapshotRow, error) {
	values := make(model.Values, s.params.Len())
	snapshot := make([]SnapshotRow, 0, s.params.Len())
	groupUniform := make(map[string]float64)

	for i := 0; i < s.params.Len(); i++ {
		p := s.params.At(i)

		var v float64
		if !p.Dist.IsStochastic() {
			v = p.Dist.Value
		} else {
			var u float64
			if p.CorrelationGroup != "" {
				cached, ok := groupUniform[p.CorrelationGroup]
				if !ok {
					cached = rng.Float64()
					groupUniform[p.CorrelationGroup] = cached
				}
				u = cached
			} else {
				u = rng.Float64()
			}
			v = p.Dist.Quantile(u)
		}

		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, core.NewDistributionError(p.Name, "sampled value is not finite")
		}

		values[p.Name] = v
		snapshot = append(snapshot, SnapshotRow{Parameter: p.Name, Value: v})
	}

	return values, snapshot, nil
}

package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"ceasim/domain/core"
)

// OccupancyTolerance bounds how far total occupancy may drift from 1.
const OccupancyTolerance = 1e-9

// CohortState is the vector of occupancy fractions over health states for
// one cohort at one cycle. It is mutated in place by the simulator and
// discarded after aggregation; it is never shared across iterations.
type CohortState struct {
	occ *mat.VecDense
}

// NewCohortState seeds the cohort entirely in the given initial state.
func NewCohortState(n int, initialState int) (*CohortState, error) {
	if n < 1 {
		return nil, core.NewValidationError("cohort", "state count must be positive")
	}
	if initialState < 0 || initialState >= n {
		return nil, core.NewValidationError("cohort", fmt.Sprintf("initial state %d out of range", initialState))
	}
	occ := mat.NewVecDense(n, nil)
	occ.SetVec(initialState, 1)
	return &CohortState{occ: occ}, nil
}

// NewCohortStateFromFractions seeds an arbitrary initial distribution.
func NewCohortStateFromFractions(fractions []float64) (*CohortState, error) {
	cs := &CohortState{occ: mat.NewVecDense(len(fractions), fractions)}
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	return cs, nil
}

// Len returns the number of states.
func (c *CohortState) Len() int {
	return c.occ.Len()
}

// Occupancy returns the fraction occupying the given state.
func (c *CohortState) Occupancy(state int) float64 {
	return c.occ.AtVec(state)
}

// Fractions copies the occupancy vector out.
func (c *CohortState) Fractions() []float64 {
	out := make([]float64, c.occ.Len())
	copy(out, c.occ.RawVector().Data)
	return out
}

// Advance applies one cycle of the Markov recurrence in place:
// occ' = transition^T × occ.
func (c *CohortState) Advance(transition *mat.Dense) {
	next := mat.NewVecDense(c.occ.Len(), nil)
	next.MulVec(transition.T(), c.occ)
	c.occ.CopyVec(next)
}

// Validate checks the occupancy invariant: entries >= 0, total = 1.
func (c *CohortState) Validate() error {
	sum := 0.0
	for i := 0; i < c.occ.Len(); i++ {
		v := c.occ.AtVec(i)
		if v < -OccupancyTolerance {
			return fmt.Errorf("%w: state %d occupancy %g is negative", core.ErrMassNotConserved, i, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("%w: total occupancy %g", core.ErrMassNotConserved, sum)
	}
	return nil
}

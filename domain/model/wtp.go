package model

import (
	"fmt"

	"ceasim/domain/core"
)

// WTPGrid is the ordered, immutable sequence of willingness-to-pay
// thresholds shared read-only across all metric computations.
type WTPGrid struct {
	values []float64
}

// NewWTPGrid builds a grid from lower bound to upper bound (inclusive) in
// fixed steps.
func NewWTPGrid(lower, upper, step float64) (*WTPGrid, error) {
	if lower < 0 {
		return nil, fmt.Errorf("%w: lower bound %g is negative", core.ErrWTPGridInvalid, lower)
	}
	if upper < lower {
		return nil, fmt.Errorf("%w: upper bound %g below lower bound %g", core.ErrWTPGridInvalid, upper, lower)
	}
	if step <= 0 {
		return nil, fmt.Errorf("%w: step %g must be positive", core.ErrWTPGridInvalid, step)
	}

	var values []float64
	for w := lower; w <= upper+step/2; w += step {
		values = append(values, w)
	}
	return &WTPGrid{values: values}, nil
}

// NewWTPGridFromValues wraps an explicit threshold list.
func NewWTPGridFromValues(values []float64) (*WTPGrid, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty grid", core.ErrWTPGridInvalid)
	}
	for i := 1; i < len(values); i++ {
		if values[i] <= values[i-1] {
			return nil, fmt.Errorf("%w: thresholds must be strictly increasing", core.ErrWTPGridInvalid)
		}
	}
	copied := make([]float64, len(values))
	copy(copied, values)
	return &WTPGrid{values: copied}, nil
}

// Len returns the number of grid points.
func (g *WTPGrid) Len() int {
	return len(g.values)
}

// At returns the threshold at index i.
func (g *WTPGrid) At(i int) float64 {
	return g.values[i]
}

// Values returns a copy of the thresholds.
func (g *WTPGrid) Values() []float64 {
	out := make([]float64, len(g.values))
	copy(out, g.values)
	return out
}

package model

import (
	"fmt"

	"ceasim/domain/core"
)

// AdoptionCurve holds per-strategy, per-year market-share fractions for the
// budget-impact projection. Shares across strategies must sum to <= 1 in
// every year; a violating configuration is rejected, never silently
// renormalized.
type AdoptionCurve struct {
	years  int
	shares map[string][]float64
}

// NewAdoptionCurve validates and builds an adoption curve. Every strategy's
// share slice must cover all projection years.
func NewAdoptionCurve(years int, shares map[string][]float64) (*AdoptionCurve, error) {
	if years < 1 {
		return nil, core.NewValidationError("adoption", "projection needs at least one year")
	}
	for id, s := range shares {
		if len(s) != years {
			return nil, core.NewValidationError("adoption",
				fmt.Sprintf("strategy %s declares %d years, expected %d", id, len(s), years))
		}
		for y, v := range s {
			if v < 0 || v > 1 {
				return nil, core.NewValidationError("adoption",
					fmt.Sprintf("strategy %s year %d share %g outside [0,1]", id, y+1, v))
			}
		}
	}
	for y := 0; y < years; y++ {
		total := 0.0
		for _, s := range shares {
			total += s[y]
		}
		if total > 1+1e-9 {
			return nil, core.NewAdoptionOverflowError(y+1, total)
		}
	}
	return &AdoptionCurve{years: years, shares: shares}, nil
}

// Years returns the projection horizon in years.
func (a *AdoptionCurve) Years() int {
	return a.years
}

// Share returns the market share of a strategy in a given year (0-based).
// Strategies absent from the curve have zero uptake.
func (a *AdoptionCurve) Share(strategyID string, year int) float64 {
	s, ok := a.shares[strategyID]
	if !ok {
		return 0
	}
	return s[year]
}

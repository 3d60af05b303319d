package markov

import (
	"errors"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"ceasim/domain/core"
	"ceasim/domain/model"
	"ceasim/internal/testkit"
)

func meanValues(t *testing.T, params *model.ParameterSet) model.Values {
	t.Helper()
	return params.Means()
}

func TestSimulator_MassConservedEveryCycle(t *testing.T) {
	registry, params := testkit.DepressionRegistry()
	sim, err := New(registry.States(), 120, 12, 40, testkit.StateDepressed, testkit.BackgroundMortality)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vals := meanValues(t, params)
	for i := 0; i < registry.Len(); i++ {
		arm := registry.Arm(i)
		trace, err := sim.Run(arm, vals)
		if err != nil {
			t.Fatalf("Run %s: %v", arm.ID, err)
		}
		for c, occ := range trace.Occupancy {
			sum := 0.0
			for _, v := range occ {
				if v < -1e-9 {
					t.Fatalf("%s cycle %d: negative occupancy %g", arm.ID, c, v)
				}
				sum += v
			}
			if math.Abs(sum-1) > 1e-6 {
				t.Fatalf("%s cycle %d: occupancy sums to %.12f", arm.ID, c, sum)
			}
		}
	}
}

func TestSimulator_DeathIsAbsorbing(t *testing.T) {
	registry, params := testkit.DepressionRegistry()
	sim, err := New(registry.States(), 240, 12, 60, testkit.StateDepressed, testkit.BackgroundMortality)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	trace, err := sim.Run(registry.Arm(0), meanValues(t, params))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	d := registry.States().DeathIndex
	prev := 0.0
	for c, occ := range trace.Occupancy {
		if occ[d] < prev-1e-12 {
			t.Fatalf("cycle %d: death occupancy decreased %.15f -> %.15f", c, prev, occ[d])
		}
		prev = occ[d]
	}
	if prev <= 0 {
		t.Error("expected nonzero death occupancy with background mortality over 20 years")
	}
}

func TestSimulator_BlendedMatricesStayRowStochastic(t *testing.T) {
	registry, params := testkit.DepressionRegistry()
	sim, err := New(registry.States(), 120, 12, 55, testkit.StateDepressed, testkit.BackgroundMortality)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	matrices, err := sim.BuildMatrices(registry.Arm(1), meanValues(t, params))
	if err != nil {
		t.Fatalf("BuildMatrices: %v", err)
	}
	if len(matrices) != 120 {
		t.Fatalf("built %d matrices, want 120", len(matrices))
	}

	n := registry.States().Len()
	d := registry.States().DeathIndex
	for cycle, m := range matrices {
		for i := 0; i < n; i++ {
			sum := 0.0
			for j := 0; j < n; j++ {
				if v := m.At(i, j); v < 0 {
					t.Fatalf("cycle %d row %d: negative entry %g after blending", cycle, i, v)
				} else {
					sum += v
				}
			}
			if math.Abs(sum-1) > 1e-9 {
				t.Fatalf("cycle %d row %d: sums to %.12f after blending", cycle, i, sum)
			}
		}
		if math.Abs(m.At(d, d)-1) > 1e-12 {
			t.Fatalf("cycle %d: death row no longer absorbing", cycle)
		}
	}
}

func TestSimulator_MortalityIncreasesDeathProbability(t *testing.T) {
	registry, params := testkit.DepressionRegistry()
	vals := meanValues(t, params)

	withMort, _ := New(registry.States(), 60, 12, 70, testkit.StateDepressed, testkit.BackgroundMortality)
	without, _ := New(registry.States(), 60, 12, 70, testkit.StateDepressed, nil)

	blended, err := withMort.BuildMatrices(registry.Arm(0), vals)
	if err != nil {
		t.Fatalf("BuildMatrices: %v", err)
	}
	raw, err := without.BuildMatrices(registry.Arm(0), vals)
	if err != nil {
		t.Fatalf("BuildMatrices: %v", err)
	}

	d := registry.States().DeathIndex
	for cycle := range blended {
		for i := 0; i < registry.States().Len(); i++ {
			if i == d {
				continue
			}
			if blended[cycle].At(i, d) <= raw[cycle].At(i, d) {
				t.Fatalf("cycle %d row %d: blending did not raise death probability", cycle, i)
			}
		}
	}
}

// badTransitionArm returns an arm whose matrix breaks at breakCycle; the
// simulator must refuse the whole run before advancing a single cycle.
func badTransitionArm(states model.StateSpace, breakCycle int) model.StrategyArm {
	return model.StrategyArm{
		ID:   "broken",
		Name: "Broken",
		Transition: func(cycle int, _ model.Values) *mat.Dense {
			n := states.Len()
			m := mat.NewDense(n, n, nil)
			for i := 0; i < n; i++ {
				m.Set(i, i, 1)
			}
			if cycle == breakCycle {
				m.Set(0, 0, 0.7) // row now sums to 0.7
			}
			return m
		},
		Cost:    func(int, model.Values) float64 { return 0 },
		Utility: func(int, model.Values) float64 { return 0 },
	}
}

func TestSimulator_MalformedMatrixFailsBeforeSimulating(t *testing.T) {
	states := testkit.DepressionStates()
	sim, err := New(states, 24, 12, 40, testkit.StateDepressed, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// The defect is at cycle 20; a lazy validator would simulate 20 cycles
	// first. BuildMatrices must surface it with no trace produced.
	arm := badTransitionArm(states, 20)
	trace, err := sim.Run(arm, model.Values{})
	if !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if trace != nil {
		t.Error("expected no trace on validation failure")
	}

	if !strings.Contains(err.Error(), "cycle 20") {
		t.Errorf("error should locate the failing cycle, got %q", err)
	}
	if !core.IsSimulationError(err) {
		t.Error("invalid transition should classify as a simulation error")
	}
}

func TestSimulator_RejectsNegativeEntries(t *testing.T) {
	states := testkit.DepressionStates()
	sim, _ := New(states, 12, 12, 40, testkit.StateDepressed, nil)

	arm := model.StrategyArm{
		ID: "negative",
		Transition: func(int, model.Values) *mat.Dense {
			n := states.Len()
			m := mat.NewDense(n, n, nil)
			for i := 0; i < n; i++ {
				m.Set(i, i, 1)
			}
			m.Set(0, 0, 1.2)
			m.Set(0, 1, -0.2)
			return m
		},
		Cost:    func(int, model.Values) float64 { return 0 },
		Utility: func(int, model.Values) float64 { return 0 },
	}

	if _, err := sim.Run(arm, model.Values{}); !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for negative entry, got %v", err)
	}
}

func TestSimulator_RejectsNonAbsorbingDeath(t *testing.T) {
	states := testkit.DepressionStates()
	sim, _ := New(states, 12, 12, 40, testkit.StateDepressed, nil)

	arm := model.StrategyArm{
		ID: "resurrection",
		Transition: func(int, model.Values) *mat.Dense {
			n := states.Len()
			m := mat.NewDense(n, n, nil)
			for i := 0; i < n; i++ {
				m.Set(i, i, 1)
			}
			m.Set(states.DeathIndex, states.DeathIndex, 0.95)
			m.Set(states.DeathIndex, 0, 0.05)
			return m
		},
		Cost:    func(int, model.Values) float64 { return 0 },
		Utility: func(int, model.Values) float64 { return 0 },
	}

	if _, err := sim.Run(arm, model.Values{}); !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for non-absorbing death, got %v", err)
	}
}

func TestSimulator_RejectsInvalidConfiguration(t *testing.T) {
	states := testkit.DepressionStates()
	if _, err := New(states, 0, 12, 40, testkit.StateDepressed, nil); err == nil {
		t.Error("expected error for zero horizon")
	}
	if _, err := New(states, 12, 12, 40, states.DeathIndex, nil); err == nil {
		t.Error("expected error for death initial state")
	}
}

package voi

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"ceasim/domain/model"
)

func grid(t *testing.T, values ...float64) *model.WTPGrid {
	t.Helper()
	g, err := model.NewWTPGridFromValues(values)
	if err != nil {
		t.Fatalf("building WTP grid: %v", err)
	}
	return g
}

// uncertainDraws generates two strategies whose ranking flips across draws,
// so perfect information has positive value.
func uncertainDraws(n int, seed int64) []model.SimulationDraw {
	rng := rand.New(rand.NewSource(seed))
	draws := make([]model.SimulationDraw, n)
	for i := range draws {
		effect := 0.8 + 0.4*rng.Float64() // strategy 1's QALYs straddle strategy 0's
		draws[i] = model.SimulationDraw{
			Iteration: i,
			Seed:      seed + int64(i),
			Params:    model.Values{"effect": effect},
			Cost:      []float64{10000, 15000},
			QALY:      []float64{1.0, effect + 0.1},
		}
	}
	return draws
}

func TestEVPI_NonNegativeAcrossGrid(t *testing.T) {
	engine := NewEngine(grid(t, 0, 20000, 50000, 100000), 50000, 100000, 0.05, 100)
	points, err := engine.EVPI(uncertainDraws(2000, 3), 2)
	if err != nil {
		t.Fatalf("EVPI: %v", err)
	}
	for _, p := range points {
		if p.Value < 0 {
			t.Errorf("EVPI at wtp=%g is negative: %g", p.WTP, p.Value)
		}
		if p.PopulationEVPI != p.Value*100000 {
			t.Errorf("population EVPI at wtp=%g = %g, want %g", p.WTP, p.PopulationEVPI, p.Value*100000)
		}
	}
}

func TestEVPI_PositiveWhenRankingUncertain(t *testing.T) {
	engine := NewEngine(grid(t, 50000), 50000, 1, 0.5, 100)
	points, err := engine.EVPI(uncertainDraws(2000, 5), 2)
	if err != nil {
		t.Fatalf("EVPI: %v", err)
	}
	if points[0].Value <= 0 {
		t.Errorf("EVPI = %g, want > 0 when the optimal strategy varies by draw", points[0].Value)
	}
}

func TestEVPI_ZeroWhenOneStrategyAlwaysWins(t *testing.T) {
	draws := make([]model.SimulationDraw, 500)
	for i := range draws {
		// Strategy 0 dominates in every draw at every threshold.
		draws[i] = model.SimulationDraw{
			Iteration: i,
			Cost:      []float64{100, 5000},
			QALY:      []float64{2.0, 1.0},
		}
	}
	engine := NewEngine(grid(t, 0, 50000), 50000, 1, 0.05, 100)
	points, err := engine.EVPI(draws, 2)
	if err != nil {
		t.Fatalf("EVPI: %v", err)
	}
	for _, p := range points {
		if p.Value != 0 {
			t.Errorf("EVPI at wtp=%g = %g, want 0 under a universally optimal strategy", p.WTP, p.Value)
		}
	}
}

func TestEVPI_SingleDrawFlaggedLowPrecision(t *testing.T) {
	engine := NewEngine(grid(t, 50000), 50000, 1, 0.05, 100)
	points, err := engine.EVPI(uncertainDraws(1, 7), 2)
	if err != nil {
		t.Fatalf("EVPI: %v", err)
	}
	if !points[0].LowPrecision {
		t.Error("a single-draw EVPI estimate must be flagged low-precision")
	}
}

func TestEVPI_BelowMinimumIterationsFlagged(t *testing.T) {
	engine := NewEngine(grid(t, 50000), 50000, 1, 0.05, 1000)
	points, err := engine.EVPI(uncertainDraws(50, 9), 2)
	if err != nil {
		t.Fatalf("EVPI: %v", err)
	}
	if !points[0].LowPrecision {
		t.Error("estimate below the configured minimum iterations must be flagged")
	}
}

func TestPolicyEVPI_NearestGridPoint(t *testing.T) {
	engine := NewEngine(grid(t, 0, 30000, 60000), 50000, 1, 0.05, 10)
	points := []EVPIPoint{{WTP: 0}, {WTP: 30000}, {WTP: 60000}}
	if got := engine.PolicyEVPI(points); got.WTP != 60000 {
		t.Errorf("policy EVPI at wtp=%g, want nearest grid point 60000", got.WTP)
	}
}

func TestEVPPI_RegressionBoundedByEVPI(t *testing.T) {
	draws := uncertainDraws(3000, 11)
	engine := NewEngine(grid(t, 50000), 50000, 1, 0.05, 100)

	evpi, err := engine.EVPI(draws, 2)
	if err != nil {
		t.Fatalf("EVPI: %v", err)
	}
	res, err := engine.EVPPI(context.Background(), draws, 2, "effect", []string{"effect"}, 50000, MethodRegression, nil, 0)
	if err != nil {
		t.Fatalf("EVPPI: %v", err)
	}

	if res.Value < 0 {
		t.Errorf("EVPPI = %g, want >= 0", res.Value)
	}
	// "effect" drives the decision entirely here, so its EVPPI should
	// recover most of the EVPI; sampling noise allows a small excess.
	if res.Value > evpi[0].Value*1.1+1 {
		t.Errorf("EVPPI %g implausibly exceeds EVPI %g", res.Value, evpi[0].Value)
	}
	if res.Method != MethodRegression {
		t.Errorf("method = %s, want regression", res.Method)
	}
}

func TestEVPPI_NestedRequiresResimulator(t *testing.T) {
	draws := uncertainDraws(100, 13)
	engine := NewEngine(grid(t, 50000), 50000, 1, 0.05, 10)
	_, err := engine.EVPPI(context.Background(), draws, 2, "effect", []string{"effect"}, 50000, MethodNested, nil, 100)
	if err == nil {
		t.Fatal("expected error when nested method has no resimulator")
	}
}

type constantResimulator struct{}

func (constantResimulator) Resimulate(_ context.Context, fixed model.Values, seed int64) ([]float64, []float64, error) {
	// Inner uncertainty collapses: outcomes depend only on the pinned value.
	effect := fixed["effect"]
	return []float64{10000, 15000}, []float64{1.0, effect + 0.1}, nil
}

func TestEVPPI_NestedMatchesRegressionOnNoiselessModel(t *testing.T) {
	draws := uncertainDraws(600, 17)
	engine := NewEngine(grid(t, 50000), 50000, 1, 0.05, 100)

	nested, err := engine.EVPPI(context.Background(), draws, 2, "effect", []string{"effect"}, 50000, MethodNested, constantResimulator{}, 5)
	if err != nil {
		t.Fatalf("nested EVPPI: %v", err)
	}
	regression, err := engine.EVPPI(context.Background(), draws, 2, "effect", []string{"effect"}, 50000, MethodRegression, nil, 0)
	if err != nil {
		t.Fatalf("regression EVPPI: %v", err)
	}

	// With all residual uncertainty removed, both estimators target the same
	// quantity; allow binning bias room.
	diff := math.Abs(nested.Value - regression.Value)
	scale := math.Max(nested.Value, 1)
	if diff/scale > 0.25 {
		t.Errorf("nested %g and regression %g disagree beyond tolerance", nested.Value, regression.Value)
	}
}

func TestEVPPI_RejectsUnknownMethod(t *testing.T) {
	draws := uncertainDraws(100, 19)
	engine := NewEngine(grid(t, 50000), 50000, 1, 0.05, 10)
	if _, err := engine.EVPPI(context.Background(), draws, 2, "effect", []string{"effect"}, 50000, Method("bootstrap"), nil, 0); err == nil {
		t.Fatal("expected error for unknown estimator method")
	}
}

package markov

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"ceasim/domain/core"
	"ceasim/domain/model"
)

// MortalityFunc returns the annual probability of death from background
// causes at a given age in years. A nil function disables blending.
type MortalityFunc func(ageYears int) float64

// Trace is the per-cycle occupancy record of one cohort simulation.
// Occupancy[c] is the state distribution at the START of cycle c; the final
// row is the distribution after the last simulated cycle.
type Trace struct {
	Occupancy [][]float64
}

// Cycles returns the number of simulated cycles (rows minus the final state).
func (t *Trace) Cycles() int {
	return len(t.Occupancy) - 1
}

// Simulator advances a cohort occupancy vector cycle-by-cycle for one
// strategy under one parameter realization. The recurrence is strictly
// sequential; parallelism lives across iterations, not here.
type Simulator struct {
	states        model.StateSpace
	horizon       int
	cyclesPerYear int
	startAge      int
	initialState  int
	mortality     MortalityFunc
}

// New creates a simulator for the given state space and horizon. The cohort
// starts entirely in initialState at cycle 0. Age-dependent background
// mortality, when provided, is blended multiplicatively into the absorbing
// death transition each cycle.
func New(states model.StateSpace, horizon, cyclesPerYear, startAge, initialState int, mortality MortalityFunc) (*Simulator, error) {
	if horizon < 1 {
		return nil, core.NewValidationError("simulator", "horizon must be at least one cycle")
	}
	if cyclesPerYear < 1 {
		return nil, core.NewValidationError("simulator", "cycles per year must be positive")
	}
	if initialState < 0 || initialState >= states.Len() || initialState == states.DeathIndex {
		return nil, core.NewValidationError("simulator", fmt.Sprintf("invalid initial state %d", initialState))
	}
	return &Simulator{
		states:        states,
		horizon:       horizon,
		cyclesPerYear: cyclesPerYear,
		startAge:      startAge,
		initialState:  initialState,
		mortality:     mortality,
	}, nil
}

// Run simulates one strategy for one parameter realization. Every cycle's
// transition matrix is constructed and validated before the cycle loop
// begins, so a malformed matrix fails fast instead of mid-simulation.
// Simulation stops early once all mass is absorbed.
func (s *Simulator) Run(arm model.StrategyArm, vals model.Values) (*Trace, error) {
	matrices, err := s.BuildMatrices(arm, vals)
	if err != nil {
		return nil, err
	}

	cohort, err := model.NewCohortState(s.states.Len(), s.initialState)
	if err != nil {
		return nil, err
	}

	trace := &Trace{Occupancy: make([][]float64, 0, s.horizon+1)}
	trace.Occupancy = append(trace.Occupancy, cohort.Fractions())

	for cycle := 0; cycle < s.horizon; cycle++ {
		cohort.Advance(matrices[cycle])
		if err := cohort.Validate(); err != nil {
			return nil, fmt.Errorf("strategy %s cycle %d: %w", arm.ID, cycle, err)
		}
		trace.Occupancy = append(trace.Occupancy, cohort.Fractions())

		if cohort.Occupancy(s.states.DeathIndex) > 1-1e-12 {
			break
		}
	}

	return trace, nil
}

// BuildMatrices constructs and validates the full horizon's transition
// matrices, then blends background mortality. Validation happens on the
// strategy's raw matrices; the blend preserves row sums by construction.
func (s *Simulator) BuildMatrices(arm model.StrategyArm, vals model.Values) ([]*mat.Dense, error) {
	matrices := make([]*mat.Dense, s.horizon)
	for cycle := 0; cycle < s.horizon; cycle++ {
		m := arm.Transition(cycle, vals)
		if m == nil {
			return nil, core.NewInvalidTransitionError(arm.ID, cycle, -1, "transition function returned nil")
		}
		if err := s.validateMatrix(arm.ID, cycle, m); err != nil {
			return nil, err
		}
		s.blendMortality(m, cycle)
		matrices[cycle] = m
	}
	return matrices, nil
}

func (s *Simulator) validateMatrix(strategyID string, cycle int, m *mat.Dense) error {
	r, c := m.Dims()
	n := s.states.Len()
	if r != n || c != n {
		return core.NewInvalidTransitionError(strategyID, cycle, -1,
			fmt.Sprintf("matrix is %dx%d, expected %dx%d", r, c, n, n))
	}
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			v := m.At(i, j)
			if v < 0 {
				return core.NewInvalidTransitionError(strategyID, cycle, i,
					fmt.Sprintf("negative probability %g at column %d", v, j))
			}
			sum += v
		}
		if math.Abs(sum-1) > model.RowSumTolerance {
			return core.NewInvalidTransitionError(strategyID, cycle, i,
				fmt.Sprintf("row sums to %.12f", sum))
		}
	}
	// Death is absorbing.
	d := s.states.DeathIndex
	if math.Abs(m.At(d, d)-1) > model.RowSumTolerance {
		return core.NewInvalidTransitionError(strategyID, cycle, d, "death state must be absorbing")
	}
	return nil
}

// blendMortality folds the age-dependent background death probability into
// each alive row: p' = 1-(1-p_model)(1-p_background), with the surviving
// transitions scaled proportionally so the row still sums to 1.
func (s *Simulator) blendMortality(m *mat.Dense, cycle int) {
	if s.mortality == nil {
		return
	}
	age := s.startAge + cycle/s.cyclesPerYear
	annual := s.mortality(age)
	if annual <= 0 {
		return
	}
	perCycle := 1 - math.Pow(1-annual, 1/float64(s.cyclesPerYear))

	n := s.states.Len()
	d := s.states.DeathIndex
	for i := 0; i < n; i++ {
		if i == d {
			continue
		}
		pDeath := m.At(i, d)
		blended := 1 - (1-pDeath)*(1-perCycle)
		if pDeath < 1 {
			scale := (1 - blended) / (1 - pDeath)
			for j := 0; j < n; j++ {
				if j != d {
					m.Set(i, j, m.At(i, j)*scale)
				}
			}
		}
		m.Set(i, d, blended)
	}
}

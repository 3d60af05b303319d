package testkit

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"ceasim/domain/model"
)

// Reference depression cohort model: three competing strategies for
// treatment-resistant depression evaluated over a monthly-cycle Markov
// model. EarlyRemission is a tunnel state covering the first six months
// after response, when relapse hazard is elevated; patients graduate to
// StableRemission at an expected six-month dwell time.
const (
	StateDepressed       = 0
	StateEarlyRemission  = 1
	StateStableRemission = 2
	StateDeath           = 3
)

// Strategy identifiers of the reference model.
const (
	StrategyUsualCare  = "usual-care"
	StrategyKetamine   = "ketamine"
	StrategyEsketamine = "esketamine"
)

// DepressionStates returns the reference model's state space.
func DepressionStates() model.StateSpace {
	states, err := model.NewStateSpace(
		[]string{"Depressed", "EarlyRemission", "StableRemission", "Death"}, StateDeath)
	if err != nil {
		panic(err)
	}
	return states
}

// DepressionParameters declares the reference model's uncertain inputs.
// The two ketamine-class early-relapse rates share a correlation group
// because they derive from the same clinical study; everything else draws
// independently.
func DepressionParameters() *model.ParameterSet {
	params := []model.Parameter{
		{Name: "util_depressed", Owner: model.SharedOwner, Dist: model.NewBeta(60, 40)},
		{Name: "util_remission", Owner: model.SharedOwner, Dist: model.NewBeta(85, 15)},
		{Name: "cost_depressed_cycle", Owner: model.SharedOwner, Dist: model.NewGamma(100, 3)},
		{Name: "cost_remission_cycle", Owner: model.SharedOwner, Dist: model.NewGamma(100, 1.2)},
		{Name: "stable_relapse_factor", Owner: model.SharedOwner, Dist: model.Fixed(0.35)},

		{Name: "uc_response", Owner: StrategyUsualCare, Dist: model.NewBeta(12, 88)},
		{Name: "uc_relapse_early", Owner: StrategyUsualCare, Dist: model.NewBeta(30, 70)},

		{Name: "ket_response", Owner: StrategyKetamine, Dist: model.NewBeta(30, 70)},
		{Name: "ket_relapse_early", Owner: StrategyKetamine, Dist: model.NewBeta(20, 80), CorrelationGroup: "ketamine_class_relapse"},
		{Name: "ket_maintenance_cost", Owner: StrategyKetamine, Dist: model.NewGamma(64, 6.25)},
		{Name: "ket_acute_cost", Owner: StrategyKetamine, Dist: model.NewLogNormal(math.Log(2400), 0.15)},

		{Name: "esk_response", Owner: StrategyEsketamine, Dist: model.NewBeta(34, 66)},
		{Name: "esk_relapse_early", Owner: StrategyEsketamine, Dist: model.NewBeta(18, 82), CorrelationGroup: "ketamine_class_relapse"},
		{Name: "esk_maintenance_cost", Owner: StrategyEsketamine, Dist: model.NewGamma(81, 9)},
		{Name: "esk_acute_cost", Owner: StrategyEsketamine, Dist: model.NewLogNormal(math.Log(4200), 0.12)},
	}
	set, err := model.NewParameterSet(params)
	if err != nil {
		panic(err)
	}
	return set
}

// tunnelExit is the per-cycle probability of graduating from EarlyRemission
// to StableRemission (expected six-month dwell).
const tunnelExit = 1.0 / 6.0

// depressionTransition builds the shared transition structure. Response
// wanes after the first six cycles of active treatment; relapse from stable
// remission is the early-relapse rate scaled by the stable factor.
func depressionTransition(responseParam, relapseParam string) model.TransitionFunc {
	return func(cycle int, params model.Values) *mat.Dense {
		response := params[responseParam]
		if cycle >= 6 {
			response *= 0.8
		}
		relapseEarly := params[relapseParam]
		relapseStable := relapseEarly * params["stable_relapse_factor"]

		m := mat.NewDense(4, 4, nil)
		m.Set(StateDepressed, StateDepressed, 1-response)
		m.Set(StateDepressed, StateEarlyRemission, response)

		m.Set(StateEarlyRemission, StateDepressed, relapseEarly)
		m.Set(StateEarlyRemission, StateEarlyRemission, 1-relapseEarly-tunnelExit)
		m.Set(StateEarlyRemission, StateStableRemission, tunnelExit)

		m.Set(StateStableRemission, StateDepressed, relapseStable)
		m.Set(StateStableRemission, StateStableRemission, 1-relapseStable)

		m.Set(StateDeath, StateDeath, 1)
		return m
	}
}

func depressionUtility() model.UtilityFunc {
	return func(state int, params model.Values) float64 {
		switch state {
		case StateDepressed:
			return params["util_depressed"]
		case StateEarlyRemission, StateStableRemission:
			return params["util_remission"]
		}
		return 0
	}
}

func depressionCost(maintenanceParam string) model.CostFunc {
	return func(state int, params model.Values) float64 {
		switch state {
		case StateDepressed:
			return params["cost_depressed_cycle"]
		case StateEarlyRemission, StateStableRemission:
			cost := params["cost_remission_cycle"]
			if maintenanceParam != "" {
				cost += params[maintenanceParam]
			}
			return cost
		}
		return 0
	}
}

// DepressionRegistry builds the full reference registry with usual care as
// the comparator.
func DepressionRegistry() (*model.StrategyRegistry, *model.ParameterSet) {
	params := DepressionParameters()

	arms := []model.StrategyArm{
		{
			ID:         StrategyUsualCare,
			Name:       "Usual care",
			Parameters: []string{"uc_response", "uc_relapse_early"},
			Transition: depressionTransition("uc_response", "uc_relapse_early"),
			Cost:       depressionCost(""),
			Utility:    depressionUtility(),
		},
		{
			ID:         StrategyKetamine,
			Name:       "IV ketamine",
			Parameters: []string{"ket_response", "ket_relapse_early", "ket_maintenance_cost", "ket_acute_cost"},
			Transition: depressionTransition("ket_response", "ket_relapse_early"),
			Cost:       depressionCost("ket_maintenance_cost"),
			Utility:    depressionUtility(),
			OneTime: []model.OneTimeCost{
				{Cycle: 0, State: model.WholeCohort, Amount: func(p model.Values) float64 { return p["ket_acute_cost"] }},
			},
		},
		{
			ID:         StrategyEsketamine,
			Name:       "Intranasal esketamine",
			Parameters: []string{"esk_response", "esk_relapse_early", "esk_maintenance_cost", "esk_acute_cost"},
			Transition: depressionTransition("esk_response", "esk_relapse_early"),
			Cost:       depressionCost("esk_maintenance_cost"),
			Utility:    depressionUtility(),
			OneTime: []model.OneTimeCost{
				{Cycle: 0, State: model.WholeCohort, Amount: func(p model.Values) float64 { return p["esk_acute_cost"] }},
			},
		},
	}

	registry, err := model.NewStrategyRegistry(DepressionStates(), arms, params, StrategyUsualCare)
	if err != nil {
		panic(err)
	}
	return registry, params
}

// BackgroundMortality is a Gompertz-style annual background death
// probability by age, capped below 1.
func BackgroundMortality(ageYears int) float64 {
	q := 0.002 * math.Pow(1.09, float64(ageYears-40))
	if q > 0.9 {
		q = 0.9
	}
	if q < 0 {
		q = 0
	}
	return q
}

package model

import (
	"fmt"
	"strings"

	"ceasim/domain/core"
)

// StateSpace declares the health states of the model. The death state is
// absorbing and is the target of background-mortality blending.
type StateSpace struct {
	Names      []string
	DeathIndex int
}

// NewStateSpace validates and builds a state space.
func NewStateSpace(names []string, deathIndex int) (StateSpace, error) {
	if len(names) < 3 {
		return StateSpace{}, core.NewValidationError("states", "model needs at least 3 health states")
	}
	if deathIndex < 0 || deathIndex >= len(names) {
		return StateSpace{}, core.NewValidationError("states", fmt.Sprintf("death index %d out of range", deathIndex))
	}
	return StateSpace{Names: names, DeathIndex: deathIndex}, nil
}

// Len returns the number of states.
func (s StateSpace) Len() int {
	return len(s.Names)
}

// StrategyRegistry is the typed registry of competing strategies, built once
// at configuration-load time and validated for completeness before any
// simulation runs. Arm order is significant: it defines the strategy index
// used for deterministic tie-breaking.
type StrategyRegistry struct {
	states   StateSpace
	arms     []StrategyArm
	refIndex int
	params   *ParameterSet
}

// NewStrategyRegistry validates that every strategy has transition, cost and
// utility definitions and that every required parameter is declared.
func NewStrategyRegistry(states StateSpace, arms []StrategyArm, params *ParameterSet, referenceID string) (*StrategyRegistry, error) {
	if len(arms) < 2 {
		return nil, fmt.Errorf("%w: need at least two strategies to compare", core.ErrRegistryIncomplete)
	}

	seen := make(map[string]bool, len(arms))
	refIndex := -1
	for i, arm := range arms {
		if arm.ID == "" {
			return nil, fmt.Errorf("%w: strategy at index %d has no identifier", core.ErrRegistryIncomplete, i)
		}
		if seen[arm.ID] {
			return nil, fmt.Errorf("%w: duplicate strategy %s", core.ErrRegistryIncomplete, arm.ID)
		}
		seen[arm.ID] = true

		if arm.Transition == nil {
			return nil, fmt.Errorf("%w: strategy %s has no transition definition", core.ErrRegistryIncomplete, arm.ID)
		}
		if arm.Cost == nil {
			return nil, fmt.Errorf("%w: strategy %s has no cost definition", core.ErrRegistryIncomplete, arm.ID)
		}
		if arm.Utility == nil {
			return nil, fmt.Errorf("%w: strategy %s has no utility definition", core.ErrRegistryIncomplete, arm.ID)
		}
		for _, name := range arm.Parameters {
			if _, ok := params.ByName(name); !ok {
				return nil, fmt.Errorf("%w: strategy %s requires undeclared parameter %s", core.ErrRegistryIncomplete, arm.ID, name)
			}
		}
		for _, otc := range arm.OneTime {
			if otc.Amount == nil {
				return nil, fmt.Errorf("%w: strategy %s one-time cost at cycle %d has no amount", core.ErrRegistryIncomplete, arm.ID, otc.Cycle)
			}
			if otc.State != WholeCohort && (otc.State < 0 || otc.State >= states.Len()) {
				return nil, fmt.Errorf("%w: strategy %s one-time cost targets invalid state %d", core.ErrRegistryIncomplete, arm.ID, otc.State)
			}
		}

		if arm.ID == referenceID {
			refIndex = i
		}
	}
	if refIndex < 0 {
		return nil, fmt.Errorf("%w: reference strategy %s not registered", core.ErrRegistryIncomplete, referenceID)
	}

	return &StrategyRegistry{states: states, arms: arms, refIndex: refIndex, params: params}, nil
}

// States returns the model's state space.
func (r *StrategyRegistry) States() StateSpace {
	return r.states
}

// Len returns the number of registered strategies.
func (r *StrategyRegistry) Len() int {
	return len(r.arms)
}

// Arm returns the strategy at the given index.
func (r *StrategyRegistry) Arm(i int) StrategyArm {
	return r.arms[i]
}

// ReferenceIndex returns the index of the designated reference strategy.
func (r *StrategyRegistry) ReferenceIndex() int {
	return r.refIndex
}

// IDs returns strategy identifiers in registry order.
func (r *StrategyRegistry) IDs() []string {
	ids := make([]string, len(r.arms))
	for i, arm := range r.arms {
		ids[i] = arm.ID
	}
	return ids
}

// Parameters returns the declared parameter set.
func (r *StrategyRegistry) Parameters() *ParameterSet {
	return r.params
}

// Fingerprint hashes the registry structure (strategies, state space,
// parameter distributions) for the run manifest.
func (r *StrategyRegistry) Fingerprint() core.RegistryHash {
	entries := r.params.FingerprintEntries()
	entries["states"] = strings.Join(r.states.Names, ",") + fmt.Sprintf("|death=%d", r.states.DeathIndex)
	for i, arm := range r.arms {
		entries[fmt.Sprintf("arm:%d", i)] = arm.ID + "|" + strings.Join(arm.Parameters, ",")
	}
	entries["reference"] = r.arms[r.refIndex].ID
	return core.ComputeRegistryHash(entries)
}

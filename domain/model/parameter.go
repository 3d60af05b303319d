package model

import (
	"ceasim/domain/core"
)

// SharedOwner marks a parameter that is not tied to a single strategy.
const SharedOwner = "shared"

// Parameter declares one uncertain model input: its owning strategy (or
// "shared"), its distribution, and an optional correlation group. Parameters
// in the same correlation group draw from one shared uniform per iteration
// and transform through their own inverse CDFs, preserving rank correlation.
// An empty group means independent draws.
type Parameter struct {
	Name             string       `json:"name"`
	Owner            string       `json:"owner"`
	Dist             Distribution `json:"distribution"`
	CorrelationGroup string       `json:"correlation_group,omitempty"`
	Jurisdiction     string       `json:"jurisdiction,omitempty"`
}

// Values holds one iteration's realized parameter values, keyed by name.
type Values map[string]float64

// ParameterSet is the ordered list of declared parameters. Order is part of
// the reproducibility contract: the uniform stream is consumed in this order.
type ParameterSet struct {
	params []Parameter
	index  map[string]int
}

// NewParameterSet builds a set from declarations, validating each
// distribution eagerly and rejecting duplicate names.
func NewParameterSet(params []Parameter) (*ParameterSet, error) {
	index := make(map[string]int, len(params))
	for i, p := range params {
		if p.Name == "" {
			return nil, core.NewValidationError("parameter", "name cannot be empty")
		}
		if _, dup := index[p.Name]; dup {
			return nil, core.NewValidationError("parameter", "duplicate name "+p.Name)
		}
		if err := p.Dist.Validate(p.Name); err != nil {
			return nil, err
		}
		index[p.Name] = i
	}
	return &ParameterSet{params: params, index: index}, nil
}

// Len returns the number of declared parameters.
func (s *ParameterSet) Len() int {
	return len(s.params)
}

// At returns the parameter at declaration position i.
func (s *ParameterSet) At(i int) Parameter {
	return s.params[i]
}

// ByName looks up a parameter by name.
func (s *ParameterSet) ByName(name string) (Parameter, bool) {
	i, ok := s.index[name]
	if !ok {
		return Parameter{}, false
	}
	return s.params[i], true
}

// Names returns parameter names in declaration order.
func (s *ParameterSet) Names() []string {
	names := make([]string, len(s.params))
	for i, p := range s.params {
		names[i] = p.Name
	}
	return names
}

// Means returns the analytic mean of every parameter, used as the
// deterministic base case.
func (s *ParameterSet) Means() Values {
	vals := make(Values, len(s.params))
	for _, p := range s.params {
		vals[p.Name] = p.Dist.Mean()
	}
	return vals
}

// FingerprintEntries exposes name -> distribution description pairs for the
// registry hash.
func (s *ParameterSet) FingerprintEntries() map[string]string {
	entries := make(map[string]string, len(s.params))
	for _, p := range s.params {
		entries["param:"+p.Name] = p.Owner + "|" + p.Dist.String() + "|" + p.CorrelationGroup
	}
	return entries
}

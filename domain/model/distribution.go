package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"ceasim/domain/core"
)

// DistributionKind enumerates the closed set of supported distributions.
// New distribution types are additions to this variant, never ad-hoc
// attribute bags.
type DistributionKind string

const (
	DistFixed     DistributionKind = "fixed"
	DistBeta      DistributionKind = "beta"
	DistGamma     DistributionKind = "gamma"
	DistLogNormal DistributionKind = "lognormal"
)

// Distribution is an immutable tagged variant over
// {Fixed, Beta(α,β), Gamma(shape,scale), LogNormal(μ,σ)}.
// Only the fields belonging to the tagged kind are meaningful.
type Distribution struct {
	Kind DistributionKind `json:"kind"`

	// Fixed
	Value float64 `json:"value,omitempty"`

	// Beta
	Alpha float64 `json:"alpha,omitempty"`
	Beta  float64 `json:"beta,omitempty"`

	// Gamma
	Shape float64 `json:"shape,omitempty"`
	Scale float64 `json:"scale,omitempty"`

	// LogNormal
	Mu    float64 `json:"mu,omitempty"`
	Sigma float64 `json:"sigma,omitempty"`
}

// Fixed creates a degenerate point-mass distribution
func Fixed(value float64) Distribution {
	return Distribution{Kind: DistFixed, Value: value}
}

// NewBeta creates a Beta(α,β) distribution
func NewBeta(alpha, beta float64) Distribution {
	return Distribution{Kind: DistBeta, Alpha: alpha, Beta: beta}
}

// NewGamma creates a Gamma distribution with shape/scale parameterization
func NewGamma(shape, scale float64) Distribution {
	return Distribution{Kind: DistGamma, Shape: shape, Scale: scale}
}

// NewLogNormal creates a LogNormal(μ,σ) distribution (μ,σ on the log scale)
func NewLogNormal(mu, sigma float64) Distribution {
	return Distribution{Kind: DistLogNormal, Mu: mu, Sigma: sigma}
}

// Validate checks the declared parameters against the distribution's domain.
// Out-of-domain parameters are a configuration error, detected eagerly
// before any simulation work starts.
func (d Distribution) Validate(parameter string) error {
	switch d.Kind {
	case DistFixed:
		if math.IsNaN(d.Value) || math.IsInf(d.Value, 0) {
			return core.NewDistributionError(parameter, "fixed value must be finite")
		}
	case DistBeta:
		if d.Alpha <= 0 || d.Beta <= 0 {
			return core.NewDistributionError(parameter,
				fmt.Sprintf("beta requires alpha > 0 and beta > 0, got (%g, %g)", d.Alpha, d.Beta))
		}
	case DistGamma:
		if d.Shape <= 0 || d.Scale <= 0 {
			return core.NewDistributionError(parameter,
				fmt.Sprintf("gamma requires shape > 0 and scale > 0, got (%g, %g)", d.Shape, d.Scale))
		}
	case DistLogNormal:
		if d.Sigma <= 0 || math.IsNaN(d.Mu) || math.IsInf(d.Mu, 0) {
			return core.NewDistributionError(parameter,
				fmt.Sprintf("lognormal requires finite mu and sigma > 0, got (%g, %g)", d.Mu, d.Sigma))
		}
	default:
		return core.NewDistributionError(parameter, fmt.Sprintf("unknown distribution kind %q", d.Kind))
	}
	return nil
}

// IsStochastic reports whether sampling consumes randomness. Fixed
// parameters consume none, so adding one never shifts the uniform stream
// of the remaining parameters.
func (d Distribution) IsStochastic() bool {
	return d.Kind != DistFixed
}

// Mean returns the analytic mean, used for the deterministic base case.
func (d Distribution) Mean() float64 {
	switch d.Kind {
	case DistFixed:
		return d.Value
	case DistBeta:
		return d.Alpha / (d.Alpha + d.Beta)
	case DistGamma:
		return d.Shape * d.Scale
	case DistLogNormal:
		return math.Exp(d.Mu + d.Sigma*d.Sigma/2)
	}
	return math.NaN()
}

// Quantile maps a uniform draw through the inverse CDF. Beta values land
// in [0,1]; Gamma and LogNormal values are >= 0 by construction, so
// probability- and cost-typed parameters stay inside their support.
func (d Distribution) Quantile(p float64) float64 {
	switch d.Kind {
	case DistFixed:
		return d.Value
	case DistBeta:
		return distuv.Beta{Alpha: d.Alpha, Beta: d.Beta}.Quantile(p)
	case DistGamma:
		// distuv parameterizes Gamma by rate; rate = 1/scale
		return distuv.Gamma{Alpha: d.Shape, Beta: 1 / d.Scale}.Quantile(p)
	case DistLogNormal:
		return distuv.LogNormal{Mu: d.Mu, Sigma: d.Sigma}.Quantile(p)
	}
	return math.NaN()
}

// String returns a compact description used in registry fingerprints.
func (d Distribution) String() string {
	switch d.Kind {
	case DistFixed:
		return fmt.Sprintf("fixed(%g)", d.Value)
	case DistBeta:
		return fmt.Sprintf("beta(%g,%g)", d.Alpha, d.Beta)
	case DistGamma:
		return fmt.Sprintf("gamma(%g,%g)", d.Shape, d.Scale)
	case DistLogNormal:
		return fmt.Sprintf("lognormal(%g,%g)", d.Mu, d.Sigma)
	}
	return string(d.Kind)
}

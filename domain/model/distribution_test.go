package model

import (
	"errors"
	"math"
	"testing"

	"ceasim/domain/core"
)

func TestDistribution_ValidateRejectsOutOfDomain(t *testing.T) {
	cases := []struct {
		name string
		dist Distribution
	}{
		{"beta alpha zero", NewBeta(0, 5)},
		{"beta negative beta", NewBeta(2, -1)},
		{"gamma zero shape", NewGamma(0, 2)},
		{"gamma negative scale", NewGamma(3, -0.5)},
		{"lognormal zero sigma", NewLogNormal(1, 0)},
		{"fixed NaN", Fixed(math.NaN())},
		{"unknown kind", Distribution{Kind: "weibull"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.dist.Validate("p")
			if err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
			if tc.name != "unknown kind" && !errors.Is(err, core.ErrDistributionInvalid) {
				t.Errorf("expected ErrDistributionInvalid, got %v", err)
			}
		})
	}
}

func TestDistribution_ValidateAcceptsWellFormed(t *testing.T) {
	for _, d := range []Distribution{
		Fixed(0.5), NewBeta(2, 8), NewGamma(100, 3), NewLogNormal(math.Log(1000), 0.2),
	} {
		if err := d.Validate("p"); err != nil {
			t.Errorf("unexpected error for %s: %v", d, err)
		}
	}
}

func TestDistribution_QuantileRespectsSupport(t *testing.T) {
	beta := NewBeta(2, 8)
	gamma := NewGamma(3, 50)
	logn := NewLogNormal(math.Log(500), 0.4)

	for _, u := range []float64{0.001, 0.1, 0.5, 0.9, 0.999} {
		if v := beta.Quantile(u); v < 0 || v > 1 {
			t.Errorf("beta quantile %g outside [0,1] at u=%g", v, u)
		}
		if v := gamma.Quantile(u); v < 0 {
			t.Errorf("gamma quantile %g negative at u=%g", v, u)
		}
		if v := logn.Quantile(u); v < 0 {
			t.Errorf("lognormal quantile %g negative at u=%g", v, u)
		}
	}
}

func TestDistribution_Mean(t *testing.T) {
	if got := NewBeta(20, 80).Mean(); math.Abs(got-0.2) > 1e-12 {
		t.Errorf("beta mean = %g, want 0.2", got)
	}
	if got := NewGamma(100, 3).Mean(); math.Abs(got-300) > 1e-9 {
		t.Errorf("gamma mean = %g, want 300", got)
	}
	if got := Fixed(7).Mean(); got != 7 {
		t.Errorf("fixed mean = %g, want 7", got)
	}
	want := math.Exp(1 + 0.25*0.25/2)
	if got := NewLogNormal(1, 0.25).Mean(); math.Abs(got-want) > 1e-12 {
		t.Errorf("lognormal mean = %g, want %g", got, want)
	}
}

func TestNewParameterSet_RejectsDuplicatesAndBadDistributions(t *testing.T) {
	_, err := NewParameterSet([]Parameter{
		{Name: "a", Owner: SharedOwner, Dist: NewBeta(2, 8)},
		{Name: "a", Owner: SharedOwner, Dist: NewBeta(3, 7)},
	})
	if err == nil {
		t.Fatal("expected duplicate-name error")
	}

	_, err = NewParameterSet([]Parameter{
		{Name: "bad", Owner: SharedOwner, Dist: NewBeta(-1, 8)},
	})
	if !errors.Is(err, core.ErrDistributionInvalid) {
		t.Fatalf("expected ErrDistributionInvalid, got %v", err)
	}
}

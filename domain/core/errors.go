package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound           = errors.New("resource not found")
	ErrStrategyNotFound   = fmt.Errorf("%w: strategy", ErrNotFound)
	ErrParameterNotFound  = fmt.Errorf("%w: parameter", ErrNotFound)
	ErrCheckpointNotFound = fmt.Errorf("%w: checkpoint", ErrNotFound)

	// Configuration-time validation errors (always fatal before simulation)
	ErrDistributionInvalid = errors.New("distribution parameters out of domain")
	ErrRegistryIncomplete  = errors.New("strategy registry incomplete")
	ErrAdoptionOverflow    = errors.New("adoption shares exceed 1 for a projection year")
	ErrWTPGridInvalid      = errors.New("invalid willingness-to-pay grid")

	// Simulation-time errors
	ErrInvalidTransition = errors.New("transition matrix violates row-stochastic invariant")
	ErrMassNotConserved  = errors.New("cohort occupancy does not sum to 1")

	// Determinism / resume errors
	ErrResumeConflict      = errors.New("checkpoint resume conflicts with accumulated draws")
	ErrFingerprintMismatch = errors.New("run fingerprint mismatch")

	// Estimation errors
	ErrInsufficientDraws = errors.New("insufficient draws for a stable estimate")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

func NewDistributionError(parameter string, reason string) error {
	return fmt.Errorf("%w: parameter %s: %s", ErrDistributionInvalid, parameter, reason)
}

func NewInvalidTransitionError(strategy string, cycle, row int, reason string) error {
	return fmt.Errorf("%w: strategy %s cycle %d row %d: %s", ErrInvalidTransition, strategy, cycle, row, reason)
}

func NewAdoptionOverflowError(year int, total float64) error {
	return fmt.Errorf("%w: year %d total share %.6f", ErrAdoptionOverflow, year, total)
}

func NewResumeConflictError(runID string, iteration int) error {
	return fmt.Errorf("%w: run %s already holds iteration %d", ErrResumeConflict, runID, iteration)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrDistributionInvalid) ||
		errors.Is(err, ErrRegistryIncomplete) ||
		errors.Is(err, ErrAdoptionOverflow) ||
		errors.Is(err, ErrWTPGridInvalid)
}

func IsSimulationError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrMassNotConserved)
}

func IsResumeError(err error) bool {
	return errors.Is(err, ErrResumeConflict) ||
		errors.Is(err, ErrFingerprintMismatch)
}

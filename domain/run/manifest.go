package run

import (
	"fmt"

	"ceasim/domain/core"
)

// Manifest is the complete specification for a run - the truth source for
// replay and checkpoint resume. It must exist before any draws accumulate.
type Manifest struct {
	RunID         core.RunID        `json:"run_id"`
	Seed          int64             `json:"seed"`
	Iterations    int               `json:"iterations"`
	HorizonCycles int               `json:"horizon_cycles"`
	CyclesPerYear int               `json:"cycles_per_year"`
	RegistryHash  core.RegistryHash `json:"registry_hash"`
	ConfigHash    core.ConfigHash   `json:"config_hash"`
	Fingerprint   core.Hash         `json:"fingerprint"`
	CodeVersion   string            `json:"code_version"`
	CreatedAt     core.Timestamp    `json:"created_at"`
}

// NewManifest builds a manifest and its determinism fingerprint.
func NewManifest(
	runID core.RunID,
	seed int64,
	iterations int,
	horizonCycles int,
	cyclesPerYear int,
	registryHash core.RegistryHash,
	configHash core.ConfigHash,
	codeVersion string,
) *Manifest {
	fingerprint := core.NewHash([]byte(fmt.Sprintf(
		"%d|%d|%d|%d|%s|%s|%s",
		seed, iterations, horizonCycles, cyclesPerYear, registryHash, configHash, codeVersion,
	)))
	return &Manifest{
		RunID:         runID,
		Seed:          seed,
		Iterations:    iterations,
		HorizonCycles: horizonCycles,
		CyclesPerYear: cyclesPerYear,
		RegistryHash:  registryHash,
		ConfigHash:    configHash,
		Fingerprint:   fingerprint,
		CodeVersion:   codeVersion,
		CreatedAt:     core.Now(),
	}
}

// Validate checks if the manifest is complete.
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return core.NewValidationError("manifest", "run_id cannot be empty")
	}
	if m.Iterations < 1 {
		return core.NewValidationError("manifest", "iterations must be positive")
	}
	if m.HorizonCycles < 1 {
		return core.NewValidationError("manifest", "horizon_cycles must be positive")
	}
	if m.RegistryHash == "" {
		return core.NewValidationError("manifest", "registry_hash cannot be empty")
	}
	return nil
}

// CompatibleWith reports whether a checkpointed manifest may be merged into
// this run. Anything but an identical fingerprint is a resume conflict
// requiring explicit operator resolution.
func (m *Manifest) CompatibleWith(other *Manifest) error {
	if other == nil {
		return nil
	}
	if !m.Fingerprint.Equals(other.Fingerprint) {
		return fmt.Errorf("%w: checkpoint %s vs run %s", core.ErrFingerprintMismatch,
			other.Fingerprint, m.Fingerprint)
	}
	return nil
}

// IterationSeed derives the fixed per-iteration seed. Aggregate results are
// invariant to scheduling order; only this derivation affects
// reproducibility.
func (m *Manifest) IterationSeed(iteration int) int64 {
	return m.Seed + int64(iteration)
}

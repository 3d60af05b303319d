package ports

import (
	"context"

	"ceasim/domain/core"
	"ceasim/domain/model"
	"ceasim/domain/run"
)

// CheckpointStore persists the partially accumulated draw collection at
// batch boundaries so a failed or cancelled run can resume without
// restarting from zero. Implementations must be safe for sequential use by
// the runner; the runner never writes from inside the parallel region.
type CheckpointStore interface {
	// SaveManifest records the run manifest before any draws accumulate.
	SaveManifest(ctx context.Context, manifest *run.Manifest) error

	// LoadManifest returns the stored manifest, or core.ErrCheckpointNotFound.
	LoadManifest(ctx context.Context, runID core.RunID) (*run.Manifest, error)

	// AppendDraws persists a completed batch. Appending an iteration index
	// that is already stored is a core.ErrResumeConflict.
	AppendDraws(ctx context.Context, runID core.RunID, draws []model.SimulationDraw) error

	// LoadDraws returns all stored draws for the run in iteration order.
	LoadDraws(ctx context.Context, runID core.RunID) ([]model.SimulationDraw, error)
}

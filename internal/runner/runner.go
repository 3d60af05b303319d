package runner

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"

	"ceasim/domain/core"
	"ceasim/domain/model"
	"ceasim/domain/run"
	"ceasim/internal"
	"ceasim/internal/config"
	"ceasim/internal/econ"
	"ceasim/internal/markov"
	"ceasim/internal/sampler"
	"ceasim/ports"
)

// Result is the completed draw collection plus run bookkeeping.
type Result struct {
	Manifest *run.Manifest
	Draws    []model.SimulationDraw // iteration order; skipped iterations absent
	Skipped  int
	Resumed  int // draws restored from a checkpoint
}

// Runner executes the Monte-Carlo pipeline: sample, simulate every strategy,
// aggregate - one independent unit of work per iteration. Iterations run in
// parallel with no shared mutable state beyond the read-only registry; each
// worker writes only its own pre-assigned slot, so aggregate statistics are
// invariant to scheduling order.
type Runner struct {
	cfg        config.RunConfig
	registry   *model.StrategyRegistry
	sampler    *sampler.Sampler
	simulator  *markov.Simulator
	aggregator *econ.Aggregator
	checkpoint ports.CheckpointStore // nil disables checkpointing
	logger     *internal.Logger
}

// New wires the per-iteration pipeline. All inputs are loaded and validated
// before the parallel region starts; no I/O happens inside the hot loop.
func New(
	cfg config.RunConfig,
	registry *model.StrategyRegistry,
	smp *sampler.Sampler,
	sim *markov.Simulator,
	agg *econ.Aggregator,
	checkpoint ports.CheckpointStore,
	logger *internal.Logger,
) *Runner {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Runner{
		cfg:        cfg,
		registry:   registry,
		sampler:    smp,
		simulator:  sim,
		aggregator: agg,
		checkpoint: checkpoint,
		logger:     logger,
	}
}

// NewManifest builds the run manifest for a fresh run.
func (r *Runner) NewManifest(runID core.RunID, codeVersion string) *run.Manifest {
	configHash := core.ComputeConfigHash(
		r.cfg.Iterations, r.cfg.Seed, r.cfg.HorizonCycles, r.cfg.CyclesPerYear,
		r.cfg.DiscountRateCost, r.cfg.DiscountRateQALY, r.cfg.StartAge,
	)
	return run.NewManifest(
		runID, r.cfg.Seed, r.cfg.Iterations, r.cfg.HorizonCycles, r.cfg.CyclesPerYear,
		r.registry.Fingerprint(), configHash, codeVersion,
	)
}

// Run executes all iterations, checkpointing at batch boundaries and
// honoring cooperative cancellation between batches. Resuming against an
// existing checkpoint validates the manifest fingerprint and merges by
// iteration; overlap with differing provenance is a resume conflict.
func (r *Runner) Run(ctx context.Context, manifest *run.Manifest) (*Result, error) {
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	slots := make([]*model.SimulationDraw, manifest.Iterations)
	resumed := 0

	if r.checkpoint != nil {
		n, err := r.resume(ctx, manifest, slots)
		if err != nil {
			return nil, err
		}
		resumed = n
		if resumed > 0 {
			r.logger.Info("resumed %d draws from checkpoint for run %s", resumed, manifest.RunID)
		}
	}

	skipped := 0
	failures := make([]error, 0)
	computed := make([]bool, manifest.Iterations) // fresh this run, not restored

	for batchStart := 0; batchStart < manifest.Iterations; batchStart += r.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			// Cancellation between batches: completed batches are already
			// checkpointed, so the run can resume later.
			return nil, err
		}

		batchEnd := batchStart + r.cfg.BatchSize
		if batchEnd > manifest.Iterations {
			batchEnd = manifest.Iterations
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.Workers)

		batchErrs := make([]error, batchEnd-batchStart)
		for i := batchStart; i < batchEnd; i++ {
			if slots[i] != nil {
				continue // restored from checkpoint
			}
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				draw, err := r.runIteration(i, manifest.IterationSeed(i), nil)
				if err != nil {
					if r.cfg.SkipAndCount && core.IsSimulationError(err) {
						batchErrs[i-batchStart] = err
						return nil
					}
					return fmt.Errorf("iteration %d: %w", i, err)
				}
				slots[i] = draw
				computed[i] = true
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var fresh []model.SimulationDraw
		for i := batchStart; i < batchEnd; i++ {
			if err := batchErrs[i-batchStart]; err != nil {
				skipped++
				failures = append(failures, err)
				r.logger.Warn("iteration %d skipped: %v", i, err)
				continue
			}
			if computed[i] {
				fresh = append(fresh, *slots[i])
			}
		}

		if float64(skipped)/float64(manifest.Iterations) > r.cfg.ErrorTolerance {
			return nil, fmt.Errorf("%d of %d iterations failed, above tolerance %.2f%%: first failure: %w",
				skipped, manifest.Iterations, r.cfg.ErrorTolerance*100, failures[0])
		}

		// Only draws computed this run are appended; resumed draws stay put.
		if r.checkpoint != nil && len(fresh) > 0 {
			if err := r.checkpoint.AppendDraws(ctx, manifest.RunID, fresh); err != nil {
				return nil, err
			}
		}
	}

	draws := make([]model.SimulationDraw, 0, manifest.Iterations-skipped)
	for _, slot := range slots {
		if slot != nil {
			draws = append(draws, *slot)
		}
	}
	sort.Slice(draws, func(a, b int) bool { return draws[a].Iteration < draws[b].Iteration })

	if skipped > 0 {
		r.logger.Warn("run %s completed with %d skipped iterations", manifest.RunID, skipped)
	}
	return &Result{Manifest: manifest, Draws: draws, Skipped: skipped, Resumed: resumed}, nil
}

// resume loads checkpointed draws into their slots after fingerprint
// validation. Stored iterations outside the configured range, or a manifest
// with a different fingerprint, are resume conflicts requiring operator
// resolution (discard or renumber).
func (r *Runner) resume(ctx context.Context, manifest *run.Manifest, slots []*model.SimulationDraw) (int, error) {
	stored, err := r.checkpoint.LoadManifest(ctx, manifest.RunID)
	if err != nil {
		if core.IsNotFoundError(err) {
			return 0, r.checkpoint.SaveManifest(ctx, manifest)
		}
		return 0, err
	}
	if err := manifest.CompatibleWith(stored); err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrResumeConflict, err)
	}

	draws, err := r.checkpoint.LoadDraws(ctx, manifest.RunID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, d := range draws {
		if d.Iteration < 0 || d.Iteration >= len(slots) {
			return 0, core.NewResumeConflictError(manifest.RunID.String(), d.Iteration)
		}
		if d.Seed != manifest.IterationSeed(d.Iteration) {
			return 0, core.NewResumeConflictError(manifest.RunID.String(), d.Iteration)
		}
		if slots[d.Iteration] != nil {
			return 0, core.NewResumeConflictError(manifest.RunID.String(), d.Iteration)
		}
		copied := d
		slots[d.Iteration] = &copied
		count++
	}
	return count, nil
}

// runIteration executes one iteration's full pipeline: sample once, simulate
// every strategy, aggregate. overrides, when non-nil, pin named parameters
// to fixed values (used by nested EVPPI).
func (r *Runner) runIteration(iteration int, seed int64, overrides model.Values) (*model.SimulationDraw, error) {
	rng := rand.New(rand.NewSource(seed))

	vals, _, err := r.sampler.Sample(rng)
	if err != nil {
		return nil, err
	}
	for name, v := range overrides {
		vals[name] = v
	}

	n := r.registry.Len()
	draw := &model.SimulationDraw{
		Iteration: iteration,
		Seed:      seed,
		Params:    vals,
		Cost:      make([]float64, n),
		QALY:      make([]float64, n),
	}

	for s := 0; s < n; s++ {
		arm := r.registry.Arm(s)
		trace, err := r.simulator.Run(arm, vals)
		if err != nil {
			return nil, err
		}
		cost, qaly, err := r.aggregator.Aggregate(trace, arm, vals)
		if err != nil {
			return nil, err
		}
		draw.Cost[s] = cost
		draw.QALY[s] = qaly
	}
	return draw, nil
}

// Resimulate implements voi.Resimulator: one fresh iteration with the given
// parameters held fixed.
func (r *Runner) Resimulate(ctx context.Context, fixed model.Values, seed int64) ([]float64, []float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	draw, err := r.runIteration(-1, seed, fixed)
	if err != nil {
		return nil, nil, err
	}
	return draw.Cost, draw.QALY, nil
}

// DeterministicDraw runs the base case with every parameter at its analytic
// mean. The deterministic results table is built from this, not from PSA
// means.
func (r *Runner) DeterministicDraw() (*model.SimulationDraw, error) {
	vals := r.registry.Parameters().Means()

	n := r.registry.Len()
	draw := &model.SimulationDraw{Iteration: -1, Params: vals, Cost: make([]float64, n), QALY: make([]float64, n)}
	for s := 0; s < n; s++ {
		arm := r.registry.Arm(s)
		trace, err := r.simulator.Run(arm, vals)
		if err != nil {
			return nil, err
		}
		cost, qaly, err := r.aggregator.Aggregate(trace, arm, vals)
		if err != nil {
			return nil, err
		}
		draw.Cost[s] = cost
		draw.QALY[s] = qaly
	}
	return draw, nil
}

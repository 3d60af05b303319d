package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gonum.org/v1/gonum/mat"

	"ceasim/adapters/postgres"
	"ceasim/adapters/tables"
	"ceasim/domain/core"
	"ceasim/domain/model"
	"ceasim/internal"
	"ceasim/internal/budget"
	"ceasim/internal/config"
	"ceasim/internal/econ"
	"ceasim/internal/markov"
	"ceasim/internal/metrics"
	"ceasim/internal/runner"
	"ceasim/internal/sampler"
	"ceasim/internal/testkit"
	"ceasim/internal/voi"
	"ceasim/ports"
)

const codeVersion = "ceasim/1.0.0"

func main() {
	_ = godotenv.Load()

	logger := internal.NewDefaultLogger()
	if err := run(logger); err != nil {
		logger.Error("run failed: %v", err)
		os.Exit(1)
	}
}

func run(logger *internal.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, params, err := loadModel(cfg)
	if err != nil {
		return err
	}
	logger.Info("loaded %d strategies, %d parameters (reference: %s)",
		registry.Len(), params.Len(), registry.Arm(registry.ReferenceIndex()).ID)

	smp, err := sampler.New(params)
	if err != nil {
		return err
	}
	sim, err := markov.New(registry.States(), cfg.Run.HorizonCycles, cfg.Run.CyclesPerYear,
		cfg.Run.StartAge, testkit.StateDepressed, testkit.BackgroundMortality)
	if err != nil {
		return err
	}
	agg, err := econ.New(cfg.Run.DiscountRateCost, cfg.Run.DiscountRateQALY, cfg.Run.CyclesPerYear)
	if err != nil {
		return err
	}

	checkpoint, err := openCheckpoint(ctx, cfg)
	if err != nil {
		return err
	}

	r := runner.New(cfg.Run, registry, smp, sim, agg, checkpoint, logger)

	runID := core.RunID(core.NewID())
	if env := os.Getenv("RUN_ID"); env != "" {
		parsed, err := core.ParseRunID(env)
		if err != nil {
			return fmt.Errorf("RUN_ID: %w", err)
		}
		runID = parsed
	}
	manifest := r.NewManifest(runID, codeVersion)
	logger.Info("run %s: %d iterations, seed %d, horizon %d cycles",
		runID, cfg.Run.Iterations, cfg.Run.Seed, cfg.Run.HorizonCycles)

	result, err := r.Run(ctx, manifest)
	if err != nil {
		return err
	}
	logger.Info("completed %d draws (%d resumed, %d skipped)",
		len(result.Draws), result.Resumed, result.Skipped)

	grid, err := model.NewWTPGrid(cfg.WTP.Lower, cfg.WTP.Upper, cfg.WTP.Step)
	if err != nil {
		return err
	}

	sink, err := tables.NewCSVSink(cfg.Paths.OutputDir)
	if err != nil {
		return err
	}
	writer := tables.NewResultsWriter(sink)

	if err := writeOutputs(ctx, cfg, r, registry, params, result, grid, writer, logger); err != nil {
		return err
	}

	return writeManifest(cfg.Paths.OutputDir, manifest)
}

func writeOutputs(
	ctx context.Context,
	cfg *config.Config,
	r *runner.Runner,
	registry *model.StrategyRegistry,
	params *model.ParameterSet,
	result *runner.Result,
	grid *model.WTPGrid,
	writer *tables.ResultsWriter,
	logger *internal.Logger,
) error {
	ids := registry.IDs()

	// Deterministic base case from analytic parameter means.
	det, err := r.DeterministicDraw()
	if err != nil {
		return err
	}
	detResults := make([]metrics.StrategyResult, registry.Len())
	for s := range detResults {
		detResults[s] = metrics.StrategyResult{Index: s, ID: ids[s], Cost: det.Cost[s], QALY: det.QALY[s]}
	}
	incremental := metrics.ComputeIncremental(detResults, registry.ReferenceIndex())
	if err := writer.WriteDeterministic(incremental); err != nil {
		return err
	}
	if err := writer.WriteIncremental(incremental); err != nil {
		return err
	}

	ceac, err := metrics.CEAC(result.Draws, registry.Len(), grid)
	if err != nil {
		return err
	}
	if err := writer.WriteCEAC(ceac, ids); err != nil {
		return err
	}

	ceaf, err := metrics.CEAF(result.Draws, ids, grid)
	if err != nil {
		return err
	}
	if err := writer.WriteCEAF(ceaf); err != nil {
		return err
	}

	voiEngine := voi.NewEngine(grid, cfg.VOI.PolicyWTP, cfg.VOI.EligiblePopulation,
		cfg.VOI.CVThreshold, cfg.VOI.MinIterations)
	evpi, err := voiEngine.EVPI(result.Draws, registry.Len())
	if err != nil {
		return err
	}
	if err := writer.WriteEVPI(evpi); err != nil {
		return err
	}
	policy := voiEngine.PolicyEVPI(evpi)
	logger.Info("EVPI at WTP %.0f: %.2f per patient, %.0f population", policy.WTP, policy.Value, policy.PopulationEVPI)

	evppi, err := computeEVPPI(ctx, cfg, voiEngine, r, result, registry, params)
	if err != nil {
		return err
	}
	if err := writer.WriteEVPPI(evppi); err != nil {
		return err
	}

	budgetRows, err := projectBudget(cfg, registry, det)
	if err != nil {
		return err
	}
	if budgetRows != nil {
		if err := writer.WriteBudgetImpact(budgetRows, ids); err != nil {
			return err
		}
	}

	return writer.WriteParameterSnapshot(result.Draws, params)
}

// computeEVPPI estimates partial value of information per stochastic
// parameter at the policy threshold, grouping correlated parameters.
func computeEVPPI(
	ctx context.Context,
	cfg *config.Config,
	engine *voi.Engine,
	r *runner.Runner,
	result *runner.Result,
	registry *model.StrategyRegistry,
	params *model.ParameterSet,
) ([]voi.EVPPIResult, error) {
	method := voi.Method(cfg.VOI.EVPPIMethod)

	groups := make(map[string][]string)
	order := make([]string, 0, params.Len())
	for i := 0; i < params.Len(); i++ {
		p := params.At(i)
		if !p.Dist.IsStochastic() {
			continue
		}
		key := p.Name
		if p.CorrelationGroup != "" {
			key = p.CorrelationGroup
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p.Name)
	}

	out := make([]voi.EVPPIResult, 0, len(order))
	for _, key := range order {
		res, err := engine.EVPPI(ctx, result.Draws, registry.Len(), key, groups[key],
			cfg.VOI.PolicyWTP, method, r, cfg.VOI.InnerIterations)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// projectBudget runs the budget-impact projection when an adoption table is
// configured; otherwise it is skipped.
func projectBudget(cfg *config.Config, registry *model.StrategyRegistry, det *model.SimulationDraw) ([]budget.YearImpact, error) {
	if cfg.Paths.AdoptionTable == "" {
		return nil, nil
	}

	table, err := tables.NewDataReader(cfg.Paths.AdoptionTable).Read()
	if err != nil {
		return nil, err
	}
	curve, err := tables.ParseAdoptionTable(table, cfg.Budget.Years)
	if err != nil {
		return nil, err
	}

	baseline := cfg.Budget.BaselineStrategy
	if baseline == "" {
		baseline = registry.Arm(registry.ReferenceIndex()).ID
	}
	projector, err := budget.New(cfg.Budget.EligiblePopulation, baseline)
	if err != nil {
		return nil, err
	}

	perPatient := make(map[string]float64, registry.Len())
	for s, id := range registry.IDs() {
		perPatient[id] = det.Cost[s]
	}
	return projector.Project(perPatient, curve)
}

// loadModel builds the strategy registry: from input tables when configured,
// otherwise the built-in reference depression model.
func loadModel(cfg *config.Config) (*model.StrategyRegistry, *model.ParameterSet, error) {
	if cfg.Paths.ParameterTable == "" || cfg.Paths.CostUtilityTable == "" {
		registry, params := testkit.DepressionRegistry()
		return registry, params, nil
	}

	paramTable, err := tables.NewDataReader(cfg.Paths.ParameterTable).Read()
	if err != nil {
		return nil, nil, err
	}
	params, err := tables.ParseParameterTable(paramTable)
	if err != nil {
		return nil, nil, err
	}

	cuTable, err := tables.NewDataReader(cfg.Paths.CostUtilityTable).Read()
	if err != nil {
		return nil, nil, err
	}
	costUtility, err := tables.ParseCostUtilityTable(cuTable)
	if err != nil {
		return nil, nil, err
	}

	registry, err := buildTableRegistry(params, costUtility, cfg.Run.ReferenceStrategy)
	if err != nil {
		return nil, nil, err
	}
	return registry, params, nil
}

// Table-driven models use the canonical three-state structure with
// per-strategy response/relapse parameters named <strategy>_response and
// <strategy>_relapse, and an optional <strategy>_acute_cost one-time cost.
func buildTableRegistry(
	params *model.ParameterSet,
	costUtility map[string]map[string]tables.CostUtilityEntry,
	referenceID string,
) (*model.StrategyRegistry, error) {
	states, err := model.NewStateSpace([]string{"Depressed", "Remission", "Death"}, 2)
	if err != nil {
		return nil, err
	}

	strategyIDs := make([]string, 0, len(costUtility))
	for id := range costUtility {
		strategyIDs = append(strategyIDs, id)
	}
	// Deterministic registry order: reference first, rest sorted.
	sortStrategies(strategyIDs, referenceID)

	arms := make([]model.StrategyArm, 0, len(strategyIDs))
	for _, id := range strategyIDs {
		id := id
		entries := costUtility[id]
		responseParam := id + "_response"
		relapseParam := id + "_relapse"
		acuteParam := id + "_acute_cost"

		required := []string{responseParam, relapseParam}
		arm := model.StrategyArm{
			ID:         id,
			Name:       id,
			Parameters: required,
			Transition: func(cycle int, vals model.Values) *mat.Dense {
				response := vals[responseParam]
				relapse := vals[relapseParam]
				m := mat.NewDense(3, 3, nil)
				m.Set(0, 0, 1-response)
				m.Set(0, 1, response)
				m.Set(1, 0, relapse)
				m.Set(1, 1, 1-relapse)
				m.Set(2, 2, 1)
				return m
			},
			Cost: func(state int, vals model.Values) float64 {
				return entries[states.Names[state]].CostPerCycle
			},
			Utility: func(state int, vals model.Values) float64 {
				return entries[states.Names[state]].AnnualUtility
			},
		}
		if _, ok := params.ByName(acuteParam); ok {
			arm.Parameters = append(arm.Parameters, acuteParam)
			arm.OneTime = []model.OneTimeCost{
				{Cycle: 0, State: model.WholeCohort, Amount: func(vals model.Values) float64 { return vals[acuteParam] }},
			}
		}
		arms = append(arms, arm)
	}

	return model.NewStrategyRegistry(states, arms, params, referenceID)
}

func sortStrategies(ids []string, referenceID string) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0; j-- {
			a, b := ids[j-1], ids[j]
			if a == referenceID {
				break
			}
			if b == referenceID || b < a {
				ids[j-1], ids[j] = ids[j], ids[j-1]
			}
		}
	}
}

func openCheckpoint(ctx context.Context, cfg *config.Config) (ports.CheckpointStore, error) {
	if !cfg.Database.Enabled {
		return nil, nil
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("checkpoint database: %w", err)
	}
	repo := postgres.NewCheckpointRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func writeManifest(dir string, manifest interface{}) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "run_manifest.json"), data, 0o644)
}

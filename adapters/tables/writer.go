package tables

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"ceasim/domain/model"
	"ceasim/internal/budget"
	apperrors "ceasim/internal/errors"
	"ceasim/internal/metrics"
	"ceasim/internal/voi"
	"ceasim/ports"
)

// CSVSink writes each named table to <dir>/<name>.csv. Row order and number
// formatting are deterministic, so identical runs produce byte-identical
// files.
type CSVSink struct {
	dir string
}

// NewCSVSink creates the output directory if needed.
func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.OutputError("failed to create output directory", err)
	}
	return &CSVSink{dir: dir}, nil
}

// WriteTable implements ports.TableSink.
func (s *CSVSink) WriteTable(name string, header []string, rows [][]string) error {
	f, err := os.Create(filepath.Join(s.dir, name+".csv"))
	if err != nil {
		return apperrors.OutputError("failed to create "+name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return apperrors.OutputError("failed to write "+name+" header", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return apperrors.OutputError("failed to write "+name+" rows", err)
	}
	w.Flush()
	return w.Error()
}

// ResultsWriter renders the engine's outputs as the flat tables external
// reporting collaborators consume.
type ResultsWriter struct {
	sink ports.TableSink
}

// NewResultsWriter wraps a table sink.
func NewResultsWriter(sink ports.TableSink) *ResultsWriter {
	return &ResultsWriter{sink: sink}
}

func f6(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func f2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// WriteDeterministic writes one row per strategy with cost, QALYs, ICER.
func (w *ResultsWriter) WriteDeterministic(results []metrics.IncrementalResult) error {
	rows := make([][]string, len(results))
	for i, r := range results {
		icer := "undefined"
		if r.ICERDefined {
			icer = f2(r.ICER)
		}
		rows[i] = []string{r.ID, f2(r.Cost), f6(r.QALY), icer}
	}
	return w.sink.WriteTable("deterministic_results", []string{"strategy", "cost", "qalys", "icer"}, rows)
}

// WriteIncremental writes Δcost, Δqaly, ICER and the dominance flag per
// strategy versus the reference.
func (w *ResultsWriter) WriteIncremental(results []metrics.IncrementalResult) error {
	rows := make([][]string, len(results))
	for i, r := range results {
		icer := "undefined"
		if r.ICERDefined {
			icer = f2(r.ICER)
		}
		dominance := ""
		switch {
		case r.Dominated:
			dominance = "dominated"
		case r.ExtendedDominated:
			dominance = "extended_dominated"
		case r.OnFrontier:
			dominance = "frontier"
		}
		rows[i] = []string{r.ID, f2(r.DeltaCost), f6(r.DeltaQALY), icer, dominance}
	}
	return w.sink.WriteTable("incremental_results",
		[]string{"strategy", "delta_cost", "delta_qaly", "icer", "dominance"}, rows)
}

// WriteCEAC writes rows = WTP grid points, columns = per-strategy
// probability-optimal.
func (w *ResultsWriter) WriteCEAC(points []metrics.CEACPoint, ids []string) error {
	header := append([]string{"wtp"}, ids...)
	rows := make([][]string, len(points))
	for i, p := range points {
		row := make([]string, 0, len(ids)+1)
		row = append(row, f2(p.WTP))
		for _, prob := range p.ProbabilityOf {
			row = append(row, f6(prob))
		}
		rows[i] = row
	}
	return w.sink.WriteTable("ceac", header, rows)
}

// WriteCEAF writes the frontier strategy and its expected NMB per WTP point.
func (w *ResultsWriter) WriteCEAF(points []metrics.CEAFPoint) error {
	rows := make([][]string, len(points))
	for i, p := range points {
		rows[i] = []string{f2(p.WTP), p.StrategyID, f2(p.MeanNMB), f6(p.Probability)}
	}
	return w.sink.WriteTable("ceaf", []string{"wtp", "strategy", "nmb", "probability_optimal"}, rows)
}

// WriteEVPI writes per-patient and population EVPI per WTP point, with the
// low-precision flag surfaced explicitly rather than coerced away.
func (w *ResultsWriter) WriteEVPI(points []voi.EVPIPoint) error {
	rows := make([][]string, len(points))
	for i, p := range points {
		flag := ""
		if p.LowPrecision {
			flag = "low_precision"
		}
		rows[i] = []string{f2(p.WTP), f2(p.Value), f2(p.PopulationEVPI), flag}
	}
	return w.sink.WriteTable("evpi", []string{"wtp", "evpi", "population_evpi", "precision_flag"}, rows)
}

// WriteBudgetImpact writes per-year per-strategy and total population cost
// plus cumulative impact. Strategy columns follow registry order.
func (w *ResultsWriter) WriteBudgetImpact(rows []budget.YearImpact, ids []string) error {
	header := append([]string{"year"}, ids...)
	header = append(header, "total_cost", "baseline_cost", "impact", "cumulative_impact")

	out := make([][]string, len(rows))
	for i, r := range rows {
		row := make([]string, 0, len(header))
		row = append(row, strconv.Itoa(r.Year))
		for _, id := range ids {
			row = append(row, f2(r.StrategyCost[id]))
		}
		row = append(row, f2(r.TotalCost), f2(r.BaselineCost), f2(r.Impact), f2(r.CumulativeImpact))
		out[i] = row
	}
	return w.sink.WriteTable("budget_impact", header, out)
}

// WriteEVPPI writes per-parameter-group partial value of information.
func (w *ResultsWriter) WriteEVPPI(results []voi.EVPPIResult) error {
	rows := make([][]string, len(results))
	for i, r := range results {
		flag := ""
		if r.LowPrecision {
			flag = "low_precision"
		}
		rows[i] = []string{r.Group, f2(r.WTP), f2(r.Value), string(r.Method), flag}
	}
	return w.sink.WriteTable("evppi", []string{"group", "wtp", "evppi", "method", "precision_flag"}, rows)
}

// WriteParameterSnapshot writes one row per (iteration, parameter) with the
// realized sampled value, in declaration order, for audit and
// reproducibility.
func (w *ResultsWriter) WriteParameterSnapshot(draws []model.SimulationDraw, params *model.ParameterSet) error {
	names := params.Names()
	rows := make([][]string, 0, len(draws)*len(names))
	for _, d := range draws {
		for _, name := range names {
			rows = append(rows, []string{
				strconv.Itoa(d.Iteration),
				name,
				strconv.FormatFloat(d.Params[name], 'g', 17, 64),
			})
		}
	}
	return w.sink.WriteTable("parameter_snapshot", []string{"iteration", "parameter", "value"}, rows)
}

package tables

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ceasim/domain/model"
	"ceasim/internal/metrics"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDataReader_ReadsCSVWithNormalizedHeaders(t *testing.T) {
	path := writeCSV(t, "input.csv", " Parameter_Name ,Distribution_Type,param1\np1,fixed,0.5\n")
	table, err := NewDataReader(path).Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"parameter_name", "distribution_type", "param1"}, table.Headers)
	require.Len(t, table.Rows, 1)
}

func TestDataReader_MissingFile(t *testing.T) {
	_, err := NewDataReader("/nonexistent/input.csv").Read()
	require.Error(t, err)
}

func TestDataReader_RequiresDataRows(t *testing.T) {
	path := writeCSV(t, "empty.csv", "parameter_name,distribution_type,param1\n")
	_, err := NewDataReader(path).Read()
	require.Error(t, err)
}

func TestParseParameterTable(t *testing.T) {
	path := writeCSV(t, "params.csv",
		"parameter_name,owning_strategy,distribution_type,param1,param2,correlation_group,jurisdiction\n"+
			"util_well,,beta,80,20,,\n"+
			"cost_cycle,novel,gamma,100,3,,US\n"+
			"acute_cost,novel,lognormal,7.7,0.2,acute,\n"+
			"discount,,fixed,0.035,,,\n")
	table, err := NewDataReader(path).Read()
	require.NoError(t, err)

	set, err := ParseParameterTable(table)
	require.NoError(t, err)
	require.Equal(t, 4, set.Len())

	util, ok := set.ByName("util_well")
	require.True(t, ok)
	assert.Equal(t, model.SharedOwner, util.Owner)
	assert.Equal(t, model.DistBeta, util.Dist.Kind)

	cost, ok := set.ByName("cost_cycle")
	require.True(t, ok)
	assert.Equal(t, "novel", cost.Owner)
	assert.Equal(t, "US", cost.Jurisdiction)

	acute, ok := set.ByName("acute_cost")
	require.True(t, ok)
	assert.Equal(t, "acute", acute.CorrelationGroup)

	fixed, ok := set.ByName("discount")
	require.True(t, ok)
	assert.False(t, fixed.Dist.IsStochastic())
}

func TestParseParameterTable_RejectsMalformedRows(t *testing.T) {
	cases := []struct {
		name string
		csv  string
	}{
		{"unknown distribution", "parameter_name,distribution_type,param1,param2\np,weibull,1,2\n"},
		{"bad param1", "parameter_name,distribution_type,param1,param2\np,beta,abc,2\n"},
		{"missing param2", "parameter_name,distribution_type,param1,param2\np,beta,1,\n"},
		{"out-of-domain beta", "parameter_name,distribution_type,param1,param2\np,beta,-1,2\n"},
		{"empty name", "parameter_name,distribution_type,param1,param2\n,beta,1,2\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeCSV(t, "bad.csv", tc.csv)
			table, err := NewDataReader(path).Read()
			require.NoError(t, err)
			_, err = ParseParameterTable(table)
			require.Error(t, err)
		})
	}
}

func TestParseCostUtilityTable(t *testing.T) {
	path := writeCSV(t, "cu.csv",
		"strategy,state,cost_per_cycle,annual_utility\n"+
			"novel,Well,120,0.85\n"+
			"novel,Sick,450,0.55\n"+
			"baseline,Well,80,0.85\n")
	table, err := NewDataReader(path).Read()
	require.NoError(t, err)

	entries, err := ParseCostUtilityTable(table)
	require.NoError(t, err)
	assert.Equal(t, 120.0, entries["novel"]["Well"].CostPerCycle)
	assert.Equal(t, 0.55, entries["novel"]["Sick"].AnnualUtility)
	assert.Equal(t, 80.0, entries["baseline"]["Well"].CostPerCycle)
}

func TestParseAdoptionTable(t *testing.T) {
	path := writeCSV(t, "adoption.csv",
		"strategy,year,share\nnovel,1,0.1\nnovel,2,0.2\nnovel,3,0.3\n")
	table, err := NewDataReader(path).Read()
	require.NoError(t, err)

	curve, err := ParseAdoptionTable(table, 3)
	require.NoError(t, err)
	assert.Equal(t, 0.2, curve.Share("novel", 1))
	assert.Equal(t, 0.0, curve.Share("absent", 0))

	// Year outside the projection horizon is a hard error.
	badPath := writeCSV(t, "bad_adoption.csv", "strategy,year,share\nnovel,4,0.1\n")
	badTable, err := NewDataReader(badPath).Read()
	require.NoError(t, err)
	_, err = ParseAdoptionTable(badTable, 3)
	require.Error(t, err)
}

func TestCSVSink_DeterministicOutput(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewCSVSink(dir)
	require.NoError(t, err)

	header := []string{"strategy", "cost"}
	rows := [][]string{{"a", "100.00"}, {"b", "250.50"}}
	require.NoError(t, sink.WriteTable("results", header, rows))
	first, err := os.ReadFile(filepath.Join(dir, "results.csv"))
	require.NoError(t, err)

	require.NoError(t, sink.WriteTable("results", header, rows))
	second, err := os.ReadFile(filepath.Join(dir, "results.csv"))
	require.NoError(t, err)
	assert.Equal(t, first, second, "repeated writes must be byte-identical")

	assert.Equal(t, "strategy,cost\na,100.00\nb,250.50\n", string(first))
}

func TestResultsWriter_IncrementalTable(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewCSVSink(dir)
	require.NoError(t, err)
	w := NewResultsWriter(sink)

	results := []metrics.IncrementalResult{
		{ID: "reference", OnFrontier: true},
		{ID: "candidate", DeltaCost: 200, DeltaQALY: 0.5, ICER: 400, ICERDefined: true, OnFrontier: true},
		{ID: "loser", DeltaCost: 700, DeltaQALY: -0.1, Dominated: true},
	}
	require.NoError(t, w.WriteIncremental(results))

	data, err := os.ReadFile(filepath.Join(dir, "incremental_results.csv"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "candidate,200.00,0.500000,400.00,frontier")
	assert.Contains(t, content, "loser,700.00,-0.100000,undefined,dominated")
}

func TestResultsWriter_ParameterSnapshotDeclarationOrder(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewCSVSink(dir)
	require.NoError(t, err)
	w := NewResultsWriter(sink)

	set, err := model.NewParameterSet([]model.Parameter{
		{Name: "zeta", Owner: model.SharedOwner, Dist: model.Fixed(1)},
		{Name: "alpha", Owner: model.SharedOwner, Dist: model.Fixed(2)},
	})
	require.NoError(t, err)

	draws := []model.SimulationDraw{
		{Iteration: 0, Params: model.Values{"zeta": 1, "alpha": 2}},
		{Iteration: 1, Params: model.Values{"zeta": 1, "alpha": 2}},
	}
	require.NoError(t, w.WriteParameterSnapshot(draws, set))

	data, err := os.ReadFile(filepath.Join(dir, "parameter_snapshot.csv"))
	require.NoError(t, err)
	assert.Equal(t,
		"iteration,parameter,value\n0,zeta,1\n0,alpha,2\n1,zeta,1\n1,alpha,2\n",
		string(data))
}

package tables

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"ceasim/domain/model"
	apperrors "ceasim/internal/errors"
)

// Table is a raw tabular input: a header row plus string data rows.
type Table struct {
	Headers []string
	Rows    [][]string
}

// DataReader handles reading xlsx and csv input tables.
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewDataReader creates a reader that handles both Excel and CSV carriers.
func NewDataReader(filePath string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// Read loads the table, lower-casing and trimming headers.
func (r *DataReader) Read() (*Table, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, apperrors.InputError(fmt.Sprintf("input file not found: %s", r.filePath), err)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSV()
	case "xlsx":
		rows, err = r.readExcel()
	default:
		return nil, apperrors.InputError(fmt.Sprintf("unsupported file type: %s", r.fileType), nil)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, apperrors.InputError("input must have a header row and at least one data row", nil)
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return &Table{Headers: headers, Rows: rows[1:]}, nil
}

func (r *DataReader) readCSV() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, apperrors.InputError("failed to open CSV file", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, apperrors.InputError("failed to read CSV file", err)
	}
	return rows, nil
}

func (r *DataReader) readExcel() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, apperrors.InputError("failed to open Excel file", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	if err != nil {
		return nil, apperrors.InputError("failed to read Sheet1", err)
	}
	return rows, nil
}

// column returns the index of a header, or -1.
func (t *Table) column(name string) int {
	for i, h := range t.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

func (t *Table) cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// ParseParameterTable converts the strategy/parameter table (columns:
// parameter_name, owning_strategy, distribution_type, param1, param2,
// correlation_group, jurisdiction) into a validated parameter set.
// Malformed rows fail eagerly before any simulation.
func ParseParameterTable(t *Table) (*model.ParameterSet, error) {
	nameCol := t.column("parameter_name")
	ownerCol := t.column("owning_strategy")
	kindCol := t.column("distribution_type")
	p1Col := t.column("param1")
	p2Col := t.column("param2")
	groupCol := t.column("correlation_group")
	jurCol := t.column("jurisdiction")

	if nameCol < 0 || kindCol < 0 || p1Col < 0 {
		return nil, apperrors.ValidationError("parameter table requires parameter_name, distribution_type and param1 columns")
	}

	params := make([]model.Parameter, 0, len(t.Rows))
	for i, row := range t.Rows {
		name := t.cell(row, nameCol)
		if name == "" {
			return nil, apperrors.ValidationError(fmt.Sprintf("parameter table row %d: empty parameter_name", i+2))
		}

		p1, err := parseFloat(t.cell(row, p1Col))
		if err != nil {
			return nil, apperrors.ValidationError(fmt.Sprintf("parameter %s: bad param1: %v", name, err))
		}

		kind := strings.ToLower(t.cell(row, kindCol))
		var dist model.Distribution
		if kind == "fixed" {
			dist = model.Fixed(p1)
		} else {
			p2, err := parseFloat(t.cell(row, p2Col))
			if err != nil {
				return nil, apperrors.ValidationError(fmt.Sprintf("parameter %s: bad param2: %v", name, err))
			}
			switch kind {
			case "beta":
				dist = model.NewBeta(p1, p2)
			case "gamma":
				dist = model.NewGamma(p1, p2)
			case "lognormal":
				dist = model.NewLogNormal(p1, p2)
			default:
				return nil, apperrors.ValidationError(fmt.Sprintf("parameter %s: unknown distribution_type %q", name, kind))
			}
		}

		owner := t.cell(row, ownerCol)
		if owner == "" {
			owner = model.SharedOwner
		}

		params = append(params, model.Parameter{
			Name:             name,
			Owner:            owner,
			Dist:             dist,
			CorrelationGroup: t.cell(row, groupCol),
			Jurisdiction:     t.cell(row, jurCol),
		})
	}

	set, err := model.NewParameterSet(params)
	if err != nil {
		return nil, apperrors.Wrap(err, "parameter table validation failed")
	}
	return set, nil
}

// CostUtilityEntry is one strategy/state row of the cost-utility table.
type CostUtilityEntry struct {
	CostPerCycle  float64
	AnnualUtility float64
}

// ParseCostUtilityTable converts the per-strategy per-state table (columns:
// strategy, state, cost_per_cycle, annual_utility) into a nested lookup.
func ParseCostUtilityTable(t *Table) (map[string]map[string]CostUtilityEntry, error) {
	stratCol := t.column("strategy")
	stateCol := t.column("state")
	costCol := t.column("cost_per_cycle")
	utilCol := t.column("annual_utility")
	if stratCol < 0 || stateCol < 0 || costCol < 0 || utilCol < 0 {
		return nil, apperrors.ValidationError("cost-utility table requires strategy, state, cost_per_cycle and annual_utility columns")
	}

	out := make(map[string]map[string]CostUtilityEntry)
	for i, row := range t.Rows {
		strategy := t.cell(row, stratCol)
		state := t.cell(row, stateCol)
		if strategy == "" || state == "" {
			return nil, apperrors.ValidationError(fmt.Sprintf("cost-utility table row %d: empty strategy or state", i+2))
		}
		cost, err := parseFloat(t.cell(row, costCol))
		if err != nil {
			return nil, apperrors.ValidationError(fmt.Sprintf("cost-utility row %d: bad cost_per_cycle: %v", i+2, err))
		}
		util, err := parseFloat(t.cell(row, utilCol))
		if err != nil {
			return nil, apperrors.ValidationError(fmt.Sprintf("cost-utility row %d: bad annual_utility: %v", i+2, err))
		}
		if out[strategy] == nil {
			out[strategy] = make(map[string]CostUtilityEntry)
		}
		out[strategy][state] = CostUtilityEntry{CostPerCycle: cost, AnnualUtility: util}
	}
	return out, nil
}

// ParseAdoptionTable converts the adoption-curve table (columns: strategy,
// year, share) into a validated curve over the given projection horizon.
func ParseAdoptionTable(t *Table, years int) (*model.AdoptionCurve, error) {
	stratCol := t.column("strategy")
	yearCol := t.column("year")
	shareCol := t.column("share")
	if stratCol < 0 || yearCol < 0 || shareCol < 0 {
		return nil, apperrors.ValidationError("adoption table requires strategy, year and share columns")
	}

	shares := make(map[string][]float64)
	for i, row := range t.Rows {
		strategy := t.cell(row, stratCol)
		year, err := strconv.Atoi(t.cell(row, yearCol))
		if err != nil || year < 1 || year > years {
			return nil, apperrors.ValidationError(fmt.Sprintf("adoption row %d: year must be 1..%d", i+2, years))
		}
		share, err := parseFloat(t.cell(row, shareCol))
		if err != nil {
			return nil, apperrors.ValidationError(fmt.Sprintf("adoption row %d: bad share: %v", i+2, err))
		}
		if shares[strategy] == nil {
			shares[strategy] = make([]float64, years)
		}
		shares[strategy][year-1] = share
	}

	curve, err := model.NewAdoptionCurve(years, shares)
	if err != nil {
		return nil, err
	}
	return curve, nil
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(s, 64)
}

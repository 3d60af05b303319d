package ports

// TableSink writes one named tabular output (header plus rows). Every
// engine output is a flat, human-inspectable table consumed by external
// reporting collaborators.
type TableSink interface {
	WriteTable(name string, header []string, rows [][]string) error
}

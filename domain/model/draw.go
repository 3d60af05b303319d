package model

// SimulationDraw is one Monte-Carlo iteration's realized parameter values
// plus, per strategy (indexed in registry order), the total discounted cost
// and total discounted QALYs. It is the unit of parallelism and the unit the
// decision-metrics and value-of-information computations consume in bulk.
type SimulationDraw struct {
	Iteration int       `json:"iteration"`
	Seed      int64     `json:"seed"`
	Params    Values    `json:"params"`
	Cost      []float64 `json:"cost"`
	QALY      []float64 `json:"qaly"`
}

// NMB returns the net monetary benefit of the given strategy at a
// willingness-to-pay threshold: w × qaly − cost.
func (d SimulationDraw) NMB(strategy int, wtp float64) float64 {
	return wtp*d.QALY[strategy] - d.Cost[strategy]
}

// OptimalStrategy returns the argmax-NMB strategy for this draw at the
// given threshold. Ties break to the lowest strategy index, never randomly,
// so results are reproducible.
func (d SimulationDraw) OptimalStrategy(wtp float64) int {
	best := 0
	bestNMB := d.NMB(0, wtp)
	for s := 1; s < len(d.Cost); s++ {
		if nmb := d.NMB(s, wtp); nmb > bestNMB {
			best = s
			bestNMB = nmb
		}
	}
	return best
}

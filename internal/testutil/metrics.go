package testutil

import "github.com/prometheus/client_golang/prometheus"

// MetricTotals gathers g and sums each family across its label sets.
// Histograms contribute their sample count.
func MetricTotals(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(families))
	for _, mf := range families {
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			}
		}
		out[mf.GetName()] = total
	}
	return out, nil
}

// internal/forecast/metrics.go
package forecast

import "math"

// Metric identifies a cross-validation scoring metric.
type Metric string

const (
	MetricMAPE  Metric = "mape"
	MetricMAE   Metric = "mae"
	MetricRMSE  Metric = "rmse"
	MetricSMAPE Metric = "smape"
)

// Score computes the metric over aligned actual/predicted slices. Predictions
// are clipped at zero before scoring. MAPE and SMAPE are percentages.
func (m Metric) Score(actual, predicted []float64) float64 {
	n := len(actual)
	if n == 0 || len(predicted) != n {
		return math.Inf(1)
	}

	pred := make([]float64, n)
	for i, p := range predicted {
		pred[i] = math.Max(0, p)
	}

	switch m {
	case MetricMAE:
		sum := 0.0
		for i := range actual {
			sum += math.Abs(actual[i] - pred[i])
		}
		return sum / float64(n)

	case MetricRMSE:
		sum := 0.0
		for i := range actual {
			d := actual[i] - pred[i]
			sum += d * d
		}
		return math.Sqrt(sum / float64(n))

	case MetricSMAPE:
		sum := 0.0
		count := 0
		for i := range actual {
			denom := (math.Abs(actual[i]) + math.Abs(pred[i])) / 2
			if denom > 0 {
				sum += math.Abs(actual[i]-pred[i]) / denom * 100
				count++
			}
		}
		if count == 0 {
			return math.Inf(1)
		}
		return sum / float64(count)

	default: // MAPE
		sum := 0.0
		count := 0
		for i := range actual {
			if actual[i] > 0 {
				sum += math.Abs(actual[i]-pred[i]) / actual[i] * 100
				count++
			}
		}
		if count == 0 {
			return math.Inf(1)
		}
		return sum / float64(count)
	}
}

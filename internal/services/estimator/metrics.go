package estimator

import (
	"math"
)

// RMSE is the root mean squared error over pairs where both values are
// defined. NaN when no pair is.
func RMSE(truth, pred []float64) float64 {
	var sum float64
	n := 0
	for i := range truth {
		if math.IsNaN(truth[i]) || math.IsNaN(pred[i]) {
			continue
		}
		d := truth[i] - pred[i]
		sum += d * d
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return math.Sqrt(sum / float64(n))
}

// MAE is the mean absolute error over defined pairs.
func MAE(truth, pred []float64) float64 {
	var sum float64
	n := 0
	for i := range truth {
		if math.IsNaN(truth[i]) || math.IsNaN(pred[i]) {
			continue
		}
		sum += math.Abs(truth[i] - pred[i])
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// DirectionalAccuracy is the share of defined pairs whose signs agree.
func DirectionalAccuracy(truth, pred []float64) float64 {
	hits, n := 0, 0
	for i := range truth {
		if math.IsNaN(truth[i]) || math.IsNaN(pred[i]) {
			continue
		}
		if (truth[i] > 0) == (pred[i] > 0) {
			hits++
		}
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return float64(hits) / float64(n)
}

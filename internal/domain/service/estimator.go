package service

// Estimator is a single-use model: Fit once on a training partition, then
// Predict any number of rows. Rows are feature vectors; NaN marks an
// undefined value. Classification estimators predict P(label == 1),
// regression estimators predict the target value.
type Estimator interface {
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
}

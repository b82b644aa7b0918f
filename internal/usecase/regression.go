package usecase

import (
	"math"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
)

// NewRegressionRunner builds a runner whose report carries one metric row
// per (ticker, model, split) plus the ensemble rows.
func NewRegressionRunner(source domrepo.TableSource, evaluator *Evaluator, primary domrepo.ResultSink, opts ...RunnerOption) (*Runner, error) {
	if evaluator == nil || evaluator.Task() != models.TaskRegression {
		return nil, models.ConfigError("regression runner needs a regression evaluator")
	}
	return NewRunner(source, evaluator, primary, opts...), nil
}

// ModelScore averages metric rows of one model across tickers and splits.
type ModelScore struct {
	Model  string
	Splits int
	RMSE   float64
	MAE    float64
	DirAcc float64
}

// ScoreModels averages metric rows per model, in order of first
// appearance. Undefined values are skipped.
func ScoreModels(rows []models.RegressionMetric) []ModelScore {
	type acc struct {
		n                 int
		rmse, mae, dir    float64
		nrmse, nmae, ndir int
	}
	var order []string
	sums := make(map[string]*acc)
	for _, m := range rows {
		a, ok := sums[m.Model]
		if !ok {
			a = &acc{}
			sums[m.Model] = a
			order = append(order, m.Model)
		}
		a.n++
		if !math.IsNaN(m.RMSE) {
			a.rmse += m.RMSE
			a.nrmse++
		}
		if !math.IsNaN(m.MAE) {
			a.mae += m.MAE
			a.nmae++
		}
		if !math.IsNaN(m.DirAcc) {
			a.dir += m.DirAcc
			a.ndir++
		}
	}
	out := make([]ModelScore, 0, len(order))
	for _, name := range order {
		a := sums[name]
		out = append(out, ModelScore{
			Model:  name,
			Splits: a.n,
			RMSE:   ratio(a.rmse, a.nrmse),
			MAE:    ratio(a.mae, a.nmae),
			DirAcc: ratio(a.dir, a.ndir),
		})
	}
	return out
}

func ratio(sum float64, n int) float64 {
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

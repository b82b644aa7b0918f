package estimator

import (
	"context"
	"fmt"
	"math"

	"FinSignal/internal/domain/models"
)

// Trainer fits one registry model at a time on a training partition and
// scores test rows.
type Trainer struct {
	task models.Task
	opts Options
}

// NewTrainer creates a trainer for the task.
func NewTrainer(task models.Task, opts Options) *Trainer {
	return &Trainer{task: task, opts: opts}
}

func (t *Trainer) Task() models.Task { return t.task }

// CheckClasses returns ErrAbstain when a classification training set does
// not hold both label classes.
func (t *Trainer) CheckClasses(y []float64) error {
	if t.task != models.TaskClassification {
		return nil
	}
	var pos, neg bool
	for _, v := range y {
		if v > 0.5 {
			pos = true
		} else {
			neg = true
		}
		if pos && neg {
			return nil
		}
	}
	return models.ErrAbstain
}

// FitPredict trains a fresh estimator for spec on (X, y) and predicts every
// row of test. Classification outputs are probabilities of the positive
// class clipped to [0,1].
func (t *Trainer) FitPredict(ctx context.Context, spec Spec, X [][]float64, y []float64, test [][]float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.CheckClasses(y); err != nil {
		return nil, err
	}
	est, err := New(spec, t.task, t.opts)
	if err != nil {
		return nil, err
	}
	if err := est.Fit(X, y); err != nil {
		return nil, models.FitError(err)
	}
	out, err := est.Predict(test)
	if err != nil {
		return nil, models.FitError(err)
	}
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, models.FitError(fmt.Errorf("model %s produced a non-finite output", spec.Name))
		}
		if t.task == models.TaskClassification {
			out[i] = math.Min(1, math.Max(0, v))
		}
	}
	return out, nil
}

// ValidationError scores spec on a held-out tail of the training partition:
// the last max(1, n*fraction) rows, with gap rows dropped in between. The
// result is the RMSE on the tail, or NaN when the split is unusable.
func (t *Trainer) ValidationError(ctx context.Context, spec Spec, X [][]float64, y []float64, fraction float64, gap int) float64 {
	n := len(X)
	v := max(1, int(float64(n)*fraction))
	fitEnd := n - v - gap
	if fitEnd < 2 {
		return math.NaN()
	}
	pred, err := t.FitPredict(ctx, spec, X[:fitEnd], y[:fitEnd], X[n-v:])
	if err != nil {
		return math.NaN()
	}
	return RMSE(y[n-v:], pred)
}

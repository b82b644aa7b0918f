package estimator

import (
	"fmt"
	"math"
	"sort"

	"FinSignal/internal/domain/service"

	"gonum.org/v1/gonum/stat"
)

// Imputer replaces undefined values with the per-column training median.
type Imputer struct {
	Medians []float64
}

// FitImputer learns medians from X. Columns without any defined value
// impute to zero.
func FitImputer(X [][]float64) *Imputer {
	p := width(X)
	med := make([]float64, p)
	col := make([]float64, 0, len(X))
	for j := 0; j < p; j++ {
		col = col[:0]
		for _, row := range X {
			if v := row[j]; !math.IsNaN(v) {
				col = append(col, v)
			}
		}
		med[j] = median(col)
	}
	return &Imputer{Medians: med}
}

// Transform returns an imputed copy of X.
func (im *Imputer) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		r := make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = im.Medians[j]
			}
			r[j] = v
		}
		out[i] = r
	}
	return out
}

// Scaler standardises columns with training mean and population std.
type Scaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler learns column moments from a fully defined X.
func FitScaler(X [][]float64) *Scaler {
	p := width(X)
	s := &Scaler{Mean: make([]float64, p), Std: make([]float64, p)}
	col := make([]float64, len(X))
	for j := 0; j < p; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j], s.Std[j] = mean, std
	}
	return s
}

// Transform standardises X in place.
func (s *Scaler) Transform(X [][]float64) [][]float64 {
	for _, row := range X {
		for j := range row {
			row[j] = (row[j] - s.Mean[j]) / s.Std[j]
		}
	}
	return X
}

// Pipeline fits preprocessing on the training partition only, then applies
// the same transform to every prediction input.
type Pipeline struct {
	Scale bool
	Model service.Estimator

	imputer *Imputer
	scaler  *Scaler
}

func (p *Pipeline) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("empty training set")
	}
	if len(X) != len(y) {
		return fmt.Errorf("X has %d rows, y has %d", len(X), len(y))
	}
	p.imputer = FitImputer(X)
	Xt := p.imputer.Transform(X)
	if p.Scale {
		p.scaler = FitScaler(Xt)
		Xt = p.scaler.Transform(Xt)
	}
	return p.Model.Fit(Xt, y)
}

func (p *Pipeline) Predict(X [][]float64) ([]float64, error) {
	if p.imputer == nil {
		return nil, fmt.Errorf("predict before fit")
	}
	if len(X) > 0 && len(X[0]) != len(p.imputer.Medians) {
		return nil, fmt.Errorf("predict: %d features, fitted on %d", len(X[0]), len(p.imputer.Medians))
	}
	Xt := p.imputer.Transform(X)
	if p.scaler != nil {
		Xt = p.scaler.Transform(Xt)
	}
	return p.Model.Predict(Xt)
}

func width(X [][]float64) int {
	if len(X) == 0 {
		return 0
	}
	return len(X[0])
}

// median averages the two central values of an even-length input. None of
// the stat.Quantile estimators do that at p=0.5, so imputed values would
// shift toward the lower neighbour.
func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := make([]float64, len(v))
	copy(s, v)
	sort.Float64s(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}

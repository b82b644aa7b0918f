package walkforward

import (
	"math"

	"FinSignal/internal/domain/models"
)

// AssembleOptions selects the label and the columns kept out of X.
type AssembleOptions struct {
	Kind    models.TargetKind
	Target  string
	Horizon int
	Exclude []string
}

// Validate returns a configuration error for an unusable label definition.
func (o AssembleOptions) Validate() error {
	switch o.Kind {
	case models.TargetReturn, models.TargetDirection:
	default:
		return models.ConfigError("unknown target kind %q", o.Kind)
	}
	if o.Target == "" {
		return models.ConfigError("target column is required")
	}
	if o.Horizon < 1 {
		return models.ConfigError("horizon must be >= 1, got %d", o.Horizon)
	}
	return nil
}

// Dataset is the supervised view of a table. Rows maps each X row back to
// its table row. Pending rows have defined features but a label beyond the
// end of the table; they can be scored but never trained on.
type Dataset struct {
	Features    []string
	X           [][]float64
	Y           []float64
	Rows        []int
	Pending     [][]float64
	PendingRows []int
}

// Labels shifts the target column back by horizon rows. Rows whose label
// falls beyond the table end, or whose future target is undefined, are NaN.
func Labels(t *models.Table, kind models.TargetKind, target string, horizon int) []float64 {
	n := t.Len()
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
		j := i + horizon
		if j >= n {
			continue
		}
		v := t.Value(target, j)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if kind == models.TargetDirection {
			if v > 0 {
				out[i] = 1
			} else {
				out[i] = 0
			}
			continue
		}
		out[i] = v
	}
	return out
}

// Assemble derives the feature matrix and label vector from a table.
func Assemble(t *models.Table, opts AssembleOptions) (*Dataset, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	n := t.Len()
	if n == 0 {
		return nil, models.DataError(models.StageAssemble, "empty table")
	}
	if !t.HasColumn(opts.Target) {
		return nil, models.DataError(models.StageAssemble, "missing target column %q", opts.Target)
	}

	skip := map[string]bool{
		models.ColDatetime: true,
		models.ColTicker:   true,
		models.ColInterval: true,
		opts.Target:        true,
	}
	for _, c := range opts.Exclude {
		skip[c] = true
	}

	var (
		names []string
		cols  [][]float64
	)
	for _, name := range t.Columns() {
		if skip[name] {
			continue
		}
		col, _ := t.Column(name)
		defined := false
		for i, v := range col {
			if math.IsInf(v, 0) {
				col[i] = math.NaN()
				continue
			}
			if !math.IsNaN(v) {
				defined = true
			}
		}
		if !defined {
			continue
		}
		names = append(names, name)
		cols = append(cols, col)
	}
	if len(names) == 0 {
		return nil, models.DataError(models.StageAssemble, "no usable feature columns")
	}

	labels := Labels(t, opts.Kind, opts.Target, opts.Horizon)
	ds := &Dataset{Features: names}
	for i := 0; i < n; i++ {
		row := make([]float64, len(cols))
		seen := false
		for j, c := range cols {
			row[j] = c[i]
			if !math.IsNaN(c[i]) {
				seen = true
			}
		}
		if !seen {
			continue
		}
		if math.IsNaN(labels[i]) {
			if i+opts.Horizon >= n {
				ds.Pending = append(ds.Pending, row)
				ds.PendingRows = append(ds.PendingRows, i)
			}
			continue
		}
		ds.X = append(ds.X, row)
		ds.Y = append(ds.Y, labels[i])
		ds.Rows = append(ds.Rows, i)
	}
	return ds, nil
}

// Partition is the per-window view of a dataset.
type Partition struct {
	TrainX    [][]float64
	TrainY    []float64
	TrainRows []int
	TestX     [][]float64
	TestRows  []int
}

// Split selects the training rows of w whose labels are observed strictly
// before the test range, and every scorable row inside the test range in
// row order.
func (d *Dataset) Split(w models.Window, horizon int) Partition {
	var p Partition
	for k, r := range d.Rows {
		switch {
		case r >= w.TrainStart && r < w.TrainEnd && r+horizon < w.TestStart:
			p.TrainX = append(p.TrainX, d.X[k])
			p.TrainY = append(p.TrainY, d.Y[k])
			p.TrainRows = append(p.TrainRows, r)
		case r >= w.TestStart && r < w.TestEnd:
			p.TestX = append(p.TestX, d.X[k])
			p.TestRows = append(p.TestRows, r)
		}
	}
	for k, r := range d.PendingRows {
		if r >= w.TestStart && r < w.TestEnd {
			p.TestX = append(p.TestX, d.Pending[k])
			p.TestRows = append(p.TestRows, r)
		}
	}
	return p
}

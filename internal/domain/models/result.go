package models

import (
	"math"
	"time"
)

// Task selects how targets are built and outputs are interpreted.
type Task string

const (
	TaskClassification Task = "classification"
	TaskRegression     Task = "regression"
)

// TargetKind selects the supervised label.
type TargetKind string

const (
	TargetReturn    TargetKind = "return"
	TargetDirection TargetKind = "direction"
)

// Directional labels.
const (
	LabelUp   = "UP"
	LabelDown = "DOWN"
)

// DirectionLabel maps an ensemble probability to UP/DOWN.
func DirectionLabel(p float64) string {
	if p >= 0.5 {
		return LabelUp
	}
	return LabelDown
}

// ModelOutput is one model's estimate for the evaluated observation.
// Error holds the validation RMSE and is meaningful only when Scored.
type ModelOutput struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Error  float64 `json:"-"`
	Scored bool    `json:"-"`
}

// WindowResult records one evaluated window. It is never modified once
// appended to a trace.
type WindowResult struct {
	Ticker      string
	Window      int
	Timestamp   time.Time
	TrainEnd    int
	TestStart   int
	TestEnd     int
	Outputs     []ModelOutput
	Ensemble    float64
	Label       string
	Realized    float64
	HasRealized bool
}

// TickerSummary is the compact per-ticker result derived from the last
// WindowResult of a ticker.
type TickerSummary struct {
	Ticker     string        `json:"ticker"`
	Interval   string        `json:"interval"`
	LastDate   time.Time     `json:"last_date"`
	Outputs    []ModelOutput `json:"outputs"`
	Ensemble   float64       `json:"proba_ens"`
	Label      string        `json:"pred,omitempty"`
	Confidence float64       `json:"confidence"`
	Windows    int           `json:"windows"`
	Abstained  int           `json:"abstained"`
}

// Output returns the named model output.
func (s TickerSummary) Output(name string) (float64, bool) {
	for _, o := range s.Outputs {
		if o.Name == name {
			return o.Value, true
		}
	}
	return math.NaN(), false
}

// SummaryFromResult copies the fields of the last window into a summary.
func SummaryFromResult(task Task, interval string, r WindowResult, windows, abstained int) TickerSummary {
	outs := make([]ModelOutput, len(r.Outputs))
	copy(outs, r.Outputs)
	s := TickerSummary{
		Ticker:    r.Ticker,
		Interval:  interval,
		LastDate:  r.Timestamp,
		Outputs:   outs,
		Ensemble:  r.Ensemble,
		Label:     r.Label,
		Windows:   windows,
		Abstained: abstained,
	}
	if task == TaskClassification {
		s.Confidence = math.Abs(r.Ensemble - 0.5)
	} else {
		s.Confidence = math.Abs(r.Ensemble)
	}
	return s
}

// Failure is a ticker excluded from the run.
type Failure struct {
	Ticker string
	Stage  string
	Err    error
}

// RegressionMetric is one (ticker, model, split) scoring row.
type RegressionMetric struct {
	Ticker   string
	Model    string
	Split    int
	NTrain   int
	NTest    int
	RMSE     float64
	MAE      float64
	DirAcc   float64
	Realized int
}

// PredictionSet holds one model's predictions over the test rows of one
// split. Model "ensemble" carries the combined output. Return is the
// realized target return over the label horizon, NaN where it is not known
// yet; for regression it equals YTrue.
type PredictionSet struct {
	Ticker string
	Model  string
	Split  int
	Times  []time.Time
	YTrue  []float64
	YPred  []float64
	Return []float64
}

// EnsembleModel names the combined output in metric rows and prediction sets.
const EnsembleModel = "ensemble"

// RunReport collects everything a run hands to the sinks.
type RunReport struct {
	RunID       string
	Task        Task
	Interval    string
	Models      []string
	Summaries   []TickerSummary
	Traces      map[string][]WindowResult
	Failures    []Failure
	Metrics     []RegressionMetric
	Predictions []PredictionSet
	StartedAt   time.Time
	FinishedAt  time.Time
}

// TraceTickers returns trace keys in summary order.
func (r *RunReport) TraceTickers() []string {
	out := make([]string, 0, len(r.Traces))
	for _, s := range r.Summaries {
		if _, ok := r.Traces[s.Ticker]; ok {
			out = append(out, s.Ticker)
		}
	}
	return out
}

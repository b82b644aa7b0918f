package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/services/ensemble"
	"FinSignal/internal/services/estimator"
	"FinSignal/internal/services/walkforward"
	"FinSignal/pkg/logger"
)

// Window outcomes reported to metrics.
const (
	OutcomeEvaluated = "evaluated"
	OutcomeAbstained = "abstained"
	OutcomeEmpty     = "empty"
)

// EvaluatorConfig holds everything an evaluation needs besides the models.
type EvaluatorConfig struct {
	Task     models.Task
	Split    walkforward.SplitParams
	Assemble walkforward.AssembleOptions
	// ValidationFraction sizes the training tail scored for inverse-error
	// weights.
	ValidationFraction float64
	// MinRows rejects shorter tables; 0 disables the check.
	MinRows int
	// TickerTimeout bounds one ticker's evaluation; 0 disables it.
	TickerTimeout time.Duration
	// KeepPredictions records per-model test predictions for every window.
	KeepPredictions bool
}

// Validate returns a configuration error for unusable settings.
func (c EvaluatorConfig) Validate() error {
	if c.Task != models.TaskClassification && c.Task != models.TaskRegression {
		return models.ConfigError("unknown task %q", c.Task)
	}
	if c.Task == models.TaskClassification && c.Assemble.Kind != models.TargetDirection {
		return models.ConfigError("classification needs the direction target, got %q", c.Assemble.Kind)
	}
	if c.Task == models.TaskRegression && c.Assemble.Kind != models.TargetReturn {
		return models.ConfigError("regression needs the return target, got %q", c.Assemble.Kind)
	}
	if err := c.Split.Validate(); err != nil {
		return err
	}
	if err := c.Assemble.Validate(); err != nil {
		return err
	}
	if c.ValidationFraction < 0 || c.ValidationFraction >= 1 {
		return models.ConfigError("validation fraction must be in [0,1), got %g", c.ValidationFraction)
	}
	if c.MinRows < 0 {
		return models.ConfigError("min rows must be >= 0, got %d", c.MinRows)
	}
	return nil
}

// Evaluation is the outcome of one ticker.
type Evaluation struct {
	Summary     models.TickerSummary
	Trace       []models.WindowResult
	Abstained   int
	Metrics     []models.RegressionMetric
	Predictions []models.PredictionSet
}

// Evaluator runs the walk-forward state machine for one ticker at a time:
// INIT, then WINDOW_EVAL per plan entry, then FINALIZED or NO_RESULT. It
// holds no per-ticker state between calls.
type Evaluator struct {
	cfg      EvaluatorConfig
	registry *estimator.Registry
	trainer  *estimator.Trainer
	combiner *ensemble.Combiner
	metrics  domrepo.Metrics
	logger   *logger.Logger
}

// NewEvaluator checks that the collaborators agree on the task.
func NewEvaluator(cfg EvaluatorConfig, registry *estimator.Registry, trainer *estimator.Trainer, combiner *ensemble.Combiner, metrics domrepo.Metrics, log *logger.Logger) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil || trainer == nil || combiner == nil {
		return nil, models.ConfigError("evaluator needs a registry, a trainer and a combiner")
	}
	if registry.Task() != cfg.Task || trainer.Task() != cfg.Task {
		return nil, models.ConfigError("registry task %q and trainer task %q must match %q", registry.Task(), trainer.Task(), cfg.Task)
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Evaluator{cfg: cfg, registry: registry, trainer: trainer, combiner: combiner, metrics: metrics, logger: log}, nil
}

func (e *Evaluator) Task() models.Task { return e.cfg.Task }

// Models returns the registry names in output order.
func (e *Evaluator) Models() []string { return e.registry.Names() }

// Evaluate walks every window of the table's plan. A ticker without any
// window result returns an error wrapping models.ErrNoResult.
func (e *Evaluator) Evaluate(ctx context.Context, t *models.Table) (*Evaluation, error) {
	ticker := t.Ticker()
	log := e.logger.With(logger.String("ticker", ticker))

	// INIT
	if err := t.Validate(); err != nil {
		return nil, models.WithTicker(models.DataError(models.StageLoad, "invalid table: %v", err), ticker, models.StageLoad)
	}
	if e.cfg.MinRows > 0 && t.Len() < e.cfg.MinRows {
		return nil, models.WithTicker(fmt.Errorf("%w: %d rows, need %d", models.ErrNoResult, t.Len(), e.cfg.MinRows), ticker, models.StagePlan)
	}
	plan, err := walkforward.Plan(t.Len(), e.cfg.Split)
	if err != nil {
		return nil, err
	}
	if len(plan) == 0 {
		return nil, models.WithTicker(fmt.Errorf("%w: empty window plan for %d rows", models.ErrNoResult, t.Len()), ticker, models.StagePlan)
	}
	if err := plan.Validate(e.cfg.Split.Embargo); err != nil {
		return nil, models.WithTicker(models.DataError(models.StagePlan, "%v", err), ticker, models.StagePlan)
	}
	if !t.HasColumn(e.cfg.Assemble.Target) {
		return nil, models.WithTicker(models.DataError(models.StageAssemble, "missing target column %q", e.cfg.Assemble.Target), ticker, models.StageAssemble)
	}

	if e.cfg.TickerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.TickerTimeout)
		defer cancel()
	}

	realized := walkforward.Labels(t, e.cfg.Assemble.Kind, e.cfg.Assemble.Target, e.cfg.Assemble.Horizon)
	out := &Evaluation{}

	// WINDOW_EVAL
	for _, w := range plan {
		if err := ctx.Err(); err != nil {
			return nil, models.WithTicker(fmt.Errorf("stopped before window %s: %w", w, err), ticker, models.StageFit)
		}
		started := time.Now()
		res, preds, metrics, err := e.evaluateWindow(ctx, t, w, realized)
		e.metrics.RecordLatency("window", time.Since(started).Seconds())
		switch {
		case errors.Is(err, models.ErrAbstain):
			out.Abstained++
			e.metrics.RecordWindow(ticker, OutcomeAbstained)
			log.Debug("window abstained", logger.String("window", w.String()))
			continue
		case errors.Is(err, errEmptyWindow):
			e.metrics.RecordWindow(ticker, OutcomeEmpty)
			log.Debug("window has no usable rows", logger.String("window", w.String()))
			continue
		case err != nil:
			return nil, models.WithTicker(err, ticker, models.StageOf(err, models.StageFit))
		}
		if n := len(out.Trace); n > 0 && !res.Timestamp.After(out.Trace[n-1].Timestamp) {
			return nil, models.WithTicker(models.DataError(models.StageCombine, "window %s timestamp %s not after previous", w, res.Timestamp), ticker, models.StageCombine)
		}
		out.Trace = append(out.Trace, res)
		out.Metrics = append(out.Metrics, metrics...)
		out.Predictions = append(out.Predictions, preds...)
		e.metrics.RecordWindow(ticker, OutcomeEvaluated)
	}

	// NO_RESULT
	if len(out.Trace) == 0 {
		return nil, models.WithTicker(fmt.Errorf("%w: all %d windows skipped (%d abstained)", models.ErrNoResult, len(plan), out.Abstained), ticker, models.StagePlan)
	}

	// FINALIZED
	last := out.Trace[len(out.Trace)-1]
	out.Summary = models.SummaryFromResult(e.cfg.Task, t.Interval(), last, len(out.Trace), out.Abstained)
	e.metrics.RecordEnsemble(ticker, last.Ensemble)
	log.Info("ticker evaluated",
		logger.Int("windows", len(out.Trace)),
		logger.Int("abstained", out.Abstained),
		logger.Float64("ensemble", last.Ensemble),
	)
	return out, nil
}

var errEmptyWindow = errors.New("window has no training or test rows")

// evaluateWindow fits every registry model on the window's training rows
// and scores its last test row. Features come from the table cut at the
// test end, so nothing after the window is visible to the assembler.
func (e *Evaluator) evaluateWindow(ctx context.Context, t *models.Table, w models.Window, realized []float64) (models.WindowResult, []models.PredictionSet, []models.RegressionMetric, error) {
	var res models.WindowResult
	ds, err := walkforward.Assemble(t.Head(w.TestEnd), e.cfg.Assemble)
	if err != nil {
		return res, nil, nil, err
	}
	part := ds.Split(w, e.cfg.Assemble.Horizon)
	if len(part.TrainX) == 0 || len(part.TestX) == 0 {
		return res, nil, nil, errEmptyWindow
	}
	if err := e.trainer.CheckClasses(part.TrainY); err != nil {
		return res, nil, nil, err
	}

	lastRow := part.TestRows[len(part.TestRows)-1]
	truth := make([]float64, len(part.TestRows))
	for k, r := range part.TestRows {
		truth[k] = realized[r]
	}

	specs := e.registry.Specs()
	outputs := make([]models.ModelOutput, 0, len(specs))
	var (
		preds   []models.PredictionSet
		metrics []models.RegressionMetric
		columns [][]float64
	)
	for _, spec := range specs {
		pred, err := e.trainer.FitPredict(ctx, spec, part.TrainX, part.TrainY, part.TestX)
		if err != nil {
			return res, nil, nil, withModel(err, spec.Name)
		}
		o := models.ModelOutput{Name: spec.Name, Value: pred[len(pred)-1]}
		if e.combiner.NeedsErrors() {
			if ve := e.trainer.ValidationError(ctx, spec, part.TrainX, part.TrainY, e.cfg.ValidationFraction, e.cfg.Split.Embargo); !math.IsNaN(ve) {
				o.Error, o.Scored = ve, true
			}
		}
		outputs = append(outputs, o)
		columns = append(columns, pred)
		if e.cfg.Task == models.TaskRegression {
			metrics = append(metrics, scoreSplit(t.Ticker(), spec.Name, w.Number, len(part.TrainX), truth, pred))
		}
		if e.cfg.KeepPredictions {
			preds = append(preds, e.predictionSet(t, spec.Name, w.Number, part.TestRows, truth, pred))
		}
	}

	ens, err := e.combiner.Combine(outputs)
	if err != nil {
		return res, nil, nil, models.DataError(models.StageCombine, "%v", err)
	}
	if e.cfg.Task == models.TaskRegression || e.cfg.KeepPredictions {
		combined := make([]float64, len(part.TestRows))
		rowOutputs := make([]models.ModelOutput, len(outputs))
		for k := range combined {
			for m := range outputs {
				rowOutputs[m] = outputs[m]
				rowOutputs[m].Value = columns[m][k]
			}
			combined[k], _ = e.combiner.Combine(rowOutputs)
		}
		if e.cfg.Task == models.TaskRegression {
			metrics = append(metrics, scoreSplit(t.Ticker(), models.EnsembleModel, w.Number, len(part.TrainX), truth, combined))
		}
		if e.cfg.KeepPredictions {
			preds = append(preds, e.predictionSet(t, models.EnsembleModel, w.Number, part.TestRows, truth, combined))
		}
	}

	res = models.WindowResult{
		Ticker:    t.Ticker(),
		Window:    w.Number,
		Timestamp: t.Time(lastRow),
		TrainEnd:  w.TrainEnd,
		TestStart: w.TestStart,
		TestEnd:   w.TestEnd,
		Outputs:   outputs,
		Ensemble:  ens,
	}
	if e.cfg.Task == models.TaskClassification {
		res.Label = models.DirectionLabel(ens)
	}
	if v := realized[lastRow]; !math.IsNaN(v) {
		res.Realized = v
		res.HasRealized = true
	}
	return res, preds, metrics, nil
}

func (e *Evaluator) predictionSet(t *models.Table, model string, split int, rows []int, truth, pred []float64) models.PredictionSet {
	times := make([]time.Time, len(rows))
	forward := make([]float64, len(rows))
	for k, r := range rows {
		times[k] = t.Time(r)
		forward[k] = math.NaN()
		if j := r + e.cfg.Assemble.Horizon; j < t.Len() {
			if v := t.Value(e.cfg.Assemble.Target, j); !math.IsNaN(v) && !math.IsInf(v, 0) {
				forward[k] = v
			}
		}
	}
	return models.PredictionSet{
		Ticker: t.Ticker(),
		Model:  model,
		Split:  split,
		Times:  times,
		YTrue:  append([]float64(nil), truth...),
		YPred:  append([]float64(nil), pred...),
		Return: forward,
	}
}

func scoreSplit(ticker, model string, split, nTrain int, truth, pred []float64) models.RegressionMetric {
	realized := 0
	for _, v := range truth {
		if !math.IsNaN(v) {
			realized++
		}
	}
	return models.RegressionMetric{
		Ticker:   ticker,
		Model:    model,
		Split:    split,
		NTrain:   nTrain,
		NTest:    len(pred),
		RMSE:     estimator.RMSE(truth, pred),
		MAE:      estimator.MAE(truth, pred),
		DirAcc:   estimator.DirectionalAccuracy(truth, pred),
		Realized: realized,
	}
}

// withModel prefixes the model name to the message of a classified error
// while keeping its kind and stage.
func withModel(err error, name string) error {
	var me *models.Error
	if errors.As(err, &me) {
		cp := *me
		cp.Err = fmt.Errorf("model %s: %w", name, me.Err)
		return &cp
	}
	return fmt.Errorf("model %s: %w", name, err)
}

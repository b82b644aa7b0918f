package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/pkg/logger"

	"github.com/google/uuid"
)

// Ticker outcomes reported to metrics.
const (
	TickerOK       = "ok"
	TickerFailed   = "failed"
	TickerNoResult = "no_result"
)

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithSinks adds secondary sinks. Their failures are logged, not returned.
func WithSinks(sinks ...domrepo.ResultSink) RunnerOption {
	return func(r *Runner) { r.extra = append(r.extra, sinks...) }
}

func WithRunnerLogger(l *logger.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithRunnerMetrics(m domrepo.Metrics) RunnerOption {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithClock replaces time.Now and the run id generator.
func WithClock(now func() time.Time, newID func() string) RunnerOption {
	return func(r *Runner) {
		r.now = now
		r.newID = newID
	}
}

// Runner evaluates every ticker of a source one after another and hands the
// finished report to the sinks once, after the last ticker.
type Runner struct {
	source    domrepo.TableSource
	evaluator *Evaluator
	primary   domrepo.ResultSink
	extra     []domrepo.ResultSink
	metrics   domrepo.Metrics
	logger    *logger.Logger
	now       func() time.Time
	newID     func() string
}

// NewRunner creates a runner. primary may be nil; when set its failure
// fails the run.
func NewRunner(source domrepo.TableSource, evaluator *Evaluator, primary domrepo.ResultSink, opts ...RunnerOption) *Runner {
	r := &Runner{
		source:    source,
		evaluator: evaluator,
		primary:   primary,
		metrics:   domrepo.NopMetrics{},
		logger:    logger.Nop(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run evaluates the universe. Per-ticker failures are recorded in the
// report and never stop the run; configuration errors do. When no ticker
// succeeds the report is returned together with models.ErrNoResults.
func (r *Runner) Run(ctx context.Context) (*models.RunReport, error) {
	tickers, err := r.source.Tickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tickers: %w", err)
	}

	report := &models.RunReport{
		RunID:     r.newID(),
		Task:      r.evaluator.Task(),
		Models:    r.evaluator.Models(),
		Traces:    make(map[string][]models.WindowResult),
		StartedAt: r.now().UTC(),
	}
	r.logger.Info("run started",
		logger.String("run_id", report.RunID),
		logger.String("task", string(report.Task)),
		logger.Int("tickers", len(tickers)),
		logger.Strings("models", report.Models),
	)

	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled: %w", err)
		}
		ev, err := r.evaluateTicker(ctx, ticker)
		if err != nil {
			if models.IsConfigError(err) {
				return nil, err
			}
			r.recordFailure(report, ticker, err)
			continue
		}
		if report.Interval == "" {
			report.Interval = ev.Summary.Interval
		}
		report.Summaries = append(report.Summaries, ev.Summary)
		report.Traces[ticker] = ev.Trace
		report.Metrics = append(report.Metrics, ev.Metrics...)
		report.Predictions = append(report.Predictions, ev.Predictions...)
		r.metrics.RecordTicker(TickerOK)
	}

	SortSummaries(report.Summaries)
	report.FinishedAt = r.now().UTC()

	if len(report.Summaries) == 0 {
		r.logger.Error("run produced no results", logger.Int("failures", len(report.Failures)))
		r.retract(ctx, report)
		return report, models.ErrNoResults
	}

	if err := r.flush(ctx, report); err != nil {
		return report, err
	}
	r.logger.Info("run finished",
		logger.String("run_id", report.RunID),
		logger.Int("succeeded", len(report.Summaries)),
		logger.Int("failed", len(report.Failures)),
		logger.Duration("elapsed_ms", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (r *Runner) evaluateTicker(ctx context.Context, ticker string) (*Evaluation, error) {
	started := time.Now()
	defer func() { r.metrics.RecordLatency("ticker", time.Since(started).Seconds()) }()

	table, err := r.source.Load(ctx, ticker)
	if err != nil {
		return nil, models.WithTicker(err, ticker, models.StageLoad)
	}
	return r.evaluator.Evaluate(ctx, table)
}

func (r *Runner) recordFailure(report *models.RunReport, ticker string, err error) {
	stage := models.StageOf(err, models.StageLoad)
	report.Failures = append(report.Failures, models.Failure{Ticker: ticker, Stage: stage, Err: err})
	if errors.Is(err, models.ErrNoResult) {
		r.metrics.RecordTicker(TickerNoResult)
		r.logger.Warn("ticker produced no result", logger.String("ticker", ticker), logger.String("stage", stage), logger.Error(err))
		return
	}
	kind := string(models.KindData)
	var me *models.Error
	if errors.As(err, &me) {
		kind = string(me.Kind)
	}
	r.metrics.RecordTicker(TickerFailed)
	r.metrics.RecordError(kind)
	r.logger.Error("ticker failed", logger.String("ticker", ticker), logger.String("stage", stage), logger.Error(err))
}

// flush writes the report from this goroutine only.
func (r *Runner) flush(ctx context.Context, report *models.RunReport) error {
	if r.primary != nil {
		if err := r.primary.Write(ctx, report); err != nil {
			r.metrics.RecordError(models.StageSink)
			return models.WithTicker(fmt.Errorf("sink %s: %w", r.primary.Name(), err), "", models.StageSink)
		}
	}
	for _, s := range r.extra {
		if err := s.Write(ctx, report); err != nil {
			r.metrics.RecordError(models.StageSink)
			r.logger.Error("sink failed", logger.String("sink", s.Name()), logger.Error(err))
		}
	}
	return nil
}

// retract withdraws earlier artifacts from every sink that supports it.
// Failures are logged; the run already ends with ErrNoResults.
func (r *Runner) retract(ctx context.Context, report *models.RunReport) {
	sinks := append([]domrepo.ResultSink{r.primary}, r.extra...)
	for _, s := range sinks {
		if s == nil {
			continue
		}
		rr, ok := s.(domrepo.ResultRetractor)
		if !ok {
			continue
		}
		if err := rr.Retract(ctx, report); err != nil {
			r.metrics.RecordError(models.StageSink)
			r.logger.Error("sink retract failed", logger.String("sink", s.Name()), logger.Error(err))
		}
	}
}

// SortSummaries orders by confidence descending, ticker ascending.
func SortSummaries(s []models.TickerSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Confidence != s[j].Confidence {
			return s[i].Confidence > s[j].Confidence
		}
		return s[i].Ticker < s[j].Ticker
	})
}

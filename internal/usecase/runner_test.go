package usecase

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/repository"
)

type memSource struct {
	order  []string
	tables map[string]*models.Table
	errs   map[string]error
}

func (s *memSource) Tickers(context.Context) ([]string, error) { return s.order, nil }

func (s *memSource) Load(_ context.Context, ticker string) (*models.Table, error) {
	if err := s.errs[ticker]; err != nil {
		return nil, err
	}
	t, ok := s.tables[ticker]
	if !ok {
		return nil, errors.New("no such file")
	}
	return t, nil
}

type recordingSink struct {
	name    string
	err     error
	reports []*models.RunReport
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(_ context.Context, r *models.RunReport) error {
	s.reports = append(s.reports, r)
	return s.err
}

type countingMetrics struct {
	tickers map[string]int
	errors  map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{tickers: map[string]int{}, errors: map[string]int{}}
}

func (m *countingMetrics) RecordWindow(string, string)    {}
func (m *countingMetrics) RecordTicker(outcome string)     { m.tickers[outcome]++ }
func (m *countingMetrics) RecordError(kind string)         { m.errors[kind]++ }
func (m *countingMetrics) RecordEnsemble(string, float64) {}
func (m *countingMetrics) RecordLatency(string, float64)  {}

func fixedClock() (func() time.Time, func() string) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }, func() string { return "run-0001" }
}

func TestRunnerIsolatesTickerFailures(t *testing.T) {
	src := &memSource{
		order: []string{"SPY", "BAD", "TINY", "QQQ"},
		tables: map[string]*models.Table{
			"SPY":  syntheticTable(t, "SPY", 120, 1, randomReturns),
			"TINY": syntheticTable(t, "TINY", 10, 2, randomReturns),
			"QQQ":  syntheticTable(t, "QQQ", 120, 3, randomReturns),
		},
		errs: map[string]error{"BAD": models.DataError(models.StageLoad, "row 3: bad number")},
	}
	primary := &recordingSink{name: "primary"}
	extra := &recordingSink{name: "extra"}
	m := newCountingMetrics()
	now, id := fixedClock()

	r := NewRunner(src, newTestEvaluator(t, testEvaluatorConfig(models.TaskClassification)), primary,
		WithSinks(extra), WithRunnerMetrics(m), WithClock(now, id))
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-0001", report.RunID)
	assert.Equal(t, []string{"logreg", "rf"}, report.Models)
	assert.Equal(t, "1d", report.Interval)
	require.Len(t, report.Summaries, 2)
	assert.ElementsMatch(t, []string{"SPY", "QQQ"}, []string{report.Summaries[0].Ticker, report.Summaries[1].Ticker})
	assert.GreaterOrEqual(t, report.Summaries[0].Confidence, report.Summaries[1].Confidence)
	assert.Len(t, report.Traces, 2)

	require.Len(t, report.Failures, 2)
	assert.Equal(t, "BAD", report.Failures[0].Ticker)
	assert.Equal(t, models.StageLoad, report.Failures[0].Stage)
	assert.Equal(t, "TINY", report.Failures[1].Ticker)
	assert.ErrorIs(t, report.Failures[1].Err, models.ErrNoResult)

	require.Len(t, primary.reports, 1)
	require.Len(t, extra.reports, 1)
	assert.Same(t, report, primary.reports[0])

	assert.Equal(t, 2, m.tickers[TickerOK])
	assert.Equal(t, 1, m.tickers[TickerFailed])
	assert.Equal(t, 1, m.tickers[TickerNoResult])
	assert.Equal(t, 1, m.errors[string(models.KindData)])
}

func TestRunnerWithoutResults(t *testing.T) {
	src := &memSource{order: []string{"A", "B"}, tables: map[string]*models.Table{}}
	primary := &recordingSink{name: "primary"}

	report, err := NewRunner(src, newTestEvaluator(t, testEvaluatorConfig(models.TaskClassification)), primary).Run(context.Background())
	assert.ErrorIs(t, err, models.ErrNoResults)
	require.NotNil(t, report)
	assert.Len(t, report.Failures, 2)
	assert.Empty(t, primary.reports, "nothing is written for an empty run")
}

func TestRunnerPropagatesConfigErrors(t *testing.T) {
	src := &memSource{
		order:  []string{"SPY", "QQQ"},
		tables: map[string]*models.Table{"QQQ": syntheticTable(t, "QQQ", 120, 3, randomReturns)},
		errs:   map[string]error{"SPY": models.ConfigError("duplicate column %q", "Close")},
	}
	primary := &recordingSink{name: "primary"}

	report, err := NewRunner(src, newTestEvaluator(t, testEvaluatorConfig(models.TaskClassification)), primary).Run(context.Background())
	assert.True(t, models.IsConfigError(err))
	assert.Nil(t, report)
	assert.Empty(t, primary.reports)
}

func TestRunnerSinkFailures(t *testing.T) {
	src := &memSource{
		order:  []string{"SPY"},
		tables: map[string]*models.Table{"SPY": syntheticTable(t, "SPY", 100, 1, randomReturns)},
	}
	ev := newTestEvaluator(t, testEvaluatorConfig(models.TaskClassification))

	extra := &recordingSink{name: "kafka", err: errors.New("broker down")}
	_, err := NewRunner(src, ev, &recordingSink{name: "csv"}, WithSinks(extra)).Run(context.Background())
	assert.NoError(t, err, "secondary sink failures are logged only")
	assert.Len(t, extra.reports, 1)

	_, err = NewRunner(src, ev, &recordingSink{name: "csv", err: errors.New("disk full")}).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.StageSink, models.StageOf(err, ""))
	assert.Contains(t, err.Error(), "disk full")
}

// runToDir evaluates src and writes the CSV artifacts under dir.
func runToDir(t *testing.T, src *memSource, dir string) {
	t.Helper()
	sink := repository.NewCSVSink(repository.CSVPaths{
		Summary:  filepath.Join(dir, "prob_summary.csv"),
		TraceDir: filepath.Join(dir, "traces"),
	})
	now, id := fixedClock()
	_, err := NewRunner(src, newTestEvaluator(t, testEvaluatorConfig(models.TaskClassification)), sink, WithClock(now, id)).Run(context.Background())
	require.NoError(t, err)
}

func TestRunnerArtifactsAreReproducible(t *testing.T) {
	src := &memSource{
		order: []string{"SPY", "QQQ"},
		tables: map[string]*models.Table{
			"SPY": syntheticTable(t, "SPY", 110, 8, randomReturns),
			"QQQ": syntheticTable(t, "QQQ", 110, 9, randomReturns),
		},
	}
	a, b := t.TempDir(), t.TempDir()
	runToDir(t, src, a)
	runToDir(t, src, b)

	for _, rel := range []string{"prob_summary.csv", "traces/SPY_1d_trace.csv", "traces/QQQ_1d_trace.csv"} {
		x, err := os.ReadFile(filepath.Join(a, rel))
		require.NoError(t, err, rel)
		y, err := os.ReadFile(filepath.Join(b, rel))
		require.NoError(t, err, rel)
		assert.True(t, bytes.Equal(x, y), rel)
		assert.NotEmpty(t, x, rel)
	}
}

func TestRunnerRerunReplacesArtifacts(t *testing.T) {
	dir := t.TempDir()
	paths := repository.CSVPaths{
		Summary:  filepath.Join(dir, "prob_summary.csv"),
		TraceDir: filepath.Join(dir, "traces"),
		Interval: "1d",
	}
	src := &memSource{
		order: []string{"SPY", "QQQ"},
		tables: map[string]*models.Table{
			"SPY": syntheticTable(t, "SPY", 110, 8, randomReturns),
			"QQQ": syntheticTable(t, "QQQ", 110, 9, randomReturns),
		},
	}
	run := func() error {
		now, id := fixedClock()
		ev := newTestEvaluator(t, testEvaluatorConfig(models.TaskClassification))
		_, err := NewRunner(src, ev, repository.NewCSVSink(paths), WithClock(now, id)).Run(context.Background())
		return err
	}
	traceFiles := func() []string {
		matches, err := filepath.Glob(filepath.Join(paths.TraceDir, "*.csv"))
		require.NoError(t, err)
		for i, m := range matches {
			matches[i] = filepath.Base(m)
		}
		return matches
	}

	require.NoError(t, run())
	assert.ElementsMatch(t, []string{"SPY_1d_trace.csv", "QQQ_1d_trace.csv"}, traceFiles())

	src.errs = map[string]error{"QQQ": models.DataError(models.StageLoad, "missing column ret")}
	require.NoError(t, run())
	assert.Equal(t, []string{"SPY_1d_trace.csv"}, traceFiles())
	sums, err := repository.NewCSVSummaryReader(paths.Summary).Summaries(context.Background())
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "SPY", sums[0].Ticker)

	src.errs["SPY"] = models.DataError(models.StageLoad, "missing column ret")
	assert.ErrorIs(t, run(), models.ErrNoResults)
	assert.Empty(t, traceFiles())
	_, err = repository.NewCSVSummaryReader(paths.Summary).Summaries(context.Background())
	assert.ErrorIs(t, err, models.ErrNoSummary)
}

func TestRegressionRunnerNeedsRegressionEvaluator(t *testing.T) {
	_, err := NewRegressionRunner(&memSource{}, newTestEvaluator(t, testEvaluatorConfig(models.TaskClassification)), nil)
	assert.True(t, models.IsConfigError(err))
}

func TestScoreModels(t *testing.T) {
	rows := []models.RegressionMetric{
		{Model: "linreg", RMSE: 1, MAE: 0.5, DirAcc: 0.5},
		{Model: "rf", RMSE: 2, MAE: 1, DirAcc: 0.6},
		{Model: "linreg", RMSE: 3, MAE: 1.5, DirAcc: 0.7},
	}
	scores := ScoreModels(rows)
	require.Len(t, scores, 2)
	assert.Equal(t, "linreg", scores[0].Model)
	assert.Equal(t, 2, scores[0].Splits)
	assert.InDelta(t, 2.0, scores[0].RMSE, 1e-12)
	assert.InDelta(t, 1.0, scores[0].MAE, 1e-12)
	assert.InDelta(t, 0.6, scores[0].DirAcc, 1e-12)
	assert.Equal(t, "rf", scores[1].Model)
}

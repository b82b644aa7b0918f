package console

import (
	"bytes"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
)

func summary(ticker string, task models.Task, lr, rf, ens float64) models.TickerSummary {
	label := models.DirectionLabel(ens)
	if task == models.TaskRegression {
		label = ""
	}
	return models.SummaryFromResult(task, "1d", models.WindowResult{
		Ticker:    ticker,
		Timestamp: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		Outputs:   []models.ModelOutput{{Name: "logreg", Value: lr}, {Name: "rf", Value: rf}},
		Ensemble:  ens,
		Label:     label,
	}, 3, 0)
}

// sections splits the output on table titles.
func sections(out string) map[string]string {
	res := make(map[string]string)
	for _, part := range strings.Split(out, "=== ")[1:] {
		title, body, _ := strings.Cut(part, " ===")
		res[title] = body
	}
	return res
}

func TestClassificationTables(t *testing.T) {
	report := &models.RunReport{
		Task:   models.TaskClassification,
		Models: []string{"logreg", "rf"},
		Summaries: []models.TickerSummary{
			summary("SPY", models.TaskClassification, 0.60, 0.64, 0.62),
			summary("QQQ", models.TaskClassification, 0.40, 0.42, 0.41),
			summary("AAPL", models.TaskClassification, 0.50, 0.60, 0.55),
			summary("MSFT", models.TaskClassification, 0.28, 0.32, 0.30),
		},
	}
	var buf bytes.Buffer
	require.NoError(t, NewReporter(&buf, 1).Print(report))
	out := buf.String()
	assert.NotContains(t, out, "\033[")

	s := sections(out)
	require.Len(t, s, 3)

	up := s["TOP-1 BULLISH by PROBA_UP (ENS)"]
	assert.Contains(t, up, "PROBA_UP (LOGREG)")
	assert.Contains(t, up, "SPY")
	assert.Contains(t, up, " 62.0%")
	assert.Contains(t, up, "2024-03-08")
	assert.NotContains(t, up, "MSFT")

	down := s["TOP-1 BEARISH by PROBA_UP (ENS)"]
	assert.Contains(t, down, "MSFT")
	assert.Contains(t, down, "DOWN")
	assert.NotContains(t, down, "SPY")

	conf := s["PROBA_UP by confidence"]
	assert.Contains(t, conf, "MSFT")
	assert.NotContains(t, conf, "QQQ")
}

func TestColouredLabels(t *testing.T) {
	report := &models.RunReport{
		Task:      models.TaskClassification,
		Models:    []string{"logreg", "rf"},
		Summaries: []models.TickerSummary{summary("SPY", models.TaskClassification, 0.6, 0.7, 0.65)},
	}
	var buf bytes.Buffer
	require.NoError(t, NewReporter(&buf, 0).WithColor(true).Print(report))
	assert.Contains(t, buf.String(), ansiGreen+"UP"+ansiReset)
	assert.Contains(t, buf.String(), ansiBold+"=== ALL BULLISH")
}

func TestRegressionTables(t *testing.T) {
	report := &models.RunReport{
		Task:      models.TaskRegression,
		Models:    []string{"logreg", "rf"},
		Summaries: []models.TickerSummary{summary("SPY", models.TaskRegression, 0.0012, math.NaN(), -0.0031)},
		Metrics: []models.RegressionMetric{
			{Ticker: "SPY", Model: "logreg", Split: 0, RMSE: 0.4, MAE: 0.2, DirAcc: 0.5},
			{Ticker: "SPY", Model: "logreg", Split: 1, RMSE: 0.6, MAE: 0.4, DirAcc: 0.5},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, NewReporter(&buf, 5).Print(report))
	s := sections(buf.String())

	est := s["TOP-5 ESTIMATES by confidence"]
	assert.Contains(t, est, "PRED (RF)")
	assert.Contains(t, est, "+0.0012")
	assert.Contains(t, est, "-0.0031")
	assert.Contains(t, est, "-  ")

	scores := s["MODEL ERRORS across splits"]
	assert.Contains(t, scores, "logreg")
	assert.Contains(t, scores, "0.500000")
	assert.Contains(t, scores, "0.300000")
	assert.Contains(t, scores, " 50.0%")
}

func TestEmptyReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewReporter(&buf, 10).Print(&models.RunReport{}))
	assert.Equal(t, "no results\n", buf.String())
}

func TestColorEnabled(t *testing.T) {
	assert.False(t, ColorEnabled(&bytes.Buffer{}))
	t.Setenv("NO_COLOR", "1")
	assert.False(t, ColorEnabled(os.Stdout))
}

func TestBacktestTable(t *testing.T) {
	var buf bytes.Buffer
	results := []models.BacktestResult{
		{Ticker: "SPY", Model: models.EnsembleModel, Task: models.TaskRegression, Bars: 3, Long: 1, Short: 1,
			TotalReturn: 0.0302, BenchReturn: 0.04, Sharpe: 15.87, HitRate: 1},
		{Ticker: "QQQ", Model: models.EnsembleModel, Task: models.TaskRegression, Bars: 1,
			TotalReturn: -0.01, Sharpe: math.NaN(), HitRate: math.NaN()},
	}
	require.NoError(t, NewReporter(&buf, 10).WithColor(false).PrintBacktest(results))

	s := sections(buf.String())
	table, ok := s["BACKTEST ENSEMBLE (regression)"]
	require.True(t, ok, buf.String())
	assert.Contains(t, table, "SHARPE")
	assert.Contains(t, table, "  3.0%")
	assert.Contains(t, table, "15.87")
	assert.Contains(t, table, " -1.0%")
	assert.Contains(t, table, "100.0%")

	buf.Reset()
	require.NoError(t, NewReporter(&buf, 10).PrintBacktest(nil))
	assert.Equal(t, "no results\n", buf.String())
}

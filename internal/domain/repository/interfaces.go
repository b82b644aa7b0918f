package repository

import (
	"context"

	"FinSignal/internal/domain/models"
)

// TableSource loads one chronologically sorted, deduplicated table per ticker.
type TableSource interface {
	Tickers(ctx context.Context) ([]string, error)
	Load(ctx context.Context, ticker string) (*models.Table, error)
}

// CandleSource provides raw OHLCV bars for the feature transform.
type CandleSource interface {
	GetCandles(ctx context.Context, ticker string, iv Interval) ([]models.Candle, error)
}

// BarStore persists feature tables idempotently. Returns rows written.
type BarStore interface {
	SaveTable(ctx context.Context, t *models.Table) (int, error)
}

// ResultSink receives a finished run. Sinks are called once per run from a
// single goroutine.
type ResultSink interface {
	Name() string
	Write(ctx context.Context, report *models.RunReport) error
}

// ResultRetractor is implemented by sinks that can withdraw the artifacts of
// an earlier run. The runner calls it when a run produces no results.
type ResultRetractor interface {
	Retract(ctx context.Context, report *models.RunReport) error
}

// SummaryReader serves the latest summary artifact to presentation layers.
type SummaryReader interface {
	Summaries(ctx context.Context) ([]models.TickerSummary, error)
}

// PredictionSource lists stored out-of-sample predictions.
type PredictionSource interface {
	Predictions(ctx context.Context) ([]models.PredictionSet, error)
}

// BacktestWriter persists backtest results.
type BacktestWriter interface {
	WriteBacktest(ctx context.Context, results []models.BacktestResult) error
}

// Metrics records pipeline observations.
type Metrics interface {
	RecordWindow(ticker, outcome string)
	RecordTicker(outcome string)
	RecordError(kind string)
	RecordEnsemble(ticker string, value float64)
	RecordLatency(op string, seconds float64)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) RecordWindow(string, string)    {}
func (NopMetrics) RecordTicker(string)            {}
func (NopMetrics) RecordError(string)             {}
func (NopMetrics) RecordEnsemble(string, float64) {}
func (NopMetrics) RecordLatency(string, float64)  {}

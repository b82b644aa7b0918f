package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/pkg/logger"
)

// BacktestConfig selects the predictions to replay. Threshold is a dead band:
// around zero for predicted returns, around 0.5 for probabilities.
type BacktestConfig struct {
	Model     string
	Threshold float64
	Interval  string
}

// BacktestUseCase replays stored predictions of one task as a long/short
// strategy.
type BacktestUseCase struct {
	sources map[models.Task]domrepo.PredictionSource
	writer  domrepo.BacktestWriter
	cfg     BacktestConfig
	l       *logger.Logger
}

func NewBacktestUseCase(sources map[models.Task]domrepo.PredictionSource, writer domrepo.BacktestWriter, cfg BacktestConfig, l *logger.Logger) *BacktestUseCase {
	if l == nil {
		l = logger.Nop()
	}
	if cfg.Model == "" {
		cfg.Model = models.EnsembleModel
	}
	return &BacktestUseCase{sources: sources, writer: writer, cfg: cfg, l: l}
}

// Run backtests every ticker with predictions for the configured model.
// A task without any usable prediction returns models.ErrNoResults.
func (uc *BacktestUseCase) Run(ctx context.Context, task models.Task) ([]models.BacktestResult, error) {
	src, ok := uc.sources[task]
	if !ok || src == nil {
		return nil, models.ConfigError("no prediction source for %s", task)
	}
	sets, err := src.Predictions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load predictions: %w", err)
	}
	results := Backtest(task, sets, uc.cfg)
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no %s predictions for model %q", models.ErrNoResults, task, uc.cfg.Model)
	}
	if uc.writer != nil {
		if err := uc.writer.WriteBacktest(ctx, results); err != nil {
			return results, models.WithTicker(fmt.Errorf("write backtest: %w", err), "", models.StageSink)
		}
	}
	uc.l.Info("backtest finished",
		logger.String("task", string(task)),
		logger.String("model", uc.cfg.Model),
		logger.Int("tickers", len(results)),
	)
	return results, nil
}

type backtestBar struct {
	t     time.Time
	split int
	pred  float64
	ret   float64
}

// Backtest turns each ticker's predictions for cfg.Model into a signal of
// +1, -1 or 0 held over the next bar. Where splits overlap the later split
// wins. Bars without a prediction or a realized return are skipped. Results
// are ordered by ticker; tickers without a usable bar are left out.
func Backtest(task models.Task, sets []models.PredictionSet, cfg BacktestConfig) []models.BacktestResult {
	model := cfg.Model
	if model == "" {
		model = models.EnsembleModel
	}
	byTicker := make(map[string]map[int64]backtestBar)
	for _, s := range sets {
		if s.Model != model {
			continue
		}
		bars, ok := byTicker[s.Ticker]
		if !ok {
			bars = make(map[int64]backtestBar)
			byTicker[s.Ticker] = bars
		}
		for i, ts := range s.Times {
			b := backtestBar{t: ts, split: s.Split, pred: s.YPred[i], ret: math.NaN()}
			if i < len(s.Return) {
				b.ret = s.Return[i]
			}
			key := ts.UnixNano()
			if prev, ok := bars[key]; ok && prev.split > b.split {
				continue
			}
			bars[key] = b
		}
	}

	tickers := make([]string, 0, len(byTicker))
	for t := range byTicker {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	out := make([]models.BacktestResult, 0, len(tickers))
	for _, ticker := range tickers {
		bars := make([]backtestBar, 0, len(byTicker[ticker]))
		for _, b := range byTicker[ticker] {
			bars = append(bars, b)
		}
		sort.Slice(bars, func(i, j int) bool { return bars[i].t.Before(bars[j].t) })
		if res := replay(task, ticker, model, bars, cfg); res.Bars > 0 {
			out = append(out, res)
		}
	}
	return out
}

func replay(task models.Task, ticker, model string, bars []backtestBar, cfg BacktestConfig) models.BacktestResult {
	res := models.BacktestResult{Ticker: ticker, Model: model, Task: task, Sharpe: math.NaN(), HitRate: math.NaN()}
	equity, bench, peak := 1.0, 1.0, 1.0
	strat := make([]float64, 0, len(bars))
	traded, hits := 0, 0
	for _, b := range bars {
		if math.IsNaN(b.pred) || math.IsNaN(b.ret) {
			continue
		}
		sig := signal(task, b.pred, cfg.Threshold)
		sr := float64(sig) * b.ret
		equity *= 1 + sr
		bench *= 1 + b.ret
		peak = math.Max(peak, equity)
		res.MaxDrawdown = math.Max(res.MaxDrawdown, 1-equity/peak)
		switch sig {
		case 1:
			res.Long++
		case -1:
			res.Short++
		}
		if sig != 0 {
			traded++
			if sr > 0 {
				hits++
			}
		}
		strat = append(strat, sr)
		res.Curve = append(res.Curve, models.EquityPoint{
			Time: b.t, Signal: sig, Return: b.ret, Strategy: sr, Equity: equity, Benchmark: bench,
		})
	}
	res.Bars = len(strat)
	res.TotalReturn = equity - 1
	res.BenchReturn = bench - 1
	if len(strat) > 1 {
		mean, std := stat.MeanStdDev(strat, nil)
		res.Sharpe = mean / (std + 1e-12) * math.Sqrt(models.PeriodsPerYear(cfg.Interval))
	}
	if traded > 0 {
		res.HitRate = float64(hits) / float64(traded)
	}
	return res
}

// signal maps a prediction to a position. Without a dead band a probability
// of 0.5 or above goes long.
func signal(task models.Task, pred, threshold float64) int {
	if task == models.TaskClassification {
		if threshold == 0 {
			if pred >= 0.5 {
				return 1
			}
			return -1
		}
		pred -= 0.5
	}
	switch {
	case pred > threshold:
		return 1
	case pred < -threshold:
		return -1
	}
	return 0
}

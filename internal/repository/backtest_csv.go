package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"FinSignal/internal/domain/models"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/util"
)

// CSVPredictionSource reads the per-split prediction files CSVSink writes
// for one interval and model.
type CSVPredictionSource struct {
	dir      string
	interval string
	model    string
}

func NewCSVPredictionSource(dir, interval, model string) *CSVPredictionSource {
	if model == "" {
		model = models.EnsembleModel
	}
	return &CSVPredictionSource{dir: dir, interval: interval, model: model}
}

func (s *CSVPredictionSource) Predictions(ctx context.Context) ([]models.PredictionSet, error) {
	infix := "_" + s.interval + "_" + s.model + "_split"
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+infix+"*.csv"))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}
	sort.Strings(matches)

	out := make([]models.PredictionSet, 0, len(matches))
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(filepath.Base(path), ".csv")
		ticker, split, ok := strings.Cut(name, infix)
		if !ok || ticker == "" {
			continue
		}
		n, err := strconv.Atoi(split)
		if err != nil {
			continue
		}
		set, err := readPredictions(path)
		if err != nil {
			return nil, err
		}
		set.Ticker, set.Model, set.Split = ticker, s.model, n
		out = append(out, set)
	}
	return out, nil
}

func readPredictions(path string) (models.PredictionSet, error) {
	var set models.PredictionSet
	header, records, err := readCSV(path)
	if err != nil {
		return set, err
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	predCol, ok := idx[colYPred]
	if !ok {
		if predCol, ok = idx[colProbaUp]; !ok {
			return set, fmt.Errorf("%s: no %s or %s column", path, colYPred, colProbaUp)
		}
	}
	tCol, ok := idx[models.ColDatetime]
	if !ok {
		return set, fmt.Errorf("%s: missing %s column", path, models.ColDatetime)
	}
	yCol, hasY := idx[colYTrue]
	rCol, hasRet := idx[colRetNext]

	cell := func(rec []string, col int, present bool) (float64, error) {
		if !present || col >= len(rec) {
			return parseFloat("")
		}
		return parseFloat(rec[col])
	}
	for line, rec := range records {
		if tCol >= len(rec) {
			return set, fmt.Errorf("%s:%d: short record", path, line+2)
		}
		ts, ok := util.ParseTime(rec[tCol])
		if !ok {
			return set, fmt.Errorf("%s:%d: bad %s %q", path, line+2, models.ColDatetime, rec[tCol])
		}
		pred, err := cell(rec, predCol, true)
		if err != nil {
			return set, fmt.Errorf("%s:%d: prediction: %w", path, line+2, err)
		}
		y, err := cell(rec, yCol, hasY)
		if err != nil {
			return set, fmt.Errorf("%s:%d: %s: %w", path, line+2, colYTrue, err)
		}
		ret, err := cell(rec, rCol, hasRet)
		if err != nil {
			return set, fmt.Errorf("%s:%d: %s: %w", path, line+2, colRetNext, err)
		}
		set.Times = append(set.Times, ts)
		set.YPred = append(set.YPred, pred)
		set.YTrue = append(set.YTrue, y)
		set.Return = append(set.Return, ret)
	}
	return set, nil
}

// CSVBacktestWriter writes one summary row per ticker and, when equityDir is
// set, an equity curve file per ticker.
type CSVBacktestWriter struct {
	path      string
	equityDir string
	interval  string
	l         *applogger.Logger
}

func NewCSVBacktestWriter(path, equityDir, interval string, l *applogger.Logger) *CSVBacktestWriter {
	return &CSVBacktestWriter{path: path, equityDir: equityDir, interval: interval, l: l}
}

func (w *CSVBacktestWriter) WriteBacktest(ctx context.Context, results []models.BacktestResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	header := []string{"ticker", "model", "task", "bars", "long", "short", "total_return", "bench_return", "sharpe", "max_drawdown", "hit_rate"}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.Ticker, r.Model, string(r.Task),
			strconv.Itoa(r.Bars), strconv.Itoa(r.Long), strconv.Itoa(r.Short),
			formatFloat(r.TotalReturn), formatFloat(r.BenchReturn), formatFloat(r.Sharpe),
			formatFloat(r.MaxDrawdown), formatFloat(r.HitRate),
		})
	}
	if err := writeCSV(w.path, header, rows); err != nil {
		return fmt.Errorf("write backtest summary: %w", err)
	}

	if w.equityDir != "" {
		for _, r := range results {
			name := fmt.Sprintf("%s_%s_%s_equity.csv", r.Ticker, w.interval, r.Task)
			if err := writeCSV(filepath.Join(w.equityDir, name), equityHeader, equityRecords(r.Curve)); err != nil {
				return fmt.Errorf("write equity %s: %w", name, err)
			}
		}
	}
	if w.l != nil {
		w.l.Info("backtest written",
			applogger.String("path", w.path),
			applogger.Int("tickers", len(results)),
		)
	}
	return nil
}

var equityHeader = []string{models.ColDatetime, "signal", "ret", "strategy_ret", "equity", "bench"}

func equityRecords(curve []models.EquityPoint) [][]string {
	rows := make([][]string, len(curve))
	for i, p := range curve {
		rows[i] = []string{
			util.FormatTime(p.Time), strconv.Itoa(p.Signal),
			formatFloat(p.Return), formatFloat(p.Strategy),
			formatFloat(p.Equity), formatFloat(p.Benchmark),
		}
	}
	return rows
}

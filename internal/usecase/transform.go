package usecase

import (
	"context"
	"fmt"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/services/features"
	"FinSignal/pkg/logger"
)

// CandleTableSource turns raw bars into feature tables on demand.
type CandleTableSource struct {
	candles     domrepo.CandleSource
	transformer *features.Transformer
	tickers     []string
	interval    domrepo.Interval
}

func NewCandleTableSource(candles domrepo.CandleSource, transformer *features.Transformer, tickers []string, interval domrepo.Interval) *CandleTableSource {
	return &CandleTableSource{candles: candles, transformer: transformer, tickers: tickers, interval: interval}
}

func (s *CandleTableSource) Tickers(ctx context.Context) ([]string, error) {
	out := make([]string, len(s.tickers))
	copy(out, s.tickers)
	return out, nil
}

func (s *CandleTableSource) Load(ctx context.Context, ticker string) (*models.Table, error) {
	return buildTable(ctx, s.candles, s.transformer, ticker, s.interval)
}

func buildTable(ctx context.Context, src domrepo.CandleSource, tr *features.Transformer, ticker string, iv domrepo.Interval) (*models.Table, error) {
	candles, err := src.GetCandles(ctx, ticker, iv)
	if err != nil {
		return nil, models.WithTicker(err, ticker, models.StageLoad)
	}
	candles = models.SortCandles(candles)
	if len(candles) == 0 {
		return nil, models.WithTicker(models.DataError(models.StageLoad, "no bars"), ticker, models.StageLoad)
	}
	raw, err := models.TableFromCandles(ticker, string(iv), candles)
	if err != nil {
		return nil, models.WithTicker(models.DataError(models.StageLoad, "%v", err), ticker, models.StageLoad)
	}
	t, err := tr.Transform(raw)
	if err != nil {
		return nil, models.WithTicker(err, ticker, models.StageLoad)
	}
	return t, nil
}

// ETLResult reports what a transform pass wrote.
type ETLResult struct {
	Rows    map[string]int
	Retried []string
	Failed  []string
}

// ETLUseCase fetches bars, computes features and stores one table per
// ticker. Tickers that fail are retried once after the first pass.
type ETLUseCase struct {
	candles     domrepo.CandleSource
	store       domrepo.BarStore
	transformer *features.Transformer
	tickers     []string
	interval    domrepo.Interval
	metrics     domrepo.Metrics
	logger      *logger.Logger
}

func NewETLUseCase(candles domrepo.CandleSource, store domrepo.BarStore, transformer *features.Transformer, tickers []string, interval domrepo.Interval, metrics domrepo.Metrics, log *logger.Logger) *ETLUseCase {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ETLUseCase{
		candles:     candles,
		store:       store,
		transformer: transformer,
		tickers:     tickers,
		interval:    interval,
		metrics:     metrics,
		logger:      log,
	}
}

// Run processes every ticker. It fails only when no ticker was stored.
func (uc *ETLUseCase) Run(ctx context.Context) (*ETLResult, error) {
	if !domrepo.IsValidInterval(uc.interval) {
		return nil, models.ConfigError("unsupported interval %q", uc.interval)
	}
	res := &ETLResult{Rows: make(map[string]int)}

	var failed []string
	for _, t := range uc.tickers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := uc.process(ctx, t, res); err != nil {
			uc.logger.Warn("ticker transform failed", logger.String("ticker", t), logger.Error(err))
			failed = append(failed, t)
		}
	}
	for _, t := range failed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Retried = append(res.Retried, t)
		if err := uc.process(ctx, t, res); err != nil {
			uc.metrics.RecordError(string(models.KindData))
			uc.logger.Error("ticker transform failed after retry", logger.String("ticker", t), logger.Error(err))
			res.Failed = append(res.Failed, t)
		}
	}

	if len(res.Rows) == 0 {
		return res, fmt.Errorf("transform: %w", models.ErrNoResults)
	}
	return res, nil
}

func (uc *ETLUseCase) process(ctx context.Context, ticker string, res *ETLResult) error {
	started := time.Now()
	defer func() { uc.metrics.RecordLatency("transform", time.Since(started).Seconds()) }()

	t, err := buildTable(ctx, uc.candles, uc.transformer, ticker, uc.interval)
	if err != nil {
		return err
	}
	n, err := uc.store.SaveTable(ctx, t)
	if err != nil {
		return models.WithTicker(fmt.Errorf("save table: %w", err), ticker, models.StageSink)
	}
	res.Rows[ticker] = n
	uc.logger.Info("ticker transformed", logger.String("ticker", ticker), logger.Int("rows", n))
	return nil
}

package di

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/handler/api"
	"FinSignal/internal/repository"
	"FinSignal/internal/services/ensemble"
	"FinSignal/internal/services/estimator"
	"FinSignal/internal/services/features"
	"FinSignal/internal/services/walkforward"
	"FinSignal/internal/usecase"
	"FinSignal/pkg/cache"
	pkgch "FinSignal/pkg/clickhouse"
	"FinSignal/pkg/config"
	xhttp "FinSignal/pkg/http"
	pkgkafka "FinSignal/pkg/kafka"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/metrics"
	"FinSignal/pkg/server"
	"FinSignal/pkg/util"
)

// ProvideLogger creates the application logger. Output "file" writes a new
// log file per process into log.dir and prunes old ones.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	output := cfg.Log.Output
	fileOutput := output == "file"
	if fileOutput {
		output = filepath.Join(cfg.Log.Dir, fmt.Sprintf("finsignal_%s.log", time.Now().Format("20060102_150405")))
	}
	l, err := applogger.New(&applogger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: output})
	if err != nil {
		return nil, models.ConfigError("logger: %v", err)
	}
	if fileOutput {
		removed, err := applogger.CleanupOld(cfg.Log.Dir, cfg.Log.Keep)
		if err != nil {
			l.Warn("log cleanup failed", applogger.Error(err))
		} else if len(removed) > 0 {
			l.Debug("old logs removed", applogger.Strings("files", removed))
		}
	}
	return l, nil
}

// ProvideRegistry creates the Prometheus registry shared by the recorder
// and the /metrics endpoint.
func ProvideRegistry() *prometheus.Registry {
	return metrics.NewRegistry()
}

// ProvideClickHouseTables names the ClickHouse tables.
func ProvideClickHouseTables(cfg *config.Config) repository.ClickHouseTables {
	return repository.ClickHouseTables{
		Database: cfg.ClickHouse.Database,
		Bars:     cfg.ClickHouse.BarsTable,
		Summary:  cfg.ClickHouse.SummaryTable,
		Trace:    cfg.ClickHouse.TraceTable,
	}
}

func clickHouseNeeded(cfg *config.Config) bool {
	return cfg.ClickHouse.Enabled || cfg.Data.Source == "clickhouse" || cfg.Fetch.Provider == "clickhouse"
}

// ProvideClickHouseClient creates a ClickHouse client and its schema. It
// returns nil when nothing reads or writes ClickHouse.
func ProvideClickHouseClient(cfg *config.Config, tables repository.ClickHouseTables) (*pkgch.Client, error) {
	if !clickHouseNeeded(cfg) {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(10, 5, 5*time.Minute),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, tables.Schema()); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer when publishing is enabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithMetrics(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideRedisCache connects to Redis when the summary store is enabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	c, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return c, nil
}

// ProvideRedisSummaryStore returns nil without a Redis connection.
func ProvideRedisSummaryStore(cfg *config.Config, rc *cache.RedisCache, l *applogger.Logger) *repository.RedisSummaryStore {
	if rc == nil {
		return nil
	}
	s := repository.NewRedisSummaryStore(rc, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
	s.SetLogger(l)
	return s
}

// ProvideTransformer builds the feature transform from the features section.
func ProvideTransformer(cfg *config.Config, l *applogger.Logger) *features.Transformer {
	f := cfg.Features
	return features.NewTransformer(features.Options{
		Returns:    f.Returns,
		SMA:        f.SMA,
		EMA:        f.EMA,
		RSI:        f.RSI,
		MACD:       features.MACD{Fast: f.MACD.Fast, Slow: f.MACD.Slow, Signal: f.MACD.Signal},
		Bollinger:  features.Bollinger{Window: f.Bollinger.Window, K: f.Bollinger.K},
		ATR:        f.ATR,
		Lags:       f.Lags,
		Volatility: f.Volatility,
		Winsorize:  f.Winsorize,
	}, l)
}

func startDate(cfg *config.Config) (time.Time, error) {
	t, ok := util.ParseTime(cfg.Data.StartDate)
	if !ok {
		return time.Time{}, models.ConfigError("bad data.start_date %q", cfg.Data.StartDate)
	}
	return t, nil
}

func chBarSource(cfg *config.Config, ch *pkgch.Client, tables repository.ClickHouseTables, l *applogger.Logger) (*repository.CHBarSource, error) {
	if ch == nil {
		return nil, models.ConfigError("clickhouse source requested without a clickhouse client")
	}
	from, err := startDate(cfg)
	if err != nil {
		return nil, err
	}
	src := repository.NewCHBarSource(ch, tables, from)
	src.SetLogger(l)
	return src, nil
}

// ProvideCandleSource selects the raw bar provider of the transform.
func ProvideCandleSource(cfg *config.Config, ch *pkgch.Client, tables repository.ClickHouseTables, l *applogger.Logger) (domrepo.CandleSource, error) {
	if cfg.Fetch.Provider == "clickhouse" {
		return chBarSource(cfg, ch, tables, l)
	}
	from, err := startDate(cfg)
	if err != nil {
		return nil, err
	}
	src, err := repository.NewYahooCandleSource(repository.YahooConfig{
		BaseURL:    cfg.Fetch.BaseURL,
		From:       from,
		Retries:    cfg.Fetch.Retries,
		Backoff:    cfg.Fetch.Backoff,
		Timeout:    cfg.Fetch.Timeout,
		RatePerSec: cfg.Fetch.RatePerSec,
	})
	if err != nil {
		return nil, err
	}
	src.SetLogger(l)
	return src, nil
}

// ProvideTableSource reads feature tables from the CSV folder, or computes
// them from the ClickHouse bars table.
func ProvideTableSource(cfg *config.Config, ch *pkgch.Client, tables repository.ClickHouseTables, tr *features.Transformer, l *applogger.Logger) (domrepo.TableSource, error) {
	if cfg.Data.Source == "clickhouse" {
		bars, err := chBarSource(cfg, ch, tables, l)
		if err != nil {
			return nil, err
		}
		return usecase.NewCandleTableSource(bars, tr, cfg.Data.Tickers, domrepo.NormalizeInterval(cfg.Data.Interval)), nil
	}
	// An explicit pattern lists the folder instead of the configured tickers.
	tickers := cfg.Data.Tickers
	if cfg.Data.Pattern != "" {
		tickers = nil
	}
	src := repository.NewCSVTableSource(cfg.Data.Dir, cfg.Data.Interval, cfg.CSVPattern(), tickers)
	src.SetLogger(l)
	return src, nil
}

// ProvideBarStore stores transformed tables as CSV files.
func ProvideBarStore(cfg *config.Config, l *applogger.Logger) domrepo.BarStore {
	s := repository.NewCSVBarStore(cfg.Data.Dir, cfg.Data.Interval)
	s.SetLogger(l)
	return s
}

// ProvideETL builds the transform use case.
func ProvideETL(cfg *config.Config, candles domrepo.CandleSource, store domrepo.BarStore, tr *features.Transformer, m domrepo.Metrics, l *applogger.Logger) *usecase.ETLUseCase {
	return usecase.NewETLUseCase(candles, store, tr, cfg.Data.Tickers, domrepo.NormalizeInterval(cfg.Data.Interval), m, l)
}

func specs(cfgs []config.ModelConfig, defaults []estimator.Spec) []estimator.Spec {
	if len(cfgs) == 0 {
		return defaults
	}
	out := make([]estimator.Spec, len(cfgs))
	for i, c := range cfgs {
		params := make(map[string]float64, len(c.Params))
		for k, v := range c.Params {
			params[k] = v
		}
		out[i] = estimator.Spec{Name: c.Name, Kind: estimator.Kind(c.Kind), Params: params}
	}
	return out
}

func newEvaluator(cfg *config.Config, task models.Task, m domrepo.Metrics, l *applogger.Logger) (*usecase.Evaluator, error) {
	wf := cfg.WalkForward
	ecfg := usecase.EvaluatorConfig{
		Task: task,
		Split: walkforward.SplitParams{
			Policy:       walkforward.Policy(wf.Policy),
			InitialTrain: wf.InitialTrain,
			TestSize:     wf.TestSize,
			Embargo:      wf.Embargo,
			Step:         wf.Step,
			Splits:       wf.Splits,
		},
		Assemble: walkforward.AssembleOptions{
			Kind:    models.TargetDirection,
			Target:  wf.Target,
			Horizon: wf.Horizon,
		},
		ValidationFraction: cfg.Ensemble.ValidationFraction,
		TickerTimeout:      cfg.Run.TickerTimeout,
		KeepPredictions:    cfg.Output.PredsDir != "",
	}

	var (
		registry *estimator.Registry
		policy   ensemble.Policy
		err      error
	)
	if task == models.TaskRegression {
		ecfg.Assemble.Kind = models.TargetReturn
		ecfg.MinRows = wf.MinRows
		registry, err = estimator.NewRegistry(task, specs(cfg.Models.Regressors, estimator.DefaultRegressors())...)
		policy = ensemble.Policy(cfg.Ensemble.Regression)
	} else {
		registry, err = estimator.NewRegistry(task, specs(cfg.Models.Classifiers, estimator.DefaultClassifiers())...)
		policy = ensemble.Policy(cfg.Ensemble.Classification)
	}
	if err != nil {
		return nil, err
	}
	combiner, err := ensemble.New(policy, task)
	if err != nil {
		return nil, err
	}
	trainer := estimator.NewTrainer(task, estimator.Options{Seed: cfg.Models.Seed, Workers: cfg.Models.Workers})
	return usecase.NewEvaluator(ecfg, registry, trainer, combiner, m, l.With(applogger.String("task", string(task))))
}

// ProvideRunners builds the classification and regression runners. The CSV
// sink is primary; ClickHouse, Kafka and Redis are secondary. Kafka and
// Redis only receive classification summaries.
func ProvideRunners(
	cfg *config.Config,
	source domrepo.TableSource,
	ch *pkgch.Client,
	tables repository.ClickHouseTables,
	producer *pkgkafka.Producer,
	store *repository.RedisSummaryStore,
	m domrepo.Metrics,
	l *applogger.Logger,
) (server.Runners, error) {
	var common []domrepo.ResultSink
	if ch != nil && cfg.ClickHouse.Enabled {
		s := repository.NewCHResultSink(ch, tables)
		s.SetLogger(l)
		common = append(common, s)
	}
	classExtra := append([]domrepo.ResultSink{}, common...)
	if producer != nil {
		p := repository.NewKafkaSummaryPublisher(producer, cfg.Kafka.Topic)
		p.SetLogger(l)
		classExtra = append(classExtra, p)
	}
	if store != nil {
		classExtra = append(classExtra, store)
	}

	build := func(task models.Task, summary string, extra []domrepo.ResultSink) (*usecase.Runner, error) {
		ev, err := newEvaluator(cfg, task, m, l)
		if err != nil {
			return nil, err
		}
		paths := repository.CSVPaths{
			Summary:  summary,
			TraceDir: cfg.Output.TraceDir,
			PredsDir: predsDir(cfg, task),
			Interval: cfg.Data.Interval,
		}
		if task == models.TaskRegression {
			paths.TraceDir = filepath.Join(cfg.Output.TraceDir, "regression")
			paths.Metrics = cfg.Output.MetricsPath
		}
		primary := repository.NewCSVSink(paths)
		primary.SetLogger(l)
		opts := []usecase.RunnerOption{
			usecase.WithSinks(extra...),
			usecase.WithRunnerLogger(l),
			usecase.WithRunnerMetrics(m),
		}
		if task == models.TaskRegression {
			return usecase.NewRegressionRunner(source, ev, primary, opts...)
		}
		return usecase.NewRunner(source, ev, primary, opts...), nil
	}

	cls, err := build(models.TaskClassification, cfg.Output.SummaryPath, classExtra)
	if err != nil {
		return server.Runners{}, err
	}
	reg, err := build(models.TaskRegression, cfg.Output.RegressionSummaryPath, common)
	if err != nil {
		return server.Runners{}, err
	}
	return server.Runners{Classification: cls, Regression: reg}, nil
}

// predsDir keeps classification probabilities apart from regression
// predictions, which share file names.
func predsDir(cfg *config.Config, task models.Task) string {
	if cfg.Output.PredsDir == "" || task == models.TaskRegression {
		return cfg.Output.PredsDir
	}
	return filepath.Join(cfg.Output.PredsDir, "classification")
}

// ProvideBacktest replays the prediction files each runner writes.
func ProvideBacktest(cfg *config.Config, l *applogger.Logger) *usecase.BacktestUseCase {
	sources := make(map[models.Task]domrepo.PredictionSource, 2)
	if cfg.Output.PredsDir != "" {
		for _, task := range []models.Task{models.TaskClassification, models.TaskRegression} {
			sources[task] = repository.NewCSVPredictionSource(predsDir(cfg, task), cfg.Data.Interval, cfg.Backtest.Model)
		}
	}
	writer := repository.NewCSVBacktestWriter(cfg.Backtest.ReportPath, cfg.Backtest.EquityDir, cfg.Data.Interval, l)
	return usecase.NewBacktestUseCase(sources, writer, usecase.BacktestConfig{
		Model:     cfg.Backtest.Model,
		Threshold: cfg.Backtest.Threshold,
		Interval:  cfg.Data.Interval,
	}, l)
}

// ProvideSummaryReader serves the API from Redis when enabled, else from
// the CSV summary, behind an in-process cache.
func ProvideSummaryReader(cfg *config.Config, store *repository.RedisSummaryStore, l *applogger.Logger) domrepo.SummaryReader {
	var base domrepo.SummaryReader = repository.NewCSVSummaryReader(cfg.Output.SummaryPath)
	if store != nil {
		base = store
	}
	r := repository.NewCachedSummaryReader(base, cache.NewMemoryCache(cache.WithMemoryMaxSize(16)), cfg.Server.CacheTTL)
	r.SetLogger(l)
	return r
}

// ProvideHTTPServer creates the Echo server for the summary API.
func ProvideHTTPServer(cfg *config.Config, h *api.SummaryEchoHandler, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(reg, cfg.Metrics.Path))
	}
	return xhttp.NewServer(h, l, opts...)
}

// ProvideClosers collects the clients the app must close.
func ProvideClosers(ch *pkgch.Client, producer *pkgkafka.Producer, rc *cache.RedisCache, l *applogger.Logger) server.Closers {
	var out server.Closers
	for _, c := range []struct {
		ok bool
		c  io.Closer
	}{
		{producer != nil, producer},
		{rc != nil, rc},
		{ch != nil, ch},
		{l != nil, l},
	} {
		if c.ok {
			out = append(out, c.c)
		}
	}
	return out
}

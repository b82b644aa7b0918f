package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/handler/console"
	"FinSignal/internal/usecase"
	"FinSignal/pkg/config"
	xhttp "FinSignal/pkg/http"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/metrics"
)

// Runners holds the batch pipelines.
type Runners struct {
	Classification *usecase.Runner
	Regression     *usecase.Runner
}

// Closers are infrastructure clients released by App.Close.
type Closers []io.Closer

// App encapsulates the application lifecycle: batch runs, the feature
// transform and the summary API.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	recorder   *metrics.Recorder
	runners    Runners
	etl        *usecase.ETLUseCase
	backtest   *usecase.BacktestUseCase
	httpServer *xhttp.Server
	closers    Closers
	out        io.Writer
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	recorder *metrics.Recorder,
	runners Runners,
	etl *usecase.ETLUseCase,
	backtest *usecase.BacktestUseCase,
	httpServer *xhttp.Server,
	closers Closers,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		l:          l,
		recorder:   recorder,
		runners:    runners,
		etl:        etl,
		backtest:   backtest,
		httpServer: httpServer,
		closers:    closers,
		out:        os.Stdout,
	}
}

// SetOutput redirects the console report.
func (a *App) SetOutput(w io.Writer) { a.out = w }

// RunClassification evaluates the universe with the classifier registry.
func (a *App) RunClassification(ctx context.Context) error {
	return a.batch(ctx, "run", a.runners.Classification)
}

// RunRegression evaluates the universe with the regressor registry.
func (a *App) RunRegression(ctx context.Context) error {
	return a.batch(ctx, "regress", a.runners.Regression)
}

func (a *App) batch(ctx context.Context, job string, runner *usecase.Runner) error {
	if runner == nil {
		return fmt.Errorf("%s: runner not configured", job)
	}
	report, err := runner.Run(ctx)
	if report != nil && len(report.Summaries) > 0 && a.cfg.Run.PrintSummary {
		if perr := console.NewReporter(a.out, a.cfg.Run.TopN).Print(report); perr != nil {
			a.l.Warn("print report failed", applogger.Error(perr))
		}
	}
	a.push(context.WithoutCancel(ctx), job)
	if err != nil {
		return fmt.Errorf("%s: %w", job, err)
	}
	return nil
}

// Transform fetches bars and stores feature tables.
func (a *App) Transform(ctx context.Context) error {
	if a.etl == nil {
		return errors.New("transform: etl not configured")
	}
	res, err := a.etl.Run(ctx)
	a.push(context.WithoutCancel(ctx), "transform")
	if err != nil {
		return err
	}
	a.l.Info("transform finished",
		applogger.Int("tickers", len(res.Rows)),
		applogger.Strings("retried", res.Retried),
		applogger.Strings("failed", res.Failed),
	)
	return nil
}

// Backtest replays the stored predictions of a task and prints the result
// table when summaries are printed.
func (a *App) Backtest(ctx context.Context, task models.Task) error {
	if a.backtest == nil {
		return errors.New("backtest: not configured")
	}
	results, err := a.backtest.Run(ctx, task)
	if len(results) > 0 && a.cfg.Run.PrintSummary {
		if perr := console.NewReporter(a.out, a.cfg.Run.TopN).PrintBacktest(results); perr != nil {
			a.l.Warn("print backtest failed", applogger.Error(perr))
		}
	}
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}
	return nil
}

// push sends batch metrics to the Pushgateway when one is configured.
func (a *App) push(ctx context.Context, job string) {
	if a.recorder == nil || !a.cfg.Metrics.Enabled {
		return
	}
	a.recorder.MarkRun()
	if a.cfg.Metrics.Pushgateway == "" {
		return
	}
	if err := a.recorder.Push(ctx, a.cfg.Metrics.Pushgateway, a.cfg.Metrics.Job+"_"+job); err != nil {
		a.l.Warn("metrics push failed", applogger.String("url", a.cfg.Metrics.Pushgateway), applogger.Error(err))
	}
}

// Serve starts the summary API and blocks until interrupted, the context
// ends or the listener fails.
func (a *App) Serve(ctx context.Context) error {
	if a.httpServer == nil {
		return errors.New("serve: http server not configured")
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.httpServer.Start(); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case serveErr = <-a.httpServer.Err():
	}

	if err := a.httpServer.Stop(context.WithoutCancel(ctx)); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}
	return serveErr
}

// Close releases infrastructure clients.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		a.l.Warn("close errors", applogger.Error(errors.Join(errs...)))
	}
	return errors.Join(errs...)
}

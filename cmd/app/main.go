package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"FinSignal/internal/di"
	"FinSignal/internal/domain/models"
	"FinSignal/pkg/config"
	"FinSignal/pkg/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "finsignal: %v\n", err)
		if models.IsConfigError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "finsignal",
		Short:         "Walk-forward probability pipeline for a ticker universe",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	batch := func(use, short string, run func(*server.App, context.Context) error) *cobra.Command {
		var topN int
		var quiet bool
		cmd := &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), configPath, func(cfg *config.Config) {
					if cmd.Flags().Changed("top-n") {
						cfg.Run.TopN = topN
					}
					if quiet {
						cfg.Run.PrintSummary = false
					}
				}, run)
			},
		}
		cmd.Flags().IntVar(&topN, "top-n", 10, "rows per console table (0 prints all)")
		cmd.Flags().BoolVar(&quiet, "quiet", false, "skip the console report")
		return cmd
	}

	root.AddCommand(
		batch("run", "Evaluate the universe with the classifiers and write the probability summary", (*server.App).RunClassification),
		batch("regress", "Evaluate the universe with the regressors and write the metric table", (*server.App).RunRegression),
		&cobra.Command{
			Use:   "transform",
			Short: "Fetch bars, compute features and store one table per ticker",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), configPath, nil, (*server.App).Transform)
			},
		},
		newBacktestCmd(&configPath),
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the latest summary over HTTP",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), configPath, nil, (*server.App).Serve)
			},
		},
	)
	return root
}

func newBacktestCmd(configPath *string) *cobra.Command {
	var (
		task      string
		model     string
		threshold float64
		quiet     bool
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay stored out-of-sample predictions as a long/short strategy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var t models.Task
			switch task {
			case "run", string(models.TaskClassification):
				t = models.TaskClassification
			case "regress", string(models.TaskRegression):
				t = models.TaskRegression
			default:
				return models.ConfigError("unknown task %q: want run or regress", task)
			}
			return withApp(cmd.Context(), *configPath, func(cfg *config.Config) {
				if model != "" {
					cfg.Backtest.Model = model
				}
				if cmd.Flags().Changed("threshold") {
					cfg.Backtest.Threshold = threshold
				}
				if quiet {
					cfg.Run.PrintSummary = false
				}
			}, func(app *server.App, ctx context.Context) error {
				return app.Backtest(ctx, t)
			})
		},
	}
	cmd.Flags().StringVar(&task, "task", "regress", "predictions to replay: run or regress")
	cmd.Flags().StringVar(&model, "model", "", "model column to trade (default from config)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "dead band around the neutral prediction")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "skip the console report")
	return cmd
}

// withApp loads the config, wires the app, runs fn and closes the app.
func withApp(ctx context.Context, path string, adjust func(*config.Config), fn func(*server.App, context.Context) error) error {
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return models.ConfigError("%w", err)
	}
	if adjust != nil {
		adjust(cfg)
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer app.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fn(app, ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

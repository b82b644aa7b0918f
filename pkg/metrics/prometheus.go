package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "finsignal"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	registry  *prometheus.Registry
	windows   *prometheus.CounterVec
	tickers   *prometheus.CounterVec
	errors    *prometheus.CounterVec
	ensemble  *prometheus.GaugeVec
	latency   *prometheus.HistogramVec
	lastRunTS prometheus.Gauge
}

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New creates a recorder whose metrics live in reg.
func New(reg *prometheus.Registry) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		windows: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "windows_total",
				Help:      "Evaluated walk-forward windows by outcome",
			},
			[]string{"ticker", "outcome"},
		),
		tickers: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tickers_total",
				Help:      "Processed tickers by outcome",
			},
			[]string{"outcome"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"kind"},
		),
		ensemble: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ensemble_value",
				Help:      "Latest ensemble output per ticker",
			},
			[]string{"ticker"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"operation"},
		),
		lastRunTS: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last finished run",
		}),
	}
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// RecordWindow counts one window outcome for a ticker.
func (r *Recorder) RecordWindow(ticker, outcome string) {
	r.windows.WithLabelValues(ticker, outcome).Inc()
}

// RecordTicker counts one ticker outcome.
func (r *Recorder) RecordTicker(outcome string) {
	r.tickers.WithLabelValues(outcome).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

// RecordEnsemble records the latest ensemble value for a ticker.
func (r *Recorder) RecordEnsemble(ticker string, value float64) {
	r.ensemble.WithLabelValues(ticker).Set(value)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// MarkRun sets the last run timestamp to now.
func (r *Recorder) MarkRun() {
	r.lastRunTS.SetToCurrentTime()
}

// Push sends the registry to a Pushgateway under job. Batch runs exit before
// a scrape, so this is how their metrics are kept.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

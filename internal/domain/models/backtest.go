package models

import "time"

// EquityPoint is one bar of a backtest: the position held into the bar,
// the realized return and both cumulative curves.
type EquityPoint struct {
	Time      time.Time
	Signal    int
	Return    float64
	Strategy  float64
	Equity    float64
	Benchmark float64
}

// BacktestResult summarizes a long/short replay of one ticker's
// out-of-sample predictions against buy-and-hold.
type BacktestResult struct {
	Ticker      string
	Model       string
	Task        Task
	Bars        int
	Long        int
	Short       int
	TotalReturn float64
	BenchReturn float64
	Sharpe      float64
	MaxDrawdown float64
	HitRate     float64
	Curve       []EquityPoint
}

// PeriodsPerYear is the annualization factor for a bar interval. Hourly
// bars assume 6.5 trading hours a day.
func PeriodsPerYear(interval string) float64 {
	switch interval {
	case "1h":
		return 252 * 6.5
	case "1wk":
		return 52
	case "1mo":
		return 12
	default:
		return 252
	}
}

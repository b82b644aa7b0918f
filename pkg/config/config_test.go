package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestMissingFileYieldsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"SPY", "QQQ", "AAPL", "MSFT"}, c.Data.Tickers)
	assert.Equal(t, "1d", c.Data.Interval)
	assert.Equal(t, "data/raw", c.Data.Dir)
	assert.Equal(t, []int{10, 20, 50}, c.Features.SMA)
	assert.Equal(t, 26, c.Features.MACD.Slow)
	assert.Equal(t, 2.0, c.Features.Bollinger.K)
	assert.True(t, c.Features.Winsorize)
	assert.Equal(t, 200, c.WalkForward.TestSize)
	assert.Equal(t, 5, c.WalkForward.Embargo)
	assert.Equal(t, int64(42), c.Models.Seed)
	assert.Equal(t, "mean", c.Ensemble.Classification)
	assert.Equal(t, "inverse_error", c.Ensemble.Regression)
	assert.Equal(t, 5, c.Log.Keep)
	assert.Equal(t, "*_1d.csv", c.CSVPattern())
	assert.Equal(t, time.Minute, c.ClickHouse.MaxExecutionTime)
	assert.Equal(t, "ensemble", c.Backtest.Model)
	assert.Equal(t, "reports/backtest.csv", c.Backtest.ReportPath)
}

func TestFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
data:
  tickers: [NVDA]
  interval: 1wk
features:
  winsorize: false
  sma: [5]
walk_forward:
  test_size: 50
  embargo: 0
clickhouse:
  max_execution_time: 2m
models:
  classifiers:
    - name: logreg
      kind: logistic
      params: {c: 0.5}
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"NVDA"}, c.Data.Tickers)
	assert.Equal(t, "1wk", c.Data.Interval)
	assert.False(t, c.Features.Winsorize)
	assert.Equal(t, []int{5}, c.Features.SMA)
	assert.Equal(t, 50, c.WalkForward.TestSize)
	assert.Equal(t, 0, c.WalkForward.Embargo)
	require.Len(t, c.Models.Classifiers, 1)
	assert.Equal(t, 0.5, c.Models.Classifiers[0].Params["c"])
	assert.Equal(t, []int{12, 26}, c.Features.EMA)
	assert.Equal(t, 2*time.Minute, c.ClickHouse.MaxExecutionTime)
}

func TestValidationFailures(t *testing.T) {
	cases := map[string]string{
		"test size":   "walk_forward:\n  test_size: 0\n",
		"interval":    "data:\n  interval: 5m\n",
		"model kind":  "models:\n  classifiers:\n    - name: x\n      kind: boosted\n",
		"counted":     "walk_forward:\n  policy: counted\n",
		"duplicate":   "models:\n  classifiers:\n    - {name: a, kind: logistic}\n    - {name: a, kind: random_forest}\n",
		"kafka":       "kafka:\n  enabled: true\n",
		"macd order":  "features:\n  macd: {fast: 30, slow: 26}\n",
		"ensemble":    "ensemble:\n  classification: median\n",
	}
	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("FINSIGNAL_TICKERS", "spy, qqq ,")
	t.Setenv("FINSIGNAL_DATA_DIR", "/tmp/bars")
	t.Setenv("FINSIGNAL_INTERVAL", "1h")
	t.Setenv("FINSIGNAL_LOG_LEVEL", "DEBUG")

	c, err := LoadWithEnv("")
	require.NoError(t, err)
	assert.Equal(t, []string{"spy", "qqq"}, c.Data.Tickers)
	assert.Equal(t, "/tmp/bars", c.Data.Dir)
	assert.Equal(t, "1h", c.Data.Interval)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestParseError(t *testing.T) {
	_, err := Load(writeConfig(t, "data: [unclosed"))
	assert.Error(t, err)
}

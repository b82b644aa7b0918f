package features

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/pkg/logger"
)

// Returns modes.
const (
	ReturnsLog = "log"
	ReturnsPct = "pct"
)

// ReturnColumn is the name of the one-bar return column.
const ReturnColumn = "ret"

// MACD parameters.
type MACD struct {
	Fast   int
	Slow   int
	Signal int
}

// Bollinger parameters.
type Bollinger struct {
	Window int
	K      float64
}

// Options selects the indicators computed by Transform.
type Options struct {
	Returns    string
	SMA        []int
	EMA        []int
	RSI        []int
	MACD       MACD
	Bollinger  Bollinger
	ATR        int
	Lags       []int
	Volatility []int
	// Winsorize clips every column to its 0.1% / 99.9% quantiles.
	Winsorize bool
}

// DefaultOptions mirrors the stock research configuration.
func DefaultOptions() Options {
	return Options{
		Returns:    ReturnsLog,
		SMA:        []int{10, 20, 50},
		EMA:        []int{12, 26},
		RSI:        []int{14},
		MACD:       MACD{Fast: 12, Slow: 26, Signal: 9},
		Bollinger:  Bollinger{Window: 20, K: 2.0},
		ATR:        14,
		Lags:       []int{1, 2, 3, 5},
		Volatility: []int{20},
		Winsorize:  true,
	}
}

const (
	winsorQuantile = 0.001
	winsorMinCount = 100
)

// Transformer computes technical features for OHLCV tables.
type Transformer struct {
	opts   Options
	logger *logger.Logger
}

// NewTransformer creates a transformer. A nil logger disables logging.
func NewTransformer(opts Options, log *logger.Logger) *Transformer {
	return &Transformer{opts: opts, logger: log}
}

// Transform returns a new table holding the OHLCV columns plus the
// configured features. The input table is not modified.
func (tr *Transformer) Transform(t *models.Table) (*models.Table, error) {
	out, err := Transform(t, tr.opts)
	if err != nil {
		return nil, err
	}
	if tr.logger != nil {
		tr.logger.Debug("features computed",
			logger.String("ticker", t.Ticker()),
			logger.Int("rows", out.Len()),
			logger.Int("columns", len(out.Columns())),
		)
	}
	return out, nil
}

// Transform computes features on t with opts.
func Transform(t *models.Table, opts Options) (*models.Table, error) {
	cols := make(map[string][]float64, 5)
	for _, name := range []string{models.ColOpen, models.ColHigh, models.ColLow, models.ColClose, models.ColVolume} {
		c, ok := t.Column(name)
		if !ok {
			return nil, models.DataError(models.StageLoad, "missing required column %q", name)
		}
		cols[name] = c
	}
	closes := cols[models.ColClose]

	b := &builder{t: t}
	var ret []float64
	switch opts.Returns {
	case "", ReturnsLog:
		ret = LogReturns(closes)
	case ReturnsPct:
		ret = PctReturns(closes)
	default:
		return nil, models.ConfigError("unknown returns mode %q", opts.Returns)
	}
	b.add(ReturnColumn, ret)

	for _, w := range opts.SMA {
		b.add(fmt.Sprintf("sma_%d", w), SMA(closes, w))
	}
	for _, w := range opts.EMA {
		b.add(fmt.Sprintf("ema_%d", w), EMA(closes, w))
	}
	for _, p := range opts.RSI {
		b.add(fmt.Sprintf("rsi_%d", p), RSI(closes, p))
	}
	if m := opts.MACD; m.Fast > 0 && m.Slow > 0 && m.Signal > 0 {
		fast, slow := EMA(closes, m.Fast), EMA(closes, m.Slow)
		line := make([]float64, len(closes))
		for i := range line {
			line[i] = fast[i] - slow[i]
		}
		signal := EMA(line, m.Signal)
		hist := make([]float64, len(closes))
		for i := range hist {
			hist[i] = line[i] - signal[i]
		}
		b.add(fmt.Sprintf("macd_%d_%d", m.Fast, m.Slow), line)
		b.add(fmt.Sprintf("macd_signal_%d", m.Signal), signal)
		b.add(fmt.Sprintf("macd_hist_%d_%d_%d", m.Fast, m.Slow, m.Signal), hist)
	}
	if bb := opts.Bollinger; bb.Window > 0 {
		bollinger(b, closes, bb)
	}
	if opts.ATR > 0 {
		tr := TrueRange(cols[models.ColHigh], cols[models.ColLow], closes)
		b.add(fmt.Sprintf("atr_%d", opts.ATR), EMA(tr, opts.ATR))
	}
	for _, k := range opts.Lags {
		b.add(fmt.Sprintf("ret_lag_%d", k), Lag(ret, k))
	}
	if len(opts.Volatility) > 0 {
		bpy := repository.BarsPerYear(repository.NormalizeInterval(t.Interval()))
		for _, w := range opts.Volatility {
			b.add(fmt.Sprintf("vol_%d", w), RealizedVolatility(ret, w, bpy))
		}
	}
	if b.err != nil {
		return nil, b.err
	}

	out := b.t
	for _, name := range out.Columns() {
		c, _ := out.Column(name)
		for i, v := range c {
			if math.IsInf(v, 0) {
				c[i] = math.NaN()
			}
		}
		if opts.Winsorize {
			c = Winsorize(c, winsorQuantile, winsorMinCount)
		}
		var err error
		if out, err = out.WithColumn(name, c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func bollinger(b *builder, closes []float64, bb Bollinger) {
	ma := SMA(closes, bb.Window)
	sd := RollingStd(closes, bb.Window, 0)
	n := len(closes)
	upper, lower := make([]float64, n), make([]float64, n)
	pctB, bw := make([]float64, n), make([]float64, n)
	for i := range closes {
		upper[i] = ma[i] + bb.K*sd[i]
		lower[i] = ma[i] - bb.K*sd[i]
		pctB[i] = (closes[i] - lower[i]) / (upper[i] - lower[i] + 1e-12)
		bw[i] = (upper[i] - lower[i]) / (ma[i] + 1e-12)
	}
	k := formatK(bb.K)
	b.add(fmt.Sprintf("bb_ma_%d", bb.Window), ma)
	b.add(fmt.Sprintf("bb_upper_%d_%s", bb.Window, k), upper)
	b.add(fmt.Sprintf("bb_lower_%d_%s", bb.Window, k), lower)
	b.add(fmt.Sprintf("bb_pctB_%d_%s", bb.Window, k), pctB)
	b.add(fmt.Sprintf("bb_bw_%d_%s", bb.Window, k), bw)
}

// formatK renders a band multiplier with at least one decimal, so 2 is
// "2.0" and 2.5 is "2.5".
func formatK(k float64) string {
	s := strconv.FormatFloat(k, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

type builder struct {
	t   *models.Table
	err error
}

func (b *builder) add(name string, values []float64) {
	if b.err != nil {
		return
	}
	b.t, b.err = b.t.WithColumn(name, values)
}

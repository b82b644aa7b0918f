package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/services/features"
)

type flakyCandles struct {
	mu     sync.Mutex
	calls  map[string]int
	flaky  map[string]bool
	broken map[string]bool
}

func (f *flakyCandles) GetCandles(_ context.Context, ticker string, _ domrepo.Interval) ([]models.Candle, error) {
	f.mu.Lock()
	f.calls[ticker]++
	n := f.calls[ticker]
	f.mu.Unlock()

	if f.broken[ticker] || (f.flaky[ticker] && n == 1) {
		return nil, errors.New("upstream timeout")
	}
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, 0, 31)
	for i := 0; i < 30; i++ {
		px := 100 + float64(i)
		out = append(out, models.Candle{Time: base.AddDate(0, 0, i), Ticker: ticker, Open: px, High: px + 1, Low: px - 1, Close: px, Volume: 1000})
	}
	// A revised bar for day 5 arrives out of order.
	out = append(out, models.Candle{Time: base.AddDate(0, 0, 5), Ticker: ticker, Open: 1, High: 1, Low: 1, Close: 999, Volume: 1})
	return out, nil
}

type memBarStore struct {
	tables map[string]*models.Table
}

func (s *memBarStore) SaveTable(_ context.Context, t *models.Table) (int, error) {
	s.tables[t.Ticker()] = t
	return t.Len(), nil
}

func testTransformer() *features.Transformer {
	return features.NewTransformer(features.Options{Returns: features.ReturnsPct, Lags: []int{1}}, nil)
}

func TestETLRetriesOnce(t *testing.T) {
	src := &flakyCandles{
		calls:  map[string]int{},
		flaky:  map[string]bool{"QQQ": true},
		broken: map[string]bool{"BAD": true},
	}
	store := &memBarStore{tables: map[string]*models.Table{}}
	uc := NewETLUseCase(src, store, testTransformer(), []string{"SPY", "QQQ", "BAD"}, domrepo.Interval1d, nil, nil)

	res, err := uc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"SPY": 30, "QQQ": 30}, res.Rows)
	assert.Equal(t, []string{"QQQ", "BAD"}, res.Retried)
	assert.Equal(t, []string{"BAD"}, res.Failed)
	assert.Equal(t, 1, src.calls["SPY"])
	assert.Equal(t, 2, src.calls["QQQ"])
	assert.Equal(t, 2, src.calls["BAD"])

	spy := store.tables["SPY"]
	require.NotNil(t, spy)
	assert.Equal(t, 999.0, spy.Value(models.ColClose, 5), "the later duplicate bar wins")
	ret, ok := spy.Column(features.ReturnColumn)
	require.True(t, ok)
	assert.True(t, math.IsNaN(ret[0]))
	assert.True(t, spy.HasColumn("ret_lag_1"))
}

func TestETLFailsWhenNothingStored(t *testing.T) {
	src := &flakyCandles{calls: map[string]int{}, broken: map[string]bool{"A": true}}
	uc := NewETLUseCase(src, &memBarStore{tables: map[string]*models.Table{}}, testTransformer(), []string{"A"}, domrepo.Interval1d, nil, nil)

	res, err := uc.Run(context.Background())
	assert.ErrorIs(t, err, models.ErrNoResults)
	require.NotNil(t, res)
	assert.Equal(t, []string{"A"}, res.Failed)
}

func TestETLRejectsInterval(t *testing.T) {
	uc := NewETLUseCase(&flakyCandles{calls: map[string]int{}}, &memBarStore{}, testTransformer(), []string{"A"}, "3d", nil, nil)
	_, err := uc.Run(context.Background())
	assert.True(t, models.IsConfigError(err))
}

func TestCandleTableSource(t *testing.T) {
	src := NewCandleTableSource(&flakyCandles{calls: map[string]int{}}, testTransformer(), []string{"SPY"}, domrepo.Interval1d)

	names, err := src.Tickers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY"}, names)

	tbl, err := src.Load(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, 30, tbl.Len())
	assert.Equal(t, "1d", tbl.Interval())
	assert.True(t, tbl.HasColumn(features.ReturnColumn))
}

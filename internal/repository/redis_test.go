package repository

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	"FinSignal/pkg/cache"
)

func TestRedisSummaryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	store := NewRedisSummaryStore(mc, "summary", time.Hour)

	_, err := store.Summaries(ctx)
	assert.ErrorIs(t, err, models.ErrNoSummary)

	report := classificationReport()
	report.Summaries[0].Outputs[1].Value = math.NaN()
	require.NoError(t, store.Write(ctx, report))

	got, err := store.Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "SPY", got[0].Ticker)
	assert.Equal(t, "QQQ", got[1].Ticker)
	assert.Equal(t, "1d", got[0].Interval)
	assert.Equal(t, day(5), got[0].LastDate)
	assert.Equal(t, 0.6, got[0].Ensemble)
	assert.Equal(t, []string{"logreg", "rf"}, []string{got[0].Outputs[0].Name, got[0].Outputs[1].Name})
	assert.True(t, math.IsNaN(got[0].Outputs[1].Value))

	free, err := mc.TryLock(ctx, "summary:_lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, free)
}

func TestRedisSummaryStoreSingleWriter(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	store := NewRedisSummaryStore(mc, "summary", time.Hour)

	locked, err := mc.TryLock(ctx, "summary:_lock", time.Minute)
	require.NoError(t, err)
	require.True(t, locked)

	assert.ErrorIs(t, store.Write(ctx, classificationReport()), ErrWriterBusy)
}

type countingReader struct {
	calls int
	sums  []models.TickerSummary
}

func (r *countingReader) Summaries(context.Context) ([]models.TickerSummary, error) {
	r.calls++
	return r.sums, nil
}

func TestRedisSummaryStoreRetract(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	store := NewRedisSummaryStore(mc, "summary", time.Hour)

	require.NoError(t, store.Write(ctx, classificationReport()))
	require.NoError(t, store.Retract(ctx, &models.RunReport{RunID: "run-2"}))

	_, err := store.Summaries(ctx)
	assert.ErrorIs(t, err, models.ErrNoSummary)
}

func TestCachedSummaryReader(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()

	next := &countingReader{sums: classificationReport().Summaries}
	r := NewCachedSummaryReader(next, mc, time.Minute)

	first, err := r.Summaries(ctx)
	require.NoError(t, err)
	second, err := r.Summaries(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	require.Len(t, second, 2)
	assert.Equal(t, first[0].Ticker, second[0].Ticker)
	assert.Equal(t, first[0].Ensemble, second[0].Ensemble)

	uncached := NewCachedSummaryReader(next, mc, 0)
	_, err = uncached.Summaries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

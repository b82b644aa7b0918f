package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
)

type fixedReader struct {
	sums []models.TickerSummary
	err  error
}

func (r fixedReader) Summaries(context.Context) ([]models.TickerSummary, error) { return r.sums, r.err }

func summary(ticker string, ens float64) models.TickerSummary {
	return models.TickerSummary{Ticker: ticker, Ensemble: ens, Confidence: math.Abs(ens - 0.5)}
}

func tickers(s []models.TickerSummary) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = v.Ticker
	}
	return out
}

func universe() []models.TickerSummary {
	return []models.TickerSummary{
		summary("SPY", 0.62),
		summary("QQQ", 0.41),
		summary("AAPL", 0.55),
		summary("MSFT", 0.30),
		summary("IWM", 0.55),
	}
}

func TestRankings(t *testing.T) {
	all := universe()

	assert.Equal(t, []string{"SPY", "AAPL"}, tickers(TopUp(all, 2)))
	assert.Equal(t, []string{"MSFT", "QQQ"}, tickers(TopDown(all, 2)))
	assert.Equal(t, []string{"MSFT", "SPY"}, tickers(ByConfidence(all, 2)))

	// Equal values break on ticker.
	assert.Equal(t, []string{"SPY", "AAPL", "IWM", "QQQ", "MSFT"}, tickers(TopUp(all, 0)))
	assert.Equal(t, []string{"MSFT", "QQQ", "AAPL", "IWM", "SPY"}, tickers(TopDown(all, 0)))

	assert.Equal(t, "SPY", all[0].Ticker, "input order is left alone")
}

func TestTopDownSkipsTopUp(t *testing.T) {
	all := []models.TickerSummary{summary("A", 0.9), summary("B", 0.8), summary("C", 0.1)}
	assert.Equal(t, []string{"C"}, tickers(TopDown(all, 2)))
}

func TestGetSummaries(t *testing.T) {
	uc := NewSummaryUseCase(fixedReader{sums: universe()})

	res, err := uc.GetSummaries(context.Background(), GetSummariesParams{TopN: 3})
	require.NoError(t, err)
	assert.Equal(t, OrderConfidence, res.Order)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, "MSFT", res.Summaries[0].Ticker)

	res, err = uc.GetSummaries(context.Background(), GetSummariesParams{Order: OrderDown})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Count)

	_, err = uc.GetSummaries(context.Background(), GetSummariesParams{Order: "sideways"})
	assert.Error(t, err)
	_, err = uc.GetSummaries(context.Background(), GetSummariesParams{TopN: -1})
	assert.Error(t, err)
}

func TestGetTicker(t *testing.T) {
	uc := NewSummaryUseCase(fixedReader{sums: universe()})

	s, err := uc.GetTicker(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", s.Ticker)

	_, err = uc.GetTicker(context.Background(), "TSLA")
	assert.ErrorIs(t, err, ErrTickerNotFound)

	boom := errors.New("redis down")
	_, err = NewSummaryUseCase(fixedReader{err: boom}).GetTicker(context.Background(), "SPY")
	assert.ErrorIs(t, err, boom)
}

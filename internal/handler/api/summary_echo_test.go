package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/usecase"
	xhttp "FinSignal/pkg/http"
)

type staticReader struct {
	sums []models.TickerSummary
	err  error
}

func (r staticReader) Summaries(context.Context) ([]models.TickerSummary, error) {
	return r.sums, r.err
}

func summaries() []models.TickerSummary {
	last := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	mk := func(ticker string, p float64) models.TickerSummary {
		return models.SummaryFromResult(models.TaskClassification, "1d", models.WindowResult{
			Ticker:    ticker,
			Timestamp: last,
			Outputs:   []models.ModelOutput{{Name: "logreg", Value: p}},
			Ensemble:  p,
			Label:     models.DirectionLabel(p),
		}, 4, 0)
	}
	return []models.TickerSummary{mk("SPY", 0.62), mk("QQQ", 0.41), mk("AAPL", 0.55), mk("MSFT", 0.30)}
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func serve(t *testing.T, reader staticReader, target string) (int, envelope) {
	t.Helper()
	h := NewSummaryEchoHandler(nil, usecase.NewSummaryUseCase(reader))
	srv := xhttp.NewServer(h, nil)

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestSummaryDefaultsToConfidenceOrder(t *testing.T) {
	code, env := serve(t, staticReader{sums: summaries()}, "/api/summary")
	require.Equal(t, http.StatusOK, code)

	var got summaryListDTO
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "confidence", got.Order)
	assert.Equal(t, 4, got.Total)
	require.Equal(t, 4, got.Count)
	assert.Equal(t, "MSFT", got.Summaries[0].Ticker)
	assert.Equal(t, "SPY", got.Summaries[1].Ticker)
	assert.Equal(t, "DOWN", got.Summaries[0].Label)
}

func TestSummaryTopUpAndDown(t *testing.T) {
	_, env := serve(t, staticReader{sums: summaries()}, "/api/summary?order=up&top_n=2")
	var up summaryListDTO
	require.NoError(t, json.Unmarshal(env.Data, &up))
	require.Len(t, up.Summaries, 2)
	assert.Equal(t, []string{"SPY", "AAPL"}, []string{up.Summaries[0].Ticker, up.Summaries[1].Ticker})

	_, env = serve(t, staticReader{sums: summaries()}, "/api/summary?order=down&top_n=2")
	var down summaryListDTO
	require.NoError(t, json.Unmarshal(env.Data, &down))
	require.Len(t, down.Summaries, 2)
	assert.Equal(t, []string{"MSFT", "QQQ"}, []string{down.Summaries[0].Ticker, down.Summaries[1].Ticker})
}

func TestSummaryRejectsBadQuery(t *testing.T) {
	code, env := serve(t, staticReader{sums: summaries()}, "/api/summary?order=sideways")
	assert.Equal(t, http.StatusBadRequest, code)

	var errs []xhttp.ValidationError
	require.NoError(t, json.Unmarshal(env.Data, &errs))
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_ONEOF", errs[0].Code)
	assert.Equal(t, "order", errs[0].Field)

	code, _ = serve(t, staticReader{sums: summaries()}, "/api/summary?top_n=-1")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTickerLookup(t *testing.T) {
	code, env := serve(t, staticReader{sums: summaries()}, "/api/summary/spy")
	require.Equal(t, http.StatusOK, code)
	var got summaryDTO
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "SPY", got.Ticker)
	require.NotNil(t, got.Ensemble)
	assert.Equal(t, 0.62, *got.Ensemble)

	code, _ = serve(t, staticReader{sums: summaries()}, "/api/summary/TSLA")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSummaryBeforeFirstRun(t *testing.T) {
	code, _ := serve(t, staticReader{err: models.ErrNoSummary}, "/api/summary")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestHealth(t *testing.T) {
	code, _ := serve(t, staticReader{}, "/health")
	assert.Equal(t, http.StatusOK, code)
}

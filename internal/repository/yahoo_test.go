package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
)

const chartBody = `{"chart":{"result":[{"timestamp":[1704205800,1704292200,1704378600],
"indicators":{"quote":[{"open":[1,null,3],"high":[2,2,4],"low":[0.5,1,2],"close":[1.5,1.8,3.5],"volume":[100,200,null]}]}}],"error":null}}`

func newTestYahoo(t *testing.T, url string, retries int) (*YahooCandleSource, *[]time.Duration) {
	t.Helper()
	src, err := NewYahooCandleSource(YahooConfig{
		BaseURL:    url,
		From:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Retries:    retries,
		Backoff:    time.Second,
		Timeout:    5 * time.Second,
		RatePerSec: 1000,
	})
	require.NoError(t, err)
	var slept []time.Duration
	src.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	src.now = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }
	return src, &slept
}

func TestYahooCandleSourceParsesChart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/SPY", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.Equal(t, "1704067200", r.URL.Query().Get("period1"))
		assert.Equal(t, "1706745600", r.URL.Query().Get("period2"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		fmt.Fprint(w, chartBody)
	}))
	defer srv.Close()

	src, slept := newTestYahoo(t, srv.URL, 3)
	got, err := src.GetCandles(context.Background(), "SPY", domrepo.Interval1d)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day(2), got[0].Time)
	assert.Equal(t, day(4), got[1].Time)
	assert.Equal(t, 3.5, got[1].Close)
	assert.Equal(t, 0.0, got[1].Volume)
	assert.Empty(t, *slept)
}

func TestYahooCandleSourceRetriesWithBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, chartBody)
	}))
	defer srv.Close()

	src, slept := newTestYahoo(t, srv.URL, 3)
	got, err := src.GetCandles(context.Background(), "SPY", domrepo.Interval1d)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestYahooCandleSourceFallsBackToFullHistory(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("period1") != "0" {
			fmt.Fprint(w, `{"chart":{"result":[],"error":null}}`)
			return
		}
		fmt.Fprint(w, chartBody)
	}))
	defer srv.Close()

	src, _ := newTestYahoo(t, srv.URL, 2)
	got, err := src.GetCandles(context.Background(), "SPY", domrepo.Interval1d)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestYahooCandleSourceGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	src, slept := newTestYahoo(t, srv.URL, 3)
	_, err := src.GetCandles(context.Background(), "SPY", domrepo.Interval1d)
	require.Error(t, err)
	assert.Equal(t, models.KindData, dataKind(err))
	assert.Empty(t, *slept)
}

func TestYahooBadBaseURL(t *testing.T) {
	_, err := NewYahooCandleSource(YahooConfig{BaseURL: "::"})
	assert.Error(t, err)
}

package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSONMergesQuery(t *testing.T) {
	var gotQuery url.Values
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery, gotUA = r.URL.Query(), r.UserAgent()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"SPY","close":[1.5,2.5]}`))
	}))
	defer srv.Close()

	c := NewClient(WithUserAgent("finsignal-test"))
	var out struct {
		Symbol string    `json:"symbol"`
		Close  []float64 `json:"close"`
	}
	err := c.GetJSON(context.Background(), srv.URL+"/chart/SPY?events=div", url.Values{"interval": {"1d"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "SPY", out.Symbol)
	assert.Equal(t, []float64{1.5, 2.5}, out.Close)
	assert.Equal(t, "div", gotQuery.Get("events"))
	assert.Equal(t, "1d", gotQuery.Get("interval"))
	assert.Equal(t, "finsignal-test", gotUA)
}

func TestGetJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient()
	err := c.GetJSON(context.Background(), srv.URL, nil, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Equal(t, "slow down", se.Body)
	assert.True(t, se.Retryable())

	err = c.GetJSON(context.Background(), srv.URL+"/missing", nil, nil)
	require.True(t, errors.As(err, &se))
	assert.False(t, se.Retryable())
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/service/ratelimit"
	pkghttp "FinSignal/pkg/http"
	applogger "FinSignal/pkg/logger"
)

// YahooConfig configures the chart API candle source.
type YahooConfig struct {
	BaseURL    string
	From       time.Time
	Retries    int
	Backoff    time.Duration
	Timeout    time.Duration
	RatePerSec float64
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

var errNoBars = errors.New("no bars returned")

// YahooCandleSource downloads daily or intraday bars from the Yahoo Finance
// chart API.
type YahooCandleSource struct {
	cfg     YahooConfig
	client  *pkghttp.Client
	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
	host    string
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	l       *applogger.Logger
}

func NewYahooCandleSource(cfg YahooConfig) (*YahooCandleSource, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" {
		return nil, models.ConfigError("bad fetch base url %q", cfg.BaseURL)
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	st := gobreaker.Settings{Name: "yahoo-chart"}
	st.Timeout = time.Minute
	st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 5 }
	// A ticker without data is not an upstream failure.
	st.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, errNoBars) }

	return &YahooCandleSource{
		cfg:     cfg,
		client:  pkghttp.NewClient(pkghttp.WithTimeout(cfg.Timeout), pkghttp.WithUserAgent("Mozilla/5.0 (finsignal)")),
		limiter: ratelimit.New(cfg.RatePerSec, 1),
		breaker: gobreaker.NewCircuitBreaker(st),
		host:    u.Host,
		now:     time.Now,
		sleep:   sleepCtx,
	}, nil
}

// SetLogger injects a structured logger.
func (s *YahooCandleSource) SetLogger(l *applogger.Logger) { s.l = l }

// GetCandles fetches bars since the configured start date. Each failed or
// empty attempt is retried after backoff·2^i; when all attempts fail the full
// history is requested once.
func (s *YahooCandleSource) GetCandles(ctx context.Context, ticker string, iv domrepo.Interval) ([]models.Candle, error) {
	var lastErr error
	for i := 0; i < s.cfg.Retries; i++ {
		candles, err := s.fetch(ctx, ticker, iv, s.cfg.From)
		if err == nil {
			return candles, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			break
		}
		if s.l != nil {
			s.l.Warn("yahoo fetch failed",
				applogger.String("ticker", ticker),
				applogger.Int("attempt", i+1),
				applogger.Error(err),
			)
		}
		if i+1 < s.cfg.Retries {
			if err := s.sleep(ctx, s.cfg.Backoff*time.Duration(1<<i)); err != nil {
				return nil, err
			}
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	candles, err := s.fetch(ctx, ticker, iv, time.Time{})
	if err != nil {
		return nil, models.DataError(models.StageLoad, "fetch %s: %v", ticker, errors.Join(lastErr, err))
	}
	return candles, nil
}

func (s *YahooCandleSource) fetch(ctx context.Context, ticker string, iv domrepo.Interval, from time.Time) ([]models.Candle, error) {
	if err := s.limiter.Wait(ctx, s.host); err != nil {
		return nil, err
	}
	period1 := int64(0)
	if !from.IsZero() {
		period1 = from.Unix()
	}
	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/v8/finance/chart/" + url.PathEscape(ticker)
	query := url.Values{
		"period1":        {strconv.FormatInt(period1, 10)},
		"period2":        {strconv.FormatInt(s.now().Unix(), 10)},
		"interval":       {string(iv)},
		"includePrePost": {"false"},
		"events":         {"div,splits"},
	}
	out, err := s.breaker.Execute(func() (interface{}, error) {
		var resp chartResponse
		if err := s.client.GetJSON(ctx, endpoint, query, &resp); err != nil {
			return nil, err
		}
		return parseChart(ticker, iv, &resp)
	})
	if err != nil {
		return nil, err
	}
	return out.([]models.Candle), nil
}

func parseChart(ticker string, iv domrepo.Interval, resp *chartResponse) ([]models.Candle, error) {
	if e := resp.Chart.Error; e != nil {
		return nil, fmt.Errorf("%w: %s: %s", errNoBars, e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, errNoBars
	}
	res := resp.Chart.Result[0]
	q := res.Indicators.Quote[0]
	n := len(res.Timestamp)
	if len(q.Open) != n || len(q.High) != n || len(q.Low) != n || len(q.Close) != n {
		return nil, fmt.Errorf("chart arrays have mismatched lengths")
	}
	out := make([]models.Candle, 0, n)
	for i, ts := range res.Timestamp {
		if q.Open[i] == nil || q.High[i] == nil || q.Low[i] == nil || q.Close[i] == nil {
			continue
		}
		t := time.Unix(ts, 0).UTC()
		if iv != domrepo.Interval1h {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
		c := models.Candle{
			Time:   t,
			Ticker: ticker,
			Open:   *q.Open[i],
			High:   *q.High[i],
			Low:    *q.Low[i],
			Close:  *q.Close[i],
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			c.Volume = *q.Volume[i]
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, errNoBars
	}
	return out, nil
}

func retryable(err error) bool {
	var se *pkghttp.StatusError
	if errors.As(err, &se) {
		return se.Retryable() || se.Code == 404
	}
	return !errors.Is(err, gobreaker.ErrOpenState)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

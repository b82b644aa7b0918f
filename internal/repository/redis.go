package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"FinSignal/internal/domain/models"
	"FinSignal/pkg/cache"
	applogger "FinSignal/pkg/logger"
)

const (
	indexKey = "_index"
	lockKey  = "_lock"
	lockTTL  = 30 * time.Second
)

// ErrWriterBusy is returned when another run holds the store's write lock.
var ErrWriterBusy = errors.New("summary store is locked by another writer")

// storedSummary mirrors TickerSummary with nullable numbers so undefined
// values survive JSON.
type storedSummary struct {
	Ticker     string              `json:"ticker"`
	Interval   string              `json:"interval"`
	LastDate   time.Time           `json:"last_date"`
	Names      []string            `json:"models"`
	Outputs    map[string]*float64 `json:"outputs"`
	Ensemble   *float64            `json:"ensemble"`
	Label      string              `json:"label,omitempty"`
	Confidence *float64            `json:"confidence"`
	Windows    int                 `json:"windows"`
	Abstained  int                 `json:"abstained"`
}

// RedisSummaryStore keeps the latest summary per ticker plus an ordered
// ticker index. It is both a result sink and the API's summary reader.
type RedisSummaryStore struct {
	cache  cache.Service
	prefix string
	ttl    time.Duration
	l      *applogger.Logger
}

func NewRedisSummaryStore(c cache.Service, prefix string, ttl time.Duration) *RedisSummaryStore {
	return &RedisSummaryStore{cache: c, prefix: prefix, ttl: ttl}
}

// SetLogger injects a structured logger.
func (s *RedisSummaryStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *RedisSummaryStore) Name() string { return "redis" }

func (s *RedisSummaryStore) key(id string) string { return cache.JoinKey(s.prefix, id) }

func (s *RedisSummaryStore) Write(ctx context.Context, report *models.RunReport) error {
	ok, err := s.cache.TryLock(ctx, s.key(lockKey), lockTTL)
	if err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if !ok {
		return ErrWriterBusy
	}
	defer func() {
		if err := s.cache.Unlock(context.WithoutCancel(ctx), s.key(lockKey)); err != nil && s.l != nil {
			s.l.Warn("release summary lock failed", applogger.Error(err))
		}
	}()

	values := make(map[string]interface{}, len(report.Summaries)+1)
	index := make([]string, 0, len(report.Summaries))
	for _, sm := range report.Summaries {
		values[s.key(sm.Ticker)] = toStored(report.Interval, sm)
		index = append(index, sm.Ticker)
	}
	values[s.key(indexKey)] = index
	if err := s.cache.MSet(ctx, values, s.ttl); err != nil {
		return fmt.Errorf("store summaries: %w", err)
	}
	if s.l != nil {
		s.l.Info("summaries cached",
			applogger.String("run_id", report.RunID),
			applogger.Int("tickers", len(index)),
		)
	}
	return nil
}

// Retract drops the ticker index, so readers see no summary until the next
// successful run.
func (s *RedisSummaryStore) Retract(ctx context.Context, report *models.RunReport) error {
	if err := s.cache.Delete(ctx, s.key(indexKey)); err != nil {
		return fmt.Errorf("retract summary index: %w", err)
	}
	if s.l != nil {
		s.l.Warn("cached summaries retracted", applogger.String("run_id", report.RunID))
	}
	return nil
}

// Summaries returns the stored summaries in the order of the last run.
func (s *RedisSummaryStore) Summaries(ctx context.Context) ([]models.TickerSummary, error) {
	var index []string
	if err := s.cache.Get(ctx, s.key(indexKey), &index); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, models.ErrNoSummary
		}
		return nil, fmt.Errorf("read summary index: %w", err)
	}
	keys := make([]string, len(index))
	for i, t := range index {
		keys[i] = s.key(t)
	}
	stored, err := cache.MGetTyped[storedSummary](ctx, s.cache, keys...)
	if err != nil {
		return nil, fmt.Errorf("read summaries: %w", err)
	}
	out := make([]models.TickerSummary, 0, len(index))
	for _, k := range keys {
		if st, ok := stored[k]; ok {
			out = append(out, fromStored(st))
		}
	}
	return out, nil
}

func toStored(interval string, sm models.TickerSummary) storedSummary {
	st := storedSummary{
		Ticker:     sm.Ticker,
		Interval:   interval,
		LastDate:   sm.LastDate.UTC(),
		Names:      make([]string, len(sm.Outputs)),
		Outputs:    make(map[string]*float64, len(sm.Outputs)),
		Ensemble:   nullable(sm.Ensemble),
		Label:      sm.Label,
		Confidence: nullable(sm.Confidence),
		Windows:    sm.Windows,
		Abstained:  sm.Abstained,
	}
	for i, o := range sm.Outputs {
		st.Names[i] = o.Name
		st.Outputs[o.Name] = nullable(o.Value)
	}
	return st
}

func fromStored(st storedSummary) models.TickerSummary {
	sm := models.TickerSummary{
		Ticker:     st.Ticker,
		Interval:   st.Interval,
		LastDate:   st.LastDate,
		Ensemble:   deref(st.Ensemble),
		Label:      st.Label,
		Confidence: deref(st.Confidence),
		Windows:    st.Windows,
		Abstained:  st.Abstained,
	}
	for _, name := range st.Names {
		sm.Outputs = append(sm.Outputs, models.ModelOutput{Name: name, Value: deref(st.Outputs[name])})
	}
	return sm
}

func deref(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

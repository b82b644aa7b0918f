package repository

import (
	"context"
	"errors"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/pkg/cache"
	applogger "FinSignal/pkg/logger"
)

const cachedSummariesKey = "summaries:latest"

// CachedSummaryReader serves summaries from a cache for ttl before reading
// through to the wrapped reader.
type CachedSummaryReader struct {
	next  domrepo.SummaryReader
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

func NewCachedSummaryReader(next domrepo.SummaryReader, c cache.Service, ttl time.Duration) *CachedSummaryReader {
	return &CachedSummaryReader{next: next, cache: c, ttl: ttl}
}

// SetLogger injects a structured logger.
func (r *CachedSummaryReader) SetLogger(l *applogger.Logger) { r.l = l }

func (r *CachedSummaryReader) Summaries(ctx context.Context) ([]models.TickerSummary, error) {
	if r.ttl <= 0 {
		return r.next.Summaries(ctx)
	}
	var stored []storedSummary
	err := r.cache.Get(ctx, cachedSummariesKey, &stored)
	if err == nil {
		out := make([]models.TickerSummary, len(stored))
		for i, st := range stored {
			out[i] = fromStored(st)
		}
		return out, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) && r.l != nil {
		r.l.Warn("summary cache read failed", applogger.Error(err))
	}

	sums, err := r.next.Summaries(ctx)
	if err != nil {
		return nil, err
	}
	stored = make([]storedSummary, len(sums))
	for i, sm := range sums {
		stored[i] = toStored(sm.Interval, sm)
	}
	if err := r.cache.Set(ctx, cachedSummariesKey, stored, r.ttl); err != nil && r.l != nil {
		r.l.Warn("summary cache write failed", applogger.Error(err))
	}
	return sums, nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
)

// Summary orders.
const (
	OrderConfidence = "confidence"
	OrderUp         = "up"
	OrderDown       = "down"
)

// ErrTickerNotFound is returned for a ticker absent from the summary.
var ErrTickerNotFound = errors.New("ticker not found in summary")

// SummaryUseCase serves the latest summary artifact.
type SummaryUseCase struct {
	reader domrepo.SummaryReader
}

func NewSummaryUseCase(reader domrepo.SummaryReader) *SummaryUseCase {
	return &SummaryUseCase{reader: reader}
}

type GetSummariesParams struct {
	TopN  int
	Order string
}

type GetSummariesResult struct {
	Order     string                 `json:"order"`
	Total     int                    `json:"total"`
	Count     int                    `json:"count"`
	Summaries []models.TickerSummary `json:"summaries"`
}

func (uc *SummaryUseCase) GetSummaries(ctx context.Context, p GetSummariesParams) (*GetSummariesResult, error) {
	if p.TopN < 0 {
		return nil, fmt.Errorf("top_n must be >= 0")
	}
	if p.Order == "" {
		p.Order = OrderConfidence
	}

	all, err := uc.reader.Summaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("read summaries: %w", err)
	}

	var rows []models.TickerSummary
	switch p.Order {
	case OrderConfidence:
		rows = ByConfidence(all, p.TopN)
	case OrderUp:
		rows = TopUp(all, p.TopN)
	case OrderDown:
		rows = TopDown(all, p.TopN)
	default:
		return nil, fmt.Errorf("unknown order %q", p.Order)
	}

	return &GetSummariesResult{
		Order:     p.Order,
		Total:     len(all),
		Count:     len(rows),
		Summaries: rows,
	}, nil
}

func (uc *SummaryUseCase) GetTicker(ctx context.Context, ticker string) (*models.TickerSummary, error) {
	all, err := uc.reader.Summaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("read summaries: %w", err)
	}
	for _, s := range all {
		if strings.EqualFold(s.Ticker, ticker) {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTickerNotFound, ticker)
}

// ByConfidence returns the n most confident summaries; n = 0 keeps all.
func ByConfidence(all []models.TickerSummary, n int) []models.TickerSummary {
	out := clone(all)
	SortSummaries(out)
	return head(out, n)
}

// TopUp returns the n summaries with the highest ensemble value.
func TopUp(all []models.TickerSummary, n int) []models.TickerSummary {
	out := clone(all)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Ensemble != out[j].Ensemble {
			return out[i].Ensemble > out[j].Ensemble
		}
		return out[i].Ticker < out[j].Ticker
	})
	return head(out, n)
}

// TopDown returns the n summaries with the lowest ensemble value, leaving
// out the tickers already selected by TopUp.
func TopDown(all []models.TickerSummary, n int) []models.TickerSummary {
	up := make(map[string]bool)
	if n > 0 {
		for _, s := range TopUp(all, n) {
			up[s.Ticker] = true
		}
	}
	out := make([]models.TickerSummary, 0, len(all))
	for _, s := range all {
		if !up[s.Ticker] {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Ensemble != out[j].Ensemble {
			return out[i].Ensemble < out[j].Ensemble
		}
		return out[i].Ticker < out[j].Ticker
	})
	return head(out, n)
}

func clone(s []models.TickerSummary) []models.TickerSummary {
	out := make([]models.TickerSummary, len(s))
	copy(out, s)
	return out
}

func head(s []models.TickerSummary, n int) []models.TickerSummary {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

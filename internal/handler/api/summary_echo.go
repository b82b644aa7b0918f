package api

import (
	"errors"
	"math"
	"time"

	"github.com/labstack/echo/v4"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/usecase"
	xhttp "FinSignal/pkg/http"
	xlogger "FinSignal/pkg/logger"
)

// SummaryEchoHandler serves the latest run summary over HTTP.
type SummaryEchoHandler struct {
	logger *xlogger.Logger
	uc     *usecase.SummaryUseCase
}

func NewSummaryEchoHandler(logger *xlogger.Logger, uc *usecase.SummaryUseCase) *SummaryEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &SummaryEchoHandler{logger: logger, uc: uc}
}

func (h *SummaryEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/api")
	g.GET("/summary", h.Summary)
	g.GET("/summary/:ticker", h.Ticker)
}

type outputDTO struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

type summaryDTO struct {
	Ticker     string      `json:"ticker"`
	Interval   string      `json:"interval,omitempty"`
	LastDate   time.Time   `json:"last_date"`
	Outputs    []outputDTO `json:"outputs"`
	Ensemble   *float64    `json:"ensemble"`
	Label      string      `json:"pred,omitempty"`
	Confidence *float64    `json:"confidence"`
	Windows    int         `json:"windows"`
	Abstained  int         `json:"abstained"`
}

type summaryListDTO struct {
	Order     string       `json:"order"`
	Total     int          `json:"total"`
	Count     int          `json:"count"`
	Summaries []summaryDTO `json:"summaries"`
}

func (h *SummaryEchoHandler) Health(c echo.Context) error {
	return xhttp.OK(c, map[string]string{"status": "ok"})
}

func (h *SummaryEchoHandler) Summary(c echo.Context) error {
	req := &models.SummaryRequest{}
	if errs := xhttp.BindRequest(c, req); errs != nil {
		return xhttp.Invalid(c, errs)
	}

	res, err := h.uc.GetSummaries(c.Request().Context(), usecase.GetSummariesParams{TopN: req.TopN, Order: req.Order})
	if err != nil {
		return h.fail(c, "summary usecase error", err)
	}
	out := summaryListDTO{Order: res.Order, Total: res.Total, Count: res.Count, Summaries: make([]summaryDTO, len(res.Summaries))}
	for i, s := range res.Summaries {
		out.Summaries[i] = toDTO(s)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.OK(c, out)
}

func (h *SummaryEchoHandler) Ticker(c echo.Context) error {
	req := &models.TickerSummaryRequest{}
	if errs := xhttp.BindRequest(c, req); errs != nil {
		return xhttp.Invalid(c, errs)
	}

	s, err := h.uc.GetTicker(c.Request().Context(), req.Ticker)
	if err != nil {
		return h.fail(c, "ticker usecase error", err)
	}
	return xhttp.OK(c, toDTO(*s))
}

func (h *SummaryEchoHandler) fail(c echo.Context, msg string, err error) error {
	switch {
	case errors.Is(err, usecase.ErrTickerNotFound):
		return xhttp.Fail(c, xhttp.NotFound("%s", err.Error()))
	case errors.Is(err, models.ErrNoSummary):
		return xhttp.Fail(c, xhttp.Unavailable("no summary available yet"))
	}
	h.logger.Error(msg, xlogger.String("path", c.Path()), xlogger.Error(err))
	return xhttp.Fail(c, xhttp.Internal(err, "failed to read summary"))
}

func toDTO(s models.TickerSummary) summaryDTO {
	d := summaryDTO{
		Ticker:     s.Ticker,
		Interval:   s.Interval,
		LastDate:   s.LastDate,
		Outputs:    make([]outputDTO, len(s.Outputs)),
		Ensemble:   finite(s.Ensemble),
		Label:      s.Label,
		Confidence: finite(s.Confidence),
		Windows:    s.Windows,
		Abstained:  s.Abstained,
	}
	for i, o := range s.Outputs {
		d.Outputs[i] = outputDTO{Name: o.Name, Value: finite(o.Value)}
	}
	return d
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

var _ xhttp.Handler = (*SummaryEchoHandler)(nil)

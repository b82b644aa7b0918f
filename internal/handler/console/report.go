package console

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/usecase"
)

const (
	ansiBold  = "\033[1m"
	ansiGreen = "\033[32m"
	ansiRed   = "\033[31m"
	ansiReset = "\033[0m"
)

// ColorEnabled reports whether w is a terminal and NO_COLOR is unset.
func ColorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Reporter prints the top-N tables of a finished run.
type Reporter struct {
	w     io.Writer
	topN  int
	color bool
}

func NewReporter(w io.Writer, topN int) *Reporter {
	return &Reporter{w: w, topN: topN, color: ColorEnabled(w)}
}

// WithColor forces colour on or off.
func (r *Reporter) WithColor(on bool) *Reporter {
	r.color = on
	return r
}

// Print writes the bullish, bearish and by-confidence tables. Regression
// runs also get the per-model error table.
func (r *Reporter) Print(report *models.RunReport) error {
	if report == nil || len(report.Summaries) == 0 {
		_, err := fmt.Fprintln(r.w, "no results")
		return err
	}
	n := r.topN
	label := "ALL"
	if n > 0 {
		label = fmt.Sprintf("TOP-%d", n)
	}

	if report.Task == models.TaskRegression {
		r.title("%s ESTIMATES by confidence", label)
		if err := r.table(report, usecase.ByConfidence(report.Summaries, n)); err != nil {
			return err
		}
		r.title("MODEL ERRORS across splits")
		return r.scores(usecase.ScoreModels(report.Metrics))
	}

	r.title("%s BULLISH by PROBA_UP (ENS)", label)
	if err := r.table(report, usecase.TopUp(report.Summaries, n)); err != nil {
		return err
	}
	r.title("%s BEARISH by PROBA_UP (ENS)", label)
	if err := r.table(report, usecase.TopDown(report.Summaries, n)); err != nil {
		return err
	}
	r.title("PROBA_UP by confidence")
	return r.table(report, usecase.ByConfidence(report.Summaries, n))
}

func (r *Reporter) title(format string, a ...interface{}) {
	s := "=== " + fmt.Sprintf(format, a...) + " ==="
	if r.color {
		s = ansiBold + s + ansiReset
	}
	fmt.Fprintf(r.w, "\n%s\n", s)
}

func (r *Reporter) table(report *models.RunReport, rows []models.TickerSummary) error {
	regression := report.Task == models.TaskRegression
	w := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)

	head := []string{"TICKER", "DATE"}
	for _, m := range report.Models {
		if regression {
			head = append(head, "PRED ("+strings.ToUpper(m)+")")
		} else {
			head = append(head, "PROBA_UP ("+strings.ToUpper(m)+")")
		}
	}
	if regression {
		head = append(head, "ENS")
	} else {
		head = append(head, "PROBA_UP (ENS)", "PRED")
	}
	fmt.Fprintln(w, strings.Join(head, "\t"))

	for _, s := range rows {
		cells := []string{s.Ticker, s.LastDate.UTC().Format("2006-01-02")}
		for _, m := range report.Models {
			v, _ := s.Output(m)
			cells = append(cells, r.value(regression, v))
		}
		cells = append(cells, r.value(regression, s.Ensemble))
		if !regression {
			cells = append(cells, r.label(s.Label))
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return w.Flush()
}

func (r *Reporter) scores(scores []usecase.ModelScore) error {
	w := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tSPLITS\tRMSE\tMAE\tDIR_ACC")
	for _, s := range scores {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", s.Model, s.Splits, num(s.RMSE), num(s.MAE), pct(s.DirAcc))
	}
	return w.Flush()
}

// PrintBacktest writes one row per ticker of a long/short replay.
func (r *Reporter) PrintBacktest(results []models.BacktestResult) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(r.w, "no results")
		return err
	}
	r.title("BACKTEST %s (%s)", strings.ToUpper(results[0].Model), results[0].Task)
	w := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TICKER\tBARS\tLONG\tSHORT\tRETURN\tBENCH\tSHARPE\tMAX_DD\tHIT")
	for _, b := range results {
		sharpe := "-"
		if !math.IsNaN(b.Sharpe) {
			sharpe = fmt.Sprintf("%.2f", b.Sharpe)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			b.Ticker, b.Bars, b.Long, b.Short,
			r.signed(b.TotalReturn), pct(b.BenchReturn), sharpe, pct(b.MaxDrawdown), pct(b.HitRate))
	}
	return w.Flush()
}

func (r *Reporter) signed(v float64) string {
	s := pct(v)
	if !r.color || math.IsNaN(v) {
		return s
	}
	if v >= 0 {
		return ansiGreen + s + ansiReset
	}
	return ansiRed + s + ansiReset
}

func (r *Reporter) value(regression bool, v float64) string {
	if regression {
		if math.IsNaN(v) {
			return "-"
		}
		return fmt.Sprintf("%+.4f", v)
	}
	return pct(v)
}

func (r *Reporter) label(l string) string {
	if !r.color {
		return l
	}
	switch l {
	case models.LabelUp:
		return ansiGreen + l + ansiReset
	case models.LabelDown:
		return ansiRed + l + ansiReset
	}
	return l
}

func pct(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%5.1f%%", v*100)
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.6f", v)
}

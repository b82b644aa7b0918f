package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"FinSignal/internal/domain/models"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/util"
)

// Summary and trace column names.
const (
	colTicker     = "ticker"
	colLastDate   = "last_date"
	colLabel      = "pred"
	colConfidence = "confidence"
	colWindows    = "windows"
	colAbstained  = "abstained"
	colProbaEns   = "proba_ens"
	colEns        = "ens"
	probaPrefix   = "proba_"
	predPrefix    = "pred_"
)

// CSVPaths locates the artifacts of a run. Empty directories disable the
// corresponding files. Interval scopes trace and prediction files when a
// report carries none.
type CSVPaths struct {
	Summary  string
	TraceDir string
	Metrics  string
	PredsDir string
	Interval string
}

// CSVSink writes the summary, traces, regression metrics and prediction files
// of a run.
type CSVSink struct {
	paths CSVPaths
	l     *applogger.Logger
}

func NewCSVSink(paths CSVPaths) *CSVSink {
	return &CSVSink{paths: paths}
}

// SetLogger injects a structured logger.
func (s *CSVSink) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) Write(ctx context.Context, report *models.RunReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	header, rows := summaryRecords(report)
	if err := writeCSV(s.paths.Summary, header, rows); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	interval := s.interval(report)
	written := make(map[string]bool)
	traces := 0
	if s.paths.TraceDir != "" {
		for _, ticker := range report.TraceTickers() {
			path := filepath.Join(s.paths.TraceDir, fmt.Sprintf("%s_%s_trace.csv", ticker, interval))
			h, r := traceRecords(report, report.Traces[ticker])
			if err := writeCSV(path, h, r); err != nil {
				return fmt.Errorf("write trace %s: %w", ticker, err)
			}
			written[path] = true
			traces++
		}
	}

	if report.Task == models.TaskRegression && s.paths.Metrics != "" {
		h, r := metricRecords(report.Metrics)
		if err := writeCSV(s.paths.Metrics, h, r); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	if s.paths.PredsDir != "" {
		for _, p := range report.Predictions {
			name := fmt.Sprintf("%s_%s_%s_split%d.csv", p.Ticker, report.Interval, p.Model, p.Split)
			path := filepath.Join(s.paths.PredsDir, name)
			h, r := predictionRecords(report.Task, p)
			if err := writeCSV(path, h, r); err != nil {
				return fmt.Errorf("write predictions %s: %w", name, err)
			}
			written[path] = true
		}
	}

	stale, err := s.pruneRunFiles(interval, written)
	if err != nil {
		return err
	}

	if s.l != nil {
		s.l.Info("csv artifacts written",
			applogger.String("summary", s.paths.Summary),
			applogger.Int("tickers", len(rows)),
			applogger.Int("traces", traces),
			applogger.Int("prediction_files", len(report.Predictions)),
			applogger.Int("stale_removed", stale),
		)
	}
	return nil
}

// Retract removes the summary, metrics, traces and prediction files of the
// previous run so a run without results leaves nothing to be read as current.
func (s *CSVSink) Retract(ctx context.Context, report *models.RunReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, path := range []string{s.paths.Summary, s.paths.Metrics} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("retract %s: %w", path, err)
		}
	}
	removed, err := s.pruneRunFiles(s.interval(report), nil)
	if err != nil {
		return err
	}
	if s.l != nil {
		s.l.Warn("csv artifacts retracted",
			applogger.String("summary", s.paths.Summary),
			applogger.Int("files_removed", removed),
		)
	}
	return nil
}

func (s *CSVSink) interval(report *models.RunReport) string {
	if report.Interval != "" {
		return report.Interval
	}
	return s.paths.Interval
}

// pruneRunFiles deletes this interval's trace and prediction files that are
// not in keep. Without an interval nothing is scoped and nothing is removed.
func (s *CSVSink) pruneRunFiles(interval string, keep map[string]bool) (int, error) {
	if interval == "" {
		return 0, nil
	}
	removed := 0
	for _, g := range []struct{ dir, pattern string }{
		{s.paths.TraceDir, "*_" + interval + "_trace.csv"},
		{s.paths.PredsDir, "*_" + interval + "_*_split*.csv"},
	} {
		if g.dir == "" {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(g.dir, g.pattern))
		if err != nil {
			return removed, fmt.Errorf("list %s: %w", g.dir, err)
		}
		for _, m := range matches {
			if keep[m] {
				continue
			}
			if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
				return removed, fmt.Errorf("remove stale %s: %w", m, err)
			}
			removed++
		}
	}
	return removed, nil
}

func outputColumns(task models.Task, names []string) (prefix, ens string, cols []string) {
	prefix, ens = probaPrefix, colProbaEns
	if task == models.TaskRegression {
		prefix, ens = predPrefix, colEns
	}
	cols = make([]string, len(names))
	for i, n := range names {
		cols[i] = prefix + n
	}
	return prefix, ens, cols
}

func summaryRecords(report *models.RunReport) ([]string, [][]string) {
	_, ens, outCols := outputColumns(report.Task, report.Models)
	header := []string{colTicker, colLastDate}
	header = append(header, outCols...)
	header = append(header, ens)
	if report.Task == models.TaskClassification {
		header = append(header, colLabel)
	}
	header = append(header, colConfidence, colWindows, colAbstained)

	rows := make([][]string, 0, len(report.Summaries))
	for _, sm := range report.Summaries {
		row := []string{sm.Ticker, util.FormatTime(sm.LastDate)}
		for _, name := range report.Models {
			v, _ := sm.Output(name)
			row = append(row, formatFloat(v))
		}
		row = append(row, formatFloat(sm.Ensemble))
		if report.Task == models.TaskClassification {
			row = append(row, sm.Label)
		}
		row = append(row, formatFloat(sm.Confidence), strconv.Itoa(sm.Windows), strconv.Itoa(sm.Abstained))
		rows = append(rows, row)
	}
	return header, rows
}

func traceRecords(report *models.RunReport, trace []models.WindowResult) ([]string, [][]string) {
	_, ens, outCols := outputColumns(report.Task, report.Models)
	header := []string{colTicker, "datetime", "window", "train_end", "test_start", "test_end"}
	header = append(header, outCols...)
	header = append(header, ens)
	if report.Task == models.TaskClassification {
		header = append(header, colLabel)
	}
	header = append(header, "y_true_next")

	rows := make([][]string, 0, len(trace))
	for _, w := range trace {
		row := []string{
			w.Ticker,
			util.FormatTime(w.Timestamp),
			strconv.Itoa(w.Window),
			strconv.Itoa(w.TrainEnd),
			strconv.Itoa(w.TestStart),
			strconv.Itoa(w.TestEnd),
		}
		values := make(map[string]float64, len(w.Outputs))
		for _, o := range w.Outputs {
			values[o.Name] = o.Value
		}
		for _, name := range report.Models {
			v, ok := values[name]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, formatFloat(v))
		}
		row = append(row, formatFloat(w.Ensemble))
		if report.Task == models.TaskClassification {
			row = append(row, w.Label)
		}
		realized := ""
		if w.HasRealized {
			realized = formatFloat(w.Realized)
		}
		rows = append(rows, append(row, realized))
	}
	return header, rows
}

func metricRecords(metrics []models.RegressionMetric) ([]string, [][]string) {
	header := []string{"ticker", "model", "split", "n_train", "n_test", "rmse", "mae", "dir_acc"}
	rows := make([][]string, 0, len(metrics))
	for _, m := range metrics {
		rows = append(rows, []string{
			m.Ticker,
			m.Model,
			strconv.Itoa(m.Split),
			strconv.Itoa(m.NTrain),
			strconv.Itoa(m.NTest),
			formatFloat(m.RMSE),
			formatFloat(m.MAE),
			formatFloat(m.DirAcc),
		})
	}
	return header, rows
}

const (
	colYTrue   = "y_true"
	colYPred   = "y_pred"
	colProbaUp = "proba_up"
	colRetNext = "ret_next"
)

func predictionRecords(task models.Task, p models.PredictionSet) ([]string, [][]string) {
	pred := colYPred
	if task == models.TaskClassification {
		pred = colProbaUp
	}
	header := []string{models.ColDatetime, models.ColTicker, colYTrue, pred, colRetNext}
	rows := make([][]string, len(p.Times))
	for i := range p.Times {
		ret := math.NaN()
		if i < len(p.Return) {
			ret = p.Return[i]
		}
		rows[i] = []string{util.FormatTime(p.Times[i]), p.Ticker, formatFloat(p.YTrue[i]), formatFloat(p.YPred[i]), formatFloat(ret)}
	}
	return header, rows
}

// CSVSummaryReader reads the summary file written by CSVSink.
type CSVSummaryReader struct {
	path string
}

func NewCSVSummaryReader(path string) *CSVSummaryReader {
	return &CSVSummaryReader{path: path}
}

func (r *CSVSummaryReader) Summaries(ctx context.Context) ([]models.TickerSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	header, records, err := readCSV(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.ErrNoSummary
		}
		return nil, err
	}
	return parseSummaries(header, records)
}

func parseSummaries(header []string, records [][]string) ([]models.TickerSummary, error) {
	idx := make(map[string]int, len(header))
	var outputs []string
	prefix := ""
	for i, name := range header {
		idx[name] = i
		switch {
		case name == colProbaEns:
		case strings.HasPrefix(name, probaPrefix):
			prefix = probaPrefix
			outputs = append(outputs, name)
		case strings.HasPrefix(name, predPrefix):
			prefix = predPrefix
			outputs = append(outputs, name)
		}
	}
	if _, ok := idx[colTicker]; !ok {
		return nil, fmt.Errorf("summary: missing %s column", colTicker)
	}
	ensCol, ok := idx[colProbaEns]
	if !ok {
		if ensCol, ok = idx[colEns]; !ok {
			return nil, fmt.Errorf("summary: missing ensemble column")
		}
	}

	cell := func(rec []string, name string) string {
		if i, ok := idx[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}
	out := make([]models.TickerSummary, 0, len(records))
	for line, rec := range records {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("summary line %d: %d fields, header has %d", line+2, len(rec), len(header))
		}
		sm := models.TickerSummary{
			Ticker: rec[idx[colTicker]],
			Label:  cell(rec, colLabel),
		}
		sm.LastDate, _ = util.ParseTime(cell(rec, colLastDate))
		var err error
		if sm.Ensemble, err = parseFloat(rec[ensCol]); err != nil {
			return nil, fmt.Errorf("summary line %d: ensemble: %w", line+2, err)
		}
		if sm.Confidence, err = parseFloat(cell(rec, colConfidence)); err != nil {
			return nil, fmt.Errorf("summary line %d: confidence: %w", line+2, err)
		}
		sm.Windows = util.IntOr(cell(rec, colWindows), 0)
		sm.Abstained = util.IntOr(cell(rec, colAbstained), 0)
		for _, col := range outputs {
			v, err := parseFloat(rec[idx[col]])
			if err != nil {
				return nil, fmt.Errorf("summary line %d: %s: %w", line+2, col, err)
			}
			sm.Outputs = append(sm.Outputs, models.ModelOutput{Name: strings.TrimPrefix(col, prefix), Value: v})
		}
		out = append(out, sm)
	}
	return out, nil
}

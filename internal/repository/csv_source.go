package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"FinSignal/internal/domain/models"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/util"
)

// CSVTableSource loads one feature table per ticker from
// <dir>/<TICKER>_<interval>.csv.
type CSVTableSource struct {
	dir      string
	interval string
	pattern  string
	tickers  []string
	l        *applogger.Logger
}

// NewCSVTableSource creates a folder source. When tickers is empty the
// ticker list is discovered from files matching pattern.
func NewCSVTableSource(dir, interval, pattern string, tickers []string) *CSVTableSource {
	if pattern == "" {
		pattern = "*_" + interval + ".csv"
	}
	return &CSVTableSource{dir: dir, interval: interval, pattern: pattern, tickers: tickers}
}

// SetLogger injects a structured logger.
func (s *CSVTableSource) SetLogger(l *applogger.Logger) { s.l = l }

// Path returns the file a ticker is read from.
func (s *CSVTableSource) Path(ticker string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.csv", ticker, s.interval))
}

func (s *CSVTableSource) Tickers(_ context.Context) ([]string, error) {
	if len(s.tickers) > 0 {
		out := make([]string, len(s.tickers))
		copy(out, s.tickers)
		return out, nil
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, s.pattern))
	if err != nil {
		return nil, models.ConfigError("bad data pattern %q: %v", s.pattern, err)
	}
	suffix := "_" + s.interval
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		stem := strings.TrimSuffix(filepath.Base(m), filepath.Ext(m))
		out = append(out, strings.TrimSuffix(stem, suffix))
	}
	sort.Strings(out)
	return out, nil
}

func (s *CSVTableSource) Load(ctx context.Context, ticker string) (*models.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(ticker)
	header, records, err := readCSV(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.DataError(models.StageLoad, "no data file %s", path)
		}
		return nil, models.DataError(models.StageLoad, "%v", err)
	}
	t, err := parseTable(ticker, s.interval, header, records)
	if err != nil {
		return nil, err
	}
	if s.l != nil {
		s.l.Debug("csv table loaded",
			applogger.String("ticker", ticker),
			applogger.String("path", path),
			applogger.Int("rows", t.Len()),
			applogger.Int("columns", len(t.Columns())),
		)
	}
	return t, nil
}

// parseTable applies the strict table schema to a decoded CSV file.
func parseTable(ticker, interval string, header []string, records [][]string) (*models.Table, error) {
	seen := make(map[string]bool, len(header))
	timeCol, tickerCol := -1, -1
	var numeric []int
	for i, name := range header {
		name = strings.TrimSpace(name)
		header[i] = name
		if name == "" {
			return nil, models.ConfigError("%s: column %d has no name", ticker, i)
		}
		if seen[name] {
			return nil, models.ConfigError("%s: duplicate column %q", ticker, name)
		}
		seen[name] = true
		switch name {
		case models.ColDatetime:
			timeCol = i
		case models.ColTicker:
			tickerCol = i
		case models.ColInterval:
		default:
			numeric = append(numeric, i)
		}
	}
	if timeCol < 0 {
		return nil, models.ConfigError("%s: missing %s column", ticker, models.ColDatetime)
	}

	times := make([]time.Time, len(records))
	cols := make([][]float64, len(numeric))
	for j := range cols {
		cols[j] = make([]float64, len(records))
	}
	for r, rec := range records {
		line := r + 2
		if len(rec) != len(header) {
			return nil, models.DataError(models.StageLoad, "line %d: %d fields, header has %d", line, len(rec), len(header))
		}
		ts, ok := util.ParseTime(rec[timeCol])
		if !ok {
			return nil, models.DataError(models.StageLoad, "line %d: bad timestamp %q", line, rec[timeCol])
		}
		if r > 0 && !ts.After(times[r-1]) {
			return nil, models.DataError(models.StageLoad, "line %d: timestamp %s is not after the previous row", line, util.FormatTime(ts))
		}
		times[r] = ts
		if tickerCol >= 0 && !strings.EqualFold(strings.TrimSpace(rec[tickerCol]), ticker) {
			return nil, models.DataError(models.StageLoad, "line %d: ticker %q does not match %q", line, rec[tickerCol], ticker)
		}
		for j, c := range numeric {
			v, err := parseFloat(rec[c])
			if err != nil {
				return nil, models.DataError(models.StageLoad, "line %d: column %s: bad value %q", line, header[c], rec[c])
			}
			cols[j][r] = v
		}
	}

	t := models.NewTable(ticker, interval, times)
	for j, c := range numeric {
		var err error
		if t, err = t.WithColumn(header[c], cols[j]); err != nil {
			return nil, models.DataError(models.StageLoad, "%v", err)
		}
	}
	if err := t.Validate(); err != nil {
		return nil, models.DataError(models.StageLoad, "%v", err)
	}
	return t, nil
}

// tableRecords renders a table as CSV rows with identifier columns first.
func tableRecords(t *models.Table) ([]string, [][]string) {
	cols := t.Columns()
	header := append([]string{models.ColDatetime, models.ColTicker}, cols...)
	values := make([][]float64, len(cols))
	for i, c := range cols {
		values[i], _ = t.Column(c)
	}
	rows := make([][]string, t.Len())
	for r := range rows {
		row := make([]string, 0, len(header))
		row = append(row, util.FormatTime(t.Time(r)), t.Ticker())
		for i := range cols {
			row = append(row, formatFloat(values[i][r]))
		}
		rows[r] = row
	}
	return header, rows
}

// CSVBarStore writes feature tables into the folder layout read by
// CSVTableSource, merging with rows already on disk.
type CSVBarStore struct {
	dir      string
	interval string
	l        *applogger.Logger
}

func NewCSVBarStore(dir, interval string) *CSVBarStore {
	return &CSVBarStore{dir: dir, interval: interval}
}

// SetLogger injects a structured logger.
func (s *CSVBarStore) SetLogger(l *applogger.Logger) { s.l = l }

// SaveTable merges t into the ticker's file. Rows are keyed by timestamp and
// the incoming row wins; columns are the union, existing ones first.
func (s *CSVBarStore) SaveTable(ctx context.Context, t *models.Table) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := t.Validate(); err != nil {
		return 0, models.DataError(models.StageLoad, "%v", err)
	}
	src := NewCSVTableSource(s.dir, s.interval, "", nil)
	path := src.Path(t.Ticker())

	merged := t
	if _, err := os.Stat(path); err == nil {
		existing, err := src.Load(ctx, t.Ticker())
		if err != nil {
			return 0, fmt.Errorf("read existing %s: %w", path, err)
		}
		merged, err = mergeTables(existing, t)
		if err != nil {
			return 0, err
		}
	}

	header, rows := tableRecords(merged)
	if err := writeCSV(path, header, rows); err != nil {
		return 0, err
	}
	if s.l != nil {
		s.l.Info("bars saved",
			applogger.String("ticker", t.Ticker()),
			applogger.String("path", path),
			applogger.Int("rows", len(rows)),
		)
	}
	return len(rows), nil
}

func mergeTables(old, cur *models.Table) (*models.Table, error) {
	index := make(map[int64]int, old.Len()+cur.Len())
	var times []time.Time
	add := func(t *models.Table) {
		for i := 0; i < t.Len(); i++ {
			k := t.Time(i).UnixNano()
			if _, ok := index[k]; !ok {
				index[k] = len(times)
				times = append(times, t.Time(i))
			}
		}
	}
	add(old)
	add(cur)
	order := make([]int, len(times))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return times[order[a]].Before(times[order[b]]) })
	pos := make([]int, len(times))
	sorted := make([]time.Time, len(times))
	for p, i := range order {
		pos[i] = p
		sorted[p] = times[i]
	}

	names := old.Columns()
	for _, c := range cur.Columns() {
		if !old.HasColumn(c) {
			names = append(names, c)
		}
	}
	out := models.NewTable(cur.Ticker(), cur.Interval(), sorted)
	for _, name := range names {
		col := make([]float64, len(sorted))
		for i := range col {
			col[i] = math.NaN()
		}
		for _, t := range []*models.Table{old, cur} {
			vals, ok := t.Column(name)
			if !ok {
				continue
			}
			for i, v := range vals {
				col[pos[index[t.Time(i).UnixNano()]]] = v
			}
		}
		var err error
		if out, err = out.WithColumn(name, col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

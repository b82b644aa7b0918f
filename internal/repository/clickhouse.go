package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	pkgch "FinSignal/pkg/clickhouse"
	applogger "FinSignal/pkg/logger"
)

// ClickHouseTables names the tables used by the ClickHouse adapters.
type ClickHouseTables struct {
	Database string
	Bars     string
	Summary  string
	Trace    string
}

// Schema returns idempotent DDL for the bars, summary and trace tables.
func (t ClickHouseTables) Schema() []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", t.Database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            ts DateTime64(3, 'UTC'),
            ticker LowCardinality(String),
            interval LowCardinality(String),
            open Float64, high Float64, low Float64, close Float64, volume Float64
        ) ENGINE = ReplacingMergeTree ORDER BY (ticker, interval, ts)`, t.Database, t.Bars),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            run_id String,
            task LowCardinality(String),
            ticker LowCardinality(String),
            interval LowCardinality(String),
            last_date DateTime64(3, 'UTC'),
            models Array(String),
            outputs Array(Float64),
            ensemble Float64,
            label String,
            confidence Float64,
            windows UInt32,
            abstained UInt32,
            created_at DateTime64(3, 'UTC')
        ) ENGINE = MergeTree ORDER BY (ticker, created_at)`, t.Database, t.Summary),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            run_id String,
            ticker LowCardinality(String),
            window_no UInt32,
            ts DateTime64(3, 'UTC'),
            train_end UInt32,
            test_start UInt32,
            test_end UInt32,
            models Array(String),
            outputs Array(Float64),
            ensemble Float64,
            label String,
            realized Nullable(Float64)
        ) ENGINE = MergeTree ORDER BY (run_id, ticker, window_no)`, t.Database, t.Trace),
	}
}

func (t ClickHouseTables) qualified(name string) string {
	if t.Database == "" {
		return name
	}
	return t.Database + "." + name
}

// CHBarSource reads OHLCV bars from the bars table.
type CHBarSource struct {
	db     *sql.DB
	tables ClickHouseTables
	from   time.Time
	l      *applogger.Logger
}

func NewCHBarSource(ch *pkgch.Client, tables ClickHouseTables, from time.Time) *CHBarSource {
	return &CHBarSource{db: ch.DB(), tables: tables, from: from}
}

// SetLogger injects a structured logger.
func (s *CHBarSource) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHBarSource) GetCandles(ctx context.Context, ticker string, iv domrepo.Interval) ([]models.Candle, error) {
	start := time.Now()
	table := s.tables.qualified(s.tables.Bars)
	q := fmt.Sprintf(`
        SELECT ts, ticker, open, high, low, close, volume
        FROM %s FINAL
        WHERE ticker = ? AND interval = ? AND ts >= ?
        ORDER BY ts ASC
    `, table)
	rows, err := s.db.QueryContext(ctx, q, ticker, string(iv), s.from)
	if err != nil {
		s.logError("clickhouse get_candles query error", table, ticker, iv, err)
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 1024)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Time, &c.Ticker, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			s.logError("clickhouse get_candles scan error", table, ticker, iv, err)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Time = c.Time.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		s.logError("clickhouse get_candles rows error", table, ticker, iv, err)
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse get_candles ok",
			applogger.String("table", table),
			applogger.String("ticker", ticker),
			applogger.String("interval", string(iv)),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHBarSource) logError(msg, table, ticker string, iv domrepo.Interval, err error) {
	if s.l == nil {
		return
	}
	s.l.Error(msg,
		applogger.String("table", table),
		applogger.String("ticker", ticker),
		applogger.String("interval", string(iv)),
		applogger.Error(err),
	)
}

// insertChunk bounds the rows of one multi-row INSERT.
const insertChunk = 2000

// CHResultSink stores summaries and traces of a run, tagged with the run id.
type CHResultSink struct {
	db     *sql.DB
	tables ClickHouseTables
	l      *applogger.Logger
}

func NewCHResultSink(ch *pkgch.Client, tables ClickHouseTables) *CHResultSink {
	return &CHResultSink{db: ch.DB(), tables: tables}
}

// SetLogger injects a structured logger.
func (s *CHResultSink) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHResultSink) Name() string { return "clickhouse" }

func (s *CHResultSink) Write(ctx context.Context, report *models.RunReport) error {
	created := report.FinishedAt.UTC()
	summaryRows := make([][]interface{}, 0, len(report.Summaries))
	for _, sm := range report.Summaries {
		names, values := splitOutputs(sm.Outputs)
		summaryRows = append(summaryRows, []interface{}{
			report.RunID, string(report.Task), sm.Ticker, report.Interval, sm.LastDate.UTC(),
			names, values, finite(sm.Ensemble), sm.Label, finite(sm.Confidence),
			uint32(sm.Windows), uint32(sm.Abstained), created,
		})
	}
	if err := s.insert(ctx, s.tables.Summary,
		[]string{"run_id", "task", "ticker", "interval", "last_date", "models", "outputs", "ensemble", "label", "confidence", "windows", "abstained", "created_at"},
		summaryRows); err != nil {
		return fmt.Errorf("insert summaries: %w", err)
	}

	var traceRows [][]interface{}
	for _, ticker := range report.TraceTickers() {
		for _, w := range report.Traces[ticker] {
			names, values := splitOutputs(w.Outputs)
			var realized interface{}
			if w.HasRealized && !math.IsNaN(w.Realized) {
				realized = w.Realized
			}
			traceRows = append(traceRows, []interface{}{
				report.RunID, w.Ticker, uint32(w.Window), w.Timestamp.UTC(),
				uint32(w.TrainEnd), uint32(w.TestStart), uint32(w.TestEnd),
				names, values, finite(w.Ensemble), w.Label, realized,
			})
		}
	}
	if err := s.insert(ctx, s.tables.Trace,
		[]string{"run_id", "ticker", "window_no", "ts", "train_end", "test_start", "test_end", "models", "outputs", "ensemble", "label", "realized"},
		traceRows); err != nil {
		return fmt.Errorf("insert traces: %w", err)
	}

	if s.l != nil {
		s.l.Info("clickhouse results stored",
			applogger.String("run_id", report.RunID),
			applogger.Int("summaries", len(summaryRows)),
			applogger.Int("windows", len(traceRows)),
		)
	}
	return nil
}

func (s *CHResultSink) insert(ctx context.Context, table string, cols []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	for start := 0; start < len(rows); start += insertChunk {
		end := min(start+insertChunk, len(rows))
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*len(cols))
		for _, r := range rows[start:end] {
			values = append(values, placeholder)
			args = append(args, r...)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			s.tables.qualified(table), strings.Join(cols, ", "), strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func splitOutputs(outs []models.ModelOutput) ([]string, []float64) {
	names := make([]string, len(outs))
	values := make([]float64, len(outs))
	for i, o := range outs {
		names[i] = o.Name
		values[i] = finite(o.Value)
	}
	return names, values
}

// finite maps undefined values to 0.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

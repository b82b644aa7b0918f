package models

import (
	"fmt"
	"math"
	"time"
)

// Identifier columns never used as features.
const (
	ColDatetime = "Datetime"
	ColTicker   = "Ticker"
	ColInterval = "Interval"
)

// Table is an immutable, chronologically ordered series of observations for
// one ticker. Numeric columns are kept in insertion order; NaN marks an
// undefined value. Methods that change the shape return a new Table.
type Table struct {
	ticker   string
	interval string
	times    []time.Time
	names    []string
	cols     map[string][]float64
}

// NewTable creates a table with the given timestamps and no columns.
func NewTable(ticker, interval string, times []time.Time) *Table {
	ts := make([]time.Time, len(times))
	copy(ts, times)
	return &Table{
		ticker:   ticker,
		interval: interval,
		times:    ts,
		cols:     make(map[string][]float64),
	}
}

func (t *Table) Ticker() string   { return t.ticker }
func (t *Table) Interval() string { return t.interval }
func (t *Table) Len() int         { return len(t.times) }

// Time returns the timestamp of row i.
func (t *Table) Time(i int) time.Time { return t.times[i] }

// Times returns a copy of the timestamp column.
func (t *Table) Times() []time.Time {
	out := make([]time.Time, len(t.times))
	copy(out, t.times)
	return out
}

// Columns returns column names in insertion order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, bool) {
	c, ok := t.cols[name]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(c))
	copy(out, c)
	return out, true
}

// Value returns a single cell, NaN when the column is missing.
func (t *Table) Value(name string, i int) float64 {
	c, ok := t.cols[name]
	if !ok {
		return math.NaN()
	}
	return c[i]
}

// WithColumn returns a new table carrying the extra column. An existing
// column of the same name is replaced in place of order.
func (t *Table) WithColumn(name string, values []float64) (*Table, error) {
	if name == "" {
		return nil, fmt.Errorf("column name is required")
	}
	if name == ColDatetime || name == ColTicker || name == ColInterval {
		return nil, fmt.Errorf("column %q is an identifier", name)
	}
	if len(values) != len(t.times) {
		return nil, fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), len(t.times))
	}
	vals := make([]float64, len(values))
	copy(vals, values)

	out := &Table{
		ticker:   t.ticker,
		interval: t.interval,
		times:    t.times,
		cols:     make(map[string][]float64, len(t.cols)+1),
	}
	for k, v := range t.cols {
		out.cols[k] = v
	}
	out.names = make([]string, len(t.names), len(t.names)+1)
	copy(out.names, t.names)
	if _, exists := t.cols[name]; !exists {
		out.names = append(out.names, name)
	}
	out.cols[name] = vals
	return out, nil
}

// Head returns the first n rows as a new table sharing storage.
func (t *Table) Head(n int) *Table {
	if n < 0 {
		n = 0
	}
	if n > len(t.times) {
		n = len(t.times)
	}
	out := &Table{
		ticker:   t.ticker,
		interval: t.interval,
		times:    t.times[:n:n],
		names:    t.names,
		cols:     make(map[string][]float64, len(t.cols)),
	}
	for k, v := range t.cols {
		out.cols[k] = v[:n:n]
	}
	return out
}

// Validate checks the table invariants: a ticker, non-zero and strictly
// increasing timestamps.
func (t *Table) Validate() error {
	if t.ticker == "" {
		return fmt.Errorf("ticker is required")
	}
	for i, ts := range t.times {
		if ts.IsZero() {
			return fmt.Errorf("row %d: undefined timestamp", i)
		}
		if i > 0 && !ts.After(t.times[i-1]) {
			return fmt.Errorf("row %d: timestamp %s not after %s", i, ts.Format(time.RFC3339), t.times[i-1].Format(time.RFC3339))
		}
	}
	return nil
}

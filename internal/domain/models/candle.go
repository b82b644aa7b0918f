package models

import (
	"sort"
	"time"
)

// Candle is a raw OHLCV bar as delivered by a data source.
type Candle struct {
	Time   time.Time
	Ticker string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// OHLCV column names.
const (
	ColOpen   = "Open"
	ColHigh   = "High"
	ColLow    = "Low"
	ColClose  = "Close"
	ColVolume = "Volume"
)

// TableFromCandles builds a table with the five OHLCV columns. Candles
// must already be sorted and unique by time.
func TableFromCandles(ticker, interval string, candles []Candle) (*Table, error) {
	times := make([]time.Time, len(candles))
	cols := map[string][]float64{
		ColOpen:   make([]float64, len(candles)),
		ColHigh:   make([]float64, len(candles)),
		ColLow:    make([]float64, len(candles)),
		ColClose:  make([]float64, len(candles)),
		ColVolume: make([]float64, len(candles)),
	}
	for i, c := range candles {
		times[i] = c.Time
		cols[ColOpen][i] = c.Open
		cols[ColHigh][i] = c.High
		cols[ColLow][i] = c.Low
		cols[ColClose][i] = c.Close
		cols[ColVolume][i] = c.Volume
	}
	t := NewTable(ticker, interval, times)
	for _, name := range []string{ColOpen, ColHigh, ColLow, ColClose, ColVolume} {
		var err error
		if t, err = t.WithColumn(name, cols[name]); err != nil {
			return nil, err
		}
	}
	return t, t.Validate()
}

// SortCandles orders candles by time, keeps the last candle for duplicate
// timestamps and drops candles without a timestamp. The input is not
// modified.
func SortCandles(candles []Candle) []Candle {
	out := make([]Candle, 0, len(candles))
	for _, c := range candles {
		if !c.Time.IsZero() {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	dedup := out[:0]
	for i, c := range out {
		if i+1 < len(out) && out[i+1].Time.Equal(c.Time) {
			continue
		}
		dedup = append(dedup, c)
	}
	return dedup
}

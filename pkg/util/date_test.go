package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeLayouts(t *testing.T) {
	cases := map[string]time.Time{
		"2024-10-10T10:10:10Z":      time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC),
		"2024-10-10T10:10:10.5Z":    time.Date(2024, 10, 10, 10, 10, 10, 5e8, time.UTC),
		"2024-01-02":                time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		" 2024-01-02 15:30:00 ":     time.Date(2024, 1, 2, 15, 30, 0, 0, time.UTC),
		"2024-01-02 09:30:00-05:00": time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC),
		"2024-01-02T09:30:00":       time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, ok := ParseTime(in)
		if !ok {
			t.Fatalf("%q: expected ok", in)
		}
		if !got.Equal(want) || got.Location() != time.UTC {
			t.Fatalf("%q: got %v want %v", in, got, want)
		}
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok || got.Unix() != ts {
		t.Fatalf("unexpected %v %v", got, ok)
	}
}

func TestParseTimeRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "yesterday", "-5", "2024-13-01"} {
		if _, ok := ParseTime(in); ok {
			t.Fatalf("%q: expected failure", in)
		}
	}
}

func TestFormatTime(t *testing.T) {
	if s := FormatTime(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)); s != "2024-01-02" {
		t.Fatalf("unexpected %s", s)
	}
	if s := FormatTime(time.Date(2024, 1, 2, 15, 30, 0, 0, time.UTC)); s != "2024-01-02 15:30:00" {
		t.Fatalf("unexpected %s", s)
	}
	est := time.FixedZone("EST", -5*3600)
	if s := FormatTime(time.Date(2024, 1, 1, 19, 0, 0, 0, est)); s != "2024-01-02" {
		t.Fatalf("unexpected %s", s)
	}
}

func TestIntOr(t *testing.T) {
	if v := IntOr(" 12 ", 0); v != 12 {
		t.Fatalf("unexpected %d", v)
	}
	if v := IntOr("", 7); v != 7 {
		t.Fatalf("unexpected %d", v)
	}
	if v := IntOr("1.5", -1); v != -1 {
		t.Fatalf("unexpected %d", v)
	}
}

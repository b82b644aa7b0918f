package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindData   ErrorKind = "data"
	KindFit    ErrorKind = "fit"
	KindConfig ErrorKind = "config"
)

// Pipeline stages used in error context and logs.
const (
	StageLoad     = "load"
	StagePlan     = "plan"
	StageAssemble = "assemble"
	StageFit      = "fit"
	StageCombine  = "combine"
	StageSink     = "sink"
)

var (
	// ErrAbstain marks a window skipped because the training labels hold a
	// single class. It is not a failure.
	ErrAbstain = errors.New("window abstained: single-class training labels")
	// ErrNoResult is returned for a ticker that produced no window result.
	ErrNoResult = errors.New("ticker produced no result")
	// ErrNoResults is returned when no ticker of a run succeeded.
	ErrNoResults = errors.New("no results: no ticker completed")
	// ErrNoSummary is returned by summary readers before any run wrote one.
	ErrNoSummary = errors.New("summary not found")
)

// Error is a classified pipeline error with ticker and stage context.
type Error struct {
	Kind   ErrorKind
	Ticker string
	Stage  string
	Err    error
}

func (e *Error) Error() string {
	prefix := string(e.Kind) + " error"
	if e.Stage != "" {
		prefix += " at " + e.Stage
	}
	if e.Ticker != "" {
		prefix += " [" + e.Ticker + "]"
	}
	return fmt.Sprintf("%s: %v", prefix, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// DataError builds a data error for a stage.
func DataError(stage string, format string, a ...any) *Error {
	return &Error{Kind: KindData, Stage: stage, Err: fmt.Errorf(format, a...)}
}

// FitError wraps an estimator failure.
func FitError(err error) *Error {
	return &Error{Kind: KindFit, Stage: StageFit, Err: err}
}

// ConfigError builds a configuration error.
func ConfigError(format string, a ...any) *Error {
	return &Error{Kind: KindConfig, Err: fmt.Errorf(format, a...)}
}

// IsConfigError reports whether err carries a configuration error.
func IsConfigError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindConfig
}

// WithTicker attaches the ticker to a classified error, or wraps a plain
// error as a data error for the given stage.
func WithTicker(err error, ticker, stage string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		if cp.Ticker == "" {
			cp.Ticker = ticker
		}
		if cp.Stage == "" {
			cp.Stage = stage
		}
		return &cp
	}
	return &Error{Kind: KindData, Ticker: ticker, Stage: stage, Err: err}
}

// StageOf returns the stage recorded on err, or fallback.
func StageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Stage != "" {
		return e.Stage
	}
	return fallback
}

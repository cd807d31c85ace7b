package sheetops

import (
	"io"
	"log/slog"
)

// Options holds configuration shared by the Executor and the formula
// generator.
type Options struct {
	logger               *slog.Logger
	numericSortThreshold float64
	rowPlaceholder       string
	sampleCount          int
}

func defaultOptions() *Options {
	return &Options{
		logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
		numericSortThreshold: 0.5,
		rowPlaceholder:       "{row}",
		sampleCount:          3,
	}
}

// Option configures a run.
type Option func(*Options)

// WithLogger sets a structured logger. The executor logs one line per
// operation; the default logger discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithNumericSortThreshold sets the fraction of sort-key values that must
// parse as numbers before a mixed column is sorted numerically instead of as
// strings (default: 0.5).
func WithNumericSortThreshold(threshold float64) Option {
	return func(o *Options) { o.numericSortThreshold = threshold }
}

// WithRowPlaceholder sets the row marker used in generated per-row formulas,
// e.g. "2" renders a Price reference as "B2" (default: "{row}", to be
// replaced by the user when filling down).
func WithRowPlaceholder(placeholder string) Option {
	return func(o *Options) { o.rowPlaceholder = placeholder }
}

// WithSampleCount sets how many sample values schema descriptions carry per
// column (default: 3).
func WithSampleCount(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.sampleCount = n
		}
	}
}

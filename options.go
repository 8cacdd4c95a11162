// Functional-option configuration for Open, modeled on
// iamNilotpal-ignite/pkg/options: a plain struct plus OptionFunc setters
// that ignore out-of-range input rather than erroring, so callers can apply
// options in any order without having to reason about validation failure.
package pstore

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// DefaultRegionSize is the size of a single memory-mapped window
	// added by the region mapper, a multiple of MinRegionSize (§4.1).
	DefaultRegionSize = 64 * 1024 * 1024 // 64 MiB, matching the teacher's initial file size.
	// MinRegionSize is the smallest unit the region mapper grows by.
	MinRegionSize = 4096 // a typical OS page.
	// MaxRegionGrowth carries the teacher's MaxResize (1 GB) growth
	// ceiling. The region mapper does not read it: Append grows to
	// whatever size is requested, in whole windows.
	MaxRegionGrowth = 1_000_000_000
	// DefaultNodePoolSize is the default Options.NodePoolSize, matching
	// the teacher's NewMariNodePool default.
	DefaultNodePoolSize = 100_000
)

// Options configures a call to Open.
type Options struct {
	// Path is the backing file path. Required.
	Path string
	// ReadOnly opens the database without acquiring the writer lock;
	// transactions.Begin on a read-only Database fails with
	// CodeTransactionOnReadOnlyDatabase.
	ReadOnly bool
	// RegionSize is the window size the region mapper grows the file by.
	// Must be a multiple of MinRegionSize.
	RegionSize uint64
	// NodePoolSize is stored for configuration only. No heap nodes are
	// pre-allocated: the HAMT arena grows chunk by chunk on demand and
	// nothing in this package reads this value.
	NodePoolSize int64
	// Logger receives structured diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// OptionFunc mutates an Options value. Functions in this package that
// return one never error; a rejected value simply leaves the previous
// setting in place, matching ignite's WithSegmentSize/WithCompactInterval
// style.
type OptionFunc func(*Options)

// defaultOptions returns the baseline configuration WithDefaultOptions
// applies, and the value Open starts from before applying the caller's
// OptionFuncs.
func defaultOptions(path string) *Options {
	return &Options{
		Path:         path,
		RegionSize:   DefaultRegionSize,
		NodePoolSize: DefaultNodePoolSize,
		Logger:       newNopLogger(),
	}
}

// WithReadOnly opens the database without the writer lock.
func WithReadOnly() OptionFunc {
	return func(o *Options) { o.ReadOnly = true }
}

// WithRegionSize sets the region mapper's window size. Values not a
// positive multiple of MinRegionSize are ignored.
func WithRegionSize(size uint64) OptionFunc {
	return func(o *Options) {
		if size > 0 && size%MinRegionSize == 0 {
			o.RegionSize = size
		}
	}
}

// WithNodePoolSize sets Options.NodePoolSize. Non-positive values are
// ignored.
func WithNodePoolSize(size int64) OptionFunc {
	return func(o *Options) {
		if size > 0 {
			o.NodePoolSize = size
		}
	}
}

// WithLogger installs a structured logger. A nil logger is ignored.
func WithLogger(logger *zap.Logger) OptionFunc {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

func applyOptions(path string, opts []OptionFunc) *Options {
	o := defaultOptions(strings.TrimSpace(path))
	for _, fn := range opts {
		if fn != nil {
			fn(o)
		}
	}
	return o
}

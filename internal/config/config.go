// Package config holds the run-wide settings the pipeline is built from.
//
// Grounded on the design notes' replacement for the source's process-wide
// opt:: flags (opt::chastityFilter, opt::fileInterval, etc. in
// BioBloomCategorizer/BioBloomClassifier.cpp): a single immutable struct
// passed by reference at pipeline construction, with no package-level
// mutable state anywhere in the core.
package config

import (
	"runtime"

	"github.com/go-biocat/biocat/internal/classify"
)

// RunConfig is every tunable the pipeline and classifier need for one run.
// It is built once by the CLI layer and never mutated afterward.
type RunConfig struct {
	// Threads is the worker pool size. Zero means "use runtime.NumCPU()".
	Threads int

	// FileInterval is how many reads are processed between progress
	// notifications. The original default is 1,000,000.
	FileInterval int64

	// Chastity gates reads (or either mate of a pair) by their chaste
	// flag before they reach the classifier; a non-chaste read routes
	// straight to NO_MATCH without evaluation.
	Chastity bool

	// Inclusive selects OR (true) vs AND (false) combination of mate
	// verdicts in paired-end classification.
	Inclusive bool

	// Mode is the classifier mode. Threshold == 1.0 overrides this to
	// BESTHIT regardless of the value set here.
	Mode classify.Mode

	// Threshold is the single score-domain threshold in [0,1] used by
	// STD, ORDERED, and SCORES modes.
	Threshold float64

	// MinHitCount is the legacy -t/--min_hit_thr surface: when non-zero,
	// gates STD/ORDERED verdicts with an additional requirement that the
	// read have at least this many matching k-mers against the claiming
	// filter. Ignored by BESTHIT/SCORES, matching the original's
	// wiring of the legacy counters into only the non-scoring modes.
	MinHitCount int

	// EmitCounts additionally writes raw per-filter hit counts alongside
	// the aggregator's proportion-based summary (the legacy -c/--counts
	// flag).
	EmitCounts bool

	// OutputRecords enables routing classified records to per-destination
	// files (the legacy -o/--output_fastq flag); when false, the
	// pipeline still aggregates counts but writes no record files.
	OutputRecords bool

	// Prefix is the output path prefix passed to the router.
	Prefix string
}

// Workers returns the configured worker pool size, defaulting to the
// host's hardware concurrency when Threads is zero (the "platform
// parallelism setting" the environment section calls for).
func (c *RunConfig) Workers() int {
	if c.Threads > 0 {
		return c.Threads
	}
	return runtime.NumCPU()
}

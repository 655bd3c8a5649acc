// Package aggregate maintains the thread-safe counter matrix that turns
// per-read hit sets into destination counts and a final TSV summary.
//
// Grounded on BioBloomClassifier's aggregation counters
// (m_aboveThreshold / filter summary generation in
// BioBloomCategorizer/BioBloomClassifier.cpp), which keep one count per
// filter plus the noMatch/multiMatch bins and print a tab-separated
// summary once the run drains. The mutex-guarded struct here replaces the
// source's array-of-counters-plus-separate-lock with a single small
// critical section per read, per the concurrency model's "aggregator
// counters require atomic updates or a critical section" rule.
package aggregate

import (
	"fmt"
	"io"
	"sync"
)

// NoMatch and MultiMatch are the synthetic destination indices appended
// after the N real filter indices [0, N).
const (
	offsetFromN = 0 // NoMatch = N + offsetFromN
)

// Aggregator accumulates per-read classification outcomes across many
// concurrent callers. The zero value is not usable; construct with New.
type Aggregator struct {
	mu          sync.Mutex
	labels      []string
	counts      []int64 // len N+2: [0..N) filters, N=NoMatch, N+1=MultiMatch
	hitAnywhere []int64 // len N
	totalSeen   int64
}

// New builds an Aggregator for the given ordered filter labels.
func New(labels []string) *Aggregator {
	n := len(labels)
	return &Aggregator{
		labels:      labels,
		counts:      make([]int64, n+2),
		hitAnywhere: make([]int64, n),
	}
}

// NoMatch and MultiMatch return this aggregator's synthetic destination
// indices, for callers that need to compare against Record's return value.
func (a *Aggregator) NoMatch() int    { return len(a.labels) }
func (a *Aggregator) MultiMatch() int { return len(a.labels) + 1 }

// Record applies the destination rule (0 hits: NoMatch, 1 hit: that
// filter, 2+ hits: MultiMatch), updates the counters, and returns the
// destination so the caller can route the record without recomputing it.
func (a *Aggregator) Record(hits []int) int {
	var dest int
	switch len(hits) {
	case 0:
		dest = a.NoMatch()
	case 1:
		dest = hits[0]
	default:
		dest = a.MultiMatch()
	}

	a.mu.Lock()
	a.counts[dest]++
	for _, h := range hits {
		a.hitAnywhere[h]++
	}
	a.totalSeen++
	a.mu.Unlock()

	return dest
}

// TotalSeen returns the number of reads recorded so far.
func (a *Aggregator) TotalSeen() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalSeen
}

// HitAnywhere returns a copy of the per-filter hit-anywhere counts,
// index-aligned with the labels passed to New.
func (a *Aggregator) HitAnywhere() []int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]int64, len(a.hitAnywhere))
	copy(out, a.hitAnywhere)
	return out
}

// WriteSummary emits the final TSV summary: one row per filter label
// (hit-anywhere count, proportion of total, cumulative proportion),
// followed by NO_MATCH and MULTI_MATCH rows using the destination counts.
// Intended to be called exactly once, after the pipeline has drained.
func (a *Aggregator) WriteSummary(w io.Writer) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := float64(a.totalSeen)
	var cumulative float64
	bw := func(format string, args ...interface{}) error {
		_, err := fmt.Fprintf(w, format, args...)
		return err
	}

	if err := bw("filter\thit_anywhere\tproportion\tcumulative_proportion\n"); err != nil {
		return err
	}
	for i, label := range a.labels {
		prop := safeDiv(float64(a.hitAnywhere[i]), total)
		cumulative += prop
		if err := bw("%s\t%d\t%.6f\t%.6f\n", label, a.hitAnywhere[i], prop, cumulative); err != nil {
			return err
		}
	}
	noMatch := a.counts[a.NoMatch()]
	multiMatch := a.counts[a.MultiMatch()]
	if err := bw("NO_MATCH\t%d\t%.6f\t%.6f\n", noMatch, safeDiv(float64(noMatch), total), cumulative+safeDiv(float64(noMatch), total)); err != nil {
		return err
	}
	cumulative += safeDiv(float64(noMatch), total)
	return bw("MULTI_MATCH\t%d\t%.6f\t%.6f\n", multiMatch, safeDiv(float64(multiMatch), total), cumulative+safeDiv(float64(multiMatch), total))
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

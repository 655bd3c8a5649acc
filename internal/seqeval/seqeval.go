// Package seqeval decides whether a single sequence matches a Bloom
// filter closely enough to count as a hit, by the fraction of its
// extractable k-mers that land in the filter.
//
// EvalThreshold walks k-mer windows left to right and stops as soon as
// the verdict is already decided, rather than scoring every window.
// EvalScore mirrors the score-reporting path used by
// BioBloomClassifier's SCORES mode, which needs the exact ratio and so
// cannot exit early.
package seqeval

import "github.com/go-biocat/biocat/internal/kmer"

// Filter is the subset of *bloomfilter.Filter the evaluator needs. It is
// declared here, not imported from internal/bloomfilter, so this package
// stays usable against any membership oracle that behaves like one.
type Filter interface {
	Contains(kmer []byte) bool
}

func windowCount(seqLen, k int) int {
	if seqLen < k {
		return 0
	}
	return seqLen - k + 1
}

// EvalThreshold reports whether seq's matched/extractable ratio reaches
// threshold, the same ratio EvalScore computes, but exits early once the
// verdict is settled: accept once matched/total already clears
// threshold (extractable can only shrink the denominator from here, so
// the real ratio can only go up), reject once even every remaining
// window turning out extractable and matching still can't reach it.
// total bounds the accept check; extractable, incremented only on
// windows where enc.Prep succeeds, bounds the reject check and the
// final ratio. A threshold of 0 accepts any sequence with at least one
// window; a sequence shorter than k never matches.
func EvalThreshold(seq string, enc *kmer.Encoder, filter Filter, threshold float64) bool {
	total := windowCount(len(seq), enc.K())
	if total == 0 {
		return false
	}

	var matched, extractable int
	for pos := 0; pos < total; pos++ {
		km, ok := enc.Prep(seq, pos)
		if ok {
			extractable++
			if filter.Contains(km) {
				matched++
			}
		}

		if float64(matched) >= threshold*float64(total) {
			return true
		}
		remaining := total - pos - 1
		if float64(matched+remaining) < threshold*float64(extractable+remaining) {
			return false
		}
	}
	return extractable > 0 && float64(matched)/float64(extractable) >= threshold
}

// EvalCount returns the raw number of seq's k-mer windows present in
// filter, with no normalization and no early exit. This backs the legacy
// minimum-hit-count gate (the original's -t/--min_hit_thr), which
// compares a raw count rather than a ratio.
func EvalCount(seq string, enc *kmer.Encoder, filter Filter) int {
	total := windowCount(len(seq), enc.K())
	var matched int
	for pos := 0; pos < total; pos++ {
		km, ok := enc.Prep(seq, pos)
		if ok && filter.Contains(km) {
			matched++
		}
	}
	return matched
}

// EvalScore returns the fraction of seq's extractable k-mer windows that
// are present in filter, scanning every window (no early exit). Windows
// containing a non-ACGT base are excluded from both the numerator and the
// denominator. Returns 0 if seq is shorter than the encoder's k, or if
// every window is non-extractable (e.g. an all-N read).
func EvalScore(seq string, enc *kmer.Encoder, filter Filter) float64 {
	total := windowCount(len(seq), enc.K())
	if total == 0 {
		return 0
	}
	var matched, extractable int
	for pos := 0; pos < total; pos++ {
		km, ok := enc.Prep(seq, pos)
		if ok {
			extractable++
			if filter.Contains(km) {
				matched++
			}
		}
	}
	if extractable == 0 {
		return 0
	}
	return float64(matched) / float64(extractable)
}

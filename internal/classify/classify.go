// Package classify runs a read (or read pair) against an ordered set of
// filters and decides which ones claim it.
//
// The four modes and the paired-end inclusive/exclusive combination rule
// are grounded on BioBloomClassifier's filtering loop in
// BioBloomCategorizer/BioBloomClassifier.cpp, which switches on
// m_mode (STD/ORDERED/BESTHIT/SCORES) and combines mate verdicts with
// either an AND or an OR depending on m_inclusive. The tagged-mode
// dispatch here replaces that switch's virtual-call-per-record shape with
// a single concrete type holding a comparable enum, per the note in
// BioBloomClassifier::filter about collapsing mode-specific branches.
package classify

import (
	"sort"

	"github.com/go-biocat/biocat/internal/kmer"
	"github.com/go-biocat/biocat/internal/seqeval"
)

// Mode selects the scoring/decision policy a Classifier runs.
type Mode int

const (
	// STD includes every filter whose threshold test passes.
	STD Mode = iota
	// ORDERED includes at most the first filter (in declared order)
	// whose threshold test passes.
	ORDERED
	// BESTHIT includes the filter(s) with the maximum score, provided
	// that maximum is greater than zero.
	BESTHIT
	// SCORES includes every filter whose score exceeds the threshold,
	// and records every filter's score regardless of verdict.
	SCORES
)

// Filter is the subset of *bloomfilter.Filter the classifier needs.
type Filter interface {
	Contains(kmer []byte) bool
}

// NamedFilter pairs a Filter with the label used for routing and
// reporting; index position in a Classifier's filter slice is the
// canonical filter index used throughout the pipeline and aggregator.
type NamedFilter struct {
	Label  string
	Filter Filter
}

// Result is the outcome of classifying one read or read pair: the set of
// filter indices that claimed it (sorted ascending, as required by the
// aggregator/router's destination rule) and, for BESTHIT/SCORES, the
// per-filter score vector (nil for STD/ORDERED, which never score).
type Result struct {
	Hits   []int
	Scores []float64
}

// Classifier evaluates reads against a fixed, ordered filter set under
// one selected mode.
type Classifier struct {
	filters     []NamedFilter
	mode        Mode
	threshold   float64
	inclusive   bool
	minHitCount int
}

// New builds a Classifier. A threshold of exactly 1.0 selects BESTHIT
// regardless of the mode argument, preserving the original's magic-value
// sentinel for compatibility; pass BESTHIT explicitly when threshold is
// not 1.0 but BESTHIT semantics are still wanted.
func New(filters []NamedFilter, mode Mode, threshold float64, inclusive bool) *Classifier {
	if threshold == 1.0 {
		mode = BESTHIT
	}
	return &Classifier{filters: filters, mode: mode, threshold: threshold, inclusive: inclusive}
}

// WithMinHitCount sets the legacy minimum-raw-hit-count gate: in STD and
// ORDERED modes only, a filter is included in the hit set only if it
// also has at least n matching k-mers by raw count, not just by ratio.
// BESTHIT and SCORES ignore this gate, matching the original's wiring of
// the legacy counters into only the non-scoring modes.
func (c *Classifier) WithMinHitCount(n int) *Classifier {
	c.minHitCount = n
	return c
}

func (c *Classifier) passesMinHitCount(seq string, enc *kmer.Encoder, f Filter) bool {
	if c.minHitCount <= 0 {
		return true
	}
	return seqeval.EvalCount(seq, enc, f) >= c.minHitCount
}

// Mode reports the effective mode (after the threshold==1.0 override).
func (c *Classifier) Mode() Mode { return c.mode }

// Labels returns the filter labels in declared order, index-aligned with
// Result.Hits / Result.Scores and with the aggregator's filter indices.
func (c *Classifier) Labels() []string {
	out := make([]string, len(c.filters))
	for i, f := range c.filters {
		out[i] = f.Label
	}
	return out
}

// ClassifySingle classifies a single (unpaired) read.
func (c *Classifier) ClassifySingle(seq string, enc *kmer.Encoder) Result {
	switch c.mode {
	case ORDERED:
		return c.classifyOrdered(seq, enc)
	case BESTHIT:
		return c.classifyBestHit(seq, enc)
	case SCORES:
		return c.classifyScores(seq, enc)
	default:
		return c.classifyStd(seq, enc)
	}
}

// ClassifyPair classifies a read pair, combining each filter's verdict
// across mates per the classifier's inclusive flag. Scoring modes
// (BESTHIT, SCORES) compute per-mate scores and combine them with max()
// when inclusive or min() when exclusive (see pairScores) before applying
// the mode's selection rule.
func (c *Classifier) ClassifyPair(seq1, seq2 string, enc *kmer.Encoder) Result {
	switch c.mode {
	case ORDERED:
		return c.classifyOrderedPair(seq1, seq2, enc)
	case BESTHIT:
		return c.bestHitFromScores(c.pairScores(seq1, seq2, enc))
	case SCORES:
		scores := c.pairScores(seq1, seq2, enc)
		return Result{Hits: aboveThreshold(scores, c.threshold), Scores: scores}
	default:
		return c.classifyStdPair(seq1, seq2, enc)
	}
}

func (c *Classifier) classifyStd(seq string, enc *kmer.Encoder) Result {
	var hits []int
	for i, f := range c.filters {
		if seqeval.EvalThreshold(seq, enc, f.Filter, c.threshold) && c.passesMinHitCount(seq, enc, f.Filter) {
			hits = append(hits, i)
		}
	}
	return Result{Hits: hits}
}

func (c *Classifier) classifyStdPair(seq1, seq2 string, enc *kmer.Encoder) Result {
	var hits []int
	for i, f := range c.filters {
		p1 := seqeval.EvalThreshold(seq1, enc, f.Filter, c.threshold) && c.passesMinHitCount(seq1, enc, f.Filter)
		p2 := seqeval.EvalThreshold(seq2, enc, f.Filter, c.threshold) && c.passesMinHitCount(seq2, enc, f.Filter)
		hit := p1 && p2
		if c.inclusive {
			hit = p1 || p2
		}
		if hit {
			hits = append(hits, i)
		}
	}
	return Result{Hits: hits}
}

func (c *Classifier) classifyOrdered(seq string, enc *kmer.Encoder) Result {
	for i, f := range c.filters {
		if seqeval.EvalThreshold(seq, enc, f.Filter, c.threshold) && c.passesMinHitCount(seq, enc, f.Filter) {
			return Result{Hits: []int{i}}
		}
	}
	return Result{}
}

func (c *Classifier) classifyOrderedPair(seq1, seq2 string, enc *kmer.Encoder) Result {
	for i, f := range c.filters {
		p1 := seqeval.EvalThreshold(seq1, enc, f.Filter, c.threshold) && c.passesMinHitCount(seq1, enc, f.Filter)
		p2 := seqeval.EvalThreshold(seq2, enc, f.Filter, c.threshold) && c.passesMinHitCount(seq2, enc, f.Filter)
		hit := p1 && p2
		if c.inclusive {
			hit = p1 || p2
		}
		if hit {
			return Result{Hits: []int{i}}
		}
	}
	return Result{}
}

func (c *Classifier) classifyScores(seq string, enc *kmer.Encoder) Result {
	scores := c.singleScores(seq, enc)
	return Result{Hits: aboveThreshold(scores, c.threshold), Scores: scores}
}

func (c *Classifier) classifyBestHit(seq string, enc *kmer.Encoder) Result {
	return c.bestHitFromScores(c.singleScores(seq, enc))
}

func (c *Classifier) singleScores(seq string, enc *kmer.Encoder) []float64 {
	scores := make([]float64, len(c.filters))
	for i, f := range c.filters {
		scores[i] = seqeval.EvalScore(seq, enc, f.Filter)
	}
	return scores
}

// pairScores computes each filter's score against both mates and
// combines them per the inclusive flag: max (either mate) when
// inclusive, min (both mates) when exclusive.
func (c *Classifier) pairScores(seq1, seq2 string, enc *kmer.Encoder) []float64 {
	scores := make([]float64, len(c.filters))
	for i, f := range c.filters {
		s1 := seqeval.EvalScore(seq1, enc, f.Filter)
		s2 := seqeval.EvalScore(seq2, enc, f.Filter)
		if c.inclusive {
			scores[i] = max(s1, s2)
		} else {
			scores[i] = min(s1, s2)
		}
	}
	return scores
}

func (c *Classifier) bestHitFromScores(scores []float64) Result {
	best := 0.0
	for _, s := range scores {
		if s > best {
			best = s
		}
	}
	if best <= 0 {
		return Result{Scores: scores}
	}
	var hits []int
	for i, s := range scores {
		if s == best {
			hits = append(hits, i)
		}
	}
	return Result{Hits: hits, Scores: scores}
}

func aboveThreshold(scores []float64, threshold float64) []int {
	var hits []int
	for i, s := range scores {
		if s > threshold {
			hits = append(hits, i)
		}
	}
	sort.Ints(hits)
	return hits
}

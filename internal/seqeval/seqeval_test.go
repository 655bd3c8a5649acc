package seqeval

import (
	"testing"

	"github.com/go-biocat/biocat/internal/kmer"
)

// setFilter is a minimal Filter backed by a set of canonical k-mer keys,
// for exercising the evaluator without depending on internal/bloomfilter.
type setFilter map[string]bool

func (s setFilter) Contains(km []byte) bool { return s[string(km)] }

func filterOf(enc *kmer.Encoder, seqs ...string) setFilter {
	s := setFilter{}
	for _, seq := range seqs {
		for pos := 0; pos+enc.K() <= len(seq); pos++ {
			if km, ok := enc.Prep(seq, pos); ok {
				s[string(km)] = true
			}
		}
	}
	return s
}

func TestEvalThresholdShortReadIsNoMatch(t *testing.T) {
	enc := kmer.NewEncoder(4)
	f := filterOf(enc, "AAAACCCC")
	if EvalThreshold("AAA", enc, f, 0.5) {
		t.Fatal("read shorter than k must never match")
	}
	if EvalScore("AAA", enc, f) != 0 {
		t.Fatal("score for a too-short read must be 0")
	}
}

func TestEvalScoreAllNIsZero(t *testing.T) {
	enc := kmer.NewEncoder(4)
	f := filterOf(enc, "AAAACCCC")
	if EvalScore("NNNNNNNN", enc, f) != 0 {
		t.Fatal("all-N read must score 0")
	}
}

func TestEvalThresholdZeroAcceptsAnyMatch(t *testing.T) {
	enc := kmer.NewEncoder(4)
	f := filterOf(enc, "AAAACCCC")
	if !EvalThreshold("AAAANNNN", enc, f, 0) {
		t.Fatal("threshold 0 with one extractable matching k-mer must accept")
	}
}

func TestEvalThresholdExactLengthOneKmer(t *testing.T) {
	enc := kmer.NewEncoder(4)
	f := filterOf(enc, "AAAACCCC")
	if !EvalThreshold("AAAA", enc, f, 1.0) {
		t.Fatal("a read of exactly length k matching the filter must accept at threshold 1.0")
	}
}

func TestEvalThresholdAgreesWithEvalScore(t *testing.T) {
	enc := kmer.NewEncoder(4)
	f := filterOf(enc, "AAAACCCC", "GGGGTTTT")
	seqs := []string{"AAAACCCC", "GGGGTTTT", "CGCGCGCG", "AAAACCCCGGGGTTTT", "AAAANNNN"}
	for _, seq := range seqs {
		score := EvalScore(seq, enc, f)
		for _, th := range []float64{0, 0.25, 0.5, 0.75, 1.0} {
			want := score >= th
			got := EvalThreshold(seq, enc, f, th)
			if got != want {
				t.Fatalf("seq=%q threshold=%v: EvalThreshold=%v, but EvalScore=%v (want %v)", seq, th, got, score, want)
			}
		}
	}
}

func TestEvalCountRawMatches(t *testing.T) {
	enc := kmer.NewEncoder(4)
	f := filterOf(enc, "AAAACCCC")
	if got := EvalCount("AAAACCCC", enc, f); got != 5 {
		t.Fatalf("EvalCount = %d, want 5", got)
	}
}

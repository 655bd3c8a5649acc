package pipeline

import (
	"testing"

	"github.com/go-biocat/biocat/internal/aggregate"
	"github.com/go-biocat/biocat/internal/classify"
	"github.com/go-biocat/biocat/internal/config"
	"github.com/go-biocat/biocat/internal/kmer"
	"github.com/go-biocat/biocat/internal/record"
)

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

// sliceSource replays a fixed slice of reads, implementing record.Source.
type sliceSource struct {
	reads []record.Read
	pos   int
}

func (s *sliceSource) Next() (record.Read, bool, error) {
	if s.pos >= len(s.reads) {
		return record.Read{}, false, nil
	}
	r := s.reads[s.pos]
	s.pos++
	return r, true, nil
}

func (s *sliceSource) Close() error { return nil }

func newTestClassifier() *classify.Classifier {
	enc := kmer.NewEncoder(4)
	filters := []classify.NamedFilter{
		{Label: "F_A", Filter: filterOf(enc, "AAAACCCC")},
		{Label: "F_B", Filter: filterOf(enc, "GGGGTTTT")},
	}
	return classify.New(filters, classify.STD, 0.5, false)
}

func newTestPipeline(cfg *config.RunConfig) (*Pipeline, *aggregate.Aggregator) {
	c := newTestClassifier()
	agg := aggregate.New(c.Labels())
	pl := New(cfg, c, func() *kmer.Encoder { return kmer.NewEncoder(4) }, agg, nil, nil)
	return pl, agg
}

func TestRunSingleRoutesToCorrectDestinations(t *testing.T) {
	cfg := &config.RunConfig{Threads: 2}
	pl, agg := newTestPipeline(cfg)

	src := &sliceSource{reads: []record.Read{
		{ID: "r1", Seq: "AAAACCCC", IsChaste: true},
		{ID: "r2", Seq: "CGCGCGCG", IsChaste: true},
		{ID: "r3", Seq: "AAAACCCCGGGGTTTT", IsChaste: true},
	}}
	if err := pl.RunSingle(src); err != nil {
		t.Fatalf("RunSingle: %v", err)
	}
	if agg.TotalSeen() != 3 {
		t.Fatalf("TotalSeen = %d, want 3", agg.TotalSeen())
	}
}

func TestChastityGatesReadsToNoMatch(t *testing.T) {
	cfg := &config.RunConfig{Threads: 2, Chastity: true}
	pl, agg := newTestPipeline(cfg)

	src := &sliceSource{reads: []record.Read{
		{ID: "r1", Seq: "AAAACCCC", IsChaste: false},
	}}
	if err := pl.RunSingle(src); err != nil {
		t.Fatalf("RunSingle: %v", err)
	}
	hits := agg.HitAnywhere()
	for i, h := range hits {
		if h != 0 {
			t.Fatalf("non-chaste read must not be evaluated, filter %d got hit_anywhere=%d", i, h)
		}
	}
	if agg.TotalSeen() != 1 {
		t.Fatalf("TotalSeen = %d, want 1", agg.TotalSeen())
	}
}

func TestRunPairedExclusiveRequiresBothMates(t *testing.T) {
	cfg := &config.RunConfig{Threads: 2}
	pl, agg := newTestPipeline(cfg)

	src1 := &sliceSource{reads: []record.Read{{ID: "p1", Seq: "AAAACCCC", IsChaste: true}}}
	src2 := &sliceSource{reads: []record.Read{{ID: "p1", Seq: "CGCGCGCG", IsChaste: true}}}
	if err := pl.RunPaired(src1, src2); err != nil {
		t.Fatalf("RunPaired: %v", err)
	}
	hits := agg.HitAnywhere()
	for i, h := range hits {
		if h != 0 {
			t.Fatalf("exclusive pair with one failing mate must not hit filter %d, got %d", i, h)
		}
	}
}

func TestRunInterleavedReassemblesPairsAndCountsOrphans(t *testing.T) {
	cfg := &config.RunConfig{Threads: 2}
	pl, agg := newTestPipeline(cfg)

	src := &sliceSource{reads: []record.Read{
		{ID: "readA/1", Seq: "AAAACCCC", IsChaste: true},
		{ID: "readA/2", Seq: "AAAACCCC", IsChaste: true},
		{ID: "orphan/1", Seq: "AAAACCCC", IsChaste: true},
	}}
	orphans, err := pl.RunInterleaved(src)
	if err != nil {
		t.Fatalf("RunInterleaved: %v", err)
	}
	if orphans != 1 {
		t.Fatalf("orphans = %d, want 1", orphans)
	}
	if agg.TotalSeen() != 1 {
		t.Fatalf("TotalSeen = %d, want 1 (only the completed pair is classified)", agg.TotalSeen())
	}
}

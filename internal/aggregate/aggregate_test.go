package aggregate

import (
	"strings"
	"sync"
	"testing"
)

func TestRecordDestinationRule(t *testing.T) {
	a := New([]string{"F_A", "F_B"})

	if dest := a.Record(nil); dest != a.NoMatch() {
		t.Fatalf("empty hit set must route to NoMatch, got %d", dest)
	}
	if dest := a.Record([]int{0}); dest != 0 {
		t.Fatalf("single hit must route to that filter, got %d", dest)
	}
	if dest := a.Record([]int{0, 1}); dest != a.MultiMatch() {
		t.Fatalf("multiple hits must route to MultiMatch, got %d", dest)
	}
}

func TestTotalSeenEqualsSumOfCounts(t *testing.T) {
	a := New([]string{"F_A", "F_B"})
	a.Record([]int{0})
	a.Record([]int{1})
	a.Record(nil)
	a.Record([]int{0, 1})

	if a.TotalSeen() != 4 {
		t.Fatalf("TotalSeen = %d, want 4", a.TotalSeen())
	}
}

func TestHitAnywhereNeverExceedsTotalSeen(t *testing.T) {
	a := New([]string{"F_A", "F_B"})
	for i := 0; i < 10; i++ {
		a.Record([]int{0, 1})
	}
	total := a.TotalSeen()
	for _, h := range a.HitAnywhere() {
		if h > total {
			t.Fatalf("hit_anywhere %d exceeds total seen %d", h, total)
		}
	}
}

func TestSingleFilterNeverMultiMatches(t *testing.T) {
	a := New([]string{"only"})
	a.Record([]int{0})
	multi := a.Record([]int{0})
	if multi == a.MultiMatch() {
		t.Fatal("a single-filter aggregator should never produce MultiMatch from a single-filter hit set")
	}
}

func TestConcurrentRecordIsRaceFree(t *testing.T) {
	a := New([]string{"F_A", "F_B", "F_C"})
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.Record([]int{i % 3})
		}(i)
	}
	wg.Wait()
	if a.TotalSeen() != 100 {
		t.Fatalf("TotalSeen = %d, want 100", a.TotalSeen())
	}
}

func TestWriteSummaryHasTrailingBins(t *testing.T) {
	a := New([]string{"F_A"})
	a.Record([]int{0})
	a.Record(nil)

	var sb strings.Builder
	if err := a.WriteSummary(&sb); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	out := sb.String()
	if !strings.Contains(out, "NO_MATCH") || !strings.Contains(out, "MULTI_MATCH") {
		t.Fatalf("summary missing trailing bins: %q", out)
	}
	if !strings.Contains(out, "F_A") {
		t.Fatalf("summary missing filter label: %q", out)
	}
}

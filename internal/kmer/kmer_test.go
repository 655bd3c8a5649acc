package kmer

import "testing"

func reverseComplement(s string) string {
	comp := map[byte]byte{'A': 'T', 'T': 'A', 'C': 'G', 'G': 'C', 'a': 't', 't': 'a', 'c': 'g', 'g': 'c'}
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c, ok := comp[s[i]]
		if !ok {
			c = s[i]
		}
		out[len(s)-1-i] = c
	}
	return string(out)
}

func TestPrepRejectsNonACGT(t *testing.T) {
	enc := NewEncoder(4)
	if _, ok := enc.Prep("AANT", 0); ok {
		t.Fatal("expected rejection on N")
	}
}

func TestPrepCanonicalAgreesWithRevComp(t *testing.T) {
	cases := []string{"AAAACCCC", "GGGGTTTT", "ACGTACGTACGT", "TTTTTTTTT", "GATTACA"}
	for _, seq := range cases {
		rc := reverseComplement(seq)
		for k := 4; k <= 7 && k <= len(seq); k++ {
			enc := NewEncoder(k)
			for pos := 0; pos+k <= len(seq); pos++ {
				got, ok := enc.Prep(seq, pos)
				if !ok {
					continue
				}
				rcPos := len(seq) - pos - k
				want, ok2 := NewEncoder(k).Prep(rc, rcPos)
				if !ok2 {
					t.Fatalf("reverse complement window unexpectedly rejected: seq=%s k=%d pos=%d", seq, k, pos)
				}
				if got.Compare(want) != 0 {
					t.Fatalf("k=%d seq=%s pos=%d: got %x want %x (canonical form must match its own reverse complement window)", k, seq, pos, []byte(got), []byte(want))
				}
			}
		}
	}
}

func TestPrepHangingByteRightJustified(t *testing.T) {
	enc := NewEncoder(5)
	km, ok := enc.Prep("AAAAC", 0)
	if !ok {
		t.Fatal("expected acceptance")
	}
	if len(km) != 2 {
		t.Fatalf("expected 2 bytes for k=5, got %d", len(km))
	}
	if km[1] != 0x01 {
		t.Fatalf("hanging base C must be right-justified as 0x01, got %#02x", km[1])
	}
}

func TestKmerStringRoundTrip(t *testing.T) {
	enc := NewEncoder(8)
	km, ok := enc.Prep("AAAACCCC", 0)
	if !ok {
		t.Fatal("expected acceptance")
	}
	s := km.String()
	if s != "AAAACCCC" && s != reverseComplement("AAAACCCC") {
		t.Fatalf("unexpected round-trip %q", s)
	}
}

func TestCompareOrdering(t *testing.T) {
	a := Kmer([]byte{0x00})
	b := Kmer([]byte{0x01})
	if a.Compare(b) >= 0 {
		t.Fatal("expected a < b")
	}
	if b.Compare(a) <= 0 {
		t.Fatal("expected b > a")
	}
	if a.Compare(a) != 0 {
		t.Fatal("expected equal")
	}
}

func TestNewEncoderPanicsOnSmallK(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for k<=3")
		}
	}()
	NewEncoder(3)
}

package bloomfilter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-biocat/biocat/internal/kmer"
)

func TestContainsAfterInsert(t *testing.T) {
	f := New("test", 4, 3, 1024, 0, 0.01, 42)
	enc := kmer.NewEncoder(4)

	km, ok := enc.Prep("AAAACCCC", 0)
	if !ok {
		t.Fatal("expected acceptance")
	}
	if f.Contains(km) {
		t.Fatal("expected no false positive before insert for this seed/size")
	}
	f.Insert(km)
	if !f.Contains(km) {
		t.Fatal("expected containment immediately after insert (no false negatives)")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.bf")

	f := New("mybacteria", 4, 4, 2048, 10, 0.01, 7)
	enc := kmer.NewEncoder(4)
	var inserted []kmer.Kmer
	for _, seq := range []string{"AAAACCCC", "GGGGTTTT", "ACGTACGT"} {
		km, ok := enc.Prep(seq, 0)
		if !ok {
			t.Fatal("expected acceptance")
		}
		f.Insert(km)
		inserted = append(inserted, km)
	}

	if err := f.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Label() != "mybacteria" {
		t.Fatalf("Label = %q, want mybacteria", loaded.Label())
	}
	if loaded.KmerSize() != 4 || loaded.HashCount() != 4 || loaded.BitCount() != 2048 {
		t.Fatalf("unexpected dimensions: k=%d h=%d m=%d", loaded.KmerSize(), loaded.HashCount(), loaded.BitCount())
	}
	for _, km := range inserted {
		if !loaded.Contains(km) {
			t.Fatalf("loaded filter missing inserted k-mer %x", []byte(km))
		}
	}
}

func TestLoadMissingSidecarIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nosidecar.bf")

	f := New("x", 4, 2, 64, 0, 0.1, 1)
	if err := f.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Remove the sidecar file Save just wrote.
	sidecarPath := path[:len(path)-2] + "txt"
	if err := os.Remove(sidecarPath); err != nil {
		t.Fatalf("removing sidecar: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error loading filter with missing sidecar")
	}
}

// Package bloomfilter implements the membership-test half of the
// classification engine: a fixed bit array with H independent hash
// positions per canonical k-mer, loaded from a pre-built file plus its
// sidecar metadata. False positives are permitted at the filter's
// configured rate; false negatives are not.
//
// Storage and hashing are grounded on two sibling tools in the same
// k-mer-screening lineage, kshedden/seqmatch and kshedden/muscato: both
// back a Bloom-style sketch with golang-collections/go-datastructures's
// bitarray.BitArray, and derive H independent hash functions from H
// independently-seeded buzhash permutation tables.
package bloomfilter

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/chmduquesne/rollinghash/buzhash32"
	"github.com/golang-collections/go-datastructures/bitarray"
	"github.com/pkg/errors"
)

const magic uint32 = 0xB10F11B7
const fileVersion uint32 = 1

// Filter is an immutable Bloom filter: a bit array of M bits, H hash
// positions per key, built for canonical k-mers of window size K.
// Parameters never change after Load; Filter is safe for concurrent use by
// many goroutines.
type Filter struct {
	ID      string
	K       int
	H       int
	M       uint64
	Entries uint64
	FPR     float64

	bits   bitarray.BitArray
	tables [][256]uint32
	seed   int64
}

// K-mer size, hash count, and bit count accessors (the spec calls these
// "report k, H, M, id, estimated false-positive rate").
func (f *Filter) KmerSize() int              { return f.K }
func (f *Filter) HashCount() int             { return f.H }
func (f *Filter) BitCount() uint64           { return f.M }
func (f *Filter) Label() string              { return f.ID }
func (f *Filter) FalsePositiveRate() float64 { return f.FPR }

// Contains reports whether every one of the H hash-derived bit positions
// for kmer is set. It never produces a false negative.
func (f *Filter) Contains(kmer []byte) bool {
	for _, pos := range f.positions(kmer) {
		set, err := f.bits.GetBit(pos)
		if err != nil || !set {
			return false
		}
	}
	return true
}

// positions computes the H bit indices a key hashes to, using H
// independently-seeded buzhash instances over the key's packed bytes.
func (f *Filter) positions(kmer []byte) []uint64 {
	out := make([]uint64, f.H)
	for j := 0; j < f.H; j++ {
		h := buzhash32.NewFromUint32Array(f.tables[j])
		h.Write(kmer)
		out[j] = uint64(h.Sum32()) % f.M
	}
	return out
}

// genTables deterministically derives H independent 256-entry permutation
// tables from seed, following kshedden/seqmatch's genTables: each table is
// a bijection of uint32 values over byte values 0-255, built by rejection
// sampling so that no two entries in a table collide.
func genTables(seed int64, h int) [][256]uint32 {
	rng := rand.New(rand.NewSource(seed))
	tables := make([][256]uint32, h)
	for j := 0; j < h; j++ {
		seen := make(map[uint32]bool, 256)
		for i := 0; i < 256; i++ {
			for {
				x := uint32(rng.Int63())
				if !seen[x] {
					tables[j][i] = x
					seen[x] = true
					break
				}
			}
		}
	}
	return tables
}

// New builds a Filter of the given dimensions over an empty bit array,
// seeding its hash family from seed so the same seed always reproduces the
// same H hash functions. It is exported for tests and for external
// filter-building tools; the classification core never inserts keys.
func New(id string, k, h int, m, entries uint64, fpr float64, seed int64) *Filter {
	return &Filter{
		ID:      id,
		K:       k,
		H:       h,
		M:       m,
		Entries: entries,
		FPR:     fpr,
		bits:    bitarray.NewBitArray(m),
		tables:  genTables(seed, h),
		seed:    seed,
	}
}

// Insert sets the H bit positions for kmer. Only used by filter-building
// tooling and tests; the classification core treats filters as read-only.
func (f *Filter) Insert(kmer []byte) {
	for _, pos := range f.positions(kmer) {
		f.bits.SetBit(pos)
	}
}

// Load reads a Filter from path plus its sidecar metadata file (path with
// its last two characters replaced by "txt", e.g. "ecoli.bf" ->
// "ecoli.txt"). A missing sidecar is fatal, matching
// BioBloomClassifier::loadFilters.
func Load(path string) (*Filter, error) {
	if len(path) < 2 {
		return nil, errors.Errorf("bloomfilter: invalid filter path %q", path)
	}
	infoPath := path[:len(path)-2] + "txt"

	info, err := loadSidecar(infoPath)
	if err != nil {
		return nil, errors.Wrapf(err, "bloomfilter: sidecar %q required but unreadable", infoPath)
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "bloomfilter: cannot open filter %q", path)
	}
	defer fh.Close()

	gz, err := gzip.NewReader(fh)
	if err != nil {
		return nil, errors.Wrapf(err, "bloomfilter: %q is not a valid filter file", path)
	}
	defer gz.Close()
	r := bufio.NewReader(gz)

	var hdr struct {
		Magic, Version uint32
		K, H           uint32
		M, Entries     uint64
		Seed           int64
	}
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, errors.Wrapf(err, "bloomfilter: %q header truncated", path)
	}
	if hdr.Magic != magic {
		return nil, errors.Errorf("bloomfilter: %q is not a filter file (bad magic)", path)
	}
	if hdr.Version != fileVersion {
		return nil, errors.Errorf("bloomfilter: %q has unsupported version %d", path, hdr.Version)
	}

	f := &Filter{
		ID:      info.id,
		K:       int(hdr.K),
		H:       int(hdr.H),
		M:       hdr.M,
		Entries: hdr.Entries,
		FPR:     info.fpr,
		bits:    bitarray.NewBitArray(hdr.M),
		tables:  genTables(hdr.Seed, int(hdr.H)),
		seed:    hdr.Seed,
	}
	if err := readBits(r, f.bits, hdr.M); err != nil {
		return nil, errors.Wrapf(err, "bloomfilter: %q bit array truncated", path)
	}
	if info.k != 0 && info.k != f.K {
		return nil, errors.Errorf("bloomfilter: %q sidecar k=%d disagrees with filter k=%d", path, info.k, f.K)
	}
	return f, nil
}

// Save writes f to path (gzip-wrapped header + bit array), plus a sidecar
// metadata file. Used by tests and filter-building tooling.
func (f *Filter) Save(path string) error {
	fh, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "bloomfilter: cannot create %q", path)
	}
	defer fh.Close()
	gz := gzip.NewWriter(fh)
	defer gz.Close()

	hdr := struct {
		Magic, Version uint32
		K, H           uint32
		M, Entries     uint64
		Seed           int64
	}{magic, fileVersion, uint32(f.K), uint32(f.H), f.M, f.Entries, f.seed}
	if err := binary.Write(gz, binary.BigEndian, &hdr); err != nil {
		return err
	}
	if err := writeBits(gz, f.bits, f.M); err != nil {
		return err
	}
	if len(path) < 2 {
		return errors.Errorf("bloomfilter: invalid filter path %q", path)
	}
	infoPath := path[:len(path)-2] + "txt"
	return saveSidecar(infoPath, sidecar{id: f.ID, k: f.K, h: f.H, m: f.M, entries: f.Entries, fpr: f.FPR})
}

func readBits(r io.Reader, ba bitarray.BitArray, m uint64) error {
	nwords := (m + 63) / 64
	buf := make([]byte, 8)
	for w := uint64(0); w < nwords; w++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		word := binary.BigEndian.Uint64(buf)
		for b := uint64(0); b < 64; b++ {
			idx := w*64 + b
			if idx >= m {
				break
			}
			if word&(1<<(63-b)) != 0 {
				if err := ba.SetBit(idx); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func writeBits(w io.Writer, ba bitarray.BitArray, m uint64) error {
	nwords := (m + 63) / 64
	buf := make([]byte, 8)
	for wi := uint64(0); wi < nwords; wi++ {
		var word uint64
		for b := uint64(0); b < 64; b++ {
			idx := wi*64 + b
			if idx >= m {
				break
			}
			set, err := ba.GetBit(idx)
			if err != nil {
				return err
			}
			if set {
				word |= 1 << (63 - b)
			}
		}
		binary.BigEndian.PutUint64(buf, word)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// sidecar mirrors the ".txt" metadata file BioBloomClassifier expects next
// to every filter: newline-delimited "key\tvalue" pairs.
type sidecar struct {
	id      string
	k, h    int
	m       uint64
	entries uint64
	fpr     float64
}

func loadSidecar(path string) (sidecar, error) {
	fh, err := os.Open(path)
	if err != nil {
		return sidecar{}, err
	}
	defer fh.Close()

	var s sidecar
	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			continue
		}
		key, val := fields[0], fields[1]
		switch key {
		case "id":
			s.id = val
		case "k":
			s.k, _ = strconv.Atoi(val)
		case "h":
			s.h, _ = strconv.Atoi(val)
		case "m":
			v, _ := strconv.ParseUint(val, 10, 64)
			s.m = v
		case "entries":
			v, _ := strconv.ParseUint(val, 10, 64)
			s.entries = v
		case "fpr":
			v, _ := strconv.ParseFloat(val, 64)
			s.fpr = v
		}
	}
	if err := scanner.Err(); err != nil {
		return sidecar{}, err
	}
	if s.id == "" {
		return sidecar{}, errors.Errorf("bloomfilter: sidecar %q missing id field", path)
	}
	return s, nil
}

func saveSidecar(path string, s sidecar) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	w := bufio.NewWriter(fh)
	fmt.Fprintf(w, "id\t%s\n", s.id)
	fmt.Fprintf(w, "k\t%d\n", s.k)
	fmt.Fprintf(w, "h\t%d\n", s.h)
	fmt.Fprintf(w, "m\t%d\n", s.m)
	fmt.Fprintf(w, "entries\t%d\n", s.entries)
	fmt.Fprintf(w, "fpr\t%g\n", s.fpr)
	return w.Flush()
}

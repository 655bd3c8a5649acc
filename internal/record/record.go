// Package record defines the read types the pipeline moves between its
// stages, and the RecordSource capability that decouples the pipeline
// from any particular file format.
//
// FastxSource is grounded on the shenwei356/bio seqio/fastx.Reader usage
// pattern common across the retrieved corpus (shenwei356/kmcp's
// compute.go, shenwei356/LexicMap's search/build commands, vmikk/phredsort):
// construct a *fastx.Reader over a path, loop calling Read() until io.EOF.
// fastx.Reader already unwraps gzip/bzip2/xz transparently via xopen, so
// this adapter never touches compression directly.
package record

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
)

// Mate identifies which half of a pair a Read belongs to.
type Mate int

const (
	Unpaired Mate = 0
	Mate1    Mate = 1
	Mate2    Mate = 2
)

// Read is one sequencing read, immutable once produced by a Source.
type Read struct {
	ID       string
	Seq      string
	Qual     string
	Mate     Mate
	IsChaste bool
}

// HasQual reports whether this read carries a real quality string (FASTQ)
// as opposed to a FASTA record's absent quality. The router uses this to
// pick the `.fa` / `.fq` output extension.
func (r Read) HasQual() bool { return r.Qual != "" }

// Source yields reads one at a time until exhausted.
type Source interface {
	// Next returns the next read. ok is false and err is nil at a clean
	// end of stream; err is non-nil on a malformed record or I/O failure.
	Next() (Read, bool, error)
	Close() error
}

// FastxSource adapts a shenwei356/bio fastx.Reader to the Source
// interface, tagging every read with a fixed mate value and deriving
// IsChaste from an Illumina-style header
// (".../1:N:0:..." or "... 1:Y:0:...", Y meaning filtered/not chaste).
type FastxSource struct {
	reader *fastx.Reader
	mate   Mate
}

// NewFastxSource opens path (FASTA or FASTQ, optionally gz/bz2/xz
// compressed) and tags every read it yields with mate.
func NewFastxSource(path string, mate Mate) (*FastxSource, error) {
	r, err := fastx.NewReader(seq.DNAredundant, path, fastx.DefaultIDRegexp)
	if err != nil {
		return nil, errors.Wrapf(err, "record: opening %q", path)
	}
	return &FastxSource{reader: r, mate: mate}, nil
}

func (s *FastxSource) Next() (Read, bool, error) {
	rec, err := s.reader.Read()
	if err == io.EOF {
		return Read{}, false, nil
	}
	if err != nil {
		return Read{}, false, errors.Wrap(err, "record: reading fastx record")
	}
	read := Read{
		ID:       string(rec.ID),
		Seq:      string(rec.Seq.Seq),
		Mate:     s.mate,
		IsChaste: true,
	}
	if rec.Seq.Qual != nil {
		read.Qual = string(rec.Seq.Qual)
	}
	read.IsChaste = isChaste(string(rec.Name))
	return read, true, nil
}

func (s *FastxSource) Close() error { s.reader.Close(); return nil }

// CountRecords pre-scans path and returns its record count, for sizing a
// progress bar before the real pass starts. Mirrors the teacher's
// countReads/countReadsByMode: a throwaway first pass over the same file
// format the real run will read.
func CountRecords(path string) (int64, error) {
	r, err := fastx.NewReader(seq.DNAredundant, path, fastx.DefaultIDRegexp)
	if err != nil {
		return 0, errors.Wrapf(err, "record: opening %q for count", path)
	}
	defer r.Close()

	var n int64
	for {
		_, err := r.Read()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, errors.Wrapf(err, "record: counting %q", path)
		}
		n++
	}
}

// isChaste inspects an Illumina-style FASTQ header's second
// space-separated field ("1:N:0:INDEX" / "1:Y:0:INDEX") and reports false
// only when the filtered flag is explicitly "Y". Headers that don't
// follow this convention are treated as chaste, matching the pipeline's
// default of passing reads through when the platform flag is absent.
func isChaste(name string) bool {
	fields := strings.Fields(name)
	if len(fields) < 2 {
		return true
	}
	parts := strings.Split(fields[1], ":")
	if len(parts) < 2 {
		return true
	}
	return parts[1] != "Y"
}

// InterleavedKey returns the pair-reassembly key for an Illumina-style
// read ID ("readname/1" or "readname/2"): the ID with its last two
// characters stripped. MateFromID reports the mate implied by the ID's
// final character (Mate1 when it is '1', Mate2 otherwise).
func InterleavedKey(id string) string {
	if len(id) < 2 {
		return id
	}
	return id[:len(id)-2]
}

func MateFromID(id string) Mate {
	if len(id) == 0 {
		return Mate2
	}
	if id[len(id)-1] == '1' {
		return Mate1
	}
	return Mate2
}

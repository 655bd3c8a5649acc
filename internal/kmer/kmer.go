// Package kmer turns DNA sequence windows into canonical bit-packed keys.
//
// The packing and reverse-complement logic is adapted from
// ReadsProcessor::prepSeq in BioBloomTools: lookup tables encode bases into
// 2-bit codes (or a sentinel for anything that isn't ACGT/acgt), forward and
// reverse-complement bytes are built side by side, and the moment the two
// diverge the losing side stops being computed (early strand commitment).
package kmer

import "strings"

// Kmer is a canonical, bit-packed k-mer: 2 bits per base, big-endian within
// each byte, the base at window position 0 in the top two bits of byte 0.
// When k is not a multiple of 4, the remaining bases of the final byte are
// right-justified and its unused high bits are zero.
type Kmer []byte

// Compare returns the byte-wise unsigned comparison of two canonical
// k-mers, matching the ordering used to pick the canonical strand.
func (k Kmer) Compare(other Kmer) int {
	n := len(k)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if k[i] != other[i] {
			if k[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// String unpacks the k-mer back to an ACGT string of len(k)*4 bases. When
// k is not a multiple of 4, the zero high bits of the final byte come out
// as leading 'A's of the last group of four.
// This exists for debugging/logging only; it is never on the hot path.
func (k Kmer) String() string {
	var sb strings.Builder
	sb.Grow(len(k) * 4)
	idx, offset := 0, 3
	for i := 0; i < len(k)*4; i++ {
		if offset < 0 {
			idx++
			offset = 3
		}
		code := (k[idx] >> uint(2*offset)) & 3
		sb.WriteByte(basesUpper[code])
		offset--
	}
	return sb.String()
}

const basesUpper = "ACGT"

const sentinel = 0xFF

// fwdCode[c] is the 2-bit forward code for ASCII byte c (A=0 C=1 G=2 T=3),
// or sentinel if c is not A/C/G/T/a/c/g/t. rcCode[c] is the 2-bit code of
// c's complement (A<->T, C<->G), used when building the reverse strand.
var fwdCode, rcCode [256]byte

// fw0..fw3 / rv0..rv3 pre-shift a code into its slot within a 4-base group
// (slot 0 most significant). These mirror the original's byte-at-a-time
// tables and are what the hot loop actually indexes.
var fw0, fw1, fw2, fw3 [256]byte
var rv0, rv1, rv2, rv3 [256]byte

func init() {
	for i := range fwdCode {
		fwdCode[i], rcCode[i] = sentinel, sentinel
	}
	set := func(base byte, fwd, rc byte) {
		fwdCode[base], rcCode[base] = fwd, rc
	}
	set('A', 0, 3)
	set('a', 0, 3)
	set('C', 1, 2)
	set('c', 1, 2)
	set('G', 2, 1)
	set('g', 2, 1)
	set('T', 3, 0)
	set('t', 3, 0)

	shiftInto := func(code [256]byte, shift uint) [256]byte {
		var out [256]byte
		for i, v := range code {
			if v == sentinel {
				out[i] = sentinel
			} else {
				out[i] = v << shift
			}
		}
		return out
	}
	fw0, fw1, fw2, fw3 = shiftInto(fwdCode, 6), shiftInto(fwdCode, 4), shiftInto(fwdCode, 2), shiftInto(fwdCode, 0)
	rv0, rv1, rv2, rv3 = shiftInto(rcCode, 6), shiftInto(rcCode, 4), shiftInto(rcCode, 2), shiftInto(rcCode, 0)
}

// Encoder packs canonical k-mers from sequence windows. It holds per-call
// mutable scratch buffers (fw, rv) and must not be shared across
// goroutines; the lookup tables above are read-only and safe to share.
type Encoder struct {
	k               int
	kmerSizeInBytes int
	halfSizeInBytes int
	hangingBases    int
	hangingExists   bool
	fw, rv          []byte
}

// NewEncoder builds an Encoder for k-mers of the given window size. k must
// be > 3 (shorter windows cannot reliably canonicalize, matching the
// original's assertion).
func NewEncoder(k int) *Encoder {
	if k <= 3 {
		panic("kmer: window size must be greater than 3")
	}
	e := &Encoder{
		k:               k,
		kmerSizeInBytes: k / 4,
		halfSizeInBytes: k / 8,
	}
	if k%8 != 0 {
		e.halfSizeInBytes++
	}
	if k%4 != 0 {
		e.hangingBases = k % 4
		e.kmerSizeInBytes++
		e.hangingExists = true
	}
	e.fw = make([]byte, e.kmerSizeInBytes)
	e.rv = make([]byte, e.kmerSizeInBytes)
	return e
}

// K returns the window size this encoder was built for.
func (e *Encoder) K() int { return e.k }

// ByteLen returns the number of bytes a canonical k-mer occupies.
func (e *Encoder) ByteLen() int { return e.kmerSizeInBytes }

// Prep returns the canonical k-mer starting at pos in seq, or false if any
// of seq[pos:pos+k] is not in {A,C,G,T,a,c,g,t}. The caller must ensure
// pos+k <= len(seq); this is a precondition, not a checked error.
func (e *Encoder) Prep(seq string, pos int) (Kmer, bool) {
	fwdIdx := pos
	revIdx := pos + e.k - 1
	out := 0

	// Walk both ends simultaneously, byte by byte, until the strands
	// diverge (early strand commitment) or we exhaust the half-length.
	for ; out < e.halfSizeInBytes; out++ {
		fb, ok := packForward(seq, fwdIdx)
		if !ok {
			return nil, false
		}
		rb, ok := packReverse(seq, revIdx)
		if !ok {
			return nil, false
		}
		e.fw[out], e.rv[out] = fb, rb
		fwdIdx += 4
		revIdx -= 4

		if fb < rb {
			return e.finishForward(seq, fwdIdx, out+1)
		}
		if fb > rb {
			return e.finishReverse(seq, revIdx, out+1)
		}
	}

	// Palindromic through the half-length: only the forward half
	// uniquely identifies the k-mer, so materialize forward bytes only.
	return e.finishForward(seq, fwdIdx, out)
}

// packForward packs the 4 bases seq[i:i+4] into one byte, most significant
// base first. ok is false on any non-ACGT byte.
func packForward(seq string, i int) (byte, bool) {
	c0, c1, c2, c3 := fw0[seq[i]], fw1[seq[i+1]], fw2[seq[i+2]], fw3[seq[i+3]]
	if c0 == sentinel || c1 == sentinel || c2 == sentinel || c3 == sentinel {
		return 0, false
	}
	return c0 | c1 | c2 | c3, true
}

// packReverse packs the reverse-complement of the 4 bases seq[i-3:i+1]
// into one byte (seq[i] most significant, its complement first).
func packReverse(seq string, i int) (byte, bool) {
	c0, c1, c2, c3 := rv0[seq[i]], rv1[seq[i-1]], rv2[seq[i-2]], rv3[seq[i-3]]
	if c0 == sentinel || c1 == sentinel || c2 == sentinel || c3 == sentinel {
		return 0, false
	}
	return c0 | c1 | c2 | c3, true
}

// finishForward completes packing of the forward strand from byte index
// `from` onward, with the forward cursor at seqIdx.
func (e *Encoder) finishForward(seq string, seqIdx, from int) (Kmer, bool) {
	out := from
	for ; out < e.kmerSizeInBytes-boolToInt(e.hangingExists); out++ {
		b, ok := packForward(seq, seqIdx)
		if !ok {
			return nil, false
		}
		e.fw[out] = b
		seqIdx += 4
	}
	if e.hangingExists {
		b, ok := packPartial(fwdCode, seq, seqIdx, 1, e.hangingBases)
		if !ok {
			return nil, false
		}
		e.fw[out] = b
	}
	return Kmer(e.fw[:e.kmerSizeInBytes]), true
}

// finishReverse completes packing of the reverse-complement strand from
// byte index `from` onward, with the reverse cursor at seqIdx (pointing at
// the next, lower-index, base to consume).
func (e *Encoder) finishReverse(seq string, seqIdx, from int) (Kmer, bool) {
	out := from
	for ; out < e.kmerSizeInBytes-boolToInt(e.hangingExists); out++ {
		b, ok := packReverse(seq, seqIdx)
		if !ok {
			return nil, false
		}
		e.rv[out] = b
		seqIdx -= 4
	}
	if e.hangingExists {
		b, ok := packPartial(rcCode, seq, seqIdx, -1, e.hangingBases)
		if !ok {
			return nil, false
		}
		e.rv[out] = b
	}
	return Kmer(e.rv[:e.kmerSizeInBytes]), true
}

// packPartial packs n (1-3) consecutive codes, read from seq starting at
// idx and stepping by step (+1 forward, -1 reverse), right-justified into
// a byte with the first code most significant among the used bits and all
// higher bits zero.
func packPartial(code [256]byte, seq string, idx, step, n int) (byte, bool) {
	var b byte
	for i := 0; i < n; i++ {
		c := code[seq[idx]]
		if c == sentinel {
			return 0, false
		}
		b = b<<2 | c
		idx += step
	}
	return b, true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

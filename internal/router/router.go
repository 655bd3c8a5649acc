// Package router owns one writer per (destination, mate) pair and
// serializes writes to each.
//
// Grounded on BioBloomClassifier's outputFiles vector in
// BioBloomCategorizer/BioBloomClassifier.cpp, which keeps one
// Dynamicofstream per filter-or-bin (plus one per mate in paired mode)
// and closes them all at teardown, minus the double-close bug the
// design notes call out explicitly. This package closes every opened
// writer exactly once by tracking them in a plain map instead of a
// size()+2 array with hand-computed index arithmetic.
package router

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/shenwei356/xopen"

	"github.com/go-biocat/biocat/internal/record"
)

// destKey identifies one output destination: a label (filter name,
// "NO_MATCH", or "MULTI_MATCH") and a mate (Unpaired for single-end).
type destKey struct {
	label string
	mate  record.Mate
}

// Router lazily creates and serializes writes to one file per destination
// label and mate, using ext ("fa" or "fq") to pick the output extension
// and prefix as the common path prefix for every file it creates.
type Router struct {
	prefix string
	ext    string

	mu      sync.Mutex
	writers map[destKey]*xopen.Writer
	locks   map[destKey]*sync.Mutex
}

// New builds a Router that writes "{prefix}_{label}[_{mate}].{ext}" files.
// An empty ext picks "fa" or "fq" per record from whether it carries a
// quality string. xopen.Wopen compresses by the path's suffix, which is
// always ext, so output is compressed only when ext ends in one (e.g.
// "fq.gz").
func New(prefix, ext string) *Router {
	return &Router{
		prefix:  prefix,
		ext:     ext,
		writers: make(map[destKey]*xopen.Writer),
		locks:   make(map[destKey]*sync.Mutex),
	}
}

// Write appends one record to the destination file for (label, mate),
// opening it on first use. Writes to the same destination are serialized;
// writes to different destinations proceed concurrently.
func (r *Router) Write(label string, mate record.Mate, rd record.Read) error {
	w, lock, err := r.writerFor(label, mate, rd.HasQual())
	if err != nil {
		return err
	}

	lock.Lock()
	defer lock.Unlock()
	return writeRecord(w, rd)
}

func (r *Router) writerFor(label string, mate record.Mate, hasQual bool) (*xopen.Writer, *sync.Mutex, error) {
	key := destKey{label: label, mate: mate}

	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.writers[key]; ok {
		return w, r.locks[key], nil
	}

	ext := "fa"
	if hasQual {
		ext = "fq"
	}
	if r.ext != "" {
		ext = r.ext
	}
	path := fmt.Sprintf("%s_%s%s.%s", r.prefix, label, mateSuffix(mate), ext)
	w, err := xopen.Wopen(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "router: creating %q", path)
	}
	r.writers[key] = w
	lock := &sync.Mutex{}
	r.locks[key] = lock
	return w, lock, nil
}

func mateSuffix(m record.Mate) string {
	switch m {
	case record.Mate1:
		return "_1"
	case record.Mate2:
		return "_2"
	default:
		return ""
	}
}

func writeRecord(w *xopen.Writer, rd record.Read) error {
	if rd.HasQual() {
		if _, err := fmt.Fprintf(w, "@%s\n%s\n+\n%s\n", rd.ID, rd.Seq, rd.Qual); err != nil {
			return err
		}
		return nil
	}
	_, err := fmt.Fprintf(w, ">%s\n%s\n", rd.ID, rd.Seq)
	return err
}

// Close closes every writer this Router has opened, exactly once each,
// continuing past individual close errors so a single bad destination
// doesn't leak the rest. It returns the first error encountered, if any.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for key, w := range r.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "router: closing destination %q", key.label)
		}
	}
	r.writers = make(map[destKey]*xopen.Writer)
	return firstErr
}

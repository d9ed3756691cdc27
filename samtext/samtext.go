// Package samtext formats alignment records and header lines as SAM text.
// It covers exactly the fields the aligner core emits — it is not a general
// SAM reader/writer (that lives in package bam, for the binary encoding).
package samtext

import (
	"bufio"
	"fmt"
	"io"

	"github.com/biogo/hts/sam"
	"github.com/pkg/errors"
)

// Header is the handful of SAM header fields the aligner needs to emit: the
// sort-order line and one @SQ line per reference sequence.
type Header struct {
	SortOrder string // e.g. "unsorted"; defaults to "unsorted" if empty.
	SQ        []SQLine
}

// SQLine is one @SQ header line: a reference sequence name and length.
type SQLine struct {
	Name   string
	Length int
}

// WriteTo writes h as SAM header text to w.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	so := h.SortOrder
	if so == "" {
		so = "unsorted"
	}
	if _, err := fmt.Fprintf(bw, "@HD\tVN:1.6\tSO:%s\n", so); err != nil {
		return 0, errors.Wrap(err, "samtext: write @HD")
	}
	for _, sq := range h.SQ {
		if _, err := fmt.Fprintf(bw, "@SQ\tSN:%s\tLN:%d\n", sq.Name, sq.Length); err != nil {
			return 0, errors.Wrap(err, "samtext: write @SQ")
		}
	}
	return 0, bw.Flush()
}

// Record is the subset of a SAM alignment line the seed-and-extend aligner
// produces: it never emits indels, so there is no insert/delete-specific
// state beyond the CIGAR itself.
type Record struct {
	QName string
	Flag  sam.Flags
	RName string // "*" for unmapped.
	Pos   int    // 1-based leftmost mapping position; 0 for unmapped.
	MapQ  int
	Cigar sam.Cigar // nil/empty for unmapped ("*").
	RNext string
	PNext int
	TLen  int
	Seq   []byte
	Qual  []byte // Phred+33 raw scores; nil renders as "*".
	NM    int    // edit distance; only written if >= 0.
}

// Format writes one SAM alignment line (including the trailing newline) to w.
func Format(w io.Writer, r Record) error {
	rname := r.RName
	if rname == "" {
		rname = "*"
	}
	rnext := r.RNext
	if rnext == "" {
		rnext = "*"
	}
	seq := "*"
	if len(r.Seq) > 0 {
		seq = string(r.Seq)
	}
	qual := "*"
	if len(r.Qual) > 0 {
		qual = string(r.Qual)
	}
	cigarStr := "*"
	if len(r.Cigar) > 0 {
		cigarStr = r.Cigar.String()
	}
	if _, err := fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\t%s\t%s\t%d\t%d\t%s\t%s",
		r.QName, int(r.Flag), rname, r.Pos, r.MapQ, cigarStr, rnext, r.PNext, r.TLen, seq, qual); err != nil {
		return errors.Wrap(err, "samtext: write record fields")
	}
	if r.NM >= 0 {
		if _, err := fmt.Fprintf(w, "\tNM:i:%d", r.NM); err != nil {
			return errors.Wrap(err, "samtext: write NM tag")
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return errors.Wrap(err, "samtext: write record terminator")
}

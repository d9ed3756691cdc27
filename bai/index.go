package bai

import (
	"github.com/biogo/hts/sam"

	"github.com/fenwick-bio/seedhts/bam"
	"github.com/fenwick-bio/seedhts/internal/binning"
)

// chunk is one (begin,end) BGZF virtual-offset range within a bin.
type chunk struct {
	begin, end uint64
}

// binChunks accumulates and coalesces the chunk list for one bin: per
// spec.md §4.9, an incoming chunk merges into the running chunk when its
// begin falls at or before the running chunk's end; otherwise it starts a
// new chunk.
type binChunks struct {
	chunks []chunk
}

func (bc *binChunks) add(begin, end uint64) {
	if n := len(bc.chunks); n > 0 && begin <= bc.chunks[n-1].end {
		if end > bc.chunks[n-1].end {
			bc.chunks[n-1].end = end
		}
		return
	}
	bc.chunks = append(bc.chunks, chunk{begin, end})
}

type refIndex struct {
	bins      map[uint32]*binChunks
	binOrder  []uint32 // first-seen order, so output is deterministic
	linear    []uint64
	linearSet []bool

	mapped, unmapped        uint64
	haveCoord               bool
	firstOffset, lastOffset uint64
}

func newRefIndex(length int) refIndex {
	n := 0
	if length > 0 {
		n = (length-1)>>binning.LinearWindowShift + 1
	}
	return refIndex{
		bins:      make(map[uint32]*binChunks),
		linear:    make([]uint64, n),
		linearSet: make([]bool, n),
	}
}

func (ref *refIndex) growLinear(n int) {
	if n <= len(ref.linear) {
		return
	}
	grown := make([]uint64, n)
	grownSet := make([]bool, n)
	copy(grown, ref.linear)
	copy(grownSet, ref.linearSet)
	ref.linear = grown
	ref.linearSet = grownSet
}

// Writer accumulates a BAM index across a single sequential pass over a
// BAM file's records, per spec.md §4.9.
type Writer struct {
	refs                   []refIndex
	readsWithoutCoordinate uint64
}

// NewWriter returns a Writer sized for a reference dictionary whose
// entries have the given lengths, in reference order (refLengths[i] is
// the length bam.Header.Refs[i] reports). A length of 0 leaves that
// reference's linear index to grow on demand.
func NewWriter(refLengths []int) *Writer {
	w := &Writer{refs: make([]refIndex, len(refLengths))}
	for i, l := range refLengths {
		w.refs[i] = newRefIndex(l)
	}
	return w
}

// Add folds one alignment record into the index: rec.RefID/Pos/Flags/Cigar
// determine its bin, reference span, and mapped/unmapped counters; begin
// and end are the BGZF virtual offsets bracketing the record (its
// block_size prefix and just past its last byte), i.e. bam.Reader.NextChunk's
// return values.
func (w *Writer) Add(rec *bam.Record, begin, end uint64) {
	if rec.RefID < 0 {
		w.readsWithoutCoordinate++
		return
	}
	ref := &w.refs[rec.RefID]

	bin := uint32(rec.Bin())
	bc, ok := ref.bins[bin]
	if !ok {
		bc = &binChunks{}
		ref.bins[bin] = bc
		ref.binOrder = append(ref.binOrder, bin)
	}
	bc.add(begin, end)

	if rec.Pos >= 0 {
		refSpan := bam.RefSpan(rec.Cigar)
		hiPos := rec.Pos
		if refSpan > 1 {
			hiPos = rec.Pos + refSpan - 1
		}
		lo := rec.Pos >> binning.LinearWindowShift
		hi := hiPos >> binning.LinearWindowShift
		ref.growLinear(hi + 1)
		for win := lo; win <= hi; win++ {
			if !ref.linearSet[win] {
				ref.linear[win] = begin
				ref.linearSet[win] = true
			}
		}
	}

	if rec.Flags&sam.Unmapped != 0 {
		ref.unmapped++
	} else {
		ref.mapped++
	}
	if !ref.haveCoord {
		ref.firstOffset = begin
		ref.haveCoord = true
	}
	ref.lastOffset = end
}

package bai

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-bio/seedhts/bam"
	"github.com/fenwick-bio/seedhts/internal/binning"
)

// parsedIndex is a minimal manual decoder used only by these tests, kept
// independent of package bai's own write logic so a bug there doesn't
// also hide itself from the assertions.
type parsedBin struct {
	id     uint32
	chunks [][2]uint64
}
type parsedRef struct {
	bins   []parsedBin
	linear []uint64
}

func parseIndex(t *testing.T, b []byte) (refs []parsedRef, readsWithoutCoordinate uint64) {
	t.Helper()
	require.True(t, len(b) >= 8)
	require.Equal(t, []byte("BAI\x01"), b[0:4])
	nRef := binary.LittleEndian.Uint32(b[4:8])
	off := 8
	for i := uint32(0); i < nRef; i++ {
		var ref parsedRef
		binCount := binary.LittleEndian.Uint32(b[off:])
		off += 4
		for j := uint32(0); j < binCount; j++ {
			id := binary.LittleEndian.Uint32(b[off:])
			off += 4
			nChunks := binary.LittleEndian.Uint32(b[off:])
			off += 4
			pb := parsedBin{id: id}
			for c := uint32(0); c < nChunks; c++ {
				begin := binary.LittleEndian.Uint64(b[off:])
				off += 8
				end := binary.LittleEndian.Uint64(b[off:])
				off += 8
				pb.chunks = append(pb.chunks, [2]uint64{begin, end})
			}
			ref.bins = append(ref.bins, pb)
		}
		linearCount := binary.LittleEndian.Uint32(b[off:])
		off += 4
		for j := uint32(0); j < linearCount; j++ {
			ref.linear = append(ref.linear, binary.LittleEndian.Uint64(b[off:]))
			off += 8
		}
		refs = append(refs, ref)
	}
	readsWithoutCoordinate = binary.LittleEndian.Uint64(b[off:])
	off += 8
	require.Equal(t, off, len(b))
	return refs, readsWithoutCoordinate
}

func TestWriterCoalescesAdjacentChunksInSameBin(t *testing.T) {
	w := NewWriter([]int{1000})
	rec := &bam.Record{RefID: 0, Pos: 0}
	w.Add(rec, 0, 10)
	w.Add(rec, 10, 20) // begin(10) <= previous end(10): must merge.
	w.Add(rec, 25, 30) // begin(25) > previous end(20): new chunk.

	var buf bytes.Buffer
	_, err := w.WriteTo(&buf)
	require.NoError(t, err)

	refs, _ := parseIndex(t, buf.Bytes())
	require.Len(t, refs, 1)
	// One ordinary bin plus the pseudo-bin.
	require.Len(t, refs[0].bins, 2)
	ordinary := refs[0].bins[0]
	assert.Equal(t, uint32(rec.Bin()), ordinary.id)
	assert.Equal(t, [][2]uint64{{0, 20}, {25, 30}}, ordinary.chunks)
}

func TestWriterPseudoBinCountsMappedUnmapped(t *testing.T) {
	w := NewWriter([]int{1000})
	mapped := &bam.Record{RefID: 0, Pos: 5}
	unmapped := &bam.Record{RefID: 0, Pos: 5, Flags: sam.Unmapped}
	w.Add(mapped, 0, 10)
	w.Add(unmapped, 10, 20)
	w.Add(unmapped, 20, 30)

	var buf bytes.Buffer
	_, err := w.WriteTo(&buf)
	require.NoError(t, err)
	refs, _ := parseIndex(t, buf.Bytes())

	var pseudo parsedBin
	for _, b := range refs[0].bins {
		if b.id == binning.PseudoBin {
			pseudo = b
		}
	}
	require.Len(t, pseudo.chunks, 2)
	assert.Equal(t, [2]uint64{0, 30}, pseudo.chunks[0]) // (firstOffset, lastOffset)
	assert.Equal(t, [2]uint64{1, 2}, pseudo.chunks[1])  // (mappedCount, unmappedCount)
}

func TestWriterLinearIndexFillsFirstOffsetPerWindow(t *testing.T) {
	w := NewWriter([]int{1 << 16})
	rec := &bam.Record{RefID: 0, Pos: 0}
	w.Add(rec, 100, 110)
	rec2 := &bam.Record{RefID: 0, Pos: 0}
	w.Add(rec2, 200, 210) // same window; must not overwrite the first chunk begin.

	var buf bytes.Buffer
	_, err := w.WriteTo(&buf)
	require.NoError(t, err)
	refs, _ := parseIndex(t, buf.Bytes())
	require.NotEmpty(t, refs[0].linear)
	assert.Equal(t, uint64(100), refs[0].linear[0])
}

func TestWriterReadsWithoutCoordinate(t *testing.T) {
	w := NewWriter([]int{100})
	w.Add(&bam.Record{RefID: -1, Pos: -1}, 0, 10)
	w.Add(&bam.Record{RefID: -1, Pos: -1}, 10, 20)

	var buf bytes.Buffer
	_, err := w.WriteTo(&buf)
	require.NoError(t, err)
	_, readsWithoutCoordinate := parseIndex(t, buf.Bytes())
	assert.Equal(t, uint64(2), readsWithoutCoordinate)
}

package bam

import (
	"bytes"
	"io"
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeqPackUnpackRoundTrip(t *testing.T) {
	for _, seq := range []string{"", "A", "ACGT", "ACGTNACGTN", "GATTACAGATTACA"} {
		packed := packSeq([]byte(seq))
		got := unpackSeq(packed, len(seq))
		assert.Equal(t, seq, string(got))
	}
}

func TestSeqUnknownBaseMapsToN(t *testing.T) {
	packed := packSeq([]byte("X"))
	assert.Equal(t, "N", string(unpackSeq(packed, 1)))
}

func TestReverseComplement(t *testing.T) {
	assert.Equal(t, "ACGT", string(reverseComplement([]byte("ACGT"))))
	assert.Equal(t, "NNNGATTACA", string(reverseComplement([]byte("TGTAATCNNN"))))
}

func TestCigarRefSpan(t *testing.T) {
	// 3S10M2S consumes 10 reference bases.
	c := sam.Cigar{
		sam.CigarOp(3<<4 | 4),
		sam.CigarOp(10<<4 | 0),
		sam.CigarOp(2<<4 | 4),
	}
	assert.Equal(t, 10, cigarRefSpan(c))
}

func TestAuxEncodeDecodeRoundTrip(t *testing.T) {
	tags := []sam.Aux{
		NewIntAux([2]byte{'N', 'M'}, 3),
		NewStringAux([2]byte{'R', 'G'}, "group1"),
	}
	var wire []byte
	wire = encodeAux(wire, tags)
	got, err := decodeAux(wire)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, byte('c'), got[0].Type())
	assert.Equal(t, byte('Z'), got[1].Type())
}

func TestNewCharAndFloatAux(t *testing.T) {
	tags := []sam.Aux{
		NewCharAux([2]byte{'X', 'A'}, 'z'),
		NewFloatAux([2]byte{'X', 'F'}, 1.5),
	}
	var wire []byte
	wire = encodeAux(wire, tags)
	got, err := decodeAux(wire)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, byte('A'), got[0].Type())
	assert.Equal(t, byte('f'), got[1].Type())
}

func TestNewIntAuxSmallestWidth(t *testing.T) {
	cases := []struct {
		v    int64
		want byte
	}{
		{0, 'c'},
		{-5, 'c'},
		{200, 'C'},
		{-200, 's'},
		{40000, 'S'},
		{-40000, 'i'},
		{1 << 33, 'I'},
	}
	for _, c := range cases {
		a := NewIntAux([2]byte{'X', 'X'}, c.v)
		assert.Equalf(t, c.want, a.Type(), "v=%d", c.v)
	}
}

func TestRecordMarshalUnmarshalRoundTrip(t *testing.T) {
	r := &Record{
		RefID:     0,
		Pos:       99,
		MapQ:      60,
		Cigar:     sam.Cigar{sam.CigarOp(10 << 4)},
		Flags:     0,
		Name:      "read1",
		Seq:       []byte("ACGTACGTAC"),
		Qual:      []byte("IIIIIIIIII"),
		NextRefID: -1,
		NextPos:   -1,
		TLen:      0,
		Aux:       []sam.Aux{NewIntAux([2]byte{'N', 'M'}, 0)},
	}
	var buf bytes.Buffer
	require.NoError(t, Marshal(r, &buf))

	got, err := Unmarshal(buf.Bytes(), 1)
	require.NoError(t, err)
	assert.Equal(t, r.Name, got.Name)
	assert.Equal(t, r.Pos, got.Pos)
	assert.Equal(t, r.Seq, got.Seq)
	assert.Equal(t, r.Qual, got.Qual)
	assert.Equal(t, r.Cigar, got.Cigar)
	require.Len(t, got.Aux, 1)
	assert.Equal(t, byte('c'), got.Aux[0].Type())
}

func TestRecordMarshalReverseStrandReorients(t *testing.T) {
	r := &Record{
		RefID:     0,
		Pos:       10,
		Cigar:     sam.Cigar{sam.CigarOp(4 << 4)},
		Flags:     sam.Reverse,
		Name:      "read2",
		Seq:       []byte("AAGT"),
		Qual:      []byte("IJKL"),
		NextRefID: -1,
		NextPos:   -1,
	}
	var buf bytes.Buffer
	require.NoError(t, Marshal(r, &buf))

	got, err := Unmarshal(buf.Bytes(), 1)
	require.NoError(t, err)
	// Stored bytes are reverse-complemented/reversed (read orientation);
	// the transcoder does not un-reverse on read.
	assert.Equal(t, "ACTT", string(got.Seq))
	assert.Equal(t, "LKJI", string(got.Qual))
}

func TestRecordMarshalQualAbsent(t *testing.T) {
	r := &Record{
		RefID: -1, Pos: -1, NextRefID: -1, NextPos: -1,
		Name: "unmapped", Seq: []byte("ACGT"),
	}
	var buf bytes.Buffer
	require.NoError(t, Marshal(r, &buf))
	got, err := Unmarshal(buf.Bytes(), 0)
	require.NoError(t, err)
	assert.Nil(t, got.Qual)
	assert.Equal(t, unmappedBin, got.Bin())
}

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader(
		[]string{"@HD\tVN:1.6\tSO:unsorted", "@SQ\tSN:chr1\tLN:1000"},
		[]Reference{{Name: "chr1", Length: 1000}},
	)
	var buf bytes.Buffer
	require.NoError(t, writeHeader(&buf, h))

	got, err := readHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h.Text, got.Text)
	assert.Equal(t, h.Refs, got.Refs)
}

func TestBamReaderWriterRoundTrip(t *testing.T) {
	h := NewHeader([]string{"@HD\tVN:1.6"}, []Reference{{Name: "chr1", Length: 1000}})

	var buf bytes.Buffer
	w, err := NewWriter(&buf, 6, h)
	require.NoError(t, err)

	recs := []*Record{
		{RefID: 0, Pos: 5, MapQ: 30, Cigar: sam.Cigar{sam.CigarOp(4 << 4)}, Name: "r1",
			Seq: []byte("ACGT"), Qual: []byte("IIII"), NextRefID: -1, NextPos: -1},
		{RefID: -1, Pos: -1, Name: "r2", Seq: []byte("TTTT"), NextRefID: -1, NextPos: -1},
	}
	for _, r := range recs {
		require.NoError(t, w.WriteRecord(r))
	}
	require.NoError(t, w.Close())

	r, err := NewReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h.Refs, r.Header.Refs)

	got, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].Name)
	assert.Equal(t, "r2", got[1].Name)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

package kmer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase2Bit(t *testing.T) {
	for _, b := range []byte("ACGTacgt") {
		_, ok := Base2Bit(b)
		assert.True(t, ok, "expected %c to be valid", b)
	}
	for _, b := range []byte("Nnxz-") {
		_, ok := Base2Bit(b)
		assert.False(t, ok, "expected %c to be invalid", b)
	}
}

func TestReverseComplement(t *testing.T) {
	assert.Equal(t, "ACGT", string(ReverseComplement([]byte("ACGT"))))
	assert.Equal(t, "TTTT", string(ReverseComplement([]byte("AAAA"))))
	assert.Equal(t, "N", string(ReverseComplement([]byte("N"))))
}

func TestKmersNoMask(t *testing.T) {
	p := Params{K: 4}
	seq := []byte("ACGTACGT")
	kmers := Kmers(seq, p)
	require.Len(t, kmers, 5)
	for _, v := range kmers {
		assert.NotEqual(t, Invalid, v)
	}
	// Same 4-mer should recur at positions 0 and 4.
	assert.Equal(t, kmers[0], kmers[4])
}

func TestKmersInvalidBase(t *testing.T) {
	p := Params{K: 4}
	seq := []byte("ACGNACGT")
	kmers := Kmers(seq, p)
	require.Len(t, kmers, 5)
	// positions 0..3 include the N at index 3.
	for i := 0; i <= 3; i++ {
		assert.Equal(t, Invalid, kmers[i], "position %d", i)
	}
	// position 4 covers seq[4:8] = ACGT, clean.
	assert.NotEqual(t, Invalid, kmers[4])
}

func TestKmersHomopolymerBlacklist(t *testing.T) {
	p := Params{K: 6, BlacklistRun: 4}
	seq := []byte("AAAAAA")
	kmers := Kmers(seq, p)
	require.Len(t, kmers, 1)
	assert.Equal(t, Invalid, kmers[0])
}

func TestMiddleClearMaskIgnoresCenter(t *testing.T) {
	p := Params{K: 6, MidMaskLen: 2}
	a := Kmers([]byte("ACGTAC"), p)[0]
	b := Kmers([]byte("ACTTAC"), p)[0] // differs only in the middle two bases.
	assert.Equal(t, a, b)
}

func TestReverseKmersLengthAndAlignment(t *testing.T) {
	p := Params{K: 4}
	seq := []byte("ACGTACGT")
	fwd := Kmers(seq, p)
	rev := ReverseKmers(seq, p)
	assert.Equal(t, len(fwd), len(rev))
}

func TestValidCount(t *testing.T) {
	assert.Equal(t, 2, ValidCount([]int64{Invalid, 1, 2, Invalid}))
}

func TestScannerMatchesKmers(t *testing.T) {
	p := Params{K: 5, MidMaskLen: 1}
	seq := []byte("ACGTTACGGTACNTGCA")
	want := Kmers(seq, p)
	wantRev := ReverseKmers(seq, p)

	s := NewScanner(p)
	s.Reset(seq)
	n := len(seq) - p.K + 1
	got := make([]int64, n)
	gotRevRaw := make([]int64, n)
	for i := 0; i < n; i++ {
		f, r := s.At(i)
		got[i] = f
		gotRevRaw[i] = r
	}
	require.Equal(t, want, got)

	// gotRevRaw[i] is the reverse complement of the forward window at
	// position i, which is exactly what ReverseKmers stores at index i.
	require.Equal(t, wantRev, gotRevRaw)
}

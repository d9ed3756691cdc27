package refsource

import (
	"io"
	"io/ioutil"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastaScannerMultipleRecords(t *testing.T) {
	s := newFastaScanner(ioutil.NopCloser(strings.NewReader(">chr1\nACGT\nACGT\n>chr2 extra description text\nTTTT\n")))
	defer s.Close()

	r1, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "chr1", r1.Name)
	assert.Equal(t, "ACGTACGT", string(r1.Bases))

	r2, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "chr2", r2.Name)
	assert.Equal(t, "TTTT", string(r2.Bases))

	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestFastaScannerNoTrailingNewline(t *testing.T) {
	s := newFastaScanner(ioutil.NopCloser(strings.NewReader(">only\nACGTACGT")))
	r, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "only", r.Name)
	assert.Equal(t, "ACGTACGT", string(r.Bases))
}

func TestReorderBufferFlushesByName(t *testing.T) {
	b := NewReorderBuffer(3)
	assert.Nil(t, b.Add(ReferenceRecord{Name: "chr3"}))
	assert.Nil(t, b.Add(ReferenceRecord{Name: "chr1"}))
	batch := b.Add(ReferenceRecord{Name: "chr2"})
	require.Len(t, batch, 3)
	assert.Equal(t, []string{"chr1", "chr2", "chr3"}, names(batch))
}

func TestReorderBufferFlushReturnsPartialBatch(t *testing.T) {
	b := NewReorderBuffer(10)
	b.Add(ReferenceRecord{Name: "chrB"})
	b.Add(ReferenceRecord{Name: "chrA"})
	batch := b.Flush()
	require.Len(t, batch, 2)
	assert.Equal(t, []string{"chrA", "chrB"}, names(batch))
	assert.Nil(t, b.Flush())
}

func names(recs []ReferenceRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Name
	}
	return out
}

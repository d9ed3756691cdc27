package main

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-bio/seedhts/bam"
)

func TestParseCigar(t *testing.T) {
	c, err := parseCigar("5S10M3H")
	require.NoError(t, err)
	require.Len(t, c, 3)
	assert.Equal(t, "5S10M3H", c.String())

	_, err = parseCigar("5X")
	assert.Error(t, err)

	c, err = parseCigar("*")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestParseAndFormatAuxFieldRoundTrip(t *testing.T) {
	cases := []string{"NM:i:3", "RG:Z:group1", "XA:A:z", "XF:f:1.5"}
	for _, field := range cases {
		aux, err := parseAuxField(field)
		require.NoError(t, err, field)
		var buf bytes.Buffer
		bw := bufio.NewWriter(&buf)
		require.NoError(t, formatAuxField(bw, aux))
		require.NoError(t, bw.Flush())
		assert.Equal(t, "\t"+field, buf.String())
	}

	_, err := parseAuxField("NM:q:3")
	assert.Error(t, err)
}

func TestReadSAMHeaderParsesSQLines(t *testing.T) {
	text := "@HD\tVN:1.6\tSO:unsorted\n@SQ\tSN:chr1\tLN:1000\n@SQ\tSN:chr2\tLN:2000\nread1\t0\tchr1\t1\t60\t10M\t*\t0\t0\tACGTACGTAC\tIIIIIIIIII\n"
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 1<<16), 1<<24)
	h, refIndex, err := readSAMHeader(sc)
	require.NoError(t, err)
	require.Len(t, h.sq, 2)
	assert.Equal(t, "chr1", h.sq[0].name)
	assert.Equal(t, 1000, h.sq[0].length)
	assert.Equal(t, 0, refIndex["chr1"])
	assert.Equal(t, 1, refIndex["chr2"])
	assert.Contains(t, h.firstAlignmentLine, "read1")
}

func TestParseSAMLineAndFormatSAMLineRoundTrip(t *testing.T) {
	refIndex := map[string]int{"chr1": 0}
	line := "read1\t0\tchr1\t10\t60\t5S10M\t*\t0\t0\tACGTACGTAC\tIIIIIIIIII\tNM:i:1"
	rec, err := parseSAMLine(line, refIndex)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.RefID)
	assert.Equal(t, 9, rec.Pos)
	assert.Equal(t, byte(60), rec.MapQ)
	require.Len(t, rec.Aux, 1)

	header := &bam.Header{Refs: []bam.Reference{{Name: "chr1", Length: 100}}}
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	require.NoError(t, formatSAMLine(bw, rec, header))
	require.NoError(t, bw.Flush())
	assert.Equal(t, line+"\n", buf.String())
}

func TestResolveRef(t *testing.T) {
	refIndex := map[string]int{"chr1": 0, "chr2": 1}
	assert.Equal(t, -1, resolveRef("*", refIndex))
	assert.Equal(t, 1, resolveRef("chr2", refIndex))
	assert.Equal(t, -1, resolveRef("chrX", refIndex))
}

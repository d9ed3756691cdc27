package main

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKCandidates(t *testing.T) {
	ks, err := parseKCandidates("16, 12,10")
	require.NoError(t, err)
	assert.Equal(t, []int{16, 12, 10}, ks)

	_, err = parseKCandidates("")
	assert.Error(t, err)

	_, err = parseKCandidates("16,x")
	assert.Error(t, err)
}

func TestNormalizeMinIdentity(t *testing.T) {
	assert.InDelta(t, 0.9, normalizeMinIdentity(0.9), 1e-9)
	assert.InDelta(t, 0.9, normalizeMinIdentity(90), 1e-9)
}

func TestScanFASTAProducesOneQueryPerRecord(t *testing.T) {
	data := ">r1 some desc\nACGT\nACGT\n>r2\nTTTT\n"
	got, err := scanFASTA(bufio.NewReader(strings.NewReader(data)))
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].Name)
	assert.Equal(t, "ACGTACGT", string(got[0].Bases))
	assert.Equal(t, "r2", got[1].Name)
	assert.Equal(t, "TTTT", string(got[1].Bases))
}

func TestScanFASTQProducesOneQueryPerRecord(t *testing.T) {
	data := "@r1\nACGT\n+\nIIII\n@r2\nTTTT\n+\nJJJJ\n"
	got, err := scanFASTQ(bufio.NewReader(strings.NewReader(data)))
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].Name)
	assert.Equal(t, "ACGT", string(got[0].Bases))
	assert.Equal(t, "IIII", string(got[0].Quals))
	assert.Equal(t, "r2", got[1].Name)
	assert.Equal(t, "TTTT", string(got[1].Bases))
	assert.Equal(t, "JJJJ", string(got[1].Quals))
}

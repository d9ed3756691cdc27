package align

import (
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountExactMatch(t *testing.T) {
	assert.Equal(t, 0, Count([]byte("ACGTACGTACGTACGT"), []byte("ACGTACGTACGTACGT")))
}

func TestCountMismatchesAcrossWordBoundary(t *testing.T) {
	ref := []byte("ACGTACGTACGTACGTACGT") // 20 bases, crosses an 8-byte boundary.
	query := []byte("ACGTACGAACGTACGTTCGT")
	assert.Equal(t, 2, Count(ref, query))
}

func TestCountPanicsOnLengthMismatch(t *testing.T) {
	assert.Panics(t, func() { Count([]byte("ACGT"), []byte("ACG")) })
}

func TestCountBudgetedExitsEarly(t *testing.T) {
	ref := []byte("AAAAAAAAAAAAAAAAAAAAAAAA")
	query := []byte("TTTTTTTTTTTTTTTTTTTTTTTT")
	mismatches, exceeded := CountBudgeted(ref, query, 3)
	assert.True(t, exceeded)
	assert.Greater(t, mismatches, 3)
}

func TestCountBudgetedWithinBudget(t *testing.T) {
	ref := []byte("ACGTACGTACGT")
	query := []byte("ACGTACGTACGT")
	mismatches, exceeded := CountBudgeted(ref, query, 2)
	assert.False(t, exceeded)
	assert.Equal(t, 0, mismatches)
}

// TestScoreCandidateInBoundsExact reproduces spec.md §8 scenario (B): ref
// "AAAAACCCCCGGGGGTTTTT", query "CCCCCGGGGG" at start 5 is an exact match
// and must be accepted with maxSubsQ=0.
func TestScoreCandidateInBoundsExact(t *testing.T) {
	ref := []byte("AAAAACCCCCGGGGGTTTTT")
	query := []byte("CCCCCGGGGG")
	score, ok := ScoreCandidate(ref, query, 5, 0, 0)
	require.True(t, ok)
	assert.Equal(t, 0, score.Mismatches)
	assert.Equal(t, 0, score.ClipStart)
	assert.Equal(t, 0, score.ClipEnd)
}

// TestScoreCandidateInBoundsRejectsOverBudget reproduces the negative half
// of scenario (B): start 4 ("ACCCCCGGGG" vs "CCCCCGGGGG") has 2 mismatches,
// which must be rejected once maxSubsQ is the spec's literal budget (0)
// rather than an inflated k-mer-multiplicity floor.
func TestScoreCandidateInBoundsRejectsOverBudget(t *testing.T) {
	ref := []byte("AAAAACCCCCGGGGGTTTTT")
	query := []byte("CCCCCGGGGG")
	_, ok := ScoreCandidate(ref, query, 4, 0, 0)
	assert.False(t, ok)
}

// TestScoreCandidateBoundaryOverhang reproduces spec.md §8 scenario (C):
// ref "CCGGGGGTTT", query "AAACCGGGGG" starting at pos=-3 with maxClip=3,
// maxSubsQ=0. The 3 leading query bases fall before the reference start
// and are clipped; the remaining 7-base interior matches exactly, so the
// candidate is kept with CIGAR 3S7M and zero net substitutions.
func TestScoreCandidateBoundaryOverhang(t *testing.T) {
	ref := []byte("CCGGGGGTTT")
	query := []byte("AAACCGGGGG")
	score, ok := ScoreCandidate(ref, query, -3, 0, 3)
	require.True(t, ok)
	assert.Equal(t, 3, score.ClipStart)
	assert.Equal(t, 0, score.ClipEnd)
	assert.Equal(t, 0, score.Mismatches)
}

// TestScoreCandidateBoundaryOverhangRejectsBeyondClipBudget confirms the
// max(0, totalClip-maxClip) penalty term: with maxClip=2, the same 3-base
// overhang can't be fully absorbed, so even a perfect interior match leaves
// 1 unexplained substitution and the candidate must be rejected once
// maxSubsQ=0.
func TestScoreCandidateBoundaryOverhangRejectsBeyondClipBudget(t *testing.T) {
	ref := []byte("CCGGGGGTTT")
	query := []byte("AAACCGGGGG")
	_, ok := ScoreCandidate(ref, query, -3, 0, 2)
	assert.False(t, ok)
}

func TestScoreCandidateRejectsWhenClipConsumesWholeQuery(t *testing.T) {
	ref := []byte("CCGGGGGTTT")
	query := []byte("AAACCGGGGG")
	_, ok := ScoreCandidate(ref, query, -10, 5, 10)
	assert.False(t, ok)
}

func TestBuildCigarSoftVsHard(t *testing.T) {
	soft := BuildCigar(3, 10, 2, false)
	require.Len(t, soft, 3)
	assert.Equal(t, sam.CigarSoftClipped, soft[0].Type())
	assert.Equal(t, sam.CigarMatch, soft[1].Type())
	assert.Equal(t, sam.CigarSoftClipped, soft[2].Type())

	hard := BuildCigar(3, 10, 0, true)
	require.Len(t, hard, 2)
	assert.Equal(t, sam.CigarHardClipped, hard[0].Type())
}

func TestBuildCigarNoClip(t *testing.T) {
	c := BuildCigar(0, 20, 0, false)
	require.Len(t, c, 1)
	assert.Equal(t, sam.CigarMatch, c[0].Type())
	assert.Equal(t, 20, c[0].Len())
}

func TestMapQPerfectMatchIsForty(t *testing.T) {
	assert.Equal(t, 40, MapQ(0, 10))
}

func TestMapQAtHalfBudgetIsZero(t *testing.T) {
	assert.Equal(t, 0, MapQ(5, 10))
}

func TestMapQClampsAtZeroBeyondHalf(t *testing.T) {
	assert.Equal(t, 0, MapQ(8, 10))
}

func TestMapQDecreasesWithMismatches(t *testing.T) {
	best := MapQ(0, 10)
	worse := MapQ(2, 10)
	assert.Greater(t, best, worse)
	assert.GreaterOrEqual(t, worse, 0)
}

func TestBruteForceFindsExactHit(t *testing.T) {
	ref := []byte("TTTTACGTACGTTTTT")
	query := []byte("ACGTACGT")
	hits := BruteForce(ref, query, 0, len(ref)-len(query)+1, 0, 0)
	require.Len(t, hits, 1)
	assert.Equal(t, 4, hits[0].RefPos)
	assert.Equal(t, 0, hits[0].Mismatches)
}

// TestBruteForceScansBoundaryOverhangs confirms BruteForce's range can
// include negative and past-the-end starts and scores them via the same
// boundary-clip formula as ScoreCandidate.
func TestBruteForceScansBoundaryOverhangs(t *testing.T) {
	ref := []byte("CCGGGGGTTT")
	query := []byte("AAACCGGGGG")
	hits := BruteForce(ref, query, -3, len(ref)-len(query)+1+3, 0, 3)
	require.Len(t, hits, 1)
	assert.Equal(t, -3, hits[0].RefPos)
	assert.Equal(t, 3, hits[0].ClipStart)
	assert.Equal(t, 0, hits[0].Mismatches)
}

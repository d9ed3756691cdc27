package align

// BruteForceHit is one candidate position found by scanning every offset in
// a reference window, used when a query cannot be seeded: it is shorter
// than the smallest configured K, has no valid k-mer, or has a MinHits of
// 0. A seedable query whose lookups produce no candidates is not scanned.
type BruteForceHit struct {
	RefPos     int
	ClipStart  int
	ClipEnd    int
	Mismatches int
}

// BruteForce scans every start offset in [from, to) — which may run before
// 0 or past len(ref)-len(query), per spec.md §4.4 step 4's fallback range
// [-maxSubsQ, refLen-qLen+maxSubsQ] — scoring each with ScoreCandidate: the
// clipped kernel near the boundaries, the banded kernel in the interior.
//
// This is the O(len(ref)*len(query)) fallback described in SPEC_FULL.md
// §4.4; it exists purely for correctness on reads the seed index cannot
// index, not for throughput.
func BruteForce(ref, query []byte, from, to, maxSubsQ, maxClip int) []BruteForceHit {
	var hits []BruteForceHit
	for pos := from; pos < to; pos++ {
		score, ok := ScoreCandidate(ref, query, pos, maxSubsQ, maxClip)
		if ok {
			hits = append(hits, BruteForceHit{
				RefPos:     pos,
				ClipStart:  score.ClipStart,
				ClipEnd:    score.ClipEnd,
				Mismatches: score.Mismatches,
			})
		}
	}
	return hits
}

package align

// CandidateScore is the outcome of scoring one candidate alignment start
// against a query.
type CandidateScore struct {
	ClipStart  int
	ClipEnd    int
	Mismatches int
}

// ScoreCandidate scores a candidate alignment of query against ref starting
// at pos, per spec.md §4.4 step 3. pos may run off either end of ref: an
// in-bounds start (0 <= pos, pos+len(query) <= len(ref)) is scored by the
// budgeted banded kernel over its full length; an out-of-bounds start is
// scored over its in-bounds overlap only, with max(0, totalClip-maxClip)
// added to the mismatch count as a penalty for the clipped portion. ok is
// false when the candidate cannot satisfy maxSubsQ, or when the clipped
// portion alone would consume the whole query.
func ScoreCandidate(ref, query []byte, pos, maxSubsQ, maxClip int) (score CandidateScore, ok bool) {
	n := len(query)
	if pos >= 0 && pos+n <= len(ref) {
		mismatches, exceeded := CountBudgeted(ref[pos:pos+n], query, maxSubsQ)
		if exceeded {
			return CandidateScore{}, false
		}
		return CandidateScore{Mismatches: mismatches}, true
	}

	clipStart := 0
	if pos < 0 {
		clipStart = -pos
	}
	clipEnd := 0
	if over := pos + n - len(ref); over > 0 {
		clipEnd = over
	}
	total := clipStart + clipEnd
	if total >= n {
		return CandidateScore{}, false
	}

	interior := n - total
	refStart := pos + clipStart
	mismatches := Count(ref[refStart:refStart+interior], query[clipStart:clipStart+interior])
	if penalty := total - maxClip; penalty > 0 {
		mismatches += penalty
	}
	if mismatches > maxSubsQ {
		return CandidateScore{}, false
	}
	return CandidateScore{ClipStart: clipStart, ClipEnd: clipEnd, Mismatches: mismatches}, true
}

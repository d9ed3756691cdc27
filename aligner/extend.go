package aligner

import (
	"github.com/fenwick-bio/seedhts/align"
	"github.com/fenwick-bio/seedhts/kmer"
	"github.com/fenwick-bio/seedhts/seedindex"
)

// extendResult is one successfully extended seed-and-extend alignment. A
// single query can produce several of these against one reference batch,
// per spec.md §4.4 step 5: every candidate start that clears the query's
// substitution budget is emitted as its own SAM record, not just the best.
//
// pos is the reference coordinate of the alignment's first aligned
// (non-clipped) base — i.e. the raw candidate start already advanced by
// clipStart — so it is always usable directly as a SAM POS (after
// translating out of fused-reference coordinates) regardless of whether
// the raw candidate start ran off the front of ref.
type extendResult struct {
	pos        int32
	reverse    bool
	mismatches int
	clipStart  int
	clipEnd    int
	mapQ       int
}

// candidateKey packs a candidate reference start position and a strand bit
// into one int64, so forward and reverse-strand candidates at the same
// numeric position don't collide in the accumulator map.
func candidateKey(pos int32, reverse bool) int64 {
	k := int64(pos) << 1
	if reverse {
		k |= 1
	}
	return k
}

func decodeCandidateKey(k int64) (pos int32, reverse bool) {
	return int32(k >> 1), k&1 == 1
}

// collectSeeds implements the canonical "map mode" seed collection: every
// valid k-mer in kmers is looked up in idx, and each resulting reference hit
// position is translated to an implied read-alignment start and tallied in
// acc. A k-mer whose hit count exceeds maxMultiplicity is skipped entirely
// as too repetitive to be informative, per spec.md §4.4.
//
// Implied starts may land before 0 or past len(ref)-readLen: those are
// boundary-overhang candidates, scored later by align.ScoreCandidate rather
// than dropped here, per spec.md §4.4 step 3.
//
// For the forward strand, kmers is q.Kmers and query offset i sits on the
// same diagonal as the read itself: start = hitPos - i.
//
// For the reverse strand, kmers is q.RKmers — stored reversed, per
// kmer.ReverseKmers, so that RKmers[i] is the k-mer of RC(q.Bases) read at
// position len(kmers)-1-i (= readLen-K-i). A hit at ref position p for
// RKmers[i] therefore implies the reverse-complement sequence (q.RBases,
// the one actually compared against ref) starts at ref position
// p-(len(kmers)-1-i).
func collectSeeds(kmers []int64, idx *seedindex.PackedIndex, reverse bool, acc map[int64]int32, maxMultiplicity int, stats *RunStats) {
	for i, km := range kmers {
		if km == kmer.Invalid {
			continue
		}
		key := uint64(km)
		n := idx.Count(key)
		if n == 0 {
			continue
		}
		if maxMultiplicity > 0 && n > maxMultiplicity {
			continue
		}
		offset := i
		if reverse {
			offset = len(kmers) - 1 - i
		}
		positions := idx.Lookup(key)
		stats.addCandidates(int64(len(positions)))
		for _, p := range positions {
			start := p - int32(offset)
			acc[candidateKey(start, reverse)]++
		}
	}
}

// extend runs seed collection for both strands of q against one reference
// batch and scores every candidate whose hit count clears q.MinHits,
// returning one extendResult per candidate that satisfies q.MaxSubsQ.
//
// When q has no usable k-mers for this batch (too short to seed, no valid
// k-mer at all, a MinHits of 0, or indexing disabled for this batch), it
// falls back to align.BruteForce per spec.md §4.4 step 4 instead of
// reporting unmapped unconditionally.
func extend(q *seedindex.Query, idx *seedindex.PackedIndex, ref []byte, maxMultiplicity int, stats *RunStats) []extendResult {
	if idx == nil || q.Kmers == nil || q.ValidKmers == 0 || q.MinHits == 0 {
		stats.addBruteForce()
		return bruteForceExtend(q, ref)
	}

	acc := make(map[int64]int32)
	collectSeeds(q.Kmers, idx, false, acc, maxMultiplicity, stats)
	collectSeeds(q.RKmers, idx, true, acc, maxMultiplicity, stats)

	var results []extendResult
	for key, hits := range acc {
		if int(hits) < q.MinHits {
			continue
		}
		pos, reverse := decodeCandidateKey(key)
		query := q.Bases
		if reverse {
			query = q.RBases
		}
		score, ok := align.ScoreCandidate(ref, query, int(pos), q.MaxSubsQ, q.MaxClips)
		if !ok {
			continue
		}
		results = append(results, extendResult{
			pos:        pos + int32(score.ClipStart),
			reverse:    reverse,
			mismatches: score.Mismatches,
			clipStart:  score.ClipStart,
			clipEnd:    score.ClipEnd,
			mapQ:       align.MapQ(score.Mismatches, len(query)),
		})
	}
	return results
}

// bruteForceExtend scans every start offset in
// [-q.MaxSubsQ, len(ref)-readLen+1+q.MaxSubsQ) on both strands, per
// spec.md §4.4 step 4.
func bruteForceExtend(q *seedindex.Query, ref []byte) []extendResult {
	readLen := len(q.Bases)
	from := -q.MaxSubsQ
	to := len(ref) - readLen + 1 + q.MaxSubsQ

	var results []extendResult
	for _, reverse := range [...]bool{false, true} {
		query := q.Bases
		if reverse {
			query = q.RBases
		}
		for _, hit := range align.BruteForce(ref, query, from, to, q.MaxSubsQ, q.MaxClips) {
			results = append(results, extendResult{
				pos:        int32(hit.RefPos + hit.ClipStart),
				reverse:    reverse,
				mismatches: hit.Mismatches,
				clipStart:  hit.ClipStart,
				clipEnd:    hit.ClipEnd,
				mapQ:       align.MapQ(hit.Mismatches, len(query)),
			})
		}
	}
	return results
}

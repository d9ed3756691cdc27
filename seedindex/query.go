// Package seedindex implements the per-reference k-mer index (PackedIndex)
// and the preprocessed query record (Query) that the aligner's seed-and-extend
// pipeline is built on.
package seedindex

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/fenwick-bio/seedhts/kmer"
	"github.com/fenwick-bio/seedhts/minhits"
	"github.com/grailbio/base/log"
)

// Params are the static, run-wide parameters controlling query
// preprocessing: the descending list of candidate K values, the k-mer
// masking knobs, and the knobs MinHitsCalculator needs per candidate K.
type Params struct {
	Candidates      []int // descending K candidates; last entry is the fallback K.
	MidMaskLen      int
	BlacklistRun    int
	MaxSubs         int
	MinIdentity     float64
	MinProb         float64
	MaxClipFraction float64
	KStep           int // shared with MinHitsCalculator's sampling stride.

	// GlobalMinSeedHits is the floor a candidate K's minHits(validKmers)
	// must clear for that K to be selected over a smaller one.
	GlobalMinSeedHits int

	// Iterations overrides minhits.DefaultIterations (0 keeps the default).
	Iterations int
}

// Builder constructs Query records for a Params configuration, maintaining
// one MinHitsCalculator per candidate K (built lazily, guarded so it's
// constructed once even under concurrent first use from multiple workers).
type Builder struct {
	params Params

	mu    sync.Mutex
	calcs map[int]*minhits.Calculator
}

// NewBuilder returns a Builder. params.Candidates must be non-empty and
// descending; this is a configuration invariant enforced at startup by the
// caller (the aligner driver), not re-validated per query.
func NewBuilder(params Params) *Builder {
	return &Builder{params: params, calcs: make(map[int]*minhits.Calculator)}
}

func (b *Builder) calculator(k int) *minhits.Calculator {
	b.mu.Lock()
	c, ok := b.calcs[k]
	if !ok {
		c = minhits.New(minhits.Config{
			K:           k,
			MidMaskLen:  b.params.MidMaskLen,
			MaxSubs:     b.params.MaxSubs,
			MinIdentity: b.params.MinIdentity,
			MinProb:     b.params.MinProb,
			MaxClip:     b.params.MaxClipFraction,
			KStep:       b.params.KStep,
			Iterations:  b.params.Iterations,
		})
		b.calcs[k] = c
	}
	b.mu.Unlock()
	return c
}

// Query is a preprocessed read: forward and reverse-complement bases, the
// k-mer arrays for the selected K (both strands), and the derived hit
// requirements. It is built once and is immutable thereafter except for the
// atomic primary-alignment counter.
type Query struct {
	Name   string
	Bases  []byte // forward read sequence.
	RBases []byte // reverse complement of Bases.
	Quals  []byte // optional; nil if absent.

	K          int
	KIndex     int // index into Params.Candidates that was selected.
	Kmers      []int64
	RKmers     []int64
	ValidKmers int
	MinHits    int
	MaxMisses  int // validKmers/KStep - MinHits: k-mers that may miss the index; nothing in this module reads it, and it is not an acceptance budget.
	MaxClips   int
	MaxSubsQ   int // per-query substitution acceptance budget, per spec.md §4.4 step 3.

	primaryClaimed int32 // atomic; 0 until the first ClaimPrimary() call succeeds.
}

// ClaimPrimary reports true exactly once across the life of q: the first
// caller (across both strands and, in fused-reference mode, across all
// fused segments) gets true; every subsequent caller gets false. This
// implements "first emission per (Query, run) is primary" uniformly whether
// or not fused-reference mode is active, per SPEC_FULL.md §9.
func (q *Query) ClaimPrimary() bool {
	return atomic.CompareAndSwapInt32(&q.primaryClaimed, 0, 1)
}

// HasHit reports whether ClaimPrimary has ever succeeded for q: whether at
// least one alignment has been emitted for this query so far, across
// however many reference batches have been searched. The driver uses this
// after the last batch to decide which queries still need a final
// unmapped record.
func (q *Query) HasHit() bool {
	return atomic.LoadInt32(&q.primaryClaimed) == 1
}

// Build preprocesses one read into a Query, selecting K per spec.md §4.2:
// the largest candidate K with validKmers>0 and
// minHits(validKmers)>=GlobalMinSeedHits; if none qualifies, the smallest
// candidate K (the last entry) is used as the fallback bucket. The aligner
// scans a fallback query by brute force when it has no valid k-mer or a
// MinHits of 0; otherwise it is seeded at that K like any other query.
func (b *Builder) Build(name string, bases, quals []byte) *Query {
	rbases := kmer.ReverseComplement(bases)

	type attempt struct {
		kIndex     int
		k          int
		fwd        []int64
		validKmers int
		minHits    int
	}

	var fallback attempt
	for i, k := range b.params.Candidates {
		if k > len(bases) {
			continue
		}
		p := kmer.Params{K: k, MidMaskLen: b.params.MidMaskLen, BlacklistRun: b.params.BlacklistRun}
		fwd := kmer.Kmers(bases, p)
		validKmers := kmer.ValidCount(fwd)
		a := attempt{kIndex: i, k: k, fwd: fwd, validKmers: validKmers}
		if i == len(b.params.Candidates)-1 {
			fallback = a
		}
		if validKmers == 0 {
			continue
		}
		mh := b.calculator(k).MinHits(validKmers)
		a.minHits = mh
		if mh >= b.params.GlobalMinSeedHits {
			return b.finish(name, bases, rbases, quals, a.kIndex, a.k, a.fwd, a.validKmers, mh)
		}
	}

	// No candidate K cleared the global floor: fall back to the smallest K
	// (the fallback bucket), per spec.md §4.2.
	if fallback.fwd == nil {
		// len(bases) smaller than every candidate K: empty k-mer arrays.
		lastIdx := len(b.params.Candidates) - 1
		k := b.params.Candidates[lastIdx]
		return b.finish(name, bases, rbases, quals, lastIdx, k, nil, 0, 0)
	}
	mh := b.calculator(fallback.k).MinHits(fallback.validKmers)
	if log.At(log.Debug) {
		log.Debug.Printf("seedindex: query %q fell back to K=%d (validKmers=%d, minHits=%d < floor=%d)",
			name, fallback.k, fallback.validKmers, mh, b.params.GlobalMinSeedHits)
	}
	return b.finish(name, bases, rbases, quals, fallback.kIndex, fallback.k, fallback.fwd, fallback.validKmers, mh)
}

func (b *Builder) finish(name string, bases, rbases, quals []byte, kIndex, k int, fwd []int64, validKmers, minHits int) *Query {
	p := kmer.Params{K: k, MidMaskLen: b.params.MidMaskLen, BlacklistRun: b.params.BlacklistRun}
	var rkmers []int64
	if len(bases) >= k {
		rkmers = kmer.ReverseKmers(bases, p)
	}

	maxMisses := 0
	if b.params.KStep > 0 {
		maxMisses = validKmers/b.params.KStep - minHits
	}

	maxClips := clipBudget(b.params.MaxClipFraction, len(bases))

	// maxSubsQ is the per-query substitution acceptance budget, per
	// spec.md §4.4 step 3: min(maxSubs, floor(len(bases)*(1-minIdentity))).
	// It is distinct from maxMisses, the number of k-mers that may miss the
	// index, which nothing in this module reads.
	maxSubsQ := b.params.MaxSubs
	if identityCap := int(math.Floor(float64(len(bases)) * (1 - b.params.MinIdentity))); identityCap < maxSubsQ {
		maxSubsQ = identityCap
	}
	if maxSubsQ < 0 {
		maxSubsQ = 0
	}

	return &Query{
		Name:       name,
		Bases:      bases,
		RBases:     rbases,
		Quals:      quals,
		K:          k,
		KIndex:     kIndex,
		Kmers:      fwd,
		RKmers:     rkmers,
		ValidKmers: validKmers,
		MinHits:    minHits,
		MaxMisses:  maxMisses,
		MaxClips:   maxClips,
		MaxSubsQ:   maxSubsQ,
	}
}

// clipBudget implements the maxClip{Fraction}-to-absolute-budget conversion
// shared by Query and MinHitsCalculator: a fraction <1 scales with length;
// >=1 is already an absolute base count.
func clipBudget(maxClipFraction float64, length int) int {
	if maxClipFraction < 1 {
		return int(math.Floor(maxClipFraction * float64(length)))
	}
	return int(math.Floor(maxClipFraction))
}

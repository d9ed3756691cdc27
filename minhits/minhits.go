// Package minhits implements the Monte Carlo seed-hit threshold calculator:
// for a given query length (expressed as a valid-k-mer count), it answers how
// many seed hits must be observed before the probability of a correct,
// indel-free alignment being detected meets a configured target.
package minhits

import (
	"math"
	"math/rand"
	"sync"

	"github.com/minio/highwayhash"
	"github.com/pkg/errors"
)

// DefaultIterations is the default number of Monte Carlo trials per
// valid-k-mer count.
const DefaultIterations = 200000

// Config holds the static parameters of one calculator. A Config is
// immutable once passed to New.
type Config struct {
	K            int     // k-mer length, 1..15.
	MidMaskLen   int     // middle wildcard bases; MidMaskLen < K-1.
	MaxSubs      int     // global substitution cap.
	MinIdentity  float64 // identity floor in [0,1].
	MinProb      float64 // target detection probability.
	MaxClip      float64 // clip fraction (<1) or absolute clip budget (>=1).
	KStep        int     // k-mer sampling stride, >=1.
	Iterations   int     // Monte Carlo trial count; 0 means DefaultIterations.
}

func (c Config) iterations() int {
	if c.Iterations > 0 {
		return c.Iterations
	}
	return DefaultIterations
}

// Validate reports a configuration error, per the "Invalid configuration"
// class of spec.md §7: these are fatal at startup, not recoverable.
func (c Config) Validate() error {
	if c.K < 1 || c.K > 15 {
		return errors.Errorf("minhits: K=%d out of range [1,15]", c.K)
	}
	if c.MidMaskLen >= c.K-1 {
		return errors.Errorf("minhits: MidMaskLen=%d must be < K-1=%d", c.MidMaskLen, c.K-1)
	}
	if c.KStep < 1 {
		return errors.Errorf("minhits: KStep=%d must be >= 1", c.KStep)
	}
	return nil
}

// hitsEntry memoizes one valid-k-mer count's resolved minHits value,
// computed at most once even if requested concurrently from multiple
// workers.
type hitsEntry struct {
	done  chan struct{}
	value int
}

const numCacheShards = 16

type cacheShard struct {
	mu      sync.Mutex
	entries map[int]*hitsEntry
}

// Calculator is the Monte Carlo seed-hit threshold calculator described in
// spec.md §4.1. It is safe for concurrent use by multiple ProcessThreads; the
// per-valid-k-mer-count cache is sharded (hashed with highwayhash) to reduce
// lock contention the way encoding/bamprovider's concurrentMap shards its
// mate table.
type Calculator struct {
	cfg    Config
	shards [numCacheShards]cacheShard
}

// New returns a Calculator for cfg. cfg must already satisfy cfg.Validate().
func New(cfg Config) *Calculator {
	c := &Calculator{cfg: cfg}
	for i := range c.shards {
		c.shards[i].entries = make(map[int]*hitsEntry)
	}
	return c
}

func shardFor(validKmers int) int {
	var key [8]byte
	for i := 0; i < 8; i++ {
		key[i] = byte(validKmers >> (8 * uint(i)))
	}
	sum := highwayhash.Sum64(key[:], hhKey[:])
	return int(sum % uint64(numCacheShards))
}

// hhKey is a fixed 32-byte key; highwayhash requires one, and since this
// usage is a hash table shard selector (not a security boundary) a
// compile-time constant is appropriate, mirroring the fixed seed style of
// fusion/postprocess.go's hashing helpers.
var hhKey = [highwayhash.Size]byte{
	0x73, 0x65, 0x65, 0x64, 0x68, 0x74, 0x73, 0x2d,
	0x6d, 0x69, 0x6e, 0x68, 0x69, 0x74, 0x73, 0x2d,
	0x63, 0x61, 0x63, 0x68, 0x65, 0x2d, 0x73, 0x68,
	0x61, 0x72, 0x64, 0x2d, 0x6b, 0x65, 0x79, 0x21,
}

// MinHits returns the minimum seed-hit count required for a query with
// validKmers valid k-mers, per spec.md §4.1. Simulation for a given
// validKmers runs at most once; concurrent callers block on the first call's
// result.
func (c *Calculator) MinHits(validKmers int) int {
	if validKmers <= 0 {
		return 0
	}
	shard := &c.shards[shardFor(validKmers)]

	shard.mu.Lock()
	e, ok := shard.entries[validKmers]
	if !ok {
		e = &hitsEntry{done: make(chan struct{})}
		shard.entries[validKmers] = e
		shard.mu.Unlock()
		e.value = c.compute(validKmers)
		close(e.done)
		return e.value
	}
	shard.mu.Unlock()
	<-e.done
	return e.value
}

// deterministicSeed derives a reproducible PRNG seed from (validKmers, K,
// MaxSubs) so repeated runs with the same configuration simulate identically.
func deterministicSeed(validKmers int, cfg Config) int64 {
	var buf [24]byte
	putInt(buf[0:8], validKmers)
	putInt(buf[8:16], cfg.K)
	putInt(buf[16:24], cfg.MaxSubs)
	return int64(highwayhash.Sum64(buf[:], hhKey[:]))
}

func putInt(b []byte, v int) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func (c *Calculator) compute(validKmers int) int {
	cfg := c.cfg
	queryLen := validKmers + cfg.K - 1
	maxSubs := cfg.MaxSubs
	if bound := int(math.Floor(float64(queryLen) * (1 - cfg.MinIdentity))); bound < maxSubs {
		maxSubs = bound
	}
	var maxClips int
	if cfg.MaxClip < 1 {
		maxClips = int(math.Floor(cfg.MaxClip * float64(queryLen)))
	} else {
		maxClips = int(math.Floor(cfg.MaxClip))
	}

	clampAbove := validKmers - maxSubs - maxClips

	// Deterministic shortcuts, checked in the order spec.md documents them:
	// a strictly negative target is treated first, then an exact-zero
	// target, then a >=1 target; only 0<MinProb<1 falls through to
	// simulation.
	switch {
	case cfg.MinProb < 0:
		return 1
	case cfg.MinProb == 0:
		return validKmers
	case cfg.MinProb >= 1:
		effK := cfg.K - cfg.MidMaskLen
		if effK < 2 {
			effK = 2
		}
		v := validKmers - effK*maxSubs - maxClips
		if v < 1 {
			v = 1
		}
		return v
	}

	effK := cfg.K - cfg.MidMaskLen
	expectedUpperBound := math.Ceil(math.Max(0, float64(validKmers)-0.45*float64(effK)*float64(maxSubs)))
	if expectedUpperBound < 1 {
		return 0
	}

	return clampInt(c.simulate(validKmers, queryLen, maxSubs, maxClips, deterministicSeed(validKmers, cfg)), clampAbove)
}

func clampInt(v, above int) int {
	if v > above {
		return above
	}
	return v
}

// wildcardMask returns a K-bit mask (one bit per k-mer position, bit 0 =
// rightmost/most-recent position) with the middle MidMaskLen positions
// cleared to 0 (wildcard) and all other bits set to 1.
func wildcardMask(k, midMaskLen int) uint64 {
	full := uint64(1)<<uint(k) - 1
	if midMaskLen <= 0 {
		return full
	}
	start := (k - midMaskLen) / 2
	clear := uint64(0)
	for i := 0; i < midMaskLen; i++ {
		pos := start + i
		clear |= uint64(1) << uint(k-1-pos)
	}
	return full &^ clear
}

// simulate runs the Monte Carlo trials and returns the largest hits value h
// such that the number of trials observing >= h error-free k-mers is at
// least N*MinProb, per spec.md §4.1.
func (c *Calculator) simulate(validKmers, queryLen, maxSubs, maxClips int, seed int64) int {
	cfg := c.cfg
	n := cfg.iterations()
	maxFailures := int(float64(n) * (1 - cfg.MinProb))
	quarterCheckpoint := n / 16

	histogram := make([]int, validKmers+1)
	rng := rand.New(rand.NewSource(seed))
	mask := wildcardMask(cfg.K, cfg.MidMaskLen)
	phase := uint((cfg.K - 1) % cfg.KStep)

	failures := 0
	for iter := 0; iter < n; iter++ {
		hits := simulateOneIteration(rng, queryLen, maxSubs, cfg.K, cfg.KStep, phase, mask)
		histogram[hits]++
		if hits == 0 {
			failures++
			if failures > maxFailures {
				return 0
			}
		}
		if iter == quarterCheckpoint && failures > maxFailures/4 {
			return 0
		}
	}

	threshold := 0
	cum := 0
	target := int(math.Ceil(float64(n) * cfg.MinProb))
	for h := validKmers; h >= 0; h-- {
		cum += histogram[h]
		if cum >= target {
			threshold = h
			break
		}
	}
	return threshold
}

// simulateOneIteration places maxSubs random error positions (with
// replacement) across a queryLen-base error bitmap, then counts the
// error-free k-mers sampled at stride kStep using a branchless rolling
// K-bit pattern: a new error bit is shifted in at each position, and
// (patternBits & mask) == 0 tests "no error at a non-wildcard position".
func simulateOneIteration(rng *rand.Rand, queryLen, maxSubs, k, kStep int, phase uint, mask uint64) int {
	var errBits uint64
	// queryLen is always well under 64 for realistic short reads; for
	// longer queries, fall back to a byte bitmap.
	if queryLen <= 64 {
		for i := 0; i < maxSubs; i++ {
			pos := rng.Intn(queryLen)
			errBits |= uint64(1) << uint(pos)
		}
		return countErrorFreeKmers64(errBits, queryLen, k, kStep, phase, mask)
	}
	errBitmap := make([]bool, queryLen)
	for i := 0; i < maxSubs; i++ {
		errBitmap[rng.Intn(queryLen)] = true
	}
	return countErrorFreeKmersSlice(errBitmap, k, kStep, phase, mask)
}

func countErrorFreeKmers64(errBits uint64, queryLen, k, kStep int, phase uint, mask uint64) int {
	var pattern uint64
	count := 0
	for pos := 0; pos < queryLen; pos++ {
		bit := (errBits >> uint(pos)) & 1
		pattern = ((pattern << 1) | bit) & (uint64(1)<<uint(k) - 1)
		if pos < k-1 {
			continue
		}
		if uint(pos)%uint(kStep) != phase {
			continue
		}
		if pattern&mask == 0 {
			count++
		}
	}
	return count
}

func countErrorFreeKmersSlice(errBitmap []bool, k, kStep int, phase uint, mask uint64) int {
	var pattern uint64
	count := 0
	for pos := range errBitmap {
		var bit uint64
		if errBitmap[pos] {
			bit = 1
		}
		pattern = ((pattern << 1) | bit) & (uint64(1)<<uint(k) - 1)
		if pos < k-1 {
			continue
		}
		if uint(pos)%uint(kStep) != phase {
			continue
		}
		if pattern&mask == 0 {
			count++
		}
	}
	return count
}

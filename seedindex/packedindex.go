package seedindex

import (
	"encoding/binary"
	"sort"

	farm "github.com/dgryski/go-farm"
	"github.com/fenwick-bio/seedhts/kmer"
	"github.com/grailbio/base/log"
	"golang.org/x/sys/unix"
)

// PackedIndex is the per-reference k-mer -> position-list index described in
// spec.md §4.3. It is logically map[uint64][]int32 (masked k-mer to sorted
// reference positions) but is hand-coded the way fusion/kmer_index.go's
// kmerIndex is: physically sharded 256 ways by the upper bits of a farmhash
// of the key, linear-probed within a shard, with a singleton optimization
// that inlines a k-mer's sole position directly into its table entry instead
// of indirecting through the shared positions arena.
//
// A packed table value is either:
//   - a singleton: high 32 bits are the reference position, low 32 bits are 1.
//   - a run: high 32 bits are an offset into the positions arena, low 32 bits
//     are the run's length (>1).
type PackedIndex struct {
	shards   [numIndexShards]indexShard
	arena    []byte // mmap'd anonymous region backing positions.
	numSlots int    // len(arena)/4, for Unmap bookkeeping.
}

const numIndexShards = 256

type indexEntry struct {
	key    uint64
	packed uint64
}

type indexShard struct {
	nShift uint // table size is 1<<nShift; 0 means the shard is empty.
	table  []indexEntry
}

const invalidKey = ^uint64(0)

func shardAndProbe(key uint64) (shard int, probe uint64) {
	h := farm.Hash64WithSeed(keyBytes(key), 0)
	return int(h >> 56), h
}

func keyBytes(key uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], key)
	return b[:]
}

// BuildPackedIndex builds the k-mer index for one reference sequence,
// sampling positions at stride rStep (a valid k-mer is indexed only when
// its start position is a multiple of rStep; rStep==1 indexes every
// position), per spec.md §4.3's two-pass
// build: a counting pass determines each shard's table size and each key's
// run length, then a fill pass writes positions into a prefix-summed arena.
func BuildPackedIndex(ref []byte, p kmer.Params, rStep int) *PackedIndex {
	if rStep < 1 {
		rStep = 1
	}
	kmers := kmer.Kmers(ref, p)

	// Pass 1: count occurrences of each key, bucketed by shard.
	counts := make([]map[uint64]int32, numIndexShards)
	for i := range counts {
		counts[i] = make(map[uint64]int32)
	}
	for pos, v := range kmers {
		if v == kmer.Invalid {
			continue
		}
		if pos%rStep != 0 {
			continue
		}
		key := uint64(v)
		shard, _ := shardAndProbe(key)
		counts[shard][key]++
	}

	idx := &PackedIndex{}

	// Determine per-key arena offsets via a global prefix sum over all
	// shards (order is arbitrary, per spec.md §4.3; map iteration order is
	// fine since it only affects physical layout, not lookup results).
	var totalRunPositions int32
	offsets := make([]map[uint64]int32, numIndexShards)
	for s := 0; s < numIndexShards; s++ {
		offsets[s] = make(map[uint64]int32, len(counts[s]))
		for key, n := range counts[s] {
			if n <= 1 {
				continue // singletons are inlined, no arena space needed.
			}
			offsets[s][key] = totalRunPositions
			totalRunPositions += n
		}
	}

	if totalRunPositions > 0 {
		idx.mapArena(int(totalRunPositions))
	}

	// Build each shard's open-addressed table, sized to a power of two at
	// load factor 4, mirroring kmerIndexShard.initShard.
	for s := 0; s < numIndexShards; s++ {
		idx.shards[s] = buildShard(counts[s])
	}

	// fillCursor tracks, per key, how many positions have been written so
	// far into its arena run (singletons don't need a cursor: they are
	// written directly into the table entry below).
	fillCursor := make([]map[uint64]int32, numIndexShards)
	for s := range fillCursor {
		fillCursor[s] = make(map[uint64]int32)
	}

	for pos, v := range kmers {
		if v == kmer.Invalid {
			continue
		}
		if pos%rStep != 0 {
			continue
		}
		key := uint64(v)
		shard, _ := shardAndProbe(key)
		n := counts[shard][key]
		if n == 1 {
			idx.shards[shard].put(key, packSingleton(int32(pos)))
			continue
		}
		base := offsets[shard][key]
		cur := fillCursor[shard][key]
		idx.writePosition(int(base+cur), int32(pos))
		fillCursor[shard][key] = cur + 1
		idx.shards[shard].put(key, packRun(base, n))
	}

	return idx
}

func packSingleton(pos int32) uint64 {
	return uint64(uint32(pos))<<32 | 1
}

func packRun(offset, count int32) uint64 {
	return uint64(uint32(offset))<<32 | uint64(uint32(count))
}

func buildShard(counts map[uint64]int32) indexShard {
	const loadFactor = 4
	minSize := (len(counts) + 1) * loadFactor
	size, shift := 1, uint(0)
	for size < minSize {
		size *= 2
		shift++
	}
	sh := indexShard{nShift: shift, table: make([]indexEntry, size)}
	for i := range sh.table {
		sh.table[i].key = invalidKey
	}
	return sh
}

func (s *indexShard) put(key uint64, packed uint64) {
	if len(s.table) == 0 {
		log.Panicf("seedindex: put into empty shard for key %x", key)
	}
	mask := uint64(len(s.table) - 1)
	h := farm.Hash64WithSeed(keyBytes(key), 1)
	for i := uint64(0); ; i++ {
		slot := (h + i) & mask
		if s.table[slot].key == invalidKey || s.table[slot].key == key {
			s.table[slot].key = key
			s.table[slot].packed = packed
			return
		}
	}
}

func (s *indexShard) get(key uint64) (uint64, bool) {
	if len(s.table) == 0 {
		return 0, false
	}
	mask := uint64(len(s.table) - 1)
	h := farm.Hash64WithSeed(keyBytes(key), 1)
	for i := uint64(0); i < uint64(len(s.table)); i++ {
		slot := (h + i) & mask
		e := s.table[slot]
		if e.key == invalidKey {
			return 0, false
		}
		if e.key == key {
			return e.packed, true
		}
	}
	return 0, false
}

// mapArena allocates the positions arena as an anonymous mmap region with
// transparent huge pages advised, the way fusion/kmer_index.go lays out its
// hash table: large, contiguous, and excluded from goroutine-stack-style GC
// scanning pressure.
func (idx *PackedIndex) mapArena(numPositions int) {
	size := numPositions * 4
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		log.Panic(err)
	}
	if err := unix.Madvise(mem, unix.MADV_HUGEPAGE); err != nil {
		// Advisory only; not fatal if the kernel declines (e.g. no THP support).
		log.Error.Printf("seedindex: madvise(MADV_HUGEPAGE) failed: %v", err)
	}
	idx.arena = mem
	idx.numSlots = numPositions
}

func (idx *PackedIndex) writePosition(slot int, pos int32) {
	binary.LittleEndian.PutUint32(idx.arena[slot*4:], uint32(pos))
}

func (idx *PackedIndex) readPosition(slot int) int32 {
	return int32(binary.LittleEndian.Uint32(idx.arena[slot*4:]))
}

// Close releases the mmap'd positions arena. Callers must not use idx after
// Close.
func (idx *PackedIndex) Close() error {
	if idx.arena == nil {
		return nil
	}
	err := unix.Munmap(idx.arena)
	idx.arena = nil
	return err
}

// Lookup returns the sorted reference positions recorded for key (a masked
// k-mer value, as produced by the kmer package), or nil if key was never
// indexed. The returned slice is freshly allocated; callers may retain it
// past a subsequent Close.
func (idx *PackedIndex) Lookup(key uint64) []int32 {
	shard, _ := shardAndProbe(key)
	packed, ok := idx.shards[shard].get(key)
	if !ok {
		return nil
	}
	count := uint32(packed)
	if count == 1 {
		return []int32{int32(packed >> 32)}
	}
	offset := int(uint32(packed >> 32))
	out := make([]int32, count)
	for i := range out {
		out[i] = idx.readPosition(offset + i)
	}
	return out
}

// Count returns the number of reference positions recorded for key, without
// materializing the position list. It is the hook PackedIndex's caller uses
// to decide whether a seed hit is too repetitive to chase (spec.md §4.4's
// high-multiplicity seed skip).
func (idx *PackedIndex) Count(key uint64) int {
	shard, _ := shardAndProbe(key)
	packed, ok := idx.shards[shard].get(key)
	if !ok {
		return 0
	}
	return int(uint32(packed))
}

// FusedRange names a contiguous span of a logical, multi-contig "fused"
// reference (spec.md §4.3's fused-reference optimization): a single packed
// position space spanning several reference sequences back to back, so one
// PackedIndex build and one seed-collection pass can cover all of them.
type FusedRange struct {
	Name  string
	Start int32 // inclusive offset into the fused coordinate space.
	End   int32 // exclusive.
}

// FusedRanges is a sorted-by-Start list of FusedRange, supporting binary
// search from a fused coordinate back to (sequence name, local offset).
type FusedRanges []FusedRange

// Translate maps a fused-coordinate position back to its owning sequence
// name and local (0-based) offset within that sequence.
func (r FusedRanges) Translate(pos int32) (name string, local int32, ok bool) {
	i := sort.Search(len(r), func(i int) bool { return r[i].End > pos })
	if i == len(r) || pos < r[i].Start {
		return "", 0, false
	}
	return r[i].Name, pos - r[i].Start, true
}

// BuildFusedReference concatenates refs (in order) into one byte slice
// suitable for BuildPackedIndex, along with the FusedRanges needed to
// translate hits back to per-sequence coordinates. padding 'N' bases
// separate consecutive sequences; per spec.md §4.3's Data Model invariant,
// padding must be at least as long as the longest query expected against
// this batch, so no k-mer or substitution window can span two sequences
// undetected (kmer.Kmers marks any k-mer touching an 'N' Invalid, and a
// window shorter than padding can never straddle two FusedRange spans). A
// padding smaller than 1 is treated as 1.
func BuildFusedReference(names []string, seqs [][]byte, padding int) (fused []byte, ranges FusedRanges) {
	if padding < 1 {
		padding = 1
	}
	total := 0
	for _, s := range seqs {
		total += len(s) + padding
	}
	fused = make([]byte, 0, total)
	ranges = make(FusedRanges, 0, len(seqs))
	for i, s := range seqs {
		start := int32(len(fused))
		fused = append(fused, s...)
		ranges = append(ranges, FusedRange{Name: names[i], Start: start, End: int32(len(fused))})
		if i != len(seqs)-1 {
			for j := 0; j < padding; j++ {
				fused = append(fused, 'N')
			}
		}
	}
	return fused, ranges
}

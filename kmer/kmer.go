// Package kmer implements ACGT<->2-bit base encoding and a rolling k-mer
// scanner, including the middle-mask (wildcard) and homopolymer-blacklist
// rules used throughout the aligner core.
package kmer

import "github.com/grailbio/base/log"

// Invalid is the sentinel value used in k-mer arrays for a position whose
// k-mer could not be computed (out of bounds, a non-ACGT base in range, or a
// blacklisted homopolymer).
const Invalid int64 = -1

// MaxK is the largest k-mer length this package supports; a k-mer must fit in
// 2*K bits of a uint64.
const MaxK = 31

var (
	base2bit           [256]int8
	complementBase2bit [256]int8
)

func init() {
	for i := range base2bit {
		base2bit[i] = -1
		complementBase2bit[i] = -1
	}
	set := func(base byte, code, compCode int8) {
		base2bit[base] = code
		complementBase2bit[base] = compCode
	}
	set('A', 0, 3)
	set('a', 0, 3)
	set('C', 1, 2)
	set('c', 1, 2)
	set('G', 2, 1)
	set('g', 2, 1)
	set('T', 3, 0)
	set('t', 3, 0)
}

// Base2Bit returns the 2-bit code for an ACGT base (0..3) and true, or
// (0, false) if b is not A/C/G/T (case-insensitive).
func Base2Bit(b byte) (int8, bool) {
	v := base2bit[b]
	return v, v >= 0
}

var revCompByte = [256]byte{}

func init() {
	for i := range revCompByte {
		revCompByte[i] = 'N'
	}
	revCompByte['A'], revCompByte['a'] = 'T', 'T'
	revCompByte['C'], revCompByte['c'] = 'G', 'G'
	revCompByte['G'], revCompByte['g'] = 'C', 'C'
	revCompByte['T'], revCompByte['t'] = 'A', 'A'
}

// ReverseComplement returns the reverse complement of seq. Non-ACGT bytes map
// to 'N'.
func ReverseComplement(seq []byte) []byte {
	out := make([]byte, len(seq))
	n := len(seq)
	for i, b := range seq {
		out[n-1-i] = revCompByte[b]
	}
	return out
}

// Params bundles the static parameters that govern how k-mers are extracted
// from a sequence: the k-mer length, the number of masked (wildcard) bases in
// the middle of the k-mer, and the homopolymer run-length blacklist.
type Params struct {
	K            int
	MidMaskLen   int
	BlacklistRun int // 0 disables the homopolymer check.
}

// FullMask returns the mask covering all 2*K bits of a k-mer.
func (p Params) FullMask() uint64 {
	if p.K >= 32 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(2*p.K)) - 1
}

// MiddleClearMask returns a mask, ANDed against a raw k-mer, that zeroes the
// middle 2*MidMaskLen bits (the wildcard positions) and leaves all other bits
// untouched. With MidMaskLen==0 this is the identity (FullMask).
//
// The middle window is centered in the K-base k-mer: bases
// [(K-MidMaskLen)/2, (K-MidMaskLen)/2+MidMaskLen) are cleared.
func (p Params) MiddleClearMask() uint64 {
	full := p.FullMask()
	if p.MidMaskLen <= 0 {
		return full
	}
	start := (p.K - p.MidMaskLen) / 2
	clear := uint64(0)
	for i := 0; i < p.MidMaskLen; i++ {
		pos := start + i
		shift := uint((p.K - 1 - pos) * 2)
		clear |= uint64(3) << shift
	}
	return full &^ clear
}

// maxRun returns the longest run of identical 2-bit codes in the low 2*K bits
// of masked, a K-base k-mer.
func maxRun(masked uint64, k int) int {
	best, cur := 1, 1
	prev := int8(masked & 3)
	for i := 1; i < k; i++ {
		code := int8((masked >> uint(2*i)) & 3)
		if code == prev {
			cur++
			if cur > best {
				best = cur
			}
		} else {
			cur = 1
		}
		prev = code
	}
	return best
}

// IsHomopolymer reports whether the masked k-mer (after MiddleClearMask has
// been applied) contains a run of BlacklistRun or more identical bases.
// BlacklistRun<=0 disables the check.
func (p Params) IsHomopolymer(masked uint64) bool {
	if p.BlacklistRun <= 0 {
		return false
	}
	return maxRun(masked, p.K) >= p.BlacklistRun
}

// Kmers scans seq and returns, for every position i in [0, len(seq)-K+1), the
// masked k-mer value covering seq[i:i+K], or kmer.Invalid when that k-mer
// cannot be computed: contiguous valid (ACGT) length at i is less than K, or
// the masked k-mer is a blacklisted homopolymer.
//
// This mirrors the rolling-update strategy of a classic k-mer scanner: the
// 2-bit code for each new base is shifted in and masked, so a contiguous run
// of valid bases costs O(1) per position; runs are restarted after any
// non-ACGT base.
func Kmers(seq []byte, p Params) []int64 {
	n := len(seq) - p.K + 1
	if n <= 0 {
		return nil
	}
	out := make([]int64, n)
	mask := p.FullMask()
	clearMask := p.MiddleClearMask()
	var kmer uint64
	validRun := 0
	invalidSeen := 0
	for i, b := range seq {
		code, ok := Base2Bit(b)
		if !ok {
			validRun = 0
			kmer = 0
			invalidSeen++
			if pos := i - p.K + 1; pos >= 0 {
				out[pos] = Invalid
			}
			continue
		}
		kmer = ((kmer << 2) | uint64(code)) & mask
		validRun++
		pos := i - p.K + 1
		if pos < 0 {
			continue
		}
		if validRun < p.K {
			out[pos] = Invalid
			continue
		}
		masked := kmer & clearMask
		if p.IsHomopolymer(masked) {
			out[pos] = Invalid
			continue
		}
		out[pos] = int64(masked)
	}
	if invalidSeen > 0 && log.At(log.Debug) {
		log.Debug.Printf("kmer: %d non-ACGT bases encountered while scanning a %d-base sequence", invalidSeen, len(seq))
	}
	return out
}

// ReverseKmers returns the k-mer array of the reverse complement of seq,
// stored reversed so that index i corresponds to the same reference diagonal
// as Kmers(seq, p)[i], regardless of strand.
func ReverseKmers(seq []byte, p Params) []int64 {
	rc := ReverseComplement(seq)
	fwd := Kmers(rc, p)
	n := len(fwd)
	out := make([]int64, n)
	for i, v := range fwd {
		out[n-1-i] = v
	}
	return out
}

// ValidCount returns the number of non-Invalid entries in kmers.
func ValidCount(kmers []int64) int {
	n := 0
	for _, v := range kmers {
		if v != Invalid {
			n++
		}
	}
	return n
}

// Package bgzf implements the BGZF (block gzip) codec: single- and
// multi-threaded readers and writers for the blocked-gzip container BAM
// files are built from.
//
// A .bgzf stream is one or more independent gzip blocks concatenated
// together, each holding at most 64 KiB of uncompressed payload. Every
// block's gzip header carries a 6-byte "BC" extra subfield recording the
// block's total compressed size, which is what lets a reader seek to any
// block boundary and what gives BAM its virtual-offset coordinate system:
// (compressed block start << 16) | offset within the decompressed block.
//
// This is grounded on encoding/bgzf/writer.go's block layout and
// compressFactory pluggable-backend pattern, reworked around
// github.com/klauspost/compress/flate's pure (unframed) deflate codec: the
// gzip framing bytes below are written and patched by hand rather than
// produced by a self-framing gzip writer, matching spec.md's block table
// directly instead of depending on a library to emit the FEXTRA header.
package bgzf

import "hash/crc32"

const (
	// DefaultUncompressedBlockSize is the default uncompressed payload
	// size per block, matching sambamba/biogo/htslib convention.
	DefaultUncompressedBlockSize = 0x0ff00

	// MaxUncompressedBlockSize is the largest legal uncompressed payload
	// for one block.
	MaxUncompressedBlockSize = 0x10000

	// maxCompressedBlockSize is the largest a single compressed block
	// (full framed block, including header/extra/trailer) may be; BSIZE
	// is a 16-bit field so the whole block must fit in 64 KiB.
	maxCompressedBlockSize = 0x10000

	// headerSize is the fixed-size portion of a BGZF block preceding the
	// compressed payload: the 10-byte gzip header, 2-byte XLEN, and the
	// 6-byte BC extra subfield.
	headerSize = 18

	// trailerSize is the CRC32 + ISIZE trailer following the compressed
	// payload.
	trailerSize = 8

	// bsizeFieldOffset is the offset, within a block, of the little-endian
	// uint16 BSIZE value inside the BC extra subfield.
	bsizeFieldOffset = 16
)

// bcExtraPrefix is the fixed (SI1, SI2, SLEN-lo, SLEN-hi) preamble of the
// BC extra subfield; it precedes the 2-byte BSIZE value patched in after
// compression.
var bcExtraPrefix = [4]byte{'B', 'C', 2, 0}

// terminator is the 28-byte EOF marker: a valid, empty BGZF block. Every
// well-formed .bgzf stream ends with exactly one of these.
var terminator = []byte{
	0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0x06, 0x00, 0x42, 0x43,
	0x02, 0x00, 0x1b, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

func crc32IEEE(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// VirtualOffset packs a compressed block's starting file offset and a
// within-block uncompressed position into BAM's virtual-offset coordinate.
func VirtualOffset(blockStart int64, withinBlock uint16) uint64 {
	return uint64(blockStart)<<16 | uint64(withinBlock)
}

// SplitVirtualOffset is the inverse of VirtualOffset.
func SplitVirtualOffset(voffset uint64) (blockStart int64, withinBlock uint16) {
	return int64(voffset >> 16), uint16(voffset & 0xffff)
}

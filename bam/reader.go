package bam

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/fenwick-bio/seedhts/bgzf"
)

// Reader reads a BAM file: magic, header, reference dictionary, then a
// stream of block_size-prefixed records, per spec.md §4.8.
type Reader struct {
	bg     *bgzf.Reader
	Header *Header
}

// NewReader validates the BAM magic and reads the header and reference
// dictionary from r, leaving the returned Reader positioned at the first
// record.
func NewReader(r io.Reader) (*Reader, error) {
	bg := bgzf.NewReader(r)
	h, err := readHeader(bg)
	if err != nil {
		return nil, err
	}
	return &Reader{bg: bg, Header: h}, nil
}

// VirtualOffset returns the BGZF virtual offset of the next byte Reader
// will return.
func (r *Reader) VirtualOffset() uint64 {
	return r.bg.VirtualOffset()
}

// NextBytes returns the next record's raw bytes, excluding the block_size
// prefix, or io.EOF when the stream is exhausted.
func (r *Reader) NextBytes() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.bg, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, errors.New("bam: truncated record")
		}
		return nil, err
	}
	size := binary.LittleEndian.Uint32(lenBuf[:])
	b := make([]byte, size)
	if _, err := io.ReadFull(r.bg, b); err != nil {
		return nil, errors.Wrap(err, "bam: read record body")
	}
	return b, nil
}

// Next reads and decodes the next record.
func (r *Reader) Next() (*Record, error) {
	b, err := r.NextBytes()
	if err != nil {
		return nil, err
	}
	return Unmarshal(b, len(r.Header.Refs))
}

// NextChunk reads the next record like Next, additionally returning the
// BGZF virtual offsets bracketing it: begin at its block_size prefix, end
// just past its last byte. This is the (chunk begin, chunk end) pair
// BamIndexWriter needs, per spec.md §4.9.
func (r *Reader) NextChunk() (begin, end uint64, rec *Record, err error) {
	begin = r.VirtualOffset()
	b, err := r.NextBytes()
	if err != nil {
		return 0, 0, nil, err
	}
	end = r.VirtualOffset()
	rec, err = Unmarshal(b, len(r.Header.Refs))
	if err != nil {
		return 0, 0, nil, err
	}
	return begin, end, rec, nil
}

// ReadAll decodes every remaining record in the stream.
func (r *Reader) ReadAll() ([]*Record, error) {
	var recs []*Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
}

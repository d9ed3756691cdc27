package bam

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/fenwick-bio/seedhts/bgzf"
)

// Writer emits a BAM stream: magic, header, reference dictionary, then
// block_size-prefixed records, terminated by the BGZF EOF block on Close,
// per spec.md §4.8.
type Writer struct {
	bg  *bgzf.Writer
	buf bytes.Buffer
}

// NewWriter writes h immediately and returns a Writer ready to accept
// records at the given flate compression level.
func NewWriter(w io.Writer, level int, h *Header) (*Writer, error) {
	bg, err := bgzf.NewWriter(w, level)
	if err != nil {
		return nil, errors.Wrap(err, "bam: open bgzf writer")
	}
	if err := writeHeader(bg, h); err != nil {
		return nil, err
	}
	return &Writer{bg: bg}, nil
}

// VirtualOffset returns the BGZF virtual offset of the next byte to be
// written.
func (w *Writer) VirtualOffset() uint64 {
	return w.bg.VOffset()
}

// WriteRecord encodes rec and appends it to the stream, prefixed by its
// block_size.
func (w *Writer) WriteRecord(rec *Record) error {
	w.buf.Reset()
	if err := Marshal(rec, &w.buf); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(w.buf.Len()))
	if _, err := w.bg.Write(lenBuf[:]); err != nil {
		return errors.Wrap(err, "bam: write block_size")
	}
	if _, err := w.bg.Write(w.buf.Bytes()); err != nil {
		return errors.Wrap(err, "bam: write record body")
	}
	return nil
}

// Close flushes any remaining buffered data and emits the BGZF EOF block.
func (w *Writer) Close() error {
	return w.bg.Close()
}

package bgzf

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// blockFramer produces one complete, BSIZE-patched BGZF block from a
// chunk of uncompressed payload. Kept as an interface, mirroring
// encoding/bgzf/writer.go's compressFactory, so the cgo build can swap in
// a self-framing native backend (zlib-ng) in place of the default
// hand-framed klauspost/flate path.
type blockFramer interface {
	frame(chunk []byte) ([]byte, error)
}

// Writer compresses a byte stream into BGZF blocks, buffering writes up to
// uncompressedSize before flushing a block.
type Writer struct {
	framer           blockFramer
	uncompressedSize int
	w                io.Writer
	original         bytes.Buffer
	coffset          int64 // file offset of the start of the block currently being filled
}

// NewWriter returns a Writer using the default klauspost/compress/flate
// backend at the given compression level.
func NewWriter(w io.Writer, level int) (*Writer, error) {
	return &Writer{
		framer:           &flateFramer{level: level},
		uncompressedSize: DefaultUncompressedBlockSize,
		w:                w,
	}, nil
}

// Write buffers buf for block-at-a-time compression, flushing complete
// blocks to the underlying writer as uncompressedSize is reached.
func (w *Writer) Write(buf []byte) (int, error) {
	for i := 0; i < len(buf); {
		end := len(buf)
		if limit := i + w.uncompressedSize - w.original.Len(); limit < end {
			end = limit
		}
		n, _ := w.original.Write(buf[i:end])
		i += n
		if err := w.tryCompress(false); err != nil {
			return i, err
		}
	}
	return len(buf), nil
}

// CloseWithoutTerminator flushes any buffered payload into a final block
// but does not append the BGZF EOF terminator, for callers assembling
// multiple independently-produced shards into one stream.
func (w *Writer) CloseWithoutTerminator() error {
	return w.tryCompress(true)
}

// Close flushes remaining buffered payload and appends the BGZF EOF
// terminator block.
func (w *Writer) Close() error {
	if err := w.CloseWithoutTerminator(); err != nil {
		return err
	}
	_, err := w.w.Write(terminator)
	return err
}

func (w *Writer) tryCompress(flushRemainder bool) error {
	for w.original.Len() >= w.uncompressedSize || (flushRemainder && w.original.Len() > 0) {
		n := w.uncompressedSize
		if w.original.Len() < n {
			n = w.original.Len()
		}
		chunk := w.original.Next(n)

		block, err := w.framer.frame(chunk)
		if err != nil {
			return err
		}
		if _, err := w.w.Write(block); err != nil {
			return errors.Wrap(err, "bgzf: write block")
		}
		w.coffset += int64(len(block))
	}
	return nil
}

// VOffset returns the virtual offset of the next byte to be written: the
// file position of the block currently being filled combined with how
// much uncompressed payload is already buffered for it.
func (w *Writer) VOffset() uint64 {
	return VirtualOffset(w.coffset, uint16(w.original.Len()))
}

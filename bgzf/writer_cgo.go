//go:build cgo

package bgzf

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/yasushi-saito/zlibng"
)

// zlibngFramer is the cgo-gated alternate blockFramer, matching
// encoding/bgzf/writer_cgo.go's gzipFactory: it drives a zlibng.Writer
// configured with a GzipHeader carrying the same BC extra subfield
// placeholder writer.go's own header does, and relies on zlibng to emit
// the complete framed gzip block (header, extra, compressed payload,
// CRC32, ISIZE) itself. Only the BSIZE bytes inside that output are
// patched afterward, same as the default framer.
type zlibngFramer struct {
	level    int
	strategy int
	buf      bytes.Buffer
}

func (f *zlibngFramer) frame(chunk []byte) ([]byte, error) {
	f.buf.Reset()
	gw, err := zlibng.NewWriter(&f.buf, zlibng.Opts{Level: f.level, Strategy: f.strategy})
	if err != nil {
		return nil, errors.Wrap(err, "bgzf: create zlibng writer")
	}
	header := zlibng.GzipHeader{Extra: append([]byte(nil), bcExtraPrefix[:]...)}
	header.Extra = append(header.Extra, 0, 0) // BSIZE placeholder
	header.OS = 0xff
	if err := gw.SetHeader(header); err != nil {
		gw.Close() // nolint: errcheck
		return nil, errors.Wrap(err, "bgzf: set zlibng header")
	}
	if len(chunk) > 0 {
		if _, err := gw.Write(chunk); err != nil {
			return nil, errors.Wrap(err, "bgzf: deflate block")
		}
	}
	if err := gw.Close(); err != nil {
		return nil, errors.Wrap(err, "bgzf: close zlibng writer")
	}

	total := f.buf.Len()
	if total > maxCompressedBlockSize {
		return nil, errors.Errorf("bgzf: compressed block too large: %d > %d", total, maxCompressedBlockSize)
	}
	b := f.buf.Bytes()
	binary.LittleEndian.PutUint16(b[bsizeFieldOffset:bsizeFieldOffset+2], uint16(total-1))

	out := make([]byte, total)
	copy(out, b)
	return out, nil
}

// NewWriterParams returns a Writer backed by zlib-ng, for callers that
// need the faster native codec and have built with cgo enabled.
// uncompressedBlockSize bounds how much payload each block buffers before
// being compressed and flushed; gzipStrategy selects a zlib strategy
// constant (DefaultStrategy, FilteredStrategy, HuffmanOnlyStrategy,
// RLEStrategy, FixedStrategy).
func NewWriterParams(w io.Writer, level, uncompressedBlockSize, gzipStrategy int) (*Writer, error) {
	if uncompressedBlockSize > MaxUncompressedBlockSize {
		return nil, errors.Errorf("bgzf: uncompressedBlockSize %d exceeds max %d", uncompressedBlockSize, MaxUncompressedBlockSize)
	}
	return &Writer{
		framer:           &zlibngFramer{level: level, strategy: gzipStrategy},
		uncompressedSize: uncompressedBlockSize,
		w:                w,
	}, nil
}

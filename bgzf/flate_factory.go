package bgzf

import (
	"bytes"
	"encoding/binary"

	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
)

// flateFramer is the default blockFramer, backed by
// github.com/klauspost/compress/flate's pure-deflate codec. flate has no
// gzip framing of its own (unlike the libdeflate.Writer the teacher's
// writer.go drives, which self-frames via a settable Header), so this
// framer hand-assembles the fixed gzip header, the BC extra subfield
// (BSIZE patched in once the compressed length is known), and the
// trailing CRC32/ISIZE — mirroring writer.go's tryCompress byte-patching
// approach, just with the header bytes written explicitly rather than
// produced by the compressor.
type flateFramer struct {
	level int
	buf   bytes.Buffer
}

func (f *flateFramer) frame(chunk []byte) ([]byte, error) {
	f.buf.Reset()
	f.buf.WriteByte(0x1f)
	f.buf.WriteByte(0x8b)
	f.buf.WriteByte(8) // CM = deflate
	f.buf.WriteByte(4) // FLG = FEXTRA
	f.buf.Write([]byte{0, 0, 0, 0})
	f.buf.WriteByte(0)    // XFL
	f.buf.WriteByte(0xff) // OS = unknown
	f.buf.WriteByte(6)    // XLEN lo
	f.buf.WriteByte(0)    // XLEN hi
	f.buf.Write(bcExtraPrefix[:])
	f.buf.Write([]byte{0, 0}) // BSIZE placeholder

	fw, err := flate.NewWriter(&f.buf, f.level)
	if err != nil {
		return nil, errors.Wrap(err, "bgzf: create flate writer")
	}
	if len(chunk) > 0 {
		if _, err := fw.Write(chunk); err != nil {
			return nil, errors.Wrap(err, "bgzf: deflate block")
		}
	}
	if err := fw.Close(); err != nil {
		return nil, errors.Wrap(err, "bgzf: close flate writer")
	}

	var trailer [trailerSize]byte
	binary.LittleEndian.PutUint32(trailer[0:4], crc32IEEE(chunk))
	binary.LittleEndian.PutUint32(trailer[4:8], uint32(len(chunk)))
	f.buf.Write(trailer[:])

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

package bgzf

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
)

// Reader decompresses a BGZF stream one block at a time, exposing the
// concatenated uncompressed payload through Read and the current position
// through VirtualOffset. Grounded on the inverse of writer.go's block
// layout: it validates the BC extra subfield and the trailing CRC32/ISIZE
// rather than trusting the stream, the same checks spec.md §4.6/§7
// require of a conformant reader.
type Reader struct {
	r         *bufio.Reader
	blockPos  int64 // file offset of the block currently buffered in payload
	nextPos   int64 // file offset of the next unread block
	payload   []byte
	pos       int // read cursor within payload
	eof       bool
}

// NewReader returns a Reader over r, starting at file offset 0.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, MaxUncompressedBlockSize)}
}

// VirtualOffset returns the current read position as a BAM virtual offset.
func (rd *Reader) VirtualOffset() uint64 {
	return VirtualOffset(rd.blockPos, uint16(rd.pos))
}

// Read implements io.Reader, pulling blocks in as needed.
func (rd *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for rd.pos >= len(rd.payload) {
		if rd.eof {
			return 0, io.EOF
		}
		if err := rd.fillBlock(); err != nil {
			return 0, err
		}
	}
	n := copy(p, rd.payload[rd.pos:])
	rd.pos += n
	return n, nil
}

func (rd *Reader) fillBlock() error {
	blockStart := rd.nextPos
	var header [headerSize]byte
	n, err := io.ReadFull(rd.r, header[:])
	if err == io.EOF && n == 0 {
		rd.eof = true
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "bgzf: read block header")
	}
	if header[0] != 0x1f || header[1] != 0x8b || header[2] != 8 {
		return errors.New("bgzf: bad gzip magic/method")
	}
	if header[3]&0x04 == 0 {
		return errors.New("bgzf: block missing FEXTRA flag")
	}
	xlen := int(binary.LittleEndian.Uint16(header[10:12]))
	extra := make([]byte, xlen)
	if _, err := io.ReadFull(rd.r, extra); err != nil {
		return errors.Wrap(err, "bgzf: read extra field")
	}
	bsize, ok := findBSIZE(extra)
	if !ok {
		return errors.New("bgzf: missing BC subfield")
	}
	// bsize is (total block length - 1); the portion already consumed is
	// the fixed 12-byte header plus the xlen-byte extra field.
	remaining := int(bsize) + 1 - 12 - xlen
	if remaining < trailerSize {
		return errors.New("bgzf: implausible block size")
	}
	compressedLen := remaining - trailerSize
	compressed := make([]byte, compressedLen)
	if _, err := io.ReadFull(rd.r, compressed); err != nil {
		return errors.Wrap(err, "bgzf: read compressed payload")
	}
	var trailer [trailerSize]byte
	if _, err := io.ReadFull(rd.r, trailer[:]); err != nil {
		return errors.Wrap(err, "bgzf: read trailer")
	}
	wantCRC := binary.LittleEndian.Uint32(trailer[0:4])
	isize := binary.LittleEndian.Uint32(trailer[4:8])

	fr := flate.NewReader(newByteSliceReader(compressed))
	defer fr.Close()
	payload := make([]byte, isize)
	if isize > 0 {
		if _, err := io.ReadFull(fr, payload); err != nil {
			return errors.Wrap(err, "bgzf: inflate block")
		}
	}
	if crc32IEEE(payload) != wantCRC {
		return errors.New("bgzf: CRC32 mismatch")
	}

	rd.blockPos = blockStart
	rd.nextPos = blockStart + int64(bsize) + 1
	rd.payload = payload
	rd.pos = 0
	if isize == 0 && compressedLen == 2 {
		rd.eof = true
	}
	return nil
}

func findBSIZE(extra []byte) (uint16, bool) {
	for i := 0; i+4 <= len(extra); {
		si1, si2 := extra[i], extra[i+1]
		slen := int(binary.LittleEndian.Uint16(extra[i+2 : i+4]))
		if i+4+slen > len(extra) {
			return 0, false
		}
		if si1 == 'B' && si2 == 'C' && slen == 2 {
			return binary.LittleEndian.Uint16(extra[i+4 : i+6]), true
		}
		i += 4 + slen
	}
	return 0, false
}

type byteSliceReader struct {
	b []byte
}

func newByteSliceReader(b []byte) *byteSliceReader { return &byteSliceReader{b: b} }

func (r *byteSliceReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.b)
	r.b = r.b[n:]
	return n, nil
}

func (r *byteSliceReader) ReadByte() (byte, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	b := r.b[0]
	r.b = r.b[1:]
	return b, nil
}

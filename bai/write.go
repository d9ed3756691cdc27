package bai

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/fenwick-bio/seedhts/internal/binning"
)

var magic = [4]byte{'B', 'A', 'I', 1}

// WriteTo serializes the accumulated index to w in the exact layout
// spec.md §4.9 specifies: magic, n_ref, then per reference a bin index
// (with the reserved pseudo-bin appended when any coordinate-bearing
// record was seen) and a linear index, and finally the trailing
// readsWithoutCoordinate counter. All integers are little-endian.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	var buf bytes.Buffer
	buf.Write(magic[:])

	var u32 [4]byte
	var u64 [8]byte
	putU32 := func(v uint32) { binary.LittleEndian.PutUint32(u32[:], v); buf.Write(u32[:]) }
	putU64 := func(v uint64) { binary.LittleEndian.PutUint64(u64[:], v); buf.Write(u64[:]) }

	putU32(uint32(len(w.refs)))
	for i := range w.refs {
		ref := &w.refs[i]

		binCount := len(ref.binOrder)
		if ref.haveCoord {
			binCount++
		}
		putU32(uint32(binCount))
		for _, bin := range ref.binOrder {
			bc := ref.bins[bin]
			putU32(bin)
			putU32(uint32(len(bc.chunks)))
			for _, c := range bc.chunks {
				putU64(c.begin)
				putU64(c.end)
			}
		}
		if ref.haveCoord {
			putU32(binning.PseudoBin)
			putU32(2)
			putU64(ref.firstOffset)
			putU64(ref.lastOffset)
			putU64(ref.mapped)
			putU64(ref.unmapped)
		}

		putU32(uint32(len(ref.linear)))
		for i, v := range ref.linear {
			if !ref.linearSet[i] {
				v = 0
			}
			putU64(v)
		}
	}

	putU64(w.readsWithoutCoordinate)

	n, err := out.Write(buf.Bytes())
	return int64(n), errors.Wrap(err, "bai: write index")
}

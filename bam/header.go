package bam

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// magic is the 4-byte BAM file signature.
var magic = [4]byte{'B', 'A', 'M', 1}

// Reference is one entry of a BAM reference dictionary: a sequence name
// and its length.
type Reference struct {
	Name   string
	Length int
}

// Header holds the SAM header text and reference dictionary exchanged at
// the front of a BAM stream, per spec.md §4.8/§6.
type Header struct {
	Text string
	Refs []Reference
}

// NewHeader builds a Header from SAM header lines (each without its own
// trailing newline, e.g. "@HD\tVN:1.6\tSO:unsorted") and a parallel
// reference dictionary, per spec.md §4.8's "Writer ... takes a list of SAM
// header lines".
func NewHeader(lines []string, refs []Reference) *Header {
	var text bytes.Buffer
	for _, line := range lines {
		text.WriteString(line)
		text.WriteByte('\n')
	}
	return &Header{Text: text.String(), Refs: refs}
}

// readHeader parses the BAM magic, header text, and reference dictionary
// from r, per spec.md §6's BAM file layout.
func readHeader(r io.Reader) (*Header, error) {
	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return nil, errors.Wrap(err, "bam: read magic")
	}
	if got != magic {
		return nil, fmt.Errorf("bam: bad magic %q, want %q", got[:], magic[:])
	}

	var u32 [4]byte
	if _, err := io.ReadFull(r, u32[:]); err != nil {
		return nil, errors.Wrap(err, "bam: read l_text")
	}
	lText := binary.LittleEndian.Uint32(u32[:])
	text := make([]byte, lText)
	if _, err := io.ReadFull(r, text); err != nil {
		return nil, errors.Wrap(err, "bam: read header text")
	}

	if _, err := io.ReadFull(r, u32[:]); err != nil {
		return nil, errors.Wrap(err, "bam: read n_ref")
	}
	nRef := int32(binary.LittleEndian.Uint32(u32[:]))
	if nRef < 0 {
		return nil, fmt.Errorf("bam: negative n_ref %d", nRef)
	}

	h := &Header{Text: string(text), Refs: make([]Reference, nRef)}
	for i := range h.Refs {
		if _, err := io.ReadFull(r, u32[:]); err != nil {
			return nil, errors.Wrap(err, "bam: read l_name")
		}
		lName := binary.LittleEndian.Uint32(u32[:])
		name := make([]byte, lName)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, errors.Wrap(err, "bam: read reference name")
		}
		if lName == 0 || name[lName-1] != 0 {
			return nil, errors.New("bam: reference name not NUL-terminated")
		}
		if _, err := io.ReadFull(r, u32[:]); err != nil {
			return nil, errors.Wrap(err, "bam: read l_ref")
		}
		h.Refs[i] = Reference{
			Name:   string(name[:lName-1]),
			Length: int(int32(binary.LittleEndian.Uint32(u32[:]))),
		}
	}
	return h, nil
}

// writeHeader writes magic, header text, and reference dictionary to w.
func writeHeader(w io.Writer, h *Header) error {
	var buf bytes.Buffer
	buf.Write(magic[:])

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(h.Text)))
	buf.Write(u32[:])
	buf.WriteString(h.Text)

	binary.LittleEndian.PutUint32(u32[:], uint32(len(h.Refs)))
	buf.Write(u32[:])
	for _, ref := range h.Refs {
		nameBytes := append([]byte(ref.Name), 0)
		binary.LittleEndian.PutUint32(u32[:], uint32(len(nameBytes)))
		buf.Write(u32[:])
		buf.Write(nameBytes)
		binary.LittleEndian.PutUint32(u32[:], uint32(ref.Length))
		buf.Write(u32[:])
	}

	_, err := w.Write(buf.Bytes())
	return errors.Wrap(err, "bam: write header")
}

package bam

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/biogo/hts/sam"
	"github.com/pkg/errors"

	"github.com/fenwick-bio/seedhts/internal/binning"
)

// fixedRecordBytes is the length of a BAM record's fixed-width prefix,
// refID through tlen, before the variable-length read_name/cigar/seq/
// qual/aux fields.
const fixedRecordBytes = 32

// unmappedBin is the sentinel bin value BAM assigns an unmapped record
// that carries no reference coordinate, per spec.md §6.
const unmappedBin = 4680

var (
	errNameAbsentOrTooLong = errors.New("bam: read name absent or too long")
	errSeqQualLenMismatch  = errors.New("bam: sequence/quality length mismatch")
	errRecordTooShort      = errors.New("bam: record shorter than fixed fields")
)

// Record is one BAM alignment record in memory. Marshal takes Seq/Qual in
// alignment orientation and, for a reverse-strand record, stores them
// reverse-complemented/reversed (read orientation); Unmarshal returns the
// stored bytes unchanged, so a reverse-strand Record it produces holds
// read-orientation Seq/Qual. Cigar, Flags, and Aux reuse
// github.com/biogo/hts/sam's leaf types so the transcoder stays
// interoperable with the rest of the biogo/hts ecosystem; the wire
// encode/decode itself is hand-written against spec.md's byte layout.
type Record struct {
	RefID     int // -1 when unmapped (RNAME "*")
	Pos       int // 0-based; -1 when unmapped
	MapQ      byte
	Cigar     sam.Cigar
	Flags     sam.Flags
	Name      string
	Seq       []byte // bases, one ASCII byte each; orientation as described above
	Qual      []byte // raw Phred scores; nil renders as all-0xFF ("absent")
	NextRefID int
	NextPos   int
	TLen      int
	Aux       []sam.Aux
}

// RefSpan returns the number of reference bases c consumes. It is
// exported so package bai can compute the same linear-index window span
// bam.Record.Bin uses internally, without a second copy of the CIGAR
// walk.
func RefSpan(c sam.Cigar) int {
	return cigarRefSpan(c)
}

// Bin returns the reg2bin value this record occupies, or the fixed
// unmapped sentinel when it carries no reference placement. It is
// exported so package bai can compute the same value without duplicating
// the cigarRefSpan/unmapped-sentinel logic.
func (r *Record) Bin() int {
	if r.RefID < 0 || r.Pos < 0 {
		return unmappedBin
	}
	end := r.Pos + cigarRefSpan(r.Cigar)
	if end <= r.Pos {
		end = r.Pos + 1
	}
	return binning.Reg2Bin(int64(r.Pos), int64(end))
}

// Marshal encodes r as a BAM record, per the wire-layout table in spec.md
// §4.7. It does not prepend the block_size prefix; Writer.WriteRecord
// does that. When Flags indicates reverse strand, Seq is
// reverse-complemented and Qual reversed before packing, so the stored
// bytes are in read orientation as spec.md's reverse-strand convention
// requires; r itself is left untouched.
func Marshal(r *Record, buf *bytes.Buffer) error {
	if len(r.Name) == 0 || len(r.Name) > 254 {
		return errNameAbsentOrTooLong
	}
	if r.Qual != nil && len(r.Qual) != len(r.Seq) {
		return errSeqQualLenMismatch
	}

	seq, qual := r.Seq, r.Qual
	if r.Flags&sam.Reverse != 0 {
		seq = reverseComplement(seq)
		if qual != nil {
			qual = reverseBytes(qual)
		}
	}

	var aux []byte
	aux = encodeAux(aux, r.Aux)

	var scratch [4]byte
	writeInt32 := func(v int32) {
		binary.LittleEndian.PutUint32(scratch[:], uint32(v))
		buf.Write(scratch[:])
	}
	writeUint32 := func(v uint32) {
		binary.LittleEndian.PutUint32(scratch[:], v)
		buf.Write(scratch[:])
	}
	writeUint16 := func(v uint16) {
		binary.LittleEndian.PutUint16(scratch[:2], v)
		buf.Write(scratch[:2])
	}

	writeInt32(int32(r.RefID))
	writeInt32(int32(r.Pos))
	buf.WriteByte(byte(len(r.Name) + 1))
	buf.WriteByte(r.MapQ)
	writeUint16(uint16(r.Bin()))
	writeUint16(uint16(len(r.Cigar)))
	writeUint16(uint16(r.Flags))
	writeUint32(uint32(len(seq)))
	writeInt32(int32(r.NextRefID))
	writeInt32(int32(r.NextPos))
	writeInt32(int32(r.TLen))

	buf.WriteString(r.Name)
	buf.WriteByte(0)
	for _, op := range r.Cigar {
		writeUint32(uint32(op))
	}
	buf.Write(packSeq(seq))
	if qual != nil {
		buf.Write(qual)
	} else {
		for i := 0; i < len(seq); i++ {
			buf.WriteByte(0xff)
		}
	}
	buf.Write(aux)
	return nil
}

// Unmarshal decodes one BAM record (without its block_size prefix) out of
// b. numRefs bounds refID/next_refID against the reference dictionary's
// size.
func Unmarshal(b []byte, numRefs int) (*Record, error) {
	if len(b) < fixedRecordBytes {
		return nil, errRecordTooShort
	}
	r := &Record{}
	r.RefID = int(int32(binary.LittleEndian.Uint32(b[0:])))
	r.Pos = int(int32(binary.LittleEndian.Uint32(b[4:])))
	nameLen := int(b[8])
	r.MapQ = b[9]
	nCigar := int(binary.LittleEndian.Uint16(b[12:]))
	r.Flags = sam.Flags(binary.LittleEndian.Uint16(b[14:]))
	lSeq := int(binary.LittleEndian.Uint32(b[16:]))
	r.NextRefID = int(int32(binary.LittleEndian.Uint32(b[20:])))
	r.NextPos = int(int32(binary.LittleEndian.Uint32(b[24:])))
	r.TLen = int(int32(binary.LittleEndian.Uint32(b[28:])))

	off := fixedRecordBytes
	if nameLen == 0 || off+nameLen > len(b) {
		return nil, errRecordTooShort
	}
	if b[off+nameLen-1] != 0 {
		return nil, errors.New("bam: read name not NUL-terminated")
	}
	r.Name = string(b[off : off+nameLen-1])
	off += nameLen

	cigarBytes := nCigar * 4
	if off+cigarBytes > len(b) {
		return nil, errRecordTooShort
	}
	if nCigar > 0 {
		r.Cigar = make(sam.Cigar, nCigar)
		for i := 0; i < nCigar; i++ {
			r.Cigar[i] = sam.CigarOp(binary.LittleEndian.Uint32(b[off+i*4:]))
		}
	}
	off += cigarBytes

	seqBytes := (lSeq + 1) / 2
	if off+seqBytes > len(b) {
		return nil, errRecordTooShort
	}
	r.Seq = unpackSeq(b[off:off+seqBytes], lSeq)
	off += seqBytes

	if off+lSeq > len(b) {
		return nil, errRecordTooShort
	}
	qual := b[off : off+lSeq]
	absent := true
	for _, q := range qual {
		if q != 0xff {
			absent = false
			break
		}
	}
	if !absent {
		r.Qual = append([]byte(nil), qual...)
	}
	off += lSeq

	aux, err := decodeAux(b[off:])
	if err != nil {
		return nil, errors.Wrap(err, "bam: decode aux fields")
	}
	r.Aux = aux

	if r.RefID < -1 || r.RefID >= numRefs {
		return nil, fmt.Errorf("bam: reference id %d out of range [-1,%d)", r.RefID, numRefs)
	}
	if r.NextRefID < -1 || r.NextRefID >= numRefs {
		return nil, fmt.Errorf("bam: mate reference id %d out of range [-1,%d)", r.NextRefID, numRefs)
	}
	return r, nil
}

package bam

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/biogo/hts/sam"
	"github.com/pkg/errors"
)

// auxJumps maps an aux TYPE byte to its fixed value width in bytes, or a
// negative sentinel for the variable-width types Z, H, and B. Grounded on
// encoding/bam/unmarshal.go's jumps table, which walks the same boundary
// scan for the teacher's own *sam.Record aux fields.
var auxJumps = [256]int{
	'A': 1,
	'c': 1, 'C': 1,
	's': 2, 'S': 2,
	'i': 4, 'I': 4,
	'f': 4,
	'Z': -1,
	'H': -1,
	'B': -1,
}

// decodeAux scans the aux region of a decoded BAM record into one sam.Aux
// per tag. Each Aux shares storage with aux; Z/H tags exclude the
// trailing NUL encodeAux restores on the way back out, matching
// encoding/bam/unmarshal.go's parseAux convention.
func decodeAux(aux []byte) ([]sam.Aux, error) {
	var tags []sam.Aux
	for i := 0; i+2 < len(aux); {
		t := aux[i+2]
		switch j := auxJumps[t]; {
		case j > 0:
			j += 3
			if i+j > len(aux) {
				return nil, errors.New("bam: truncated fixed-width aux field")
			}
			tags = append(tags, sam.Aux(aux[i:i+j:i+j]))
			i += j
		case j < 0:
			switch t {
			case 'Z', 'H':
				end := i + 3
				for end < len(aux) && aux[end] != 0 {
					end++
				}
				if end >= len(aux) {
					return nil, errors.New("bam: unterminated Z/H aux field")
				}
				tags = append(tags, sam.Aux(aux[i:end:end]))
				i = end + 1
			case 'B':
				if i+8 > len(aux) {
					return nil, errors.New("bam: truncated B aux field")
				}
				sub := aux[i+3]
				count := int(binary.LittleEndian.Uint32(aux[i+4 : i+8]))
				elemSize := auxJumps[sub]
				if elemSize <= 0 {
					return nil, fmt.Errorf("bam: invalid B aux subtype %q", sub)
				}
				end := i + 8 + count*elemSize
				if end > len(aux) {
					return nil, errors.New("bam: truncated B aux field")
				}
				tags = append(tags, sam.Aux(aux[i:end:end]))
				i = end
			default:
				return nil, fmt.Errorf("bam: unrecognised aux type %q", t)
			}
		default:
			return nil, fmt.Errorf("bam: unrecognised aux type %q", t)
		}
	}
	return tags, nil
}

// encodeAux appends the wire bytes for every tag in tags to buf, restoring
// the Z/H NUL terminator decodeAux strips off.
func encodeAux(buf []byte, tags []sam.Aux) []byte {
	for _, a := range tags {
		buf = append(buf, []byte(a)...)
		switch a.Type() {
		case 'Z', 'H':
			buf = append(buf, 0)
		}
	}
	return buf
}

// NewIntAux builds an integer aux tag using the smallest fixed-width
// representation among c, C, s, S, i, I that can hold v, per spec.md
// §4.7's aux tag encoding rule.
func NewIntAux(tag [2]byte, v int64) sam.Aux {
	var typ byte
	var val []byte
	switch {
	case v >= -128 && v <= 127:
		typ, val = 'c', []byte{byte(int8(v))}
	case v >= 0 && v <= 255:
		typ, val = 'C', []byte{byte(v)}
	case v >= -32768 && v <= 32767:
		typ = 's'
		val = make([]byte, 2)
		binary.LittleEndian.PutUint16(val, uint16(int16(v)))
	case v >= 0 && v <= 65535:
		typ = 'S'
		val = make([]byte, 2)
		binary.LittleEndian.PutUint16(val, uint16(v))
	case v >= -2147483648 && v <= 2147483647:
		typ = 'i'
		val = make([]byte, 4)
		binary.LittleEndian.PutUint32(val, uint32(int32(v)))
	default:
		typ = 'I'
		val = make([]byte, 4)
		binary.LittleEndian.PutUint32(val, uint32(v))
	}
	a := make(sam.Aux, 0, 3+len(val))
	a = append(a, tag[0], tag[1], typ)
	a = append(a, val...)
	return a
}

// NewStringAux builds a Z aux tag holding s (excluding the NUL terminator,
// which encodeAux adds back at marshal time).
func NewStringAux(tag [2]byte, s string) sam.Aux {
	a := make(sam.Aux, 0, 3+len(s))
	a = append(a, tag[0], tag[1], 'Z')
	a = append(a, s...)
	return a
}

// NewCharAux builds an A aux tag holding a single printable character.
func NewCharAux(tag [2]byte, v byte) sam.Aux {
	return sam.Aux{tag[0], tag[1], 'A', v}
}

// NewFloatAux builds an f aux tag holding a 32-bit float.
func NewFloatAux(tag [2]byte, v float32) sam.Aux {
	a := make(sam.Aux, 3+4)
	a[0], a[1], a[2] = tag[0], tag[1], 'f'
	binary.LittleEndian.PutUint32(a[3:], math.Float32bits(v))
	return a
}

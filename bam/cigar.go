package bam

import "github.com/biogo/hts/sam"

// cigarRefSpan returns the number of reference bases c consumes: the sum
// of its M/D/N/=/X op lengths, per the CIGAR op-code table in spec.md
// §4.7 (M=0,D=2,N=3,==7,X=8 consume the reference; I=1,S=4,H=5,P=6 do
// not). It reads the op code directly out of the low 4 bits of each
// sam.CigarOp's uint32 wire value rather than going through
// sam.CigarOp.Type(), since this package's own Marshal/Unmarshal already
// round-trip sam.CigarOp as that same uint32 wire value (confirmed by
// encoding/pam/fieldio/reader.go's sam.CigarOp(...Uvarint32()) cast) and
// the op-code-to-ref-consumption mapping is spec-literal, not something
// that needs the sam package's own symbolic constants.
func cigarRefSpan(c sam.Cigar) int {
	span := 0
	for _, op := range c {
		code := uint32(op) & 0xf
		length := int(uint32(op) >> 4)
		switch code {
		case 0, 2, 3, 7, 8:
			span += length
		}
	}
	return span
}

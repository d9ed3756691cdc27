package align

import "github.com/biogo/hts/sam"

// BuildCigar returns the CIGAR for an indel-free alignment: an optional
// leading soft/hard clip, a single match run of length interiorLen, and an
// optional trailing soft/hard clip. Per SPEC_FULL.md §4.4/§4.7, this
// aligner never emits I/D/N ops; every non-aligned base is clipped.
//
// hardClip controls whether the clip operator is H (supplementary/secondary
// records, which omit clipped bases from SEQ/QUAL) or S (primary records,
// which keep the full read in SEQ/QUAL).
func BuildCigar(clipStart, interiorLen, clipEnd int, hardClip bool) sam.Cigar {
	clipOp := sam.CigarSoftClipped
	if hardClip {
		clipOp = sam.CigarHardClipped
	}
	var c sam.Cigar
	if clipStart > 0 {
		c = append(c, sam.NewCigarOp(clipOp, clipStart))
	}
	c = append(c, sam.NewCigarOp(sam.CigarMatch, interiorLen))
	if clipEnd > 0 {
		c = append(c, sam.NewCigarOp(clipOp, clipEnd))
	}
	return c
}

// MapQ derives a mapping quality from subs, the kept candidate's
// substitution count (including any boundary-clip penalty), and qlen, the
// query length, per spec.md §4.4 step 5's literal formula:
//
//	clamp(floor(40*(qlen/2-subs)/(qlen/2)), 0, 40)
//
// Every candidate that clears a query's acceptance budget is emitted as
// its own SAM record (spec.md §4.4 step 5), so MapQ scores each record on
// its own mismatch count rather than on uniqueness among candidates.
func MapQ(subs, qlen int) int {
	half := qlen / 2
	if half <= 0 {
		half = 1
	}
	q := 40 * (half - subs) / half
	if q < 0 {
		q = 0
	}
	if q > 40 {
		q = 40
	}
	return q
}

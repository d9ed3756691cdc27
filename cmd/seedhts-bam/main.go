// seedhts-bam is the thin CLI front end over package bam's SAM<->BAM
// transcoder and package bai's index writer: it never reimplements their
// wire logic, only parses flags and a SAM text dialect and dispatches,
// the way cmd/bio-fusion/main.go's main() is glue over the fusion package.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"

	"github.com/fenwick-bio/seedhts/bai"
	"github.com/fenwick-bio/seedhts/bam"
)

func usage() {
	fmt.Fprintln(os.Stderr, `seedhts-bam: SAM<->BAM transcoding and .bai index construction.

Usage:
  seedhts-bam tobam -in reads.sam -out reads.bam
  seedhts-bam tosam -in reads.bam -out reads.sam
  seedhts-bam index -in reads.bam -out reads.bam.bai

Flags (per subcommand):`)
	flag.PrintDefaults()
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	sub := os.Args[1]
	fs := flag.NewFlagSet(sub, flag.ExitOnError)
	in := fs.String("in", "", "input path")
	out := fs.String("out", "", "output path")
	level := fs.Int("level", 6, "BGZF compression level, for tobam")
	fs.Usage = usage
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatal(err)
	}
	if *in == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "seedhts-bam: -in and -out are required")
		usage()
		os.Exit(2)
	}

	var err error
	switch sub {
	case "tobam":
		err = toBAM(*in, *out, *level)
	case "tosam":
		err = toSAM(*in, *out)
	case "index":
		err = buildIndex(*in, *out)
	default:
		fmt.Fprintf(os.Stderr, "seedhts-bam: unknown subcommand %q\n", sub)
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// toBAM reads SAM text (header lines plus the §6 tab-delimited alignment
// dialect) from inPath and writes a BAM file to outPath.
func toBAM(inPath, outPath string, level int) error {
	f, err := os.Open(inPath)
	if err != nil {
		return errors.Wrapf(err, "seedhts-bam: open %s", inPath)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<16), 1<<24)

	header, refIndex, err := readSAMHeader(sc)
	if err != nil {
		return err
	}
	refs := make([]bam.Reference, len(header.sq))
	for i, sq := range header.sq {
		refs[i] = bam.Reference{Name: sq.name, Length: sq.length}
	}
	bamHeader := bam.NewHeader(header.rawLines, refs)

	out, err := os.Create(outPath)
	if err != nil {
		return errors.Wrapf(err, "seedhts-bam: create %s", outPath)
	}
	defer out.Close()
	w, err := bam.NewWriter(out, level, bamHeader)
	if err != nil {
		return errors.Wrap(err, "seedhts-bam: create BAM writer")
	}

	n := 0
	if header.firstAlignmentLine != "" {
		rec, err := parseSAMLine(header.firstAlignmentLine, refIndex)
		if err != nil {
			return errors.Wrapf(err, "seedhts-bam: line %d", n+1)
		}
		if err := w.WriteRecord(rec); err != nil {
			return errors.Wrapf(err, "seedhts-bam: write record %d", n+1)
		}
		n++
	}
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		rec, err := parseSAMLine(line, refIndex)
		if err != nil {
			return errors.Wrapf(err, "seedhts-bam: line %d", n+1)
		}
		if err := w.WriteRecord(rec); err != nil {
			return errors.Wrapf(err, "seedhts-bam: write record %d", n+1)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return errors.Wrap(err, "seedhts-bam: scan SAM text")
	}
	log.Printf("seedhts-bam: wrote %d records to %s", n, outPath)
	return w.Close()
}

// toSAM reads a BAM file from inPath and writes SAM text to outPath.
func toSAM(inPath, outPath string) error {
	in, err := os.Open(inPath)
	if err != nil {
		return errors.Wrapf(err, "seedhts-bam: open %s", inPath)
	}
	defer in.Close()
	r, err := bam.NewReader(in)
	if err != nil {
		return errors.Wrap(err, "seedhts-bam: open BAM reader")
	}

	out, err := os.Create(outPath)
	if err != nil {
		return errors.Wrapf(err, "seedhts-bam: create %s", outPath)
	}
	defer out.Close()
	bw := bufio.NewWriterSize(out, 1<<20)

	if r.Header.Text != "" {
		if _, err := bw.WriteString(r.Header.Text); err != nil {
			return errors.Wrap(err, "seedhts-bam: write header text")
		}
	}

	n := 0
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "seedhts-bam: read BAM record")
		}
		if err := formatSAMLine(bw, rec, r.Header); err != nil {
			return err
		}
		n++
	}
	log.Printf("seedhts-bam: wrote %d records to %s", n, outPath)
	return bw.Flush()
}

// buildIndex reads a BAM file from inPath and writes its .bai to outPath.
func buildIndex(inPath, outPath string) error {
	in, err := os.Open(inPath)
	if err != nil {
		return errors.Wrapf(err, "seedhts-bam: open %s", inPath)
	}
	defer in.Close()
	r, err := bam.NewReader(in)
	if err != nil {
		return errors.Wrap(err, "seedhts-bam: open BAM reader")
	}

	refLengths := make([]int, len(r.Header.Refs))
	for i, ref := range r.Header.Refs {
		refLengths[i] = ref.Length
	}
	w := bai.NewWriter(refLengths)

	n := 0
	for {
		begin, end, rec, err := r.NextChunk()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "seedhts-bam: read BAM record")
		}
		w.Add(rec, begin, end)
		n++
	}

	out, err := os.Create(outPath)
	if err != nil {
		return errors.Wrapf(err, "seedhts-bam: create %s", outPath)
	}
	defer out.Close()
	if _, err := w.WriteTo(out); err != nil {
		return errors.Wrap(err, "seedhts-bam: write index")
	}
	log.Printf("seedhts-bam: indexed %d records from %s into %s", n, inPath, outPath)
	return nil
}

// samHeader is the subset of SAM header text this transcoder round-trips:
// the @SQ dictionary (needed to resolve RNAME to a refID) plus the raw
// header lines, preserved verbatim for BAM's l_text block.
type samHeader struct {
	rawLines []string
	sq       []struct {
		name   string
		length int
	}
	// firstAlignmentLine is the first non-header line the header scan
	// necessarily consumed while looking for the end of the header block;
	// the caller must process it before resuming its own Scan loop on the
	// same Scanner.
	firstAlignmentLine string
}

func readSAMHeader(sc *bufio.Scanner) (samHeader, map[string]int, error) {
	var h samHeader
	refIndex := map[string]int{}
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "@") {
			h.firstAlignmentLine = line
			break
		}
		h.rawLines = append(h.rawLines, line)
		if strings.HasPrefix(line, "@SQ\t") {
			var name string
			var length int
			for _, field := range strings.Split(line, "\t")[1:] {
				if strings.HasPrefix(field, "SN:") {
					name = strings.TrimPrefix(field, "SN:")
				} else if strings.HasPrefix(field, "LN:") {
					var err error
					if length, err = strconv.Atoi(strings.TrimPrefix(field, "LN:")); err != nil {
						return h, nil, errors.Wrapf(err, "seedhts-bam: parse @SQ LN in %q", line)
					}
				}
			}
			if name == "" {
				return h, nil, errors.Errorf("seedhts-bam: @SQ line missing SN: %q", line)
			}
			refIndex[name] = len(h.sq)
			h.sq = append(h.sq, struct {
				name   string
				length int
			}{name, length})
		}
	}
	if err := sc.Err(); err != nil {
		return h, nil, errors.Wrap(err, "seedhts-bam: scan SAM header")
	}
	return h, refIndex, nil
}

func parseSAMLine(line string, refIndex map[string]int) (*bam.Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 11 {
		return nil, errors.Errorf("seedhts-bam: alignment line has %d fields, want >= 11", len(fields))
	}
	flag, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, errors.Wrap(err, "seedhts-bam: parse FLAG")
	}
	pos, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, errors.Wrap(err, "seedhts-bam: parse POS")
	}
	mapq, err := strconv.Atoi(fields[4])
	if err != nil {
		return nil, errors.Wrap(err, "seedhts-bam: parse MAPQ")
	}
	cigar, err := parseCigar(fields[5])
	if err != nil {
		return nil, err
	}
	pnext, err := strconv.Atoi(fields[7])
	if err != nil {
		return nil, errors.Wrap(err, "seedhts-bam: parse PNEXT")
	}
	tlen, err := strconv.Atoi(fields[8])
	if err != nil {
		return nil, errors.Wrap(err, "seedhts-bam: parse TLEN")
	}

	rec := &bam.Record{
		RefID:     resolveRef(fields[2], refIndex),
		Pos:       pos - 1,
		MapQ:      byte(mapq),
		Cigar:     cigar,
		Flags:     sam.Flags(flag),
		Name:      fields[0],
		NextRefID: resolveRef(fields[6], refIndex),
		NextPos:   pnext - 1,
		TLen:      tlen,
	}
	if fields[6] == "=" {
		rec.NextRefID = rec.RefID
	}
	if fields[9] != "*" {
		rec.Seq = []byte(fields[9])
	}
	if fields[10] != "*" {
		rec.Qual = []byte(fields[10])
	}
	for _, tag := range fields[11:] {
		aux, err := parseAuxField(tag)
		if err != nil {
			return nil, err
		}
		rec.Aux = append(rec.Aux, aux)
	}
	return rec, nil
}

func resolveRef(name string, refIndex map[string]int) int {
	if name == "*" {
		return -1
	}
	id, ok := refIndex[name]
	if !ok {
		return -1
	}
	return id
}

// parseCigar accepts the confirmed SAM CIGAR operators M, I, D, N, S, H;
// any other operator is an unknown-CIGAR-op conversion error, per spec.md
// §7's SAM->BAM error taxonomy.
func parseCigar(s string) (sam.Cigar, error) {
	if s == "*" {
		return nil, nil
	}
	var c sam.Cigar
	length := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			length = length*10 + int(r-'0')
			continue
		}
		op, err := cigarOpFromByte(byte(r))
		if err != nil {
			return nil, err
		}
		c = append(c, sam.NewCigarOp(op, length))
		length = 0
	}
	return c, nil
}

func cigarOpFromByte(b byte) (sam.CigarOpType, error) {
	switch b {
	case 'M':
		return sam.CigarMatch, nil
	case 'I':
		return sam.CigarInsertion, nil
	case 'D':
		return sam.CigarDeletion, nil
	case 'N':
		return sam.CigarSkipped, nil
	case 'S':
		return sam.CigarSoftClipped, nil
	case 'H':
		return sam.CigarHardClipped, nil
	default:
		return 0, errors.Errorf("seedhts-bam: unknown CIGAR op %q", b)
	}
}

// parseAuxField parses one TAG:TYPE:VALUE field into a sam.Aux, supporting
// the integer, string, character, and float types per spec.md §4.7's aux
// encoding; any other type is an unknown-aux-type conversion error.
func parseAuxField(field string) (sam.Aux, error) {
	parts := strings.SplitN(field, ":", 3)
	if len(parts) != 3 || len(parts[0]) != 2 {
		return nil, errors.Errorf("seedhts-bam: malformed aux field %q", field)
	}
	var tag [2]byte
	tag[0], tag[1] = parts[0][0], parts[0][1]
	switch parts[1] {
	case "i":
		v, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "seedhts-bam: parse integer aux %q", field)
		}
		return bam.NewIntAux(tag, v), nil
	case "Z":
		return bam.NewStringAux(tag, parts[2]), nil
	case "A":
		if len(parts[2]) != 1 {
			return nil, errors.Errorf("seedhts-bam: malformed character aux %q", field)
		}
		return bam.NewCharAux(tag, parts[2][0]), nil
	case "f":
		v, err := strconv.ParseFloat(parts[2], 32)
		if err != nil {
			return nil, errors.Wrapf(err, "seedhts-bam: parse float aux %q", field)
		}
		return bam.NewFloatAux(tag, float32(v)), nil
	default:
		return nil, errors.Errorf("seedhts-bam: unknown aux type %q in %q", parts[1], field)
	}
}

func formatSAMLine(w *bufio.Writer, rec *bam.Record, header *bam.Header) error {
	rname := "*"
	if rec.RefID >= 0 && rec.RefID < len(header.Refs) {
		rname = header.Refs[rec.RefID].Name
	}
	rnext := "*"
	if rec.NextRefID == rec.RefID && rec.RefID >= 0 {
		rnext = "="
	} else if rec.NextRefID >= 0 && rec.NextRefID < len(header.Refs) {
		rnext = header.Refs[rec.NextRefID].Name
	}
	pos := 0
	if rec.Pos >= 0 {
		pos = rec.Pos + 1
	}
	pnext := 0
	if rec.NextPos >= 0 {
		pnext = rec.NextPos + 1
	}
	cigar := "*"
	if len(rec.Cigar) > 0 {
		cigar = rec.Cigar.String()
	}
	seq := "*"
	if len(rec.Seq) > 0 {
		seq = string(rec.Seq)
	}
	qual := "*"
	if len(rec.Qual) > 0 {
		qual = string(rec.Qual)
	}
	if _, err := fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\t%s\t%s\t%d\t%d\t%s\t%s",
		rec.Name, int(rec.Flags), rname, pos, rec.MapQ, cigar, rnext, pnext, rec.TLen, seq, qual); err != nil {
		return errors.Wrap(err, "seedhts-bam: write fixed fields")
	}
	for _, aux := range rec.Aux {
		if err := formatAuxField(w, aux); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\n")
	return errors.Wrap(err, "seedhts-bam: write record terminator")
}

func formatAuxField(w *bufio.Writer, aux sam.Aux) error {
	tag := string([]byte(aux)[:2])
	var err error
	switch aux.Type() {
	case 'A':
		_, err = fmt.Fprintf(w, "\t%s:A:%c", tag, aux.Value())
	case 'c', 'C', 's', 'S', 'i', 'I':
		_, err = fmt.Fprintf(w, "\t%s:%c:%v", tag, normalizedAuxType(aux.Type()), aux.Value())
	case 'f':
		_, err = fmt.Fprintf(w, "\t%s:f:%v", tag, aux.Value())
	case 'Z', 'H':
		_, err = fmt.Fprintf(w, "\t%s:%c:%s", tag, aux.Type(), aux.Value())
	default:
		return errors.Errorf("seedhts-bam: unknown aux type %q for tag %s", aux.Type(), tag)
	}
	return errors.Wrap(err, "seedhts-bam: write aux field")
}

// normalizedAuxType collapses BAM's six integer storage widths back to
// SAM text's single "i" type letter, per spec.md §4.7.
func normalizedAuxType(t byte) byte {
	switch t {
	case 'c', 'C', 's', 'S', 'i', 'I':
		return 'i'
	default:
		return t
	}
}

// seedhts-align runs the indel-free seed-and-extend aligner core over a
// streamed reference corpus (FASTA, local file or s3://bucket/key) and one
// read file (FASTA or FASTQ), writing SAM text to -out. The reference is
// read in -chunksize-record batches, each fused and indexed independently
// and then discarded, rather than loaded whole. Flag names and semantics
// follow spec.md §6's CLI-facing options; parsing itself stays on the
// standard flag package, the way cmd/bio-fusion/main.go treats its own
// flags as thin collaborator glue rather than library surface.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"

	"github.com/fenwick-bio/seedhts/aligner"
	"github.com/fenwick-bio/seedhts/refsource"
	"github.com/fenwick-bio/seedhts/samtext"
)

type flags struct {
	ref       string
	reads     string
	out       string
	header    string
	k         string
	mm        int
	blacklist int
	maxsubs   int
	minid     float64
	minhits   int
	minprob   float64
	maxclip   float64
	qstep     int
	rstep     int
	maxmult   int
	workers   int
	iters     int
	chunksize int
	minrlen   int
	padding   int
}

func parseKCandidates(spec string) ([]int, error) {
	parts := strings.Split(spec, ",")
	ks := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.Wrapf(err, "seedhts-align: parse -k value %q", p)
		}
		ks = append(ks, v)
	}
	if len(ks) == 0 {
		return nil, errors.New("seedhts-align: -k must name at least one candidate")
	}
	return ks, nil
}

// normalizeMinIdentity implements spec.md §6's "minid ... >1 interpreted as
// percentage" rule.
func normalizeMinIdentity(v float64) float64 {
	if v > 1 {
		return v / 100
	}
	return v
}

func openReference(path string) (refsource.Source, error) {
	if strings.HasPrefix(path, "s3://") {
		rest := strings.TrimPrefix(path, "s3://")
		slash := strings.IndexByte(rest, '/')
		if slash < 0 {
			return nil, errors.Errorf("seedhts-align: malformed s3 path %q", path)
		}
		return refsource.S3(rest[:slash], rest[slash+1:])
	}
	return refsource.Local(path)
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "seedhts-align: create %s", path)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// readQueries scans path (FASTA or FASTQ, sniffed from the first non-blank
// byte) and returns every record as a RawQuery, per spec.md §4.5's startup
// step of parsing the whole query set in one pass before any reference
// batch is processed.
func readQueries(path string) ([]aligner.RawQuery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "seedhts-align: open %s", path)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 1<<20)
	first, err := br.Peek(1)
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errors.Wrap(err, "seedhts-align: peek read file")
	}

	if first[0] == '@' {
		return scanFASTQ(br)
	}
	return scanFASTA(br)
}

func scanFASTQ(br *bufio.Reader) ([]aligner.RawQuery, error) {
	var out []aligner.RawQuery
	for {
		header, err := br.ReadString('\n')
		if err == io.EOF && header == "" {
			return out, nil
		}
		header = strings.TrimRight(header, "\r\n")
		if header == "" {
			return out, nil
		}
		if !strings.HasPrefix(header, "@") {
			return nil, errors.Errorf("seedhts-align: malformed fastq header %q", header)
		}
		seq, err := br.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(err, "seedhts-align: read fastq sequence line")
		}
		plus, err := br.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(err, "seedhts-align: read fastq plus line")
		}
		if !strings.HasPrefix(plus, "+") {
			return nil, errors.Errorf("seedhts-align: malformed fastq plus line %q", plus)
		}
		qual, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, errors.Wrap(err, "seedhts-align: read fastq quality line")
		}
		name := strings.Fields(strings.TrimPrefix(header, "@"))
		if len(name) == 0 {
			return nil, errors.Errorf("seedhts-align: empty read name in header %q", header)
		}
		out = append(out, aligner.RawQuery{
			Name:  name[0],
			Bases: []byte(strings.TrimRight(seq, "\r\n")),
			Quals: []byte(strings.TrimRight(qual, "\r\n")),
		})
	}
}

func scanFASTA(br *bufio.Reader) ([]aligner.RawQuery, error) {
	var out []aligner.RawQuery
	src := refsourceScanner{br: br}
	for {
		rec, err := src.next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, aligner.RawQuery{Name: rec.name, Bases: rec.bases})
	}
}

// refsourceScanner mirrors refsource's internal FASTA scan loop; it is kept
// local to this command because refsource.Source is specialized to produce
// reference records (and opens its own file/S3 handle), while here the
// read file is already open and read-oriented, not reference-oriented.
type refsourceScanner struct {
	br      *bufio.Reader
	pending string // header line already consumed while scanning the previous record's body.
	done    bool
}

type fastaRec struct {
	name  string
	bases []byte
}

func (s *refsourceScanner) readLine() (string, error) {
	line, err := s.br.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *refsourceScanner) next() (fastaRec, error) {
	if s.done {
		return fastaRec{}, io.EOF
	}
	header := s.pending
	s.pending = ""
	if header == "" {
		for {
			line, err := s.readLine()
			if err != nil {
				s.done = true
				return fastaRec{}, io.EOF
			}
			if strings.HasPrefix(line, ">") {
				header = line
				break
			}
		}
	}
	name := strings.Fields(strings.TrimPrefix(header, ">"))
	if len(name) == 0 {
		return fastaRec{}, errors.Errorf("seedhts-align: empty sequence name in header %q", header)
	}
	var body strings.Builder
	for {
		line, err := s.readLine()
		if err != nil {
			s.done = true
			break
		}
		if strings.HasPrefix(line, ">") {
			s.pending = line
			break
		}
		body.WriteString(line)
	}
	return fastaRec{name: name[0], bases: []byte(body.String())}, nil
}

func writeHeaderFile(path string, sq []samtext.SQLine) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "seedhts-align: create %s", path)
	}
	defer f.Close()
	h := samtext.Header{SQ: sq}
	_, err = h.WriteTo(f)
	return err
}

// streamReferenceBatches reads refSrc to exhaustion, grouping records into
// chunkSize-sized ReferenceBatch values (chunkSize<1 means one record per
// batch) and sending them on the returned channel, which it closes when
// done. It also returns every record's (name, length) for an optional
// header file, since that requires having scanned the whole reference
// corpus once — the one-pass-per-batch streaming model (spec.md §4.5)
// never materializes it all at once otherwise.
func streamReferenceBatches(refSrc refsource.Source, chunkSize int) (<-chan aligner.ReferenceBatch, func() ([]samtext.SQLine, error)) {
	if chunkSize < 1 {
		chunkSize = 1
	}
	out := make(chan aligner.ReferenceBatch, 4)
	sqCh := make(chan []samtext.SQLine, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		var batch aligner.ReferenceBatch
		var sq []samtext.SQLine
		for {
			rec, err := refSrc.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				errCh <- errors.Wrap(err, "seedhts-align: read reference record")
				sqCh <- sq
				return
			}
			sq = append(sq, samtext.SQLine{Name: rec.Name, Length: len(rec.Bases)})
			batch = append(batch, rec)
			if len(batch) >= chunkSize {
				out <- batch
				batch = nil
			}
		}
		if len(batch) > 0 {
			out <- batch
		}
		errCh <- nil
		sqCh <- sq
	}()

	wait := func() ([]samtext.SQLine, error) {
		return <-sqCh, <-errCh
	}
	return out, wait
}

func main() {
	fl := flags{}
	flag.StringVar(&fl.ref, "ref", "", "reference FASTA (local path or s3://bucket/key); required")
	flag.StringVar(&fl.reads, "reads", "", "query read file, FASTA or FASTQ; required")
	flag.StringVar(&fl.out, "out", "-", "SAM output path (default stdout)")
	flag.StringVar(&fl.header, "header", "", "optional path to write a separate @SQ header file")
	flag.StringVar(&fl.k, "k", "16,12,10", "candidate K set, descending, comma-separated")
	flag.IntVar(&fl.mm, "mm", 0, "midmasklen: length of the masked middle region of each k-mer")
	flag.IntVar(&fl.blacklist, "blacklist", 0, "blacklist run length for low-complexity k-mer masking")
	flag.IntVar(&fl.maxsubs, "maxsubs", 4, "global substitution cap")
	flag.Float64Var(&fl.minid, "minid", 0.9, "identity floor, in [0,1] or as a percentage if >1")
	flag.IntVar(&fl.minhits, "minhits", 2, "global minimum seed-hit floor (0 disables the floor)")
	flag.Float64Var(&fl.minprob, "minprob", 0.99, "MinHitsCalculator calibration target probability")
	flag.Float64Var(&fl.maxclip, "maxclip", 0.1, "clipping budget, as a fraction of read length")
	flag.IntVar(&fl.qstep, "qstep", 1, "query k-mer sampling stride")
	flag.IntVar(&fl.rstep, "rstep", 1, "reference k-mer sampling stride (must be a power of two)")
	flag.IntVar(&fl.maxmult, "maxmult", 200, "max reference positions a single seed hit may contribute")
	flag.IntVar(&fl.workers, "workers", 0, "worker pool size (0 = runtime.NumCPU())")
	flag.IntVar(&fl.iters, "iters", 0, "MinHitsCalculator Monte Carlo trial count (0 = package default)")
	flag.IntVar(&fl.chunksize, "chunksize", 1, "reference records fused into one pseudo-reference per batch")
	flag.IntVar(&fl.minrlen, "minrlen", 0, "drop reference records shorter than this from a batch")
	flag.IntVar(&fl.padding, "padding", aligner.DefaultFusePadding, "N bases separating sequences in a fused batch reference")
	flag.Parse()

	if fl.ref == "" || fl.reads == "" {
		fmt.Fprintln(os.Stderr, "seedhts-align: -ref and -reads are required")
		flag.Usage()
		os.Exit(2)
	}

	kCandidates, err := parseKCandidates(fl.k)
	if err != nil {
		log.Fatal(err)
	}

	// Parse the whole query set in one pass before any reference batch is
	// processed, per spec.md §4.5's startup step.
	raws, err := readQueries(fl.reads)
	if err != nil {
		log.Fatalf("seedhts-align: read queries: %v", err)
	}

	out, err := openOutput(fl.out)
	if err != nil {
		log.Fatal(err)
	}
	defer out.Close()

	cfg := aligner.Config{
		KCandidates:         kCandidates,
		MidMaskLen:          fl.mm,
		BlacklistRun:        fl.blacklist,
		MaxSubs:             fl.maxsubs,
		MinIdentity:         normalizeMinIdentity(fl.minid),
		MinProb:             fl.minprob,
		MaxClipFraction:     fl.maxclip,
		KStep:               fl.qstep,
		RStep:               fl.rstep,
		GlobalMinSeedHits:   fl.minhits,
		Iterations:          fl.iters,
		Workers:             fl.workers,
		MaxSeedMultiplicity: fl.maxmult,
		MinRefLen:           fl.minrlen,
		FusePadding:         fl.padding,
	}

	driver, err := aligner.NewDriver(cfg, raws, out)
	if err != nil {
		log.Fatal(err)
	}

	refSrc, err := openReference(fl.ref)
	if err != nil {
		log.Fatal(err)
	}
	batches, waitRefs := streamReferenceBatches(refSrc, fl.chunksize)

	runErr := driver.Run(batches)

	// Run statistics are printed before any fatal error below.
	stats := driver.Stats()
	log.Printf("seedhts-align: %d queries, %d aligned, %d unaligned",
		stats.QueriesTotal, stats.QueriesAligned, stats.QueriesUnaligned)

	sq, refErr := waitRefs()
	if closeErr := refSrc.Close(); closeErr != nil {
		log.Error.Printf("seedhts-align: close reference source: %v", closeErr)
	}
	if refErr != nil {
		log.Fatal(refErr)
	}
	if err := writeHeaderFile(fl.header, sq); err != nil {
		log.Fatal(err)
	}
	if runErr != nil {
		log.Fatal(runErr)
	}
}

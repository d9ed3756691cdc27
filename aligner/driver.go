// Package aligner wires together kmer, minhits, seedindex, and align into
// the seed-and-extend pipeline: Driver preprocesses every query up front,
// then fans reference batches from a channel out across a worker pool of
// ProcessThreads, each of which fuses its batch, builds and discards a
// per-batch PackedIndex set, and aligns every query against it — the way
// cmd/bio-fusion/main.go's phase-1 workers drain a work channel into
// shared, atomically-updated counters.
package aligner

import (
	"bufio"
	"io"
	"runtime"
	"sync"

	"github.com/biogo/hts/sam"
	"github.com/fenwick-bio/seedhts/align"
	"github.com/fenwick-bio/seedhts/kmer"
	"github.com/fenwick-bio/seedhts/refsource"
	"github.com/fenwick-bio/seedhts/samtext"
	"github.com/fenwick-bio/seedhts/seedindex"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

// RawQuery is one unaligned read as handed to NewDriver.
type RawQuery struct {
	Name  string
	Bases []byte
	Quals []byte // optional.
}

// ReferenceBatch is one unit of reference corpus dispatched to a worker:
// one or more named sequences, fused into a single pseudo-reference before
// indexing, per spec.md §4.5's streamed-reference-corpus model.
type ReferenceBatch = []refsource.ReferenceRecord

// Driver preprocesses every query into a seedindex.Query in one pass (per
// spec.md §4.5's startup step), then, once Run is called, fans
// ReferenceBatch values from a channel out across a worker pool: each
// worker builds its own per-batch PackedIndex set and aligns every query
// against it, translating fused-reference hits back to (sequence name,
// local offset) and emitting one SAM record per surviving hit. Once every
// batch has been processed, Run sweeps the query set once more and emits a
// final unmapped record for any query that never got a hit.
type Driver struct {
	cfg     Config
	builder *seedindex.Builder
	queries []*seedindex.Query

	out   *bufio.Writer
	outMu sync.Mutex

	stats RunStats

	errMu sync.Mutex
	err   error
}

// NewDriver preprocesses raws into Query records and returns a Driver ready
// to Run against a stream of reference batches.
func NewDriver(cfg Config, raws []RawQuery, out io.Writer) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Driver{
		cfg: cfg,
		out: bufio.NewWriter(out),
	}
	d.builder = seedindex.NewBuilder(seedindex.Params{
		Candidates:        cfg.KCandidates,
		MidMaskLen:        cfg.MidMaskLen,
		BlacklistRun:      cfg.BlacklistRun,
		MaxSubs:           cfg.MaxSubs,
		MinIdentity:       cfg.MinIdentity,
		MinProb:           cfg.MinProb,
		MaxClipFraction:   cfg.MaxClipFraction,
		KStep:             cfg.KStep,
		GlobalMinSeedHits: cfg.GlobalMinSeedHits,
		Iterations:        cfg.Iterations,
	})
	d.queries = make([]*seedindex.Query, len(raws))
	for i, rq := range raws {
		d.queries[i] = d.builder.Build(rq.Name, rq.Bases, rq.Quals)
		d.stats.addTotal()
	}
	return d, nil
}

func (d *Driver) workerCount() int {
	if d.cfg.Workers > 0 {
		return d.cfg.Workers
	}
	return runtime.NumCPU()
}

func (d *Driver) fusePadding() int {
	if d.cfg.FusePadding > 0 {
		return d.cfg.FusePadding
	}
	return DefaultFusePadding
}

// Run drains reference batches across a worker pool, writing SAM records to
// the Driver's output as they are produced. It blocks until batches is
// closed and every worker has finished, emits a final unmapped record for
// every query that never matched anything, then flushes the output.
func (d *Driver) Run(batches <-chan ReferenceBatch) error {
	var wg sync.WaitGroup
	n := d.workerCount()
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(workerID int) {
			defer wg.Done()
			d.workerLoop(workerID, batches)
		}(i)
	}
	wg.Wait()

	for _, q := range d.queries {
		if q.HasHit() {
			continue
		}
		d.stats.addUnaligned()
		if err := d.emitUnmapped(q); err != nil {
			d.setErr(errors.Wrapf(err, "aligner: query %q: emit unmapped", q.Name))
		}
	}

	if err := d.out.Flush(); err != nil {
		d.setErr(errors.Wrap(err, "aligner: flush output"))
	}
	return d.Err()
}

func (d *Driver) workerLoop(workerID int, batches <-chan ReferenceBatch) {
	for batch := range batches {
		if err := d.processBatch(batch); err != nil {
			log.Error.Printf("aligner: worker %d: %v", workerID, err)
			d.setErr(err)
		}
	}
}

func (d *Driver) setErr(err error) {
	d.errMu.Lock()
	if d.err == nil {
		d.err = err
	}
	d.errMu.Unlock()
}

// Err returns the first error encountered by any worker, if any.
func (d *Driver) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.err
}

// Stats returns a point-in-time snapshot of the run's counters.
func (d *Driver) Stats() RunStats { return d.stats.Snapshot() }

// processBatch fuses batch's sequences (dropping any shorter than
// cfg.MinRefLen), builds one PackedIndex per candidate K over the fused
// bytes, aligns every preprocessed query against it on both strands, and
// emits one SAM record per hit that doesn't land in inter-sequence
// padding. The batch's indices are discarded before processBatch returns,
// per spec.md §4.5's build-per-batch-then-discard model.
func (d *Driver) processBatch(batch ReferenceBatch) error {
	names := make([]string, 0, len(batch))
	seqs := make([][]byte, 0, len(batch))
	for _, r := range batch {
		if len(r.Bases) < d.cfg.MinRefLen {
			continue
		}
		names = append(names, r.Name)
		seqs = append(seqs, r.Bases)
	}
	if len(seqs) == 0 {
		return nil
	}

	fused, ranges := seedindex.BuildFusedReference(names, seqs, d.fusePadding())

	indices := make(map[int]*seedindex.PackedIndex, len(d.cfg.KCandidates))
	for _, k := range d.cfg.KCandidates {
		p := kmer.Params{K: k, MidMaskLen: d.cfg.MidMaskLen, BlacklistRun: d.cfg.BlacklistRun}
		indices[k] = seedindex.BuildPackedIndex(fused, p, d.cfg.RStep)
	}
	defer func() {
		for _, idx := range indices {
			if err := idx.Close(); err != nil {
				log.Error.Printf("aligner: close batch index: %v", err)
			}
		}
	}()

	for _, q := range d.queries {
		idx := indices[q.K]
		for _, r := range extend(q, idx, fused, d.cfg.MaxSeedMultiplicity, &d.stats) {
			name, local, ok := ranges.Translate(r.pos)
			if !ok {
				continue // landed in inter-sequence padding; not a real hit.
			}
			r.pos = local
			primary := q.ClaimPrimary()
			if primary {
				d.stats.addAligned()
			}
			if err := d.emitMapped(q, name, r, !primary); err != nil {
				return errors.Wrapf(err, "aligner: query %q", q.Name)
			}
		}
	}
	return nil
}

func (d *Driver) emitUnmapped(q *seedindex.Query) error {
	rec := samtext.Record{
		QName: q.Name,
		Flag:  sam.Unmapped,
		Pos:   0,
		MapQ:  0,
		Seq:   q.Bases,
		Qual:  q.Quals,
		NM:    -1,
	}
	d.outMu.Lock()
	defer d.outMu.Unlock()
	return samtext.Format(d.out, rec)
}

func (d *Driver) emitMapped(q *seedindex.Query, refName string, r extendResult, secondary bool) error {
	flag := sam.Flags(0)
	if r.reverse {
		flag |= sam.Reverse
	}
	if secondary {
		flag |= sam.Secondary
	}
	seq := q.Bases
	if r.reverse {
		seq = q.RBases
	}
	cigar := align.BuildCigar(r.clipStart, len(seq)-r.clipStart-r.clipEnd, r.clipEnd, secondary)
	qual := q.Quals
	if secondary {
		// Hard-clipped records carry only the aligned bases in SEQ/QUAL.
		seq = seq[r.clipStart : len(seq)-r.clipEnd]
		if len(qual) > 0 {
			qual = qual[r.clipStart : len(qual)-r.clipEnd]
		}
	}
	rec := samtext.Record{
		QName: q.Name,
		Flag:  flag,
		RName: refName,
		Pos:   int(r.pos) + 1, // SAM POS is 1-based.
		MapQ:  r.mapQ,
		Cigar: cigar,
		Seq:   seq,
		Qual:  qual,
		NM:    r.mismatches,
	}
	d.outMu.Lock()
	defer d.outMu.Unlock()
	return samtext.Format(d.out, rec)
}

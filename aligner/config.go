package aligner

import "github.com/pkg/errors"

// Config is the run-wide configuration for a Driver: the seed/extend
// parameters shared by every query, plus the worker pool size.
type Config struct {
	KCandidates       []int // descending K candidates; last entry is the fallback K.
	MidMaskLen        int
	BlacklistRun      int
	MaxSubs           int
	MinIdentity       float64
	MinProb           float64
	MaxClipFraction   float64
	KStep             int
	RStep             int // PackedIndex build sampling stride.
	GlobalMinSeedHits int
	Iterations        int // MinHitsCalculator Monte Carlo trial count; 0 = default.

	// Workers is the worker-pool size; 0 means runtime.NumCPU(), matching
	// BoundedPairIteratorOpts.TargetParallelism's convention.
	Workers int

	// MaxSeedMultiplicity caps how many reference positions a single k-mer
	// hit is allowed to contribute before it is treated as too repetitive
	// to chase (spec.md §4.4's high-multiplicity seed skip).
	MaxSeedMultiplicity int

	// MinRefLen drops reference sequences shorter than this from a batch
	// before fusing, per spec.md §4.5's streamed-reference-corpus model
	// (e.g. skipping unplaced contigs too short to seed against).
	MinRefLen int

	// FusePadding is the number of 'N' bases separating consecutive
	// sequences in a batch's fused pseudo-reference; per spec.md §4.3's
	// Data Model invariant it must be at least the longest query length
	// expected in the run. 0 uses DefaultFusePadding.
	FusePadding int
}

// DefaultFusePadding is used when Config.FusePadding is 0.
const DefaultFusePadding = 128

// Validate reports a configuration error.
func (c Config) Validate() error {
	if len(c.KCandidates) == 0 {
		return errors.New("aligner: KCandidates must be non-empty")
	}
	for i := 1; i < len(c.KCandidates); i++ {
		if c.KCandidates[i] >= c.KCandidates[i-1] {
			return errors.New("aligner: KCandidates must be strictly descending")
		}
	}
	if c.KStep < 1 {
		return errors.New("aligner: KStep must be >= 1")
	}
	if c.RStep < 1 {
		return errors.New("aligner: RStep must be >= 1")
	}
	return nil
}

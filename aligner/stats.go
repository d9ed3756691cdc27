package aligner

import "sync/atomic"

// RunStats accumulates counters across every ProcessThread in a Driver run.
// All fields are updated with sync/atomic and may be read at any time,
// matching the memStats pattern in cmd/bio-fusion/main.go (a small
// concurrently-updated counter struct polled for progress reporting).
type RunStats struct {
	QueriesTotal           int64
	QueriesAligned         int64
	QueriesUnaligned       int64
	SeedCandidatesExamined int64
	BruteForceFallbacks    int64
}

func (s *RunStats) addTotal()             { atomic.AddInt64(&s.QueriesTotal, 1) }
func (s *RunStats) addAligned()           { atomic.AddInt64(&s.QueriesAligned, 1) }
func (s *RunStats) addUnaligned()         { atomic.AddInt64(&s.QueriesUnaligned, 1) }
func (s *RunStats) addCandidates(n int64) { atomic.AddInt64(&s.SeedCandidatesExamined, n) }
func (s *RunStats) addBruteForce()        { atomic.AddInt64(&s.BruteForceFallbacks, 1) }

// Snapshot returns a copy of s safe to print or compare; it does not itself
// need atomics since the copy is independent of further updates to s.
func (s *RunStats) Snapshot() RunStats {
	return RunStats{
		QueriesTotal:           atomic.LoadInt64(&s.QueriesTotal),
		QueriesAligned:         atomic.LoadInt64(&s.QueriesAligned),
		QueriesUnaligned:       atomic.LoadInt64(&s.QueriesUnaligned),
		SeedCandidatesExamined: atomic.LoadInt64(&s.SeedCandidatesExamined),
		BruteForceFallbacks:    atomic.LoadInt64(&s.BruteForceFallbacks),
	}
}

// Package align implements the indel-free substitution-counting kernels
// used to extend a seed hit into a full alignment: a general kernel, a
// budgeted ("banded") kernel that abandons a hopeless candidate early, a
// boundary-aware scorer that charges a clip penalty for candidates that
// overhang the reference, and a brute-force fallback for queries too
// short to seed.
package align

import "github.com/pkg/errors"

// Count returns the number of mismatching bases between ref and query. ref
// and query must have equal length; Count panics otherwise, since callers
// are expected to have already sliced ref to len(query) using a seed hit's
// reference position.
func Count(ref, query []byte) int {
	if len(ref) != len(query) {
		panic(errors.Errorf("align.Count: len(ref)=%d != len(query)=%d", len(ref), len(query)))
	}
	return wordMismatchCount(ref, query)
}

// CountBudgeted is Count with an early-exit budget: once the running
// mismatch count exceeds budget, it stops scanning and returns the partial
// count with exceeded=true. This is the "banded" kernel referenced in
// SPEC_FULL.md §4.4 — not a diagonal band in the edit-distance sense (the
// aligner is indel-free, so there is only one diagonal per candidate
// position), but a budget band: positions that can't possibly satisfy
// maxSubs are abandoned without scanning the full read.
func CountBudgeted(ref, query []byte, budget int) (mismatches int, exceeded bool) {
	if len(ref) != len(query) {
		panic(errors.Errorf("align.CountBudgeted: len(ref)=%d != len(query)=%d", len(ref), len(query)))
	}
	if budget < 0 {
		return 0, true
	}
	return wordMismatchCountBudgeted(ref, query, budget)
}

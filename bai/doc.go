// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bai builds a BAM index (.bai) in a single sequential pass over a
// BAM file's records: a per-reference bin index with chunk coalescing, a
// 16 kb linear index, and the reserved pseudo-bin/readsWithoutCoordinate
// trailer, per spec.md §4.9. It shares reg2bin and virtual-offset
// arithmetic with package bam through internal/binning so the two
// packages never carry two drifting copies of the same formula.
package bai

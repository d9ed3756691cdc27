// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bam implements the SAM⇄BAM binary record transcoder and the
// BamReader/BamWriter file drivers: magic/header/reference-dictionary
// handling, block_size-prefixed record framing over a bgzf stream, and the
// wire-level encode/decode of one alignment record.
package bam

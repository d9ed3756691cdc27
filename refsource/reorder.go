package refsource

import "github.com/biogo/store/llrb"

// reorderEntry wraps one buffered ReferenceRecord so it can be ordered by
// name in a llrb.Tree, the way cmd/bio-bam-sort/sorter/sort.go buffers
// records in an llrb.Tree before a batch flush.
type reorderEntry struct {
	name string
	rec  ReferenceRecord
}

func (e *reorderEntry) Compare(other llrb.Comparable) int {
	o := other.(*reorderEntry)
	switch {
	case e.name < o.name:
		return -1
	case e.name > o.name:
		return 1
	default:
		return 0
	}
}

// ReorderBuffer accumulates reference records from a Source that may
// deliver them in an arbitrary or merge-unfriendly order (e.g. a sharded
// corpus fetch) and replays them in a deterministic, name-sorted order once
// a batch threshold is reached. This matters to callers that build one
// PackedIndex per reference and want reproducible build ordering across
// runs regardless of the upstream Source's delivery order.
type ReorderBuffer struct {
	batchSize int
	tree      *llrb.Tree
}

// NewReorderBuffer returns a ReorderBuffer that flushes once it holds
// batchSize records.
func NewReorderBuffer(batchSize int) *ReorderBuffer {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &ReorderBuffer{batchSize: batchSize, tree: &llrb.Tree{}}
}

// Add buffers rec. It returns the batch to flush (name-sorted, and cleared
// from the buffer) once the batch threshold is reached, or nil otherwise.
func (b *ReorderBuffer) Add(rec ReferenceRecord) []ReferenceRecord {
	b.tree.Insert(&reorderEntry{name: rec.Name, rec: rec})
	if b.tree.Len() < b.batchSize {
		return nil
	}
	return b.drain()
}

// Flush returns any remaining buffered records, name-sorted, and clears the
// buffer. Callers must call Flush after a Source is exhausted to avoid
// dropping a partial final batch.
func (b *ReorderBuffer) Flush() []ReferenceRecord {
	if b.tree.Len() == 0 {
		return nil
	}
	return b.drain()
}

func (b *ReorderBuffer) drain() []ReferenceRecord {
	out := make([]ReferenceRecord, 0, b.tree.Len())
	for b.tree.Len() > 0 {
		min := b.tree.Min()
		b.tree.DeleteMin()
		out = append(out, min.(*reorderEntry).rec)
	}
	return out
}

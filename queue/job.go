// Package queue implements OrderedQueueSystem: the bounded-input,
// min-heap-ordered-output concurrency primitive that both the
// multi-threaded BGZF codec and (eventually) a sharded BAM writer use to
// let a worker pool finish blocks/records out of order while a single
// consumer drains them strictly in order.
//
// It is grounded on the *usage* of
// github.com/grailbio/base/syncqueue.OrderedQueue in
// encoding/bam/shardedbam.go (NewOrderedQueue(queueSize), Insert(id, item),
// Next() (item, ok, err), Close(err)), reimplemented from scratch on top of
// container/heap because spec.md requires a literal min-heap on the output
// side and syncqueue's own heap is opaque from here.
package queue

// Job is one unit of work carried through a System: a producer thread
// assigns sequential IDs, workers consume Payload and produce a result
// under the same ID, and the consumer drains results in ID order.
//
// Poison travels on the input side: a worker that takes a poisoned Job
// re-injects it (so a sibling worker also sees it) and exits without
// producing output. Last travels on the output side with
// ID == (max input ID)+1: the consumer sees it exactly once and stops.
type Job struct {
	ID      int
	Payload interface{}
	Poison  bool
	Last    bool
}

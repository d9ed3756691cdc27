package queue

import (
	"container/heap"
	"sync"
)

type jobHeap []Job

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].ID < h[j].ID }
func (h jobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x interface{}) { *h = append(*h, x.(Job)) }
func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// orderedOutput is the output side of a System: a min-heap keyed on Job.ID
// that a single consumer drains strictly in order via Next, with optional
// backpressure on Insert once the heap grows past a capacity cap.
type orderedOutput struct {
	mu        sync.Mutex
	notEmpty  sync.Cond
	spaceFree sync.Cond
	h         jobHeap
	nextID    int
	capacity  int
	lastSeen  bool
	drained   bool
}

func newOrderedOutput(capacity int) *orderedOutput {
	o := &orderedOutput{capacity: capacity}
	o.notEmpty.L = &o.mu
	o.spaceFree.L = &o.mu
	return o
}

// insert buffers job for later retrieval by next, in ID order. A second
// LAST sentinel is silently dropped; results that workers emit after LAST
// was enqueued are still accepted, since their jobs were added before
// Poison. The capacity cap never holds back the job next is waiting for.
func (o *orderedOutput) insert(job Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastSeen && job.Last {
		return
	}
	for o.capacity > 0 && len(o.h) >= o.capacity && job.ID != o.nextID {
		o.spaceFree.Wait()
	}
	if job.Last {
		o.lastSeen = true
	}
	heap.Push(&o.h, job)
	o.notEmpty.Broadcast()
}

// next blocks until the job whose ID matches the next expected sequence
// number is available, then returns it. The returned Job has Last set
// exactly once, the moment the output heap reaches the LAST sentinel in
// order; drained reports false once that has happened and there is
// nothing further to return.
func (o *orderedOutput) next() (Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for {
		if o.drained {
			return Job{}, false
		}
		if len(o.h) > 0 && o.h[0].ID == o.nextID {
			job := heap.Pop(&o.h).(Job)
			o.nextID++
			o.spaceFree.Broadcast()
			if job.Last {
				o.drained = true
			}
			return job, true
		}
		o.notEmpty.Wait()
	}
}

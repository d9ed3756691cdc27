package queue

import "sync"

// System wires a bounded input channel to an ordered output heap,
// implementing the full OrderedQueueSystem protocol from spec.md §5: a
// producer calls AddInput to hand out sequential job IDs, a fixed pool of
// workers drain Take/Requeue/Emit, and a single consumer drains Next in
// strict ID order.
//
// Shutdown: the producer calls Poison once its input is exhausted. Poison
// pushes one poison Job per worker onto the input channel and enqueues the
// LAST sentinel onto the output heap at id = (max assigned input id)+1.
// Each worker that takes a poisoned Job re-queues it (via Requeue) so a
// sibling worker still waiting on the input channel also observes it, then
// exits without emitting output. The consumer's Next call returns the LAST
// job exactly once, in its correct output position, and thereafter reports
// done.
type System struct {
	mu          sync.Mutex
	input       chan Job
	numWorkers  int
	nextInputID int
	poisoned    bool
	cancelled   bool
	output      *orderedOutput
}

// NewSystem returns a System with the given input/output channel
// capacities and worker count. An outputCapacity of 0 leaves the output
// heap unbounded; an inputCapacity of 0 makes the input channel unbuffered.
func NewSystem(inputCapacity, outputCapacity, numWorkers int) *System {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &System{
		input:      make(chan Job, inputCapacity),
		numWorkers: numWorkers,
		output:     newOrderedOutput(outputCapacity),
	}
}

// AddInput assigns the next sequential job ID to payload and enqueues it,
// blocking if the input channel is at capacity. It returns false, silently
// rejecting the job, if Poison or Cancel has already been called — per
// spec.md's "addInput is rejected after LAST has been sent" rule.
func (s *System) AddInput(payload interface{}) (id int, ok bool) {
	s.mu.Lock()
	if s.poisoned || s.cancelled {
		s.mu.Unlock()
		return 0, false
	}
	id = s.nextInputID
	s.nextInputID++
	s.mu.Unlock()
	s.input <- Job{ID: id, Payload: payload}
	return id, true
}

// Take blocks until a Job is available on the input side. Workers call
// this in a loop; a Job with Poison set must be re-queued via Requeue and
// then cause the worker to return.
func (s *System) Take() Job {
	return <-s.input
}

// Requeue puts job back on the input channel, letting a sibling worker
// observe a poison pill this worker already consumed.
func (s *System) Requeue(job Job) {
	s.input <- job
}

// Emit hands a completed job's result to the ordered output side. Workers
// call this once per non-poison Job they process, using the same ID the
// Job carried in.
func (s *System) Emit(job Job) {
	s.output.insert(job)
}

// Poison signals end-of-input: it queues one poison Job per worker and
// enqueues the LAST sentinel on the output side at id = (max assigned
// input id)+1. Safe to call more than once; only the first call has
// effect.
func (s *System) Poison() {
	s.mu.Lock()
	if s.poisoned {
		s.mu.Unlock()
		return
	}
	s.poisoned = true
	lastID := s.nextInputID
	numWorkers := s.numWorkers
	s.mu.Unlock()

	for i := 0; i < numWorkers; i++ {
		s.input <- Job{Poison: true}
	}
	s.output.insert(Job{ID: lastID, Last: true})
}

// Cancel marks the System cancelled (further AddInput calls are rejected)
// and injects poison so blocked workers and the consumer unwind promptly,
// the way spec.md's cancel() synthesizes a poison for cooperative
// cancellation rather than forcibly killing worker goroutines.
func (s *System) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
	s.Poison()
}

// Next blocks until the next job in ID order is ready and returns it along
// with true, or returns (Job{}, false) once the LAST sentinel has been
// consumed and there is nothing further to drain.
func (s *System) Next() (Job, bool) {
	return s.output.next()
}

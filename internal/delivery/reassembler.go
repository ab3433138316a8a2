// Package delivery implements the per-session reorder buffer that releases
// STT results in strict ascending sequence order.
package delivery

import "sync"

// Record is one STT result tagged with the sequence the dispatcher carried
// it under, ready to hand to the client sink once released.
type Record struct {
	Sequence   uint64
	Text       string
	Confidence float64
	Start      int64
	End        int64
	IsFinal    bool
}

// Sink receives records in the exact order Release emits them.
type Sink func(Record)

// Reassembler holds one session's pending results, keyed by sequence, and
// releases them to Sink strictly in order. Arrive is not safe to call from
// multiple goroutines racing each other for the same session in a way that
// could interleave — callers must already serialize per-session mutation —
// but Reassembler defends itself with its own mutex since it is shared
// between the batch dispatcher's result path and a session's drain poll.
type Reassembler struct {
	mu          sync.Mutex
	pending     map[uint64]Record
	expectedSeq uint64
	sink        Sink
}

// New creates a reassembler whose first expected sequence is 0.
func New(sink Sink) *Reassembler {
	return &Reassembler{
		pending: make(map[uint64]Record),
		sink:    sink,
	}
}

// Arrive inserts a result and releases it, plus any now-contiguous run of
// already-buffered successors, to the sink in ascending order.
func (r *Reassembler) Arrive(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.Sequence < r.expectedSeq {
		return // already delivered or skipped; duplicate, drop
	}
	r.pending[rec.Sequence] = rec
	r.drainLocked()
}

func (r *Reassembler) drainLocked() {
	for {
		rec, ok := r.pending[r.expectedSeq]
		if !ok {
			return
		}
		delete(r.pending, r.expectedSeq)
		r.expectedSeq++
		if r.sink != nil {
			r.sink(rec)
		}
	}
}

// Pending reports how many results are buffered awaiting a hole to fill.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// ExpectedSeq returns the next sequence number eligible for delivery.
func (r *Reassembler) ExpectedSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expectedSeq
}

// SkipHolesUpTo advances expectedSeq to issuedCount, delivering any buffered
// results found along the way and silently skipping any gaps left by
// sequences that never arrived. Only the drain deadline path calls this;
// during an active session no skipping occurs.
func (r *Reassembler) SkipHolesUpTo(issuedCount uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.expectedSeq < issuedCount {
		rec, ok := r.pending[r.expectedSeq]
		if ok {
			delete(r.pending, r.expectedSeq)
			if r.sink != nil {
				r.sink(rec)
			}
		}
		r.expectedSeq++
	}
}

package segment

import "sync/atomic"

// SeqGenerator allocates a session's sequence numbers: a monotonically
// increasing integer starting at 0, assigned once per enqueued work item.
// One instance belongs to exactly one session.
type SeqGenerator struct {
	next uint64
}

// NewSeqGenerator returns a generator whose first Next() call yields 0.
func NewSeqGenerator() *SeqGenerator {
	return &SeqGenerator{}
}

// Next returns the next sequence number and advances the counter.
func (g *SeqGenerator) Next() uint64 {
	return atomic.AddUint64(&g.next, 1) - 1
}

// Issued reports how many sequence numbers have been allocated so far.
func (g *SeqGenerator) Issued() uint64 {
	return atomic.LoadUint64(&g.next)
}

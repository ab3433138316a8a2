// Package ringbuffer implements the per-session audio ring buffer.
//
// All addressing is in chunk units, never bytes or wall time — the fundamental
// time unit is one client audio message's payload (BytesPerChunk bytes).
package ringbuffer

import (
	"errors"
	"sync"
)

// BytesPerChunk is the nominal payload size of one client audio message:
// 100ms of 16kHz, 16-bit mono PCM (1600 samples * 2 bytes).
const BytesPerChunk = 3200

// ErrBelowBase is returned by ReadRange when the requested start chunk has
// already been discarded by a prior TruncateUntil. Callers treat this as
// "already delivered" and drop the work item.
var ErrBelowBase = errors.New("ring: requested range begins before base chunk")

// Buffer is an append-only byte buffer addressable by chunk index, with head
// truncation. It is safe for concurrent use, though callers are expected to
// serialize access per session rather than rely on the internal lock alone.
type Buffer struct {
	mu        sync.Mutex
	data      []byte
	baseChunk int64
}

// New creates an empty ring buffer whose first appended byte corresponds to
// chunk 0.
func New() *Buffer {
	return &Buffer{}
}

// Append concatenates bytes to the tail. Never fails; does not change BaseChunk.
func (b *Buffer) Append(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, chunk...)
}

// BaseChunk returns the chunk index corresponding to buffer byte 0.
func (b *Buffer) BaseChunk() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.baseChunk
}

// ChunksBuffered returns the number of whole chunks currently held.
func (b *Buffer) ChunksBuffered() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.data)) / BytesPerChunk
}

// ReadRange returns an independent copy of bytes[(start-base)*B : (end-base)*B].
// Requires base <= start <= end <= base + chunksInBuffer. Returns ErrBelowBase
// if start has already been truncated away.
func (b *Buffer) ReadRange(start, end int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if start < b.baseChunk {
		return nil, ErrBelowBase
	}
	if end < start {
		return nil, errors.New("ring: end before start")
	}

	chunksInBuffer := int64(len(b.data)) / BytesPerChunk
	maxChunk := b.baseChunk + chunksInBuffer
	if end > maxChunk {
		end = maxChunk
	}
	if start > end {
		start = end
	}

	lo := (start - b.baseChunk) * BytesPerChunk
	hi := (end - b.baseChunk) * BytesPerChunk
	if hi > int64(len(b.data)) {
		hi = int64(len(b.data))
	}
	if lo > hi {
		lo = hi
	}

	out := make([]byte, hi-lo)
	copy(out, b.data[lo:hi])
	return out, nil
}

// TruncateUntil discards the prefix before chunk c and advances BaseChunk to c.
// Idempotent when c <= BaseChunk; never moves BaseChunk backwards.
func (b *Buffer) TruncateUntil(c int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c <= b.baseChunk {
		return
	}

	chunksInBuffer := int64(len(b.data)) / BytesPerChunk
	maxChunk := b.baseChunk + chunksInBuffer
	if c > maxChunk {
		c = maxChunk
	}

	dropBytes := (c - b.baseChunk) * BytesPerChunk
	if dropBytes > int64(len(b.data)) {
		dropBytes = int64(len(b.data))
	}
	b.data = append(b.data[:0:0], b.data[dropBytes:]...)
	b.baseChunk = c
}

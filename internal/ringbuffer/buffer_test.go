package ringbuffer

import (
	"bytes"
	"testing"
)

func chunkBytes(n int, fill byte) []byte {
	b := make([]byte, n*BytesPerChunk)
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestAppendAndReadRange(t *testing.T) {
	b := New()
	b.Append(chunkBytes(2, 0xAA))
	b.Append(chunkBytes(1, 0xBB))

	got, err := b.ReadRange(0, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := append(chunkBytes(2, 0xAA), chunkBytes(1, 0xBB)...)
	if !bytes.Equal(got, want) {
		t.Errorf("ReadRange(0,3) mismatch")
	}
}

func TestReadRangePartial(t *testing.T) {
	b := New()
	b.Append(chunkBytes(4, 0x01))

	got, err := b.ReadRange(1, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2*BytesPerChunk {
		t.Errorf("expected %d bytes, got %d", 2*BytesPerChunk, len(got))
	}
}

func TestTruncateUntilAdvancesBase(t *testing.T) {
	b := New()
	b.Append(chunkBytes(5, 0x02))

	b.TruncateUntil(3)
	if b.BaseChunk() != 3 {
		t.Errorf("expected base chunk 3, got %d", b.BaseChunk())
	}
	if b.ChunksBuffered() != 2 {
		t.Errorf("expected 2 chunks remaining, got %d", b.ChunksBuffered())
	}
}

func TestTruncateUntilIsIdempotentBelowBase(t *testing.T) {
	b := New()
	b.Append(chunkBytes(5, 0x03))
	b.TruncateUntil(3)

	b.TruncateUntil(1) // below base: no-op
	b.TruncateUntil(3) // equal to base: no-op

	if b.BaseChunk() != 3 {
		t.Errorf("expected base chunk to remain 3, got %d", b.BaseChunk())
	}
}

func TestTruncateUntilNeverMovesBackwards(t *testing.T) {
	b := New()
	b.Append(chunkBytes(10, 0x04))
	b.TruncateUntil(5)
	b.TruncateUntil(2)

	if b.BaseChunk() != 5 {
		t.Errorf("expected base chunk to stay at 5, got %d", b.BaseChunk())
	}
}

func TestReadRangeBelowBaseFails(t *testing.T) {
	b := New()
	b.Append(chunkBytes(5, 0x05))
	b.TruncateUntil(3)

	if _, err := b.ReadRange(0, 4); err != ErrBelowBase {
		t.Errorf("expected ErrBelowBase, got %v", err)
	}
}

func TestReadRangeReturnsIndependentCopy(t *testing.T) {
	b := New()
	b.Append(chunkBytes(1, 0x06))

	got, err := b.ReadRange(0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got[0] = 0xFF

	got2, _ := b.ReadRange(0, 1)
	if got2[0] == 0xFF {
		t.Error("ReadRange must return an independent copy, mutation leaked into buffer")
	}
}

func TestReadRangeClampsToAvailableChunks(t *testing.T) {
	b := New()
	b.Append(chunkBytes(2, 0x07))

	got, err := b.ReadRange(0, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2*BytesPerChunk {
		t.Errorf("expected clamp to 2 chunks, got %d bytes", len(got))
	}
}

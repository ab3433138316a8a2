// Package session implements the session manager: session lifecycle
// (start, chunk ingress, end with drain, cleanup), EPD event routing to each
// session's FSM, and per-session sequence numbering.
package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wawa9149/speech-gateway/internal/delivery"
	"github.com/wawa9149/speech-gateway/internal/observability/logging"
	"github.com/wawa9149/speech-gateway/internal/ringbuffer"
	"github.com/wawa9149/speech-gateway/internal/segment"
)

// Sink is the outbound handle to the client that started a session — a
// thin write-only adapter over whatever transport the client is speaking.
type Sink interface {
	Send(v any) error
}

// Stats tracks a session's running delivery totals.
type Stats struct {
	mu      sync.Mutex
	Count   int64
	LastSeq uint64
}

// Add records one delivered result.
func (s *Stats) Add(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Count++
	s.LastSeq = seq
}

// Snapshot returns the current totals.
func (s *Stats) Snapshot() (count int64, lastSeq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Count, s.LastSeq
}

// Session is one client turn: its ring buffer, FSM, sequence generator, and
// delivery reassembler. All of a session's mutable state is exclusively
// owned here; the global STT queue only ever sees immutable snapshots
// captured at enqueue time.
type Session struct {
	ID   string
	Sink Sink

	// mu serializes chunk ingress, EPD routing, and drain-step mutation of
	// this session's FSM/buffer/partial counters under a single-writer
	// discipline. The Reassembler has its own internal lock since the
	// dispatcher's result path and the drain's poll loop both reach it.
	mu           sync.Mutex
	Buffer       *ringbuffer.Buffer
	FSM          *segment.FSM
	SeqGen       *segment.SeqGenerator
	partialCount int

	Reassembler *delivery.Reassembler
	Stats       Stats

	Log       zerolog.Logger
	StartedAt time.Time
}

func newSession(id string, sink Sink, fsmCfg segment.Config, onDeliver delivery.Sink) *Session {
	return &Session{
		ID:          id,
		Sink:        sink,
		Buffer:      ringbuffer.New(),
		FSM:         segment.New(fsmCfg),
		SeqGen:      segment.NewSeqGenerator(),
		Reassembler: delivery.New(onDeliver),
		Log:         logging.WithSession(id),
		StartedAt:   time.Now(),
	}
}

// NChunks returns the session's EPD event clock, serialized against
// concurrent on_epd handling.
func (s *Session) NChunks() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FSM.NChunks()
}

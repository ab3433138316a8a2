package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wawa9149/speech-gateway/internal/config"
	"github.com/wawa9149/speech-gateway/internal/delivery"
	"github.com/wawa9149/speech-gateway/internal/dispatch"
	"github.com/wawa9149/speech-gateway/internal/epd"
	"github.com/wawa9149/speech-gateway/internal/events"
	"github.com/wawa9149/speech-gateway/internal/models"
	"github.com/wawa9149/speech-gateway/internal/observability/metrics"
	"github.com/wawa9149/speech-gateway/internal/ringbuffer"
	"github.com/wawa9149/speech-gateway/internal/segment"
	"github.com/wawa9149/speech-gateway/internal/session"
	"github.com/wawa9149/speech-gateway/internal/stt"
)

type fakeBatcher struct {
	mu sync.Mutex
}

func (f *fakeBatcher) Batch(ctx context.Context, items []stt.WorkItem) ([]stt.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stt.Result, 0, len(items))
	for _, it := range items {
		out = append(out, stt.Result{ID: it.UtteranceID(), Text: "text:" + it.UtteranceID()})
	}
	return out, nil
}

type fakeSink struct {
	sent chan any
}

func newFakeSink() *fakeSink { return &fakeSink{sent: make(chan any, 64)} }

func (s *fakeSink) Send(v any) error {
	s.sent <- v
	return nil
}

func (s *fakeSink) next(t *testing.T) any {
	t.Helper()
	select {
	case v := <-s.sent:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sink message")
		return nil
	}
}

// newTestHandler wires a Handler to a real Manager, the way
// cmd/gateway/main.go does, with a fakeBatcher standing in for a real STT
// backend so tests never touch the network.
func newTestHandler(t *testing.T, fsmCfg segment.Config) (*Handler, *dispatch.Dispatcher) {
	t.Helper()

	epdClient := epd.New(epd.Config{})
	publisher := events.New(&events.Config{Enabled: false})

	var mgr *session.Manager
	route := func(sessionID string, rec delivery.Record) { mgr.Router()(sessionID, rec) }
	dispatcher := dispatch.New(&fakeBatcher{}, dispatch.Config{BatchSize: 16}, route, metrics.DefaultMetrics, zerolog.Nop())

	drainCfg := config.DrainConfig{IdleInterval: 200 * time.Millisecond, MaxWait: 2 * time.Second}
	mgr = session.New(epdClient, dispatcher, publisher, metrics.DefaultMetrics, fsmCfg, config.SegmentLimitsConfig{}, drainCfg, zerolog.Nop())

	return NewHandler(mgr, zerolog.Nop()), dispatcher
}

func turnStartFrame() []byte {
	b, _ := json.Marshal(models.EventRequest{Event: models.EventTurnStart})
	return b
}

func turnEndFrame(sessionID string) []byte {
	b, _ := json.Marshal(models.EventRequest{Event: models.EventTurnEnd, SessionID: sessionID})
	return b
}

func audioFrame(sessionID string, pcm []byte) []byte {
	b, _ := json.Marshal(models.AudioStream{SessionID: sessionID, Content: base64.StdEncoding.EncodeToString(pcm)})
	return b
}

func TestHandleFrame_TurnStartStartsSessionAndRepliesTurnReady(t *testing.T) {
	h, _ := newTestHandler(t, segment.DefaultConfig())
	sink := newFakeSink()
	sessions := make(map[string]struct{})

	h.handleFrame(turnStartFrame(), sink, sessions)

	if len(sessions) != 1 {
		t.Fatalf("expected exactly one tracked session, got %d", len(sessions))
	}
	ready, ok := sink.next(t).(models.TurnReady)
	if !ok {
		t.Fatalf("expected TurnReady, got %T", ready)
	}
	if _, tracked := sessions[ready.SessionID]; !tracked {
		t.Errorf("sessions map does not track the id the manager assigned: %q", ready.SessionID)
	}
}

func TestHandleFrame_TurnEndRemovesSessionAndSendsEventResponse(t *testing.T) {
	h, _ := newTestHandler(t, segment.DefaultConfig())
	sink := newFakeSink()
	sessions := make(map[string]struct{})

	h.handleFrame(turnStartFrame(), sink, sessions)
	ready := sink.next(t).(models.TurnReady)

	h.handleFrame(turnEndFrame(ready.SessionID), sink, sessions)

	if len(sessions) != 0 {
		t.Errorf("expected TURN_END to remove the session from the connection's tracked set, got %d remaining", len(sessions))
	}
	resp, ok := sink.next(t).(models.EventResponse)
	if !ok {
		t.Fatalf("expected EventResponse, got %T", resp)
	}
	if resp.SessionID != ready.SessionID {
		t.Errorf("expected eventResponse sessionId %q, got %q", ready.SessionID, resp.SessionID)
	}
}

func TestHandleFrame_TurnEndWithoutSessionIDIsIgnored(t *testing.T) {
	h, _ := newTestHandler(t, segment.DefaultConfig())
	sink := newFakeSink()
	sessions := make(map[string]struct{})

	h.handleFrame(turnEndFrame(""), sink, sessions)

	select {
	case v := <-sink.sent:
		t.Fatalf("expected no reply for a sessionless TURN_END, got %+v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleFrame_MalformedJSONIsDiscardedWithoutPanic(t *testing.T) {
	h, _ := newTestHandler(t, segment.DefaultConfig())
	sink := newFakeSink()
	sessions := make(map[string]struct{})

	h.handleFrame([]byte("not json"), sink, sessions)

	if len(sessions) != 0 {
		t.Errorf("expected no session to be created from malformed input, got %d", len(sessions))
	}
}

func TestHandleFrame_AudioWithoutSessionIDIsRejectedByValidator(t *testing.T) {
	h, _ := newTestHandler(t, segment.DefaultConfig())
	sink := newFakeSink()
	sessions := make(map[string]struct{})

	h.handleFrame(audioFrame("", make([]byte, ringbuffer.BytesPerChunk)), sink, sessions)

	select {
	case v := <-sink.sent:
		t.Fatalf("expected the schema validator to reject a sessionless audio frame, got %+v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleFrame_MalformedBase64AudioIsDroppedWithoutPanic(t *testing.T) {
	h, _ := newTestHandler(t, segment.DefaultConfig())
	sink := newFakeSink()
	sessions := make(map[string]struct{})

	h.handleFrame(turnStartFrame(), sink, sessions)
	ready := sink.next(t).(models.TurnReady)

	raw, _ := json.Marshal(models.AudioStream{SessionID: ready.SessionID, Content: "not-base64!!"})
	h.handleFrame(raw, sink, sessions)

	if len(sessions) != 1 {
		t.Errorf("expected the session to survive a malformed audio frame, got %d tracked", len(sessions))
	}
}

// TestHandleFrame_AudioFramesFeedTheSegmentationPipeline drives audio
// frames through handleFrame, decoded EPD events directly through the
// manager, and checks the resulting partial reaches the client sink.
func TestHandleFrame_AudioFramesFeedTheSegmentationPipeline(t *testing.T) {
	fsmCfg := segment.Config{PreRollChunks: 0, StepChunks: 2, LongPauseChunks: 100}
	h, dispatcher := newTestHandler(t, fsmCfg)
	sink := newFakeSink()
	sessions := make(map[string]struct{})

	h.handleFrame(turnStartFrame(), sink, sessions)
	ready := sink.next(t).(models.TurnReady)

	chunk := make([]byte, ringbuffer.BytesPerChunk)
	for i := 0; i < 3; i++ {
		h.handleFrame(audioFrame(ready.SessionID, chunk), sink, sessions)
		h.manager.OnEPD(models.EpdEvent{SessionID: ready.SessionID, Status: segment.StatusSpeech})
	}

	dispatcher.FlushSession(t.Context(), ready.SessionID)

	deliveredMsg, ok := sink.next(t).(models.Delivery)
	if !ok {
		t.Fatalf("expected a Delivery once the batch flushes, got %T", deliveredMsg)
	}
	if deliveredMsg.SessionID != ready.SessionID {
		t.Errorf("expected delivery for %q, got %q", ready.SessionID, deliveredMsg.SessionID)
	}
}

func TestHandleFrame_PauseAndResumeAreNoopsWithoutASession(t *testing.T) {
	h, _ := newTestHandler(t, segment.DefaultConfig())
	sink := newFakeSink()
	sessions := make(map[string]struct{})

	pause, _ := json.Marshal(models.EventRequest{Event: models.EventPause, SessionID: "whatever"})
	h.handleFrame(pause, sink, sessions)
	resume, _ := json.Marshal(models.EventRequest{Event: models.EventResume, SessionID: "whatever"})
	h.handleFrame(resume, sink, sessions)

	select {
	case v := <-sink.sent:
		t.Fatalf("expected no reply to PAUSE or RESUME, got %+v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

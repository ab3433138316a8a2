package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
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
	"github.com/wawa9149/speech-gateway/internal/stt"
)

// Manager owns every session's lifecycle: start, chunk ingress, EPD event
// routing, turn-end drain, and cleanup.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	epd        *epd.Client
	dispatcher *dispatch.Dispatcher
	publisher  *events.Publisher
	metrics    *metrics.Metrics

	fsmCfg   segment.Config
	limits   config.SegmentLimitsConfig
	drainCfg config.DrainConfig

	log zerolog.Logger
}

// New constructs a Manager. Wire the dispatcher's Router to m.Router() so
// delivered results reach the right session's reassembler.
func New(
	epdClient *epd.Client,
	dispatcher *dispatch.Dispatcher,
	publisher *events.Publisher,
	m *metrics.Metrics,
	fsmCfg segment.Config,
	limits config.SegmentLimitsConfig,
	drainCfg config.DrainConfig,
	log zerolog.Logger,
) *Manager {
	return &Manager{
		sessions:   make(map[string]*Session),
		epd:        epdClient,
		dispatcher: dispatcher,
		publisher:  publisher,
		metrics:    m,
		fsmCfg:     fsmCfg,
		limits:     limits,
		drainCfg:   drainCfg,
		log:        log.With().Str("component", "session_manager").Logger(),
	}
}

// Router returns a dispatch.Router bound to this Manager, for wiring into
// the Dispatcher at process startup.
func (m *Manager) Router() dispatch.Router {
	return func(sessionID string, rec delivery.Record) {
		sess := m.get(sessionID)
		if sess == nil {
			return
		}
		sess.Reassembler.Arrive(rec)
	}
}

// Start generates a fresh session id, installs empty per-session state, and
// replies to the client with turnReady.
func (m *Manager) Start(sink Sink) (string, error) {
	id := uuid.NewString()

	var sess *Session
	sess = newSession(id, sink, m.fsmCfg, func(rec delivery.Record) {
		m.onDeliver(sess, rec)
	})

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	m.metrics.RecordSessionStart()
	if err := sink.Send(models.TurnReady{Type: "turnReady", SessionID: id}); err != nil {
		return id, err
	}
	return id, nil
}

func (m *Manager) get(sessionID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

// OnChunk appends raw PCM to the session's ring buffer and forwards it to
// the EPD engine. Unknown sessions are silently dropped. The FSM's chunk
// clock only advances when an EPD status event arrives for this audio, not
// here, so a dropped EPD frame costs one clock tick rather than corrupting
// buffer offsets.
func (m *Manager) OnChunk(sessionID string, pcm []byte) {
	sess := m.get(sessionID)
	if sess == nil {
		return
	}

	sess.mu.Lock()
	sess.Buffer.Append(pcm)
	sess.mu.Unlock()

	m.metrics.RecordAudioReceived(len(pcm))
	m.metrics.AddRingBufferBytes(int64(len(pcm)))

	_ = m.epd.Send(sessionID, pcm) // fails silently; FSM sees one fewer EPD event
}

// OnEPD routes one decoded EPD status event to the owning session's FSM
// and, for any resulting emission, assigns the session's next sequence and
// enqueues the work item for batch STT. Events for unknown sessions are
// dropped.
func (m *Manager) OnEPD(ev models.EpdEvent) {
	sess := m.get(ev.SessionID)
	if sess == nil {
		return
	}

	sess.mu.Lock()
	wasOpen := sess.FSM.Flag()
	emission, err := sess.FSM.Handle(ev.Status, ev.SpeechScore)
	if err != nil {
		sess.mu.Unlock()
		sess.Log.Error().Err(err).Msg("fsm invariant violated")
		return
	}
	if !wasOpen && sess.FSM.Flag() {
		m.metrics.RecordUtteranceCreated()
	}

	if emission != nil && m.overLimits(sess) {
		sess.FSM.DropCurrent()
		sess.partialCount = 0
		sess.mu.Unlock()
		m.metrics.RecordUtteranceDropped("limit_exceeded")
		return
	}

	if emission == nil {
		sess.mu.Unlock()
		return
	}
	if emission.IsFinal {
		sess.partialCount = 0
	} else {
		sess.partialCount++
	}
	item, truncated := m.buildItem(sess, emission)
	sess.mu.Unlock()

	if truncated {
		m.metrics.AddRingBufferBytes(-truncated64(emission))
	}
	if item == nil {
		return
	}

	m.metrics.SetDispatcherQueueDepth(m.dispatcher.QueueDepth() + 1)
	if emission.IsFinal {
		m.metrics.RecordUtteranceCompleted()
	}
	m.dispatcher.Enqueue(*item)
}

// overLimits checks the backpressure guardrails: runaway buffered audio,
// utterance duration, or partial count. Must be called with sess.mu held.
func (m *Manager) overLimits(sess *Session) bool {
	if m.limits.MaxAudioBytes > 0 && sess.Buffer.ChunksBuffered()*ringbuffer.BytesPerChunk > m.limits.MaxAudioBytes {
		m.metrics.RecordLimitExceeded("max_audio_bytes")
		return true
	}
	elapsed := time.Duration(sess.FSM.NChunks()-sess.FSM.Start()) * 100 * time.Millisecond
	if m.limits.MaxUtteranceDuration > 0 && elapsed > m.limits.MaxUtteranceDuration {
		m.metrics.RecordLimitExceeded("max_utterance_duration")
		return true
	}
	if m.limits.MaxPartialsPerUtterance > 0 && sess.partialCount > m.limits.MaxPartialsPerUtterance {
		m.metrics.RecordLimitExceeded("max_partials_per_utterance")
		return true
	}
	return false
}

// buildItem reads the emitted range from the ring buffer and assigns the
// session's next sequence. Must be called with sess.mu held. Returns
// truncated=true if a final emission truncated the buffer.
func (m *Manager) buildItem(sess *Session, e *segment.Emission) (*dispatch.Item, bool) {
	pcm, err := sess.Buffer.ReadRange(e.Start, e.End)
	if err != nil {
		if errors.Is(err, ringbuffer.ErrBelowBase) {
			// Already truncated out by an earlier final; skip without
			// allocating a sequence, so the client never blocks on a hole
			// that was never real work.
			return nil, false
		}
		sess.Log.Error().Err(err).Msg("ring buffer read failed")
		return nil, false
	}

	seq := sess.SeqGen.Next()
	item := &dispatch.Item{
		WorkItem: stt.WorkItem{
			SessionID: sess.ID,
			Start:     e.Start,
			End:       e.End,
			PCM:       pcm,
			IsFinal:   e.IsFinal,
		},
		Sequence: seq,
	}

	truncated := false
	if e.IsFinal {
		sess.Buffer.TruncateUntil(e.End)
		truncated = true
	}
	return item, truncated
}

func truncated64(e *segment.Emission) int64 {
	return (e.End - e.Start) * ringbuffer.BytesPerChunk
}

// onDeliver is the Reassembler's release callback: write the delivery to
// the client sink, publish the side-channel event, and record stats.
func (m *Manager) onDeliver(sess *Session, rec delivery.Record) {
	end := 0
	if rec.IsFinal {
		end = 1
	}
	if err := sess.Sink.Send(models.Delivery{
		Type:      "delivery",
		SessionID: sess.ID,
		Result:    models.Result{Text: rec.Text, Confidence: rec.Confidence},
		End:       end,
	}); err != nil {
		sess.Log.Warn().Err(err).Msg("failed to deliver to client sink")
	}
	sess.Stats.Add(rec.Sequence)

	ts := time.Now().UnixMilli()
	if rec.IsFinal {
		m.metrics.RecordDeliveryFinal()
		m.publishAsync(m.publisher.PublishFinal, sess.ID, models.DeliveryFinal{
			EventType:  "session.delivery.final",
			SessionID:  sess.ID,
			Sequence:   rec.Sequence,
			Text:       rec.Text,
			Confidence: rec.Confidence,
			Timestamp:  ts,
			Start:      rec.Start,
			End:        rec.End,
		})
	} else {
		m.metrics.RecordDeliveryPartial()
		m.publishAsync(m.publisher.PublishPartial, sess.ID, models.DeliveryPartial{
			EventType: "session.delivery.partial",
			SessionID: sess.ID,
			Sequence:  rec.Sequence,
			Text:      rec.Text,
			Timestamp: ts,
			Start:     rec.Start,
			End:       rec.End,
		})
	}
}

// publishAsync publishes to the Kafka side-channel in the background; a
// publish failure never blocks or fails client delivery.
func (m *Manager) publishAsync(publish func(context.Context, string, any) error, key string, event any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := publish(ctx, key, event); err != nil {
			m.log.Debug().Err(err).Str("sessionId", key).Msg("kafka publish failed")
		}
	}()
}

// End begins the asynchronous TURN_END drain for sessionID: wait for the
// EPD event stream to go quiet, force out any leftover open utterance,
// flush this session's queued STT work, wait for delivery to settle, skip
// any still-missing holes once the drain deadline passes, notify the
// client, and tear the session down. Unknown sessions are a no-op.
func (m *Manager) End(sessionID string) {
	sess := m.get(sessionID)
	if sess == nil {
		return
	}
	go m.drain(sess)
}

func (m *Manager) drain(sess *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), m.drainCfg.MaxWait)
	defer cancel()

	cleanDrain := m.awaitEpdQuiescence(ctx, sess)

	sess.mu.Lock()
	leftover := sess.FSM.LeftoverFinal()
	var item *dispatch.Item
	if leftover != nil {
		item, _ = m.buildItem(sess, leftover)
	}
	sess.mu.Unlock()
	if item != nil {
		m.dispatcher.Enqueue(*item)
	}

	m.dispatcher.FlushSession(ctx, sess.ID)

	if !m.awaitDeliveryQuiescence(ctx, sess) {
		cleanDrain = false
		issued := sess.SeqGen.Issued()
		holes := int(issued-sess.Reassembler.ExpectedSeq()) - sess.Reassembler.Pending()
		sess.Reassembler.SkipHolesUpTo(issued)
		m.metrics.RecordDeliveryHolesSkipped(holes)
	}

	if err := sess.Sink.Send(models.DeliveryEnd{Type: "deliveryEnd", SessionID: sess.ID}); err != nil {
		sess.Log.Warn().Err(err).Msg("failed to send deliveryEnd")
	}

	m.cleanup(sess, cleanDrain)
}

// awaitEpdQuiescence polls until the session's EPD event clock stops
// advancing (no new chunk processed within one idle interval), or the drain
// deadline expires. Returns false if it timed out instead of settling.
func (m *Manager) awaitEpdQuiescence(ctx context.Context, sess *Session) bool {
	last := sess.NChunks()
	ticker := time.NewTicker(m.drainCfg.IdleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			cur := sess.NChunks()
			if cur == last {
				return true
			}
			last = cur
		}
	}
}

// awaitDeliveryQuiescence polls until the reassembler has no pending
// results withheld by a hole, or the drain deadline expires.
func (m *Manager) awaitDeliveryQuiescence(ctx context.Context, sess *Session) bool {
	if sess.Reassembler.Pending() == 0 {
		return true
	}
	ticker := time.NewTicker(m.drainCfg.IdleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if sess.Reassembler.Pending() == 0 {
				return true
			}
		}
	}
}

func (m *Manager) cleanup(sess *Session, cleanDrain bool) {
	m.mu.Lock()
	delete(m.sessions, sess.ID)
	m.mu.Unlock()

	m.metrics.RecordSessionEnd(cleanDrain, time.Since(sess.StartedAt).Seconds())
}

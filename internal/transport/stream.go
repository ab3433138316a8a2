// Package transport implements the client-facing duplex WebSocket endpoint:
// one connection, many turn-scoped sessions, JSON control/audio frames in,
// JSON delivery frames out.
package transport

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wawa9149/speech-gateway/internal/models"
	"github.com/wawa9149/speech-gateway/internal/schema"
	"github.com/wawa9149/speech-gateway/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// connSink serializes concurrent writes from multiple sessions sharing one
// physical WebSocket connection.
type connSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *connSink) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Handler upgrades HTTP to WebSocket and pumps frames between the client and
// the session manager for the connection's lifetime.
type Handler struct {
	manager   *session.Manager
	validator *schema.Validator
	log       zerolog.Logger
}

// NewHandler constructs a stream Handler bound to manager.
func NewHandler(manager *session.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		manager:   manager,
		validator: schema.New(),
		log:       log.With().Str("component", "transport").Logger(),
	}
}

// ServeHTTP upgrades the request and runs the connection's read pump until
// the client disconnects or sends a close frame, implicitly ending every
// session this connection opened.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sink := &connSink{conn: conn}
	sessions := make(map[string]struct{})

	defer func() {
		for id := range sessions {
			h.manager.End(id)
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleFrame(data, sink, sessions)
	}
}

// envelope peeks at the inbound frame's shape without committing to a type:
// control frames carry "event", audio frames carry "content".
type envelope struct {
	Event     *int   `json:"event"`
	Content   string `json:"content"`
	SessionID string `json:"sessionId"`
}

func (h *Handler) handleFrame(data []byte, sink session.Sink, sessions map[string]struct{}) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.log.Warn().Err(err).Msg("malformed inbound frame, discarding")
		return
	}

	if env.Event != nil {
		if err := h.validator.ValidateEvent(models.EventRequest{Event: *env.Event, SessionID: env.SessionID}); err != nil {
			h.log.Warn().Err(err).Msg("rejected inbound event frame")
			return
		}
		h.handleEvent(*env.Event, env.SessionID, sink, sessions)
		return
	}
	if env.Content != "" {
		if err := h.validator.ValidateAudio(models.AudioStream{SessionID: env.SessionID, Content: env.Content}); err != nil {
			h.log.Warn().Err(err).Msg("rejected inbound audio frame")
			return
		}
		h.handleAudio(env.SessionID, env.Content)
	}
}

func (h *Handler) handleEvent(event int, sessionID string, sink session.Sink, sessions map[string]struct{}) {
	switch event {
	case models.EventTurnStart:
		id, err := h.manager.Start(sink)
		if err != nil {
			h.log.Warn().Err(err).Msg("failed to start session")
			return
		}
		sessions[id] = struct{}{}
	case models.EventTurnEnd:
		if sessionID == "" {
			return
		}
		h.manager.End(sessionID)
		delete(sessions, sessionID)
		_ = sink.Send(models.EventResponse{Type: "eventResponse", SessionID: sessionID})
	case models.EventPause, models.EventResume:
		// No FSM-visible effect: audio keeps flowing to the EPD engine,
		// which already tolerates gaps via its own timeout/pause states.
	}
}

func (h *Handler) handleAudio(sessionID, content string) {
	if sessionID == "" {
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		h.log.Warn().Err(err).Str("sessionId", sessionID).Msg("malformed base64 audio content, dropping")
		return
	}
	h.manager.OnChunk(sessionID, pcm)
}

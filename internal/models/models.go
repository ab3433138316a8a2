// Package models defines the wire shapes exchanged with clients and
// downstream event consumers.
package models

// Client transport event codes.
const (
	EventTurnStart = 10
	EventPause     = 11
	EventResume    = 12
	EventTurnEnd   = 13
)

// EventRequest is an inbound client control message.
type EventRequest struct {
	Event     int    `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
}

// AudioStream is an inbound client audio message. Content carries base64-encoded
// raw PCM when delivered over JSON frames; TTSStatus is accepted and ignored.
type AudioStream struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
	TTSStatus int    `json:"ttsStatus,omitempty"`
}

// TurnReady is emitted once after TURN_START, carrying the newly assigned session id.
type TurnReady struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// Delivery is a released recognition result, emitted in strict per-session order.
type Delivery struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Result    Result `json:"result"`
	End       int    `json:"end"`
}

// Result is the recognized text payload handed back to the client.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// DeliveryEnd is emitted once drain completes for a session.
type DeliveryEnd struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// EventResponse echoes a TURN_END control message.
type EventResponse struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// DeliveryPartial is the Kafka side-channel shape for a non-final delivery.
type DeliveryPartial struct {
	EventType string  `json:"eventType"`
	SessionID string  `json:"sessionId"`
	Sequence  uint64  `json:"sequence"`
	Text      string  `json:"text"`
	Timestamp int64   `json:"timestamp"`
	Start     int64   `json:"start"`
	End       int64   `json:"end"`
}

// DeliveryFinal is the Kafka side-channel shape for an is_final=1 delivery.
type DeliveryFinal struct {
	EventType  string  `json:"eventType"`
	SessionID  string  `json:"sessionId"`
	Sequence   uint64  `json:"sequence"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
}

// EpdStatus codes.
const (
	EpdWaiting    = 0
	EpdSpeech     = 1
	EpdPause      = 2
	EpdEnd        = 3
	EpdTimeout    = 4
	EpdMaxTimeout = 6
	EpdNone       = 7
)

// EpdEvent is a decoded inbound frame from the EPD engine.
type EpdEvent struct {
	SessionID   string   `json:"session_id"`
	Status      int      `json:"status"`
	SpeechScore *float64 `json:"speech_score,omitempty"`
}

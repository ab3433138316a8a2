// Package schema validates inbound client frames before they reach the
// session manager.
package schema

import (
	"fmt"

	"github.com/wawa9149/speech-gateway/internal/models"
)

// Validator checks decoded client frames for shape and value errors that
// json.Unmarshal alone wouldn't catch.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateEvent checks an inbound control event's code and, where the event
// requires it, that a session id is present.
func (v *Validator) ValidateEvent(ev models.EventRequest) error {
	switch ev.Event {
	case models.EventTurnStart:
		return nil
	case models.EventPause, models.EventResume, models.EventTurnEnd:
		if ev.SessionID == "" {
			return fmt.Errorf("event %d requires a sessionId", ev.Event)
		}
		return nil
	default:
		return fmt.Errorf("unknown event code %d", ev.Event)
	}
}

// ValidateAudio checks an inbound audio frame carries a session id and
// non-empty content.
func (v *Validator) ValidateAudio(frame models.AudioStream) error {
	if frame.SessionID == "" {
		return fmt.Errorf("audio frame requires a sessionId")
	}
	if frame.Content == "" {
		return fmt.Errorf("audio frame requires content")
	}
	return nil
}

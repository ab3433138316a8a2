// Package stt defines the stateless batch STT caller contract: encode PCM
// slices, post one multipart batch, return per-utterance results keyed by
// utterance id. internal/stt/httpbatch and internal/stt/googlebatch are the
// two interchangeable backends behind this interface.
package stt

import (
	"context"
	"fmt"
)

// WorkItem is one utterance's audio and addressing metadata, as handed to
// the batch caller by the dispatcher.
type WorkItem struct {
	SessionID string
	Start     int64
	End       int64
	PCM       []byte
	IsFinal   bool
}

// UtteranceID is this work item's wire identity: the pair
// (session_id, "start-end"), used as the filename stem on the STT request
// and the key back to the input on the response.
func (w WorkItem) UtteranceID() string {
	return fmt.Sprintf("%s_%d-%d", w.SessionID, w.Start, w.End)
}

// Result is one utterance's recognized text, keyed by UtteranceID so the
// caller can reassociate it with its originating WorkItem.
type Result struct {
	ID         string
	Text       string
	Confidence float64
}

// Batcher posts a batch of work items to an external STT engine and returns
// whatever results came back — possibly fewer than requested, in any
// order. An omitted item is treated as a failed-but-non-fatal hole.
type Batcher interface {
	Batch(ctx context.Context, items []WorkItem) ([]Result, error)
}

// Package googlebatch implements a dev/offline-parity STT backend on top of
// Google Cloud Speech-to-Text's unary Recognize RPC — one call per work
// item, against the same stateless batch contract httpbatch implements
// (see DESIGN.md).
package googlebatch

import (
	"context"
	"fmt"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "google.golang.org/genproto/googleapis/cloud/speech/v1"

	"github.com/wawa9149/speech-gateway/internal/stt"
)

// Config holds the Google backend's recognition parameters.
type Config struct {
	LanguageCode string
}

// Client implements stt.Batcher with one unary Recognize call per item.
type Client struct {
	cfg    Config
	client *speech.Client
}

// New constructs a Client. Requires GOOGLE_APPLICATION_CREDENTIALS in the
// process environment, per Google's client library convention.
func New(ctx context.Context, cfg Config) (*Client, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("googlebatch: new client: %w", err)
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	return &Client{cfg: cfg, client: c}, nil
}

// Batch calls Recognize once per item and collects whichever succeed;
// single-item failures are non-fatal holes, not propagated as a
// batch-wide error.
func (c *Client) Batch(ctx context.Context, items []stt.WorkItem) ([]stt.Result, error) {
	out := make([]stt.Result, 0, len(items))

	for _, item := range items {
		resp, err := c.client.Recognize(ctx, &speechpb.RecognizeRequest{
			Config: &speechpb.RecognitionConfig{
				Encoding:        speechpb.RecognitionConfig_LINEAR16,
				SampleRateHertz: stt.SampleRate,
				LanguageCode:    c.cfg.LanguageCode,
			},
			Audio: &speechpb.RecognitionAudio{
				AudioSource: &speechpb.RecognitionAudio_Content{Content: item.PCM},
			},
		})
		if err != nil {
			continue // non-fatal hole; dispatcher/reassembler tolerate it
		}

		text, confidence := bestAlternative(resp)
		out = append(out, stt.Result{ID: item.UtteranceID(), Text: text, Confidence: confidence})
	}
	return out, nil
}

func bestAlternative(resp *speechpb.RecognizeResponse) (string, float64) {
	for _, result := range resp.GetResults() {
		if len(result.GetAlternatives()) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		return alt.Transcript, float64(alt.Confidence)
	}
	return "", 0
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Package httpbatch implements the gateway's primary STT backend: a
// stateless batch caller that posts a multipart/form-data request per
// batch to an external STT engine.
package httpbatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wawa9149/speech-gateway/internal/stt"
)

// Config holds the HTTP batch backend's settings.
type Config struct {
	BatchURL      string
	Token         string
	Codec         string // "wav" or "mp3"
	MP3EncoderBin string // external encoder binary; required when Codec=="mp3"
	Timeout       time.Duration
}

// Client posts a multipart batch request, one file part per work item, and
// parses the {content:{result:{utterances:[...]}}} response shape.
type Client struct {
	cfg  Config
	http *http.Client
}

// New constructs a Client. The otelhttp-wrapped transport carries trace
// propagation across the external STT call.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Codec == "" {
		cfg.Codec = "wav"
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type batchResponse struct {
	Content struct {
		Result struct {
			Utterances []utteranceResult `json:"utterances"`
		} `json:"result"`
	} `json:"content"`
}

type utteranceResult struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Batch encodes each item's PCM, posts one multipart request with a "files"
// part per item, and returns whatever results the server echoes back —
// fewer than requested is a non-fatal hole the dispatcher tolerates.
func (c *Client) Batch(ctx context.Context, items []stt.WorkItem) ([]stt.Result, error) {
	if len(items) == 0 {
		return nil, nil
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, item := range items {
		encoded, ext, err := c.encode(item.PCM)
		if err != nil {
			return nil, fmt.Errorf("httpbatch: encode %s: %w", item.UtteranceID(), err)
		}
		filename := fmt.Sprintf("%s.%s", item.UtteranceID(), ext)

		part, err := writer.CreateFormFile("files", filename)
		if err != nil {
			return nil, fmt.Errorf("httpbatch: create form file: %w", err)
		}
		if _, err := part.Write(encoded); err != nil {
			return nil, fmt.Errorf("httpbatch: write form file: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("httpbatch: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BatchURL, body)
	if err != nil {
		return nil, fmt.Errorf("httpbatch: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpbatch: post batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("httpbatch: batch request failed: status=%d body=%s", resp.StatusCode, respBody)
	}

	var parsed batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("httpbatch: decode response: %w", err)
	}

	out := make([]stt.Result, 0, len(parsed.Content.Result.Utterances))
	for _, u := range parsed.Content.Result.Utterances {
		out = append(out, stt.Result{ID: u.ID, Text: u.Text, Confidence: u.Confidence})
	}
	return out, nil
}

// encode converts raw PCM to the configured codec, returning the encoded
// bytes and the file extension to use on the wire.
func (c *Client) encode(pcm []byte) ([]byte, string, error) {
	switch c.cfg.Codec {
	case "mp3":
		return c.encodeMP3(pcm)
	default:
		return stt.EncodeWAV(pcm), "wav", nil
	}
}

// encodeMP3 shells out to an externally configured encoder binary, a
// configuration knob rather than a built-in codec, because no MP3 codec
// library exists anywhere in the retrieved example corpus.
func (c *Client) encodeMP3(pcm []byte) ([]byte, string, error) {
	if c.cfg.MP3EncoderBin == "" {
		return nil, "", fmt.Errorf("httpbatch: STT_CODEC=mp3 requires STT_MP3_ENCODER_PATH")
	}

	wavTmp, err := os.CreateTemp("", "speech-gateway-*.wav")
	if err != nil {
		return nil, "", err
	}
	defer os.Remove(wavTmp.Name())
	if _, err := wavTmp.Write(stt.EncodeWAV(pcm)); err != nil {
		wavTmp.Close()
		return nil, "", err
	}
	wavTmp.Close()

	mp3Path := wavTmp.Name() + ".mp3"
	defer os.Remove(mp3Path)

	cmd := exec.Command(c.cfg.MP3EncoderBin, wavTmp.Name(), mp3Path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, "", fmt.Errorf("httpbatch: mp3 encoder failed: %w: %s", err, out)
	}

	encoded, err := os.ReadFile(mp3Path)
	if err != nil {
		return nil, "", err
	}
	return encoded, "mp3", nil
}

package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/medidesk/voice-agent/internal/config"
	"github.com/medidesk/voice-agent/internal/observability"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io/v1"

// readChunkSize controls how much audio is drained from the streaming
// response per chunk. 4 KiB is 512 ms of 8 kHz PCMU.
const readChunkSize = 4096

// ElevenLabsClient synthesizes speech via the ElevenLabs streaming endpoint,
// requesting ulaw_8000 output so no transcoding is needed for the telephone
// leg.
type ElevenLabsClient struct {
	apiKey     string
	voiceID    string
	modelID    string
	baseURL    string
	httpClient *http.Client
}

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// NewElevenLabsClient creates a client from config.
func NewElevenLabsClient(cfg *config.Config) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey:  cfg.ElevenLabsAPIKey,
		voiceID: cfg.ElevenLabsVoiceID,
		modelID: cfg.ElevenLabsModelID,
		baseURL: elevenLabsBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name identifies the provider in logs and metrics.
func (c *ElevenLabsClient) Name() string { return "elevenlabs" }

// Synthesize requests streaming speech and returns the audio as ordered
// chunks of PCMU bytes.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string) ([]AudioChunk, error) {
	if text == "" {
		return nil, fmt.Errorf("empty synthesis text")
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: c.modelID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode synthesis request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=ulaw_8000", c.baseURL, c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordTTSRequest(c.Name(), false)
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		observability.RecordTTSRequest(c.Name(), false)
		return nil, fmt.Errorf("synthesis returned status %d: %s", resp.StatusCode, string(detail))
	}

	var chunks []AudioChunk
	index := 0
	buf := make([]byte, readChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			chunks = append(chunks, AudioChunk{Data: data, Index: index})
			index++
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			observability.RecordTTSRequest(c.Name(), false)
			return nil, fmt.Errorf("failed to read synthesis stream: %w", readErr)
		}
	}

	if len(chunks) == 0 {
		observability.RecordTTSRequest(c.Name(), false)
		return nil, fmt.Errorf("synthesis returned no audio")
	}

	observability.RecordTTSRequest(c.Name(), true)
	return chunks, nil
}

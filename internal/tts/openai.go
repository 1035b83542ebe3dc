package tts

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/medidesk/voice-agent/internal/audio"
	"github.com/medidesk/voice-agent/internal/config"
	"github.com/medidesk/voice-agent/internal/observability"
)

// OpenAI speech responses in PCM format are 24 kHz 16-bit mono.
const openaiPCMSampleRate = 24000

// OpenAIClient is the fallback synthesis provider. It cannot emit mu-law
// directly, so PCM output is downsampled and encoded to PCMU locally.
type OpenAIClient struct {
	client *openai.Client
	model  string
	voice  string
}

// NewOpenAIClient creates a fallback synthesizer from config.
func NewOpenAIClient(cfg *config.Config) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(cfg.OpenAIAPIKey),
		model:  cfg.OpenAITTSModel,
		voice:  cfg.OpenAIVoice,
	}
}

// Name identifies the provider in logs and metrics.
func (c *OpenAIClient) Name() string { return "openai" }

// Synthesize produces one PCMU chunk covering the whole reply.
func (c *OpenAIClient) Synthesize(ctx context.Context, text string) ([]AudioChunk, error) {
	if text == "" {
		return nil, fmt.Errorf("empty synthesis text")
	}

	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.model),
		Input:          text,
		Voice:          openai.SpeechVoice(c.voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		observability.RecordTTSRequest(c.Name(), false)
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Close()

	pcm, err := io.ReadAll(resp)
	if err != nil {
		observability.RecordTTSRequest(c.Name(), false)
		return nil, fmt.Errorf("failed to read speech response: %w", err)
	}

	pcmu, err := audio.ConvertPCMToPCMU(pcm, openaiPCMSampleRate, 8000)
	if err != nil {
		observability.RecordTTSRequest(c.Name(), false)
		return nil, fmt.Errorf("failed to convert speech audio: %w", err)
	}

	observability.RecordTTSRequest(c.Name(), true)
	return []AudioChunk{{Data: pcmu, Index: 0}}, nil
}

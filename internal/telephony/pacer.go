package telephony

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medidesk/voice-agent/internal/observability"
)

// Pacer writes synthesized audio back onto the media stream at real-time
// cadence: fixed-size frames, one protocol message each, strictly in order,
// with a correlation mark after the last frame.
type Pacer struct {
	transport     Transport
	frameSize     int
	frameInterval time.Duration
	livenessEvery int
	log           zerolog.Logger

	mu        sync.Mutex
	streamSID string
}

// NewPacer creates a pacer. frameInterval zero disables real-time sleeping
// (tests). livenessEvery is how many frames pass between transport checks.
func NewPacer(transport Transport, frameSize int, frameInterval time.Duration, livenessEvery int, log zerolog.Logger) *Pacer {
	if frameSize <= 0 {
		frameSize = 160
	}
	if livenessEvery <= 0 {
		livenessEvery = 100
	}
	return &Pacer{
		transport:     transport,
		frameSize:     frameSize,
		frameInterval: frameInterval,
		livenessEvery: livenessEvery,
		log:           log,
	}
}

// SetStreamSID arms the pacer. Operations before this are no-ops.
func (p *Pacer) SetStreamSID(streamSID string) {
	p.mu.Lock()
	p.streamSID = streamSID
	p.mu.Unlock()
}

func (p *Pacer) stream() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamSID
}

// SendAudio splits audio into frames and writes them in order, then emits
// one mark message with a fresh label and returns it. A disconnect mid-send
// logs the partial frame/byte counts and returns without error (best-effort
// completion, no mark). Write errors propagate.
func (p *Pacer) SendAudio(audio []byte) (string, error) {
	streamSID := p.stream()
	if streamSID == "" {
		p.log.Error().Msg("Cannot send audio: stream SID not set")
		return "", nil
	}
	if len(audio) == 0 {
		return "", nil
	}

	framesSent := 0
	bytesSent := 0
	for offset := 0; offset < len(audio); offset += p.frameSize {
		if framesSent%p.livenessEvery == 0 && !p.transport.IsAlive() {
			p.log.Warn().
				Int("frames_sent", framesSent).
				Int("bytes_sent", bytesSent).
				Int("bytes_total", len(audio)).
				Msg("Transport disconnected mid-send, aborting remaining frames")
			observability.RecordFramesSent(framesSent)
			return "", nil
		}

		end := offset + p.frameSize
		if end > len(audio) {
			end = len(audio)
		}
		frame := audio[offset:end]

		msg := outboundMedia{
			Event:     "media",
			StreamSid: streamSID,
			Media:     outboundMediaInner{Payload: base64.StdEncoding.EncodeToString(frame)},
		}
		if err := p.transport.WriteJSON(msg); err != nil {
			observability.RecordFramesSent(framesSent)
			return "", fmt.Errorf("failed to write audio frame %d: %w", framesSent, err)
		}

		framesSent++
		bytesSent += len(frame)

		if p.frameInterval > 0 {
			time.Sleep(p.frameInterval)
		}
	}

	observability.RecordFramesSent(framesSent)

	markName := uuid.New().String()
	mark := outboundMark{
		Event:     "mark",
		StreamSid: streamSID,
		Mark:      outboundMarkInner{Name: markName},
	}
	if err := p.transport.WriteJSON(mark); err != nil {
		return "", fmt.Errorf("failed to write mark: %w", err)
	}

	p.log.Debug().
		Int("frames", framesSent).
		Int("bytes", bytesSent).
		Str("mark", markName).
		Msg("Audio sent")
	return markName, nil
}

// Clear tells the remote side to discard buffered, unplayed audio. Used
// before a new reply so a stale in-flight reply is not garbled into it.
func (p *Pacer) Clear() error {
	streamSID := p.stream()
	if streamSID == "" {
		p.log.Error().Msg("Cannot clear: stream SID not set")
		return nil
	}
	return p.transport.WriteJSON(outboundClear{Event: "clear", StreamSid: streamSID})
}

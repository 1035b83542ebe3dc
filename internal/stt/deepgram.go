package stt

import (
	"context"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/medidesk/voice-agent/internal/config"
	"github.com/medidesk/voice-agent/internal/observability"
	"github.com/medidesk/voice-agent/internal/resilience"
)

// messageCallbackHandler implements the SDK's LiveMessageCallback interface.
// It embeds the default handler and overrides only the events we consume.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse) error
}

func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	if m.errorHandler != nil {
		return m.errorHandler(errorResponse)
	}
	return m.DefaultCallbackHandler.Error(errorResponse)
}

// DeepgramConnection is one Deepgram streaming session for one call. It owns
// an UtteranceAssembler and delivers finalized utterances on a channel the
// call loop selects over.
type DeepgramConnection struct {
	cfg       *config.Config
	callSID   string
	log       zerolog.Logger
	assembler *UtteranceAssembler
	breaker   *resilience.CircuitBreaker

	utterances chan string

	mu     sync.RWMutex
	client *listenClient.WSCallback
	ready  bool
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewDeepgramConnection prepares a connection; Connect must be called before
// audio can be sent. The circuit breaker is shared across a call so repeated
// send failures do not hammer a dead upstream.
func NewDeepgramConnection(cfg *config.Config, callSID string, breaker *resilience.CircuitBreaker) *DeepgramConnection {
	ctx, cancel := context.WithCancel(context.Background())
	return &DeepgramConnection{
		cfg:        cfg,
		callSID:    callSID,
		log:        observability.ForCall(callSID),
		assembler:  NewUtteranceAssembler(),
		breaker:    breaker,
		utterances: make(chan string, 16),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Connect opens the streaming session. Failure is logged and reported as
// false; the call continues without recognition.
func (d *DeepgramConnection) Connect() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ready {
		return true
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.cfg.DeepgramModel,
		Language:       d.cfg.DeepgramLanguage,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: d.cfg.DeepgramUtteranceEnd,
		VadEvents:      true,
		Encoding:       "mulaw",
		Channels:       1,
		SampleRate:     8000,
	}

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler:                d.handleMessage,
		errorHandler: func(errorResponse *msginterfaces.ErrorResponse) error {
			d.log.Error().
				Str("component", "deepgram").
				Interface("response", errorResponse).
				Msg("Recognizer stream error")

			d.breaker.RecordResult(false)
			observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.State()))

			select {
			case <-d.ctx.Done():
				return nil
			default:
			}

			d.mu.Lock()
			d.ready = false
			d.mu.Unlock()
			go d.attemptReconnect()
			return nil
		},
	}

	client, err := listenClient.NewWSUsingCallback(
		d.ctx,
		d.cfg.DeepgramAPIKey,
		nil,
		tOptions,
		callback,
	)
	if err != nil {
		d.log.Error().Err(err).Msg("Failed to create recognizer client")
		d.breaker.RecordResult(false)
		observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.State()))
		return false
	}

	d.client = client
	d.ready = true
	d.breaker.RecordResult(true)
	observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.State()))

	d.log.Info().
		Str("model", d.cfg.DeepgramModel).
		Str("language", d.cfg.DeepgramLanguage).
		Msg("Recognizer connection established")
	return true
}

// handleMessage routes recognizer events into the assembler and pushes any
// finalized utterance onto the channel.
func (d *DeepgramConnection) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "UtteranceEnd":
		if utterance, fired := d.assembler.OnUtteranceEnd(); fired {
			d.emit(utterance)
		}

	case "SpeechStarted":
		d.log.Debug().Msg("Speech started")

	case "Metadata":
		// Connection metadata, nothing to assemble.

	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		text := msg.Channel.Alternatives[0].Transcript

		if !msg.IsFinal {
			if text != "" {
				d.log.Debug().Str("interim", text).Msg("Interim transcript")
			}
			return
		}

		if utterance, fired := d.assembler.OnTranscript(text, msg.IsFinal, msg.SpeechFinal); fired {
			d.emit(utterance)
		}

	default:
		d.log.Debug().Str("type", msg.Type).Msg("Unhandled recognizer event")
	}
}

// emit delivers one finalized utterance. The SDK can deliver trailing final
// events after Finish has been requested, so the send is guarded by the
// closed flag under the same lock that Finish closes the channel under.
func (d *DeepgramConnection) emit(utterance string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Debug().Str("utterance", utterance).Msg("Dropping utterance delivered after close")
		return
	}

	d.log.Info().Str("utterance", utterance).Msg("Utterance finalized")
	select {
	case d.utterances <- utterance:
	default:
		d.log.Warn().Msg("Utterance channel full, dropping utterance")
	}
}

// Send forwards one PCMU chunk through the circuit breaker.
func (d *DeepgramConnection) Send(chunk []byte) error {
	err := d.breaker.Call(func() error {
		d.mu.RLock()
		ready := d.ready
		client := d.client
		d.mu.RUnlock()

		if !ready || client == nil {
			return fmt.Errorf("recognizer connection is not ready")
		}

		if _, err := client.Write(chunk); err != nil {
			go d.attemptReconnect()
			return fmt.Errorf("failed to send audio to recognizer: %w", err)
		}
		return nil
	})

	observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.State()))
	return err
}

func (d *DeepgramConnection) attemptReconnect() {
	select {
	case <-d.ctx.Done():
		return
	default:
	}

	d.mu.RLock()
	alreadyReady := d.ready
	d.mu.RUnlock()
	if alreadyReady {
		return
	}

	reconnectConfig := &resilience.ReconnectConfig{
		MaxAttempts: d.cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(d.cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}

	err := resilience.Reconnect(d.ctx, func() error {
		if d.Connect() {
			return nil
		}
		return fmt.Errorf("recognizer connect failed")
	}, reconnectConfig)

	if err != nil {
		d.log.Error().Err(err).Msg("Failed to reconnect recognizer")
	} else {
		d.log.Info().Msg("Recognizer reconnected")
	}
}

// Finish flushes trailing buffered speech as a last utterance, closes the
// upstream session, and closes the utterance channel.
func (d *DeepgramConnection) Finish() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		client := d.client
		d.ready = false
		d.client = nil
		d.mu.Unlock()

		if client != nil {
			client.Finish()
		}
		d.cancel()

		if utterance, ok := d.assembler.Flush(); ok {
			d.emit(utterance)
		}

		d.mu.Lock()
		d.closed = true
		close(d.utterances)
		d.mu.Unlock()

		d.log.Info().Msg("Recognizer connection closed")
	})
}

// IsReady reports whether audio can be forwarded right now.
func (d *DeepgramConnection) IsReady() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ready
}

// Utterances returns the finalized-utterance channel.
func (d *DeepgramConnection) Utterances() <-chan string {
	return d.utterances
}

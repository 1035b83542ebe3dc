package telephony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medidesk/voice-agent/internal/agent"
	"github.com/medidesk/voice-agent/internal/booking"
	"github.com/medidesk/voice-agent/internal/config"
	"github.com/medidesk/voice-agent/internal/notify"
	"github.com/medidesk/voice-agent/internal/observability"
	"github.com/medidesk/voice-agent/internal/registry"
	"github.com/medidesk/voice-agent/internal/session"
	"github.com/medidesk/voice-agent/internal/stt"
	"github.com/medidesk/voice-agent/internal/tools"
	"github.com/medidesk/voice-agent/internal/tts"
)

var errTransportClosed = errors.New("transport closed")

// activeCall is the registry entry for one in-flight call loop.
type activeCall struct {
	callSID   string
	streamSID string
	pacer     *Pacer
	startedAt time.Time

	finishOnce sync.Once
}

// Controller drives one media stream per call: handshake, inbound audio
// fan-in to speech recognition, utterance-driven conversation turns, outbound
// reply audio, and guarded teardown.
type Controller struct {
	cfg       *config.Config
	store     *session.Store
	recognize *stt.Manager
	synth     *tts.Generator
	chat      agent.ChatCompleter
	executor  *tools.Executor
	sms       *notify.SMSSender
	booking   booking.Service
	calls     *registry.Registry[*activeCall]
}

// NewController wires the per-call pipeline. sms may be nil when confirmation
// messages are disabled.
func NewController(cfg *config.Config, store *session.Store, recognize *stt.Manager, synth *tts.Generator, chat agent.ChatCompleter, executor *tools.Executor, sms *notify.SMSSender, bookingSvc booking.Service) *Controller {
	return &Controller{
		cfg:       cfg,
		store:     store,
		recognize: recognize,
		synth:     synth,
		chat:      chat,
		executor:  executor,
		sms:       sms,
		booking:   bookingSvc,
		calls:     registry.New[*activeCall]("calls"),
	}
}

// ActiveCalls returns the number of calls currently in their event loop.
func (c *Controller) ActiveCalls() int {
	return c.calls.Len()
}

// Start runs the full lifetime of one media stream and blocks until the call
// ends. callSIDHint is the call id from the connection URL, if the setup
// webhook put one there; the protocol start event is authoritative when the
// hint is empty.
func (c *Controller) Start(ctx context.Context, transport Transport, callSIDHint string) {
	msgCh := make(chan []byte, 64)
	go readLoop(transport, msgCh)

	bootLog := observability.GetLogger()

	start, err := c.awaitStart(msgCh)
	if err != nil {
		bootLog.Warn().
			Err(err).
			Str("call_sid_hint", callSIDHint).
			Msg("Media stream handshake failed")
		_ = transport.CloseWithPolicyViolation("no start event received")
		return
	}

	callSID := callSIDHint
	if callSID == "" {
		callSID = start.CallSid
	}
	if callSID == "" {
		bootLog.Warn().Msg("Start event carried no call SID")
		_ = transport.CloseWithPolicyViolation("no call id")
		return
	}

	log := observability.ForCall(callSID)
	metrics := observability.NewCallMetrics(callSID)
	metrics.RecordCallStart()

	pacer := NewPacer(
		transport,
		c.cfg.FrameSize,
		time.Duration(c.cfg.FrameIntervalMs)*time.Millisecond,
		c.cfg.LivenessCheckEvery,
		log,
	)
	pacer.SetStreamSID(start.StreamSid)

	call := &activeCall{
		callSID:   callSID,
		streamSID: start.StreamSid,
		pacer:     pacer,
		startedAt: time.Now(),
	}
	c.calls.Put(callSID, call)

	sess := session.NewCallSession(callSID, start.CustomParameters["from"], start.CustomParameters["to"])
	sess.Status = session.StatusInProgress
	if err := c.store.Create(ctx, sess); err != nil {
		// Without a session entry there is no conversation state to run on.
		log.Error().Err(err).Msg("Failed to create call session")
		metrics.RecordError("session_create", "controller")
		c.calls.Remove(callSID)
		_ = transport.CloseWithPolicyViolation("session store unavailable")
		metrics.RecordCallEnd()
		return
	}

	recognizer := c.recognize.Create(callSID)
	orchestrator := agent.NewOrchestrator(callSID, c.store, c.chat, c.executor, c.cfg.OpenAIModel, c.cfg.ClinicName)

	defer c.teardown(ctx, call, transport, metrics, log)

	log.Info().
		Str("stream_sid", start.StreamSid).
		Str("from", sess.From).
		Msg("Call started")

	c.speak(ctx, call, metrics, log, agent.Greeting(c.cfg.ClinicName))
	c.appendGreeting(ctx, callSID, log)

	c.eventLoop(ctx, call, msgCh, recognizer, orchestrator, metrics, log)
}

// readLoop pumps raw protocol messages into msgCh until the transport dies,
// then closes the channel so the event loop unblocks.
func readLoop(transport Transport, msgCh chan<- []byte) {
	defer close(msgCh)
	for {
		message, err := transport.ReadMessage()
		if err != nil {
			return
		}
		msgCh <- message
	}
}

// awaitStart waits for the protocol start event, ignoring anything else that
// arrives first. It retries the configured number of attempts, each bounded
// by the configured timeout.
func (c *Controller) awaitStart(msgCh <-chan []byte) (*StartPayload, error) {
	timeout := time.Duration(c.cfg.StartEventTimeout) * time.Second
	attempts := c.cfg.StartEventAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		timer := time.NewTimer(timeout)
		waiting := true
		for waiting {
			select {
			case raw, ok := <-msgCh:
				if !ok {
					timer.Stop()
					return nil, errTransportClosed
				}
				var msg InboundMessage
				if err := json.Unmarshal(raw, &msg); err != nil {
					continue
				}
				if msg.Event == "start" && msg.Start != nil {
					timer.Stop()
					return msg.Start, nil
				}
				// connected (and early media) arrives before start; skip it.
			case <-timer.C:
				log := observability.GetLogger()
				log.Warn().
					Int("attempt", attempt).
					Int("max_attempts", attempts).
					Msg("Timed out waiting for start event")
				waiting = false
			}
		}
	}
	return nil, fmt.Errorf("no start event after %d attempts", attempts)
}

// eventLoop multiplexes inbound protocol messages with recognized utterances
// until the stream stops or the transport closes.
func (c *Controller) eventLoop(ctx context.Context, call *activeCall, msgCh <-chan []byte, recognizer stt.Connection, orchestrator *agent.Orchestrator, metrics *observability.CallMetrics, log zerolog.Logger) {
	for {
		select {
		case raw, ok := <-msgCh:
			if !ok {
				log.Info().Msg("Media stream closed")
				return
			}
			if stop := c.handleProtocolMessage(raw, call, recognizer, metrics, log); stop {
				return
			}

		case utterance, ok := <-recognizer.Utterances():
			if !ok {
				log.Debug().Msg("Recognizer channel closed")
				return
			}
			c.handleUtterance(ctx, call, orchestrator, metrics, log, utterance)

		case <-ctx.Done():
			log.Info().Msg("Call context cancelled")
			return
		}
	}
}

// handleProtocolMessage dispatches one inbound event. Returns true when the
// stream has ended.
func (c *Controller) handleProtocolMessage(raw []byte, call *activeCall, recognizer stt.Connection, metrics *observability.CallMetrics, log zerolog.Logger) bool {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Warn().Err(err).Msg("Malformed protocol message, skipping")
		metrics.RecordError("malformed_message", "controller")
		return false
	}

	switch msg.Event {
	case "media":
		if msg.Media == nil {
			return false
		}
		chunk, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			log.Warn().Err(err).Msg("Undecodable media payload, skipping")
			metrics.RecordError("media_decode", "controller")
			return false
		}
		metrics.RecordAudioBytes("in", int64(len(chunk)))
		if !recognizer.IsReady() {
			// Dropping keeps the stream real-time while the recognizer
			// reconnects; buffering here would replay stale audio.
			return false
		}
		if err := recognizer.Send(chunk); err != nil {
			log.Warn().Err(err).Msg("Failed to forward audio to recognizer")
			metrics.RecordError("stt_send", "controller")
		}

	case "mark":
		if msg.Mark != nil {
			log.Debug().Str("mark", msg.Mark.Name).Msg("Playback mark acknowledged")
		}

	case "stop":
		log.Info().Msg("Stop event received")
		return true

	case "connected", "start":
		// connected is informational; a duplicate start changes nothing.

	default:
		log.Debug().Str("event", msg.Event).Msg("Ignoring unknown protocol event")
	}
	return false
}

// handleUtterance runs one conversation turn and speaks the reply.
func (c *Controller) handleUtterance(ctx context.Context, call *activeCall, orchestrator *agent.Orchestrator, metrics *observability.CallMetrics, log zerolog.Logger, utterance string) {
	log.Info().Str("utterance", utterance).Msg("Utterance recognized")
	metrics.RecordTurnStart()

	result := orchestrator.ProcessUtterance(ctx, utterance)
	metrics.RecordTurnEnd(result.Success)

	// Interrupt any reply still playing before starting the new one.
	if err := call.pacer.Clear(); err != nil {
		log.Warn().Err(err).Msg("Failed to clear buffered audio")
	}
	c.speak(ctx, call, metrics, log, result.Reply)
}

// speak synthesizes text and paces it onto the stream. Synthesis failure is
// logged and swallowed: a silent turn is recoverable, a crashed loop is not.
func (c *Controller) speak(ctx context.Context, call *activeCall, metrics *observability.CallMetrics, log zerolog.Logger, text string) {
	audio, provider, err := c.synth.Generate(ctx, text)
	if err != nil {
		log.Error().Err(err).Msg("Speech synthesis failed, turn will be silent")
		metrics.RecordError("synthesis", "controller")
		return
	}

	mark, err := call.pacer.SendAudio(audio)
	if err != nil {
		log.Error().Err(err).Msg("Failed to send reply audio")
		metrics.RecordError("audio_send", "controller")
		return
	}
	metrics.RecordAudioBytes("out", int64(len(audio)))
	log.Debug().
		Str("provider", provider).
		Str("mark", mark).
		Int("bytes", len(audio)).
		Msg("Reply audio sent")
}

// appendGreeting records the opening line so the model sees it in history.
func (c *Controller) appendGreeting(ctx context.Context, callSID string, log zerolog.Logger) {
	err := c.store.AppendTurn(ctx, callSID, session.Turn{
		Role:    session.RoleAssistant,
		Content: agent.Greeting(c.cfg.ClinicName),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to persist greeting turn")
	}
}

// teardown releases everything the call acquired, exactly once: recognizer,
// registry entry, session finalization, transport.
func (c *Controller) teardown(ctx context.Context, call *activeCall, transport Transport, metrics *observability.CallMetrics, log zerolog.Logger) {
	call.finishOnce.Do(func() {
		c.recognize.Remove(call.callSID)
		c.calls.Remove(call.callSID)

		if err := c.finalizeSession(ctx, call.callSID, session.StatusCompleted); err != nil {
			log.Error().Err(err).Msg("Failed to finalize session")
			metrics.RecordError("session_finalize", "controller")
		}

		_ = transport.Close()
		metrics.RecordCallEnd()

		log.Info().
			Dur("duration", time.Since(call.startedAt)).
			Msg("Call ended")
	})
}

// FinalizeCall force-finalizes a session that still exists in the store, used
// by the status webhook when the provider reports the call over but the live
// loop never ran its teardown (crashed pod, dropped socket).
func (c *Controller) FinalizeCall(ctx context.Context, callSID, status string) error {
	if call, ok := c.calls.Get(callSID); ok {
		// Live loop still owns the call; let its teardown win.
		log := observability.ForCall(callSID)
		log.Debug().
			Str("status", status).
			Time("started_at", call.startedAt).
			Msg("Call still active, skipping forced finalization")
		return nil
	}
	return c.finalizeSession(ctx, callSID, status)
}

// finalizeSession marks the session with its terminal status, sends the
// booking confirmation SMS when one was captured, and removes the session.
func (c *Controller) finalizeSession(ctx context.Context, callSID, status string) error {
	log := observability.ForCall(callSID)

	sess, err := c.store.Get(ctx, callSID)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	sess.Status = status
	if err := c.store.Save(ctx, sess); err != nil {
		log.Error().Err(err).Msg("Failed to save final session state")
	}

	if sess.Booking.AppointmentID != "" && c.sms != nil && sess.From != "" {
		c.sendConfirmation(ctx, sess, log)
	}

	if err := c.store.Delete(ctx, callSID); err != nil {
		return err
	}
	log.Info().Str("status", status).Msg("Session finalized")
	return nil
}

// sendConfirmation resolves the booked doctor's display name and sends the
// confirmation SMS. Best effort.
func (c *Controller) sendConfirmation(ctx context.Context, sess *session.CallSession, log zerolog.Logger) {
	doctorName := sess.Booking.DoctorID
	if doctors, err := c.booking.ListDoctors(ctx); err == nil {
		for _, d := range doctors {
			if d.DoctorID == sess.Booking.DoctorID {
				doctorName = d.Name
				break
			}
		}
	} else {
		log.Warn().Err(err).Msg("Could not resolve doctor name for confirmation SMS")
	}

	err := c.sms.SendConfirmation(ctx, sess.From, notify.ConfirmationDetails{
		PatientName:   sess.Booking.PatientName,
		DoctorName:    doctorName,
		Date:          sess.Booking.Date,
		Time:          sess.Booking.Time,
		AppointmentID: sess.Booking.AppointmentID,
	})
	if err != nil {
		log.Error().Err(err).Msg("Confirmation SMS failed")
		return
	}
}

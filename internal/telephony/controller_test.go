package telephony

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/medidesk/voice-agent/internal/booking"
	"github.com/medidesk/voice-agent/internal/config"
	"github.com/medidesk/voice-agent/internal/session"
	"github.com/medidesk/voice-agent/internal/stt"
	"github.com/medidesk/voice-agent/internal/tools"
	"github.com/medidesk/voice-agent/internal/tts"
)

// fakeRecognizer is a scriptable stt.Connection.
type fakeRecognizer struct {
	mu         sync.Mutex
	ready      bool
	sent       [][]byte
	finished   bool
	utterances chan string
}

func newFakeRecognizer(ready bool) *fakeRecognizer {
	return &fakeRecognizer{ready: ready, utterances: make(chan string, 8)}
}

func (f *fakeRecognizer) Connect() bool { return true }

func (f *fakeRecognizer) Send(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data := make([]byte, len(chunk))
	copy(data, chunk)
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeRecognizer) Finish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.finished {
		f.finished = true
		close(f.utterances)
	}
}

func (f *fakeRecognizer) IsReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeRecognizer) Utterances() <-chan string { return f.utterances }

func (f *fakeRecognizer) sentChunks() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

// fixedSynth returns the same PCMU bytes for any text.
type fixedSynth struct {
	audio []byte
}

func (s *fixedSynth) Name() string { return "fixed" }

func (s *fixedSynth) Synthesize(ctx context.Context, text string) ([]tts.AudioChunk, error) {
	return []tts.AudioChunk{{Data: s.audio, Index: 0}}, nil
}

// stubBooking satisfies booking.Service; the controller tests never reach the
// booking backend.
type stubBooking struct{}

func (stubBooking) ListDoctors(ctx context.Context) ([]booking.Doctor, error) {
	return []booking.Doctor{{DoctorID: "DOC2001", Name: "Sarah Johnson"}}, nil
}
func (stubBooking) DoctorSchedule(ctx context.Context, doctorID string) ([]string, error) {
	return nil, nil
}
func (stubBooking) AvailableSlots(ctx context.Context, doctorID, date string) ([]string, error) {
	return nil, nil
}
func (stubBooking) CreateAppointment(ctx context.Context, req booking.AppointmentRequest) (*booking.Appointment, error) {
	return nil, errors.New("not scripted")
}
func (stubBooking) AppointmentDetails(ctx context.Context, patientName, patientPhone string) (*booking.Appointment, error) {
	return nil, nil
}

// scriptedChat replays canned model responses in order.
type scriptedChat struct {
	mu        sync.Mutex
	responses []openai.ChatCompletionResponse
	requests  []openai.ChatCompletionRequest
}

func (s *scriptedChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("no scripted response")
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next, nil
}

type controllerFixture struct {
	controller *Controller
	store      *session.Store
	recognizer *fakeRecognizer
	transport  *fakeTransport
	chat       *scriptedChat
}

func newControllerFixture(t *testing.T, recognizerReady bool) *controllerFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewStore(client, time.Hour, time.Minute)

	recognizer := newFakeRecognizer(recognizerReady)
	manager := stt.NewManagerWithFactory(func(callSID string) stt.Connection {
		return recognizer
	})

	executor, err := tools.NewExecutor(stubBooking{})
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	chat := &scriptedChat{}
	cfg := &config.Config{
		ClinicName:         "Test Clinic",
		OpenAIModel:        "gpt-4o",
		StartEventTimeout:  1,
		StartEventAttempts: 1,
		FrameSize:          160,
		FrameIntervalMs:    0,
		LivenessCheckEvery: 100,
	}

	controller := NewController(
		cfg,
		store,
		manager,
		tts.NewGenerator(&fixedSynth{audio: make([]byte, 320)}, nil),
		chat,
		executor,
		nil, // SMS disabled
		stubBooking{},
	)

	return &controllerFixture{
		controller: controller,
		store:      store,
		recognizer: recognizer,
		transport:  newFakeTransport(),
		chat:       chat,
	}
}

func startMessage(callSID, streamSID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"start","start":{"callSid":%q,"streamSid":%q,"customParameters":{"from":"+15550001111","to":"+15550002222"}}}`,
		callSID, streamSID,
	))
}

func mediaMessage(payload []byte) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"media","media":{"track":"inbound","payload":%q}}`,
		base64.StdEncoding.EncodeToString(payload),
	))
}

// waitFor polls until cond is true or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestController_HandshakeFailureClosesWithPolicyViolation(t *testing.T) {
	fx := newControllerFixture(t, true)
	close(fx.transport.reads) // connection dies before any start event

	fx.controller.Start(context.Background(), fx.transport, "")

	if !fx.transport.closed {
		t.Error("Transport should be closed after failed handshake")
	}
	if fx.transport.policyMsg == "" {
		t.Error("Expected a policy violation close")
	}
	if fx.controller.ActiveCalls() != 0 {
		t.Error("No call should be registered after a failed handshake")
	}
}

func TestController_FullCallLifecycle(t *testing.T) {
	fx := newControllerFixture(t, true)

	chunk := []byte{0x01, 0x02, 0x03, 0x04}
	fx.transport.reads <- []byte(`{"event":"connected"}`)
	fx.transport.reads <- startMessage("CA100", "MZ100")
	fx.transport.reads <- mediaMessage(chunk)
	fx.transport.reads <- []byte(`not json at all`)
	fx.transport.reads <- []byte(`{"event":"stop","stop":{"callSid":"CA100"}}`)
	close(fx.transport.reads)

	fx.controller.Start(context.Background(), fx.transport, "")

	// Greeting audio: 320 bytes at 160/frame is 2 media messages plus a mark.
	msgs := fx.transport.messages()
	var mediaCount, markCount int
	for _, m := range msgs {
		switch m.(type) {
		case outboundMedia:
			mediaCount++
		case outboundMark:
			markCount++
		}
	}
	if mediaCount != 2 || markCount != 1 {
		t.Errorf("Expected 2 media + 1 mark for the greeting, got %d media, %d marks", mediaCount, markCount)
	}

	sent := fx.recognizer.sentChunks()
	if len(sent) != 1 || string(sent[0]) != string(chunk) {
		t.Errorf("Recognizer should have received exactly the decoded media chunk, got %v", sent)
	}

	if _, err := fx.store.Get(context.Background(), "CA100"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Session should be removed after teardown, got err=%v", err)
	}
	if !fx.recognizer.finished {
		t.Error("Recognizer should be finished at teardown")
	}
	if !fx.transport.closed {
		t.Error("Transport should be closed at teardown")
	}
	if fx.controller.ActiveCalls() != 0 {
		t.Error("Call registry should be empty after teardown")
	}
}

func TestController_MediaDroppedWhenRecognizerNotReady(t *testing.T) {
	fx := newControllerFixture(t, false)

	fx.transport.reads <- startMessage("CA101", "MZ101")
	fx.transport.reads <- mediaMessage([]byte{0xAA, 0xBB})
	fx.transport.reads <- []byte(`{"event":"stop","stop":{"callSid":"CA101"}}`)
	close(fx.transport.reads)

	fx.controller.Start(context.Background(), fx.transport, "")

	if sent := fx.recognizer.sentChunks(); len(sent) != 0 {
		t.Errorf("Media should be dropped while the recognizer is not ready, got %d chunks", len(sent))
	}
}

func TestController_UtteranceProducesReplyWithClear(t *testing.T) {
	fx := newControllerFixture(t, true)
	fx.chat.responses = []openai.ChatCompletionResponse{{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: "Sure, could I have your name?",
			},
		}},
	}}

	fx.transport.reads <- startMessage("CA102", "MZ102")

	done := make(chan struct{})
	go func() {
		fx.controller.Start(context.Background(), fx.transport, "")
		close(done)
	}()

	// Greeting first: 2 media + 1 mark.
	waitFor(t, "greeting audio", func() bool {
		return len(fx.transport.messages()) >= 3
	})

	fx.recognizer.utterances <- "I would like to book an appointment"

	// Reply adds a clear, 2 media frames and another mark.
	waitFor(t, "reply audio", func() bool {
		return len(fx.transport.messages()) >= 7
	})
	close(fx.transport.reads)
	<-done

	msgs := fx.transport.messages()
	if _, ok := msgs[3].(outboundClear); !ok {
		t.Errorf("Expected clear before the reply audio, got %T", msgs[3])
	}

	fx.chat.mu.Lock()
	defer fx.chat.mu.Unlock()
	if len(fx.chat.requests) != 1 {
		t.Fatalf("Expected exactly one model call, got %d", len(fx.chat.requests))
	}
	req := fx.chat.requests[0]
	last := req.Messages[len(req.Messages)-1]
	if last.Role != openai.ChatMessageRoleUser || last.Content != "I would like to book an appointment" {
		t.Errorf("Model should see the utterance as the last message, got %+v", last)
	}
	// History starts with the system prompt and the persisted greeting.
	if len(req.Messages) != 3 {
		t.Errorf("Expected system + greeting + user, got %d messages", len(req.Messages))
	}
}

func TestController_FinalizeCallRemovesOrphanedSession(t *testing.T) {
	fx := newControllerFixture(t, true)
	ctx := context.Background()

	sess := session.NewCallSession("CA103", "+15550001111", "+15550002222")
	sess.Status = session.StatusInProgress
	if err := fx.store.Create(ctx, sess); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := fx.controller.FinalizeCall(ctx, "CA103", session.StatusFailed); err != nil {
		t.Fatalf("FinalizeCall failed: %v", err)
	}
	if _, err := fx.store.Get(ctx, "CA103"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Orphaned session should be removed, got err=%v", err)
	}

	// A second finalize of the same call is a no-op.
	if err := fx.controller.FinalizeCall(ctx, "CA103", session.StatusFailed); err != nil {
		t.Errorf("Repeated finalize should not error: %v", err)
	}
}

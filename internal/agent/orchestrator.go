package agent

import (
	"context"
	"encoding/json"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"

	"github.com/medidesk/voice-agent/internal/observability"
	"github.com/medidesk/voice-agent/internal/session"
	"github.com/medidesk/voice-agent/internal/tools"
)

// Result is the outcome of one conversation turn. Reply is always non-empty;
// Success false marks a degraded turn (fallback template or apology).
type Result struct {
	Success     bool
	Reply       string
	ToolInvoked bool
	ToolName    string
}

// Orchestrator runs the two-phase tool-calling loop for one call. The event
// loop serializes utterances, so one orchestrator is never invoked
// concurrently for its call.
type Orchestrator struct {
	callSID    string
	store      *session.Store
	chat       ChatCompleter
	executor   *tools.Executor
	model      string
	clinicName string
	log        zerolog.Logger
}

// NewOrchestrator binds an orchestrator to one call.
func NewOrchestrator(callSID string, store *session.Store, chat ChatCompleter, executor *tools.Executor, model, clinicName string) *Orchestrator {
	return &Orchestrator{
		callSID:    callSID,
		store:      store,
		chat:       chat,
		executor:   executor,
		model:      model,
		clinicName: clinicName,
		log:        observability.ForCall(callSID),
	}
}

// ProcessUtterance runs one turn: append the user utterance, decide on a
// tool, execute it, and produce the spoken reply.
func (o *Orchestrator) ProcessUtterance(ctx context.Context, userText string) Result {
	if err := o.store.AppendTurn(ctx, o.callSID, session.Turn{
		Role:    session.RoleUser,
		Content: userText,
	}); err != nil {
		o.log.Error().Err(err).Msg("Failed to persist user turn")
		return Result{Success: false, Reply: ApologyReply}
	}

	messages, err := o.loadMessages(ctx)
	if err != nil {
		o.log.Error().Err(err).Msg("Failed to load conversation history")
		return Result{Success: false, Reply: ApologyReply}
	}

	// Phase 1: the model sees the tool schemas and either answers directly
	// or requests a tool.
	resp, err := o.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
		Tools:    tools.Schemas(),
	})
	if err != nil || len(resp.Choices) == 0 {
		o.log.Error().Err(err).Msg("Phase-1 model call failed")
		o.appendAssistant(ctx, ApologyReply)
		return Result{Success: false, Reply: ApologyReply}
	}

	choice := resp.Choices[0].Message
	if len(choice.ToolCalls) == 0 {
		reply := strings.TrimSpace(choice.Content)
		if reply == "" {
			reply = "I'm sorry, could you please repeat that?"
		}
		o.appendAssistant(ctx, reply)
		return Result{Success: true, Reply: reply}
	}

	toolCall := choice.ToolCalls[0]
	toolName := toolCall.Function.Name
	o.log.Info().
		Str("tool", toolName).
		Str("tool_call_id", toolCall.ID).
		Msg("Model requested tool")

	// Record the request before executing so the replayed history always
	// shows the result attributed to the call that produced it.
	if err := o.store.AppendTurn(ctx, o.callSID, session.Turn{
		Role: session.RoleAssistant,
		ToolCalls: []session.ToolCall{{
			ID:        toolCall.ID,
			Name:      toolName,
			Arguments: toolCall.Function.Arguments,
		}},
	}); err != nil {
		o.log.Error().Err(err).Msg("Failed to persist tool request turn")
	}

	toolResult := o.executor.Execute(ctx, toolName, json.RawMessage(toolCall.Function.Arguments))
	resultJSON, err := json.Marshal(toolResult)
	if err != nil {
		resultJSON = []byte(`{"success":false,"error":"internal encoding error"}`)
	}

	if err := o.store.AppendTurn(ctx, o.callSID, session.Turn{
		Role:       session.RoleTool,
		Content:    string(resultJSON),
		ToolCallID: toolCall.ID,
		Name:       toolName,
	}); err != nil {
		o.log.Error().Err(err).Msg("Failed to persist tool result turn")
	}

	o.captureBooking(ctx, toolName, toolResult)

	// Phase 2: re-read the history (another process may have appended) and
	// ask the model to phrase the result, without tool schemas.
	messages, err = o.loadMessages(ctx)
	if err == nil {
		resp, err = o.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    o.model,
			Messages: messages,
		})
	}
	if err == nil && len(resp.Choices) > 0 {
		if reply := strings.TrimSpace(resp.Choices[0].Message.Content); reply != "" {
			o.appendAssistant(ctx, reply)
			return Result{Success: true, Reply: reply, ToolInvoked: true, ToolName: toolName}
		}
	}

	// Phase-2 failure degrades to the per-tool template so the caller still
	// hears the tool's outcome.
	o.log.Warn().Err(err).Str("tool", toolName).Msg("Phase-2 model call failed, using fallback template")
	reply := FallbackReply(toolName, toolResult)
	o.appendAssistant(ctx, reply)
	return Result{Success: false, Reply: reply, ToolInvoked: true, ToolName: toolName}
}

func (o *Orchestrator) appendAssistant(ctx context.Context, reply string) {
	if err := o.store.AppendTurn(ctx, o.callSID, session.Turn{
		Role:    session.RoleAssistant,
		Content: reply,
	}); err != nil {
		o.log.Error().Err(err).Msg("Failed to persist assistant turn")
	}
}

// captureBooking records a confirmed appointment on the session so teardown
// can send the confirmation SMS.
func (o *Orchestrator) captureBooking(ctx context.Context, toolName string, result tools.Result) {
	if tools.Kind(toolName) != tools.KindBookAppointmentInHourRange {
		return
	}
	if ok, _ := result["success"].(bool); !ok {
		return
	}

	sess, err := o.store.Get(ctx, o.callSID)
	if err != nil {
		o.log.Error().Err(err).Msg("Failed to load session for booking capture")
		return
	}

	if v, ok := result["confirmation_number"].(string); ok {
		sess.Booking.AppointmentID = v
	}
	if v, ok := result["patient_name"].(string); ok {
		sess.Booking.PatientName = v
	}
	if v, ok := result["doctor_id"].(string); ok {
		sess.Booking.DoctorID = v
	}
	if v, ok := result["date"].(string); ok {
		sess.Booking.Date = v
	}
	if v, ok := result["time"].(string); ok {
		sess.Booking.Time = v
	}
	sess.CurrentStep = "confirmed"

	if err := o.store.Save(ctx, sess); err != nil {
		o.log.Error().Err(err).Msg("Failed to save booking capture")
	}
}

// loadMessages rebuilds the wire-format message list from the persisted
// history, prefixed with the system instruction.
func (o *Orchestrator) loadMessages(ctx context.Context) ([]openai.ChatCompletionMessage, error) {
	sess, err := o.store.Get(ctx, o.callSID)
	if err != nil {
		return nil, err
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(sess.History)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPrompt(o.clinicName),
	})

	for _, turn := range sess.History {
		msg := openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		}
		if len(turn.ToolCalls) > 0 {
			msg.ToolCalls = make([]openai.ToolCall, 0, len(turn.ToolCalls))
			for _, tc := range turn.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		}
		if turn.ToolCallID != "" {
			msg.ToolCallID = turn.ToolCallID
			msg.Name = turn.Name
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

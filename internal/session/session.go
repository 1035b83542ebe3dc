// Package session holds the per-call conversation state and its Redis-backed
// store. A CallSession is owned by exactly one call loop but survives in
// Redis so status webhooks and other processes can inspect or finalize it.
package session

import "time"

// Call lifecycle statuses.
const (
	StatusInitiated  = "initiated"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Turn roles, matching the chat-completion wire roles so history can be
// replayed to the model verbatim.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall records an assistant-requested tool invocation. ID correlates the
// request with its result turn.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Turn is one entry in the conversation history: a user utterance, an
// assistant reply, an assistant tool request (ToolCalls set), or a tool
// result (ToolCallID set).
type Turn struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// BookingState holds the fields captured so far toward an appointment.
// AppointmentID stays empty until a booking tool confirms.
type BookingState struct {
	PatientName   string `json:"patient_name,omitempty"`
	PatientPhone  string `json:"patient_phone,omitempty"`
	DoctorID      string `json:"doctor_id,omitempty"`
	Date          string `json:"date,omitempty"`
	Time          string `json:"time,omitempty"`
	Reason        string `json:"reason,omitempty"`
	AppointmentID string `json:"appointment_id,omitempty"`
}

// CallSession is the full per-call state mirrored into Redis. History is
// append-only for the life of the call.
type CallSession struct {
	CallSID     string       `json:"call_sid"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Status      string       `json:"status"`
	CurrentStep string       `json:"current_step"`
	History     []Turn       `json:"history"`
	Booking     BookingState `json:"booking"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewCallSession creates a session in the initiated state.
func NewCallSession(callSID, from, to string) *CallSession {
	now := time.Now().UTC()
	return &CallSession{
		CallSID:     callSID,
		From:        from,
		To:          to,
		Status:      StatusInitiated,
		CurrentStep: "greeting",
		History:     []Turn{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AppendTurn appends to the history and bumps UpdatedAt. Turns are never
// reordered or removed.
func (s *CallSession) AppendTurn(turn Turn) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	s.History = append(s.History, turn)
	s.UpdatedAt = time.Now().UTC()
}

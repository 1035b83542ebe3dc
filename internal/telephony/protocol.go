// Package telephony speaks the Twilio Media Streams protocol: JSON events
// over a persistent WebSocket carrying 8 kHz mu-law audio both ways. It owns
// the per-call controller, the outbound frame pacer, and the HTTP webhooks
// that set calls up and report their status.
package telephony

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// InboundMessage is one protocol event from the telephony edge.
type InboundMessage struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid,omitempty"`
	Start     *StartPayload `json:"start,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
	Mark      *MarkPayload  `json:"mark,omitempty"`
	Stop      *StopPayload  `json:"stop,omitempty"`
}

// StartPayload carries the call identity when the stream attaches.
type StartPayload struct {
	AccountSid       string            `json:"accountSid"`
	CallSid          string            `json:"callSid"`
	StreamSid        string            `json:"streamSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// MediaPayload carries one base64-encoded PCMU chunk.
type MediaPayload struct {
	Track     string `json:"track"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"`
}

// MarkPayload acknowledges playback of a previously sent mark.
type MarkPayload struct {
	Name string `json:"name"`
}

// StopPayload ends the stream.
type StopPayload struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

// Outbound message shapes. Twilio requires the streamSid on every one.

type outboundMedia struct {
	Event     string             `json:"event"`
	StreamSid string             `json:"streamSid"`
	Media     outboundMediaInner `json:"media"`
}

type outboundMediaInner struct {
	Payload string `json:"payload"`
}

type outboundMark struct {
	Event     string            `json:"event"`
	StreamSid string            `json:"streamSid"`
	Mark      outboundMarkInner `json:"mark"`
}

type outboundMarkInner struct {
	Name string `json:"name"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}

// PolicyViolationCode is sent when no call id can be established.
const PolicyViolationCode = websocket.ClosePolicyViolation

// Transport abstracts the media connection so the controller and pacer can
// be tested without a real WebSocket.
type Transport interface {
	// ReadMessage blocks for the next raw protocol message.
	ReadMessage() ([]byte, error)

	// WriteJSON sends one outbound protocol message.
	WriteJSON(v any) error

	// CloseWithPolicyViolation closes the connection with a policy error
	// close code.
	CloseWithPolicyViolation(reason string) error

	// Close closes the connection.
	Close() error

	// IsAlive reports whether the connection is still usable.
	IsAlive() bool
}

// wsTransport adapts a gorilla WebSocket connection. Writes are serialized;
// any read or write error marks the transport dead.
type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu    sync.RWMutex
	alive bool
}

// NewWSTransport wraps an upgraded WebSocket connection.
func NewWSTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn, alive: true}
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, message, err := t.conn.ReadMessage()
	if err != nil {
		t.markDead()
		return nil, err
	}
	return message, nil
}

func (t *wsTransport) WriteJSON(v any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteJSON(v); err != nil {
		t.markDead()
		return err
	}
	return nil
}

func (t *wsTransport) CloseWithPolicyViolation(reason string) error {
	t.writeMu.Lock()
	msg := websocket.FormatCloseMessage(PolicyViolationCode, reason)
	_ = t.conn.WriteMessage(websocket.CloseMessage, msg)
	t.writeMu.Unlock()
	return t.Close()
}

func (t *wsTransport) Close() error {
	t.markDead()
	return t.conn.Close()
}

func (t *wsTransport) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

func (t *wsTransport) markDead() {
	t.mu.Lock()
	t.alive = false
	t.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Twilio does not send a browser origin.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

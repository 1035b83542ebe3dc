package telephony

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/medidesk/voice-agent/internal/config"
	"github.com/medidesk/voice-agent/internal/observability"
	"github.com/medidesk/voice-agent/internal/session"
)

// TwiML response shapes for the call setup webhook.

type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Say     string        `xml:"Say,omitempty"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
	Hangup  *struct{}     `xml:"Hangup,omitempty"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

const disabledMessage = "We're sorry, our voice assistant is currently unavailable. Please call back later."

// Handler serves the HTTP surface of the telephony edge: the call setup
// webhook, the call status webhook, the media stream WebSocket, and the
// active-session listing.
type Handler struct {
	cfg        *config.Config
	controller *Controller
	store      *session.Store
}

// NewHandler creates the telephony HTTP handler.
func NewHandler(cfg *config.Config, controller *Controller, store *session.Store) *Handler {
	return &Handler{cfg: cfg, controller: controller, store: store}
}

// Register mounts all telephony routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/voice/incoming", h.HandleIncomingCall)
	mux.HandleFunc("/voice/status", h.HandleCallStatus)
	mux.HandleFunc("/voice/stream", h.HandleMediaStream)
	mux.HandleFunc("/voice/sessions/active", h.HandleActiveSessions)
}

// HandleIncomingCall answers the provider's call setup webhook with TwiML
// that attaches the media stream, or an apology when the agent is disabled.
func (h *Handler) HandleIncomingCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	callSID := r.PostFormValue("CallSid")
	from := r.PostFormValue("From")
	to := r.PostFormValue("To")

	log := observability.GetLogger()

	if !h.cfg.VoiceAgentEnabled {
		log.Info().Str("call_sid", callSID).Msg("Voice agent disabled, rejecting call")
		writeTwiML(w, twimlResponse{
			Say:    disabledMessage,
			Hangup: &struct{}{},
		})
		return
	}

	streamURL := h.streamURL(r, callSID)
	log.Info().
		Str("call_sid", callSID).
		Str("from", from).
		Str("stream_url", streamURL).
		Msg("Incoming call, attaching media stream")

	writeTwiML(w, twimlResponse{
		Connect: &twimlConnect{
			Stream: twimlStream{
				URL: streamURL,
				Parameters: []twimlParameter{
					{Name: "from", Value: from},
					{Name: "to", Value: to},
				},
			},
		},
	})
}

// streamURL builds the wss endpoint the provider should attach to, carrying
// the call id so the stream handshake does not depend on the start event
// alone.
func (h *Handler) streamURL(r *http.Request, callSID string) string {
	host := r.Host
	if h.cfg.PublicBaseURL != "" {
		if u, err := url.Parse(h.cfg.PublicBaseURL); err == nil && u.Host != "" {
			host = u.Host
		} else {
			host = strings.TrimPrefix(strings.TrimPrefix(h.cfg.PublicBaseURL, "https://"), "http://")
		}
	}
	return fmt.Sprintf("wss://%s/voice/stream?call_sid=%s", host, url.QueryEscape(callSID))
}

func writeTwiML(w http.ResponseWriter, resp twimlResponse) {
	body, err := xml.Marshal(resp)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}

// terminalStatuses maps provider call statuses to the session status a forced
// finalization should record. Non-terminal statuses are ignored.
var terminalStatuses = map[string]string{
	"completed": session.StatusCompleted,
	"failed":    session.StatusFailed,
	"busy":      session.StatusFailed,
	"no-answer": session.StatusFailed,
	"canceled":  session.StatusFailed,
}

// HandleCallStatus receives provider status callbacks and force-finalizes
// sessions whose live loop never tore down.
func (h *Handler) HandleCallStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	callSID := r.PostFormValue("CallSid")
	callStatus := r.PostFormValue("CallStatus")
	log := observability.GetLogger()

	sessionStatus, terminal := terminalStatuses[callStatus]
	if !terminal || callSID == "" {
		log.Debug().
			Str("call_sid", callSID).
			Str("call_status", callStatus).
			Msg("Ignoring non-terminal status callback")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	log.Info().
		Str("call_sid", callSID).
		Str("call_status", callStatus).
		Msg("Terminal status callback")

	if err := h.controller.FinalizeCall(r.Context(), callSID, sessionStatus); err != nil {
		log.Error().Err(err).Str("call_sid", callSID).Msg("Forced finalization failed")
		http.Error(w, "finalization failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMediaStream upgrades to a WebSocket and hands the connection to the
// call controller for its whole lifetime.
func (h *Handler) HandleMediaStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log := observability.GetLogger()
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	callSIDHint := r.URL.Query().Get("call_sid")
	h.controller.Start(r.Context(), NewWSTransport(conn), callSIDHint)
}

// HandleActiveSessions lists the call SIDs with live sessions in the store.
func (h *Handler) HandleActiveSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sids, err := h.store.ActiveSessions(r.Context())
	if err != nil {
		log := observability.GetLogger()
		log.Error().Err(err).Msg("Failed to list active sessions")
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	if sids == nil {
		sids = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"active_sessions": sids,
		"count":           len(sids),
	})
}

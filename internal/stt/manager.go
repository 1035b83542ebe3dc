package stt

import (
	"time"

	"github.com/medidesk/voice-agent/internal/config"
	"github.com/medidesk/voice-agent/internal/observability"
	"github.com/medidesk/voice-agent/internal/registry"
	"github.com/medidesk/voice-agent/internal/resilience"
)

// ConnectionFactory builds a recognizer connection for one call. Tests swap
// in fakes here.
type ConnectionFactory func(callSID string) Connection

// Manager owns exactly one recognizer connection per active call.
type Manager struct {
	connections *registry.Registry[Connection]
	factory     ConnectionFactory
}

// NewManager creates a manager producing Deepgram connections, each with its
// own circuit breaker.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		connections: registry.New[Connection]("stt"),
		factory: func(callSID string) Connection {
			breaker := resilience.NewCircuitBreaker(
				"deepgram",
				cfg.CircuitBreakerMaxFailures,
				time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
			)
			return NewDeepgramConnection(cfg, callSID, breaker)
		},
	}
}

// NewManagerWithFactory creates a manager with a custom connection factory.
func NewManagerWithFactory(factory ConnectionFactory) *Manager {
	return &Manager{
		connections: registry.New[Connection]("stt"),
		factory:     factory,
	}
}

// Create builds, registers and connects the recognizer for callSID. A failed
// connect still registers the connection so later media can be dropped
// cleanly and reconnection can proceed in the background. Creating over an
// existing entry finishes the old connection first.
func (m *Manager) Create(callSID string) Connection {
	log := observability.GetLogger()
	if old, ok := m.connections.Get(callSID); ok {
		log.Warn().
			Str("call_sid", callSID).
			Msg("Replacing existing recognizer connection")
		old.Finish()
	}

	conn := m.factory(callSID)
	m.connections.Put(callSID, conn)

	if !conn.Connect() {
		log.Error().
			Str("call_sid", callSID).
			Msg("Recognizer connect failed, call continues without speech recognition")
	}
	return conn
}

// Get returns the connection for callSID, if any.
func (m *Manager) Get(callSID string) (Connection, bool) {
	return m.connections.Get(callSID)
}

// Remove finishes and deregisters the connection for callSID. Absent entries
// are a logged no-op.
func (m *Manager) Remove(callSID string) {
	conn, ok := m.connections.Get(callSID)
	if !ok {
		log := observability.GetLogger()
		log.Debug().
			Str("call_sid", callSID).
			Msg("No recognizer connection to remove")
		return
	}
	conn.Finish()
	m.connections.Remove(callSID)
}

// ActiveCount returns the number of live connections.
func (m *Manager) ActiveCount() int {
	return m.connections.Len()
}

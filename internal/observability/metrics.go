package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Call metrics
	activeCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_agent_active_calls",
		Help: "Number of active phone calls",
	})

	totalCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_calls_total",
		Help: "Total number of calls processed",
	})

	callDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_agent_call_duration_seconds",
		Help:    "Duration of phone calls in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Conversation turn metrics
	turns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_turns_total",
		Help: "Total conversation turns processed",
	}, []string{"status"})

	turnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_agent_turn_latency_seconds",
		Help:    "Latency of one full conversation turn (transcript to reply)",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 20.0},
	})

	// Tool execution metrics
	toolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_tool_executions_total",
		Help: "Total tool executions requested by the language model",
	}, []string{"tool", "status"})

	// Synthesis metrics
	ttsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_tts_requests_total",
		Help: "Total number of speech synthesis requests",
	}, []string{"provider", "status"})

	// Pacer metrics
	framesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_frames_sent_total",
		Help: "Total outbound audio frames written to the media stream",
	})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_agent_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})
)

// CallMetrics tracks metrics for a single call
type CallMetrics struct {
	callSID       string
	startTime     time.Time
	turnStartTime time.Time
	mu            sync.Mutex
}

// NewCallMetrics creates a new metrics tracker for a call
func NewCallMetrics(callSID string) *CallMetrics {
	return &CallMetrics{
		callSID:   callSID,
		startTime: time.Now(),
	}
}

// RecordCallStart records the start of a call
func (m *CallMetrics) RecordCallStart() {
	activeCalls.Inc()
	totalCalls.Inc()
}

// RecordCallEnd records the end of a call
func (m *CallMetrics) RecordCallEnd() {
	activeCalls.Dec()
	callDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordTurnStart records the start of a conversation turn
func (m *CallMetrics) RecordTurnStart() {
	m.mu.Lock()
	m.turnStartTime = time.Now()
	m.mu.Unlock()
}

// RecordTurnEnd records the end of a conversation turn
func (m *CallMetrics) RecordTurnEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.turnStartTime.IsZero() {
		turnLatency.Observe(time.Since(m.turnStartTime).Seconds())
	}

	status := "success"
	if !success {
		status = "degraded"
	}
	turns.WithLabelValues(status).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *CallMetrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordError records an error
func (m *CallMetrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordToolExecution records one tool execution outcome
func RecordToolExecution(tool string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	toolExecutions.WithLabelValues(tool, status).Inc()
}

// RecordTTSRequest records a synthesis request per provider
func RecordTTSRequest(provider string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	ttsRequests.WithLabelValues(provider, status).Inc()
}

// RecordFramesSent records outbound frames written by the pacer
func RecordFramesSent(n int) {
	framesSent.Add(float64(n))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

package stt

import (
	"strings"
	"sync"
)

// UtteranceAssembler turns the recognizer's incremental transcript events
// into whole utterances. Final fragments accumulate in a pending buffer; an
// utterance is emitted either when a fragment arrives marked speech_final or
// when the recognizer signals end-of-utterance after silence. The two
// boundaries can arrive back to back for the same utterance, so speech_final
// records a fired flag that suppresses the following end-of-utterance signal.
type UtteranceAssembler struct {
	mu     sync.Mutex
	buffer []string
	fired  bool
}

// NewUtteranceAssembler returns an empty assembler.
func NewUtteranceAssembler() *UtteranceAssembler {
	return &UtteranceAssembler{}
}

// OnTranscript feeds one transcript fragment. Interim fragments are ignored.
// Returns the finalized utterance and true when a boundary fires.
func (a *UtteranceAssembler) OnTranscript(text string, isFinal, speechFinal bool) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !isFinal {
		return "", false
	}

	// A new final fragment means a new utterance is in progress, so any
	// earlier boundary no longer applies.
	a.fired = false

	if text = strings.TrimSpace(text); text != "" {
		a.buffer = append(a.buffer, text)
	}

	if !speechFinal {
		return "", false
	}

	utterance := strings.Join(a.buffer, " ")
	a.buffer = a.buffer[:0]
	if utterance == "" {
		return "", false
	}
	a.fired = true
	return utterance, true
}

// OnUtteranceEnd feeds the recognizer's silence-detected signal. It fires
// only when speech_final has not already emitted this utterance and there is
// buffered text.
func (a *UtteranceAssembler) OnUtteranceEnd() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fired {
		a.fired = false
		return "", false
	}
	if len(a.buffer) == 0 {
		return "", false
	}

	utterance := strings.Join(a.buffer, " ")
	a.buffer = a.buffer[:0]
	a.fired = false
	return utterance, true
}

// Flush returns whatever is buffered without waiting for a boundary, for use
// at teardown so trailing speech is not lost.
func (a *UtteranceAssembler) Flush() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.buffer) == 0 {
		return "", false
	}
	utterance := strings.Join(a.buffer, " ")
	a.buffer = a.buffer[:0]
	a.fired = false
	return utterance, true
}

// Pending reports whether un-emitted text is buffered.
func (a *UtteranceAssembler) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer) > 0
}

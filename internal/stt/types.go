// Package stt streams caller audio to a speech recognizer and assembles its
// incremental transcript events into finalized utterances, delivered on a
// per-call channel.
package stt

// Connection is one streaming recognizer session bound to a single call.
type Connection interface {
	// Connect establishes the upstream streaming session. Returns false
	// when the recognizer is unreachable; the call then degrades to no
	// speech recognition rather than failing.
	Connect() bool

	// Send forwards one chunk of raw PCMU audio.
	Send(chunk []byte) error

	// Finish flushes the upstream session and stops event delivery. The
	// utterance channel is closed once the recognizer drains.
	Finish()

	// IsReady reports whether audio can currently be sent.
	IsReady() bool

	// Utterances delivers finalized utterances in speech order.
	Utterances() <-chan string
}

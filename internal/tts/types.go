// Package tts converts reply text into PCMU audio for the telephone stream.
// A primary streaming provider is used first; on failure the generator
// degrades to a fallback provider rather than leaving the caller in silence.
package tts

import "context"

// AudioChunk is one piece of synthesized audio. Index is the emission order
// within a single synthesis request; chunks must be concatenated in Index
// order before frame-splitting or playback is corrupted.
type AudioChunk struct {
	Data  []byte
	Index int
}

// Synthesizer turns text into a sequence of PCMU audio chunks.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]AudioChunk, error)
	Name() string
}

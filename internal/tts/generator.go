package tts

import (
	"context"
	"fmt"
	"sort"

	"github.com/medidesk/voice-agent/internal/observability"
)

// Generator produces the final PCMU buffer for a reply. The primary
// synthesizer is tried first; any failure falls back to the secondary, so a
// provider outage degrades voice quality instead of muting the agent.
type Generator struct {
	primary  Synthesizer
	fallback Synthesizer
}

// NewGenerator wires the provider chain. fallback may be nil.
func NewGenerator(primary, fallback Synthesizer) *Generator {
	return &Generator{primary: primary, fallback: fallback}
}

// Generate synthesizes text and returns one contiguous PCMU buffer, with the
// provider that produced it.
func (g *Generator) Generate(ctx context.Context, text string) ([]byte, string, error) {
	chunks, err := g.primary.Synthesize(ctx, text)
	if err == nil {
		return assemble(chunks), g.primary.Name(), nil
	}

	log := observability.GetLogger()
	log.Warn().
		Err(err).
		Str("provider", g.primary.Name()).
		Msg("Primary synthesis failed, trying fallback")

	if g.fallback == nil {
		return nil, "", fmt.Errorf("synthesis failed: %w", err)
	}

	chunks, fbErr := g.fallback.Synthesize(ctx, text)
	if fbErr != nil {
		return nil, "", fmt.Errorf("synthesis failed on all providers: primary: %v, fallback: %w", err, fbErr)
	}
	return assemble(chunks), g.fallback.Name(), nil
}

// assemble concatenates chunks in emission order. Out-of-order concatenation
// corrupts playback, so Index wins over slice position.
func assemble(chunks []AudioChunk) []byte {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Index < chunks[j].Index
	})

	total := 0
	for _, c := range chunks {
		total += len(c.Data)
	}

	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c.Data...)
	}
	return out
}

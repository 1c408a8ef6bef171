package repositories

import "context"

// ChunkFunc receives one unit of streamed synthesized audio. The final chunk
// of a stream is delivered with isFinal=true so a receiver can finalize
// playback without separate completion signaling.
type ChunkFunc func(chunk []byte, isFinal bool, format string)

// SynthesisResult summarizes one completed synthesis stream.
type SynthesisResult struct {
	AudioBytes int
	Chunks     int
	Format     string
}

// SpeechSynthesizer abstracts a remote text-to-speech provider. One
// Synthesize call covers exactly one text input; chunks are delivered through
// onChunk as they arrive, in provider order.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, onChunk ChunkFunc) (*SynthesisResult, error)
}

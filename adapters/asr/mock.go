package asr

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/lisan/server/domain/repositories"
)

// MockRecognizer is a placeholder recognizer for tests and keyless
// development runs. It fabricates a transcript sized to the utterance.
type MockRecognizer struct {
	logger *zap.Logger
}

var _ repositories.SpeechRecognizer = (*MockRecognizer)(nil)

// NewMockRecognizer creates a new mock recognizer.
func NewMockRecognizer(logger *zap.Logger) *MockRecognizer {
	return &MockRecognizer{logger: logger}
}

// Transcribe implements repositories.SpeechRecognizer.
func (m *MockRecognizer) Transcribe(ctx context.Context, samples []float32, sampleRate int, languageHint string) (*repositories.Transcript, error) {
	m.logger.Info("mock transcription",
		zap.Int("samples", len(samples)),
		zap.Int("sampleRate", sampleRate))

	if len(samples) == 0 {
		return nil, nil
	}

	language := languageHint
	if language == "" || language == "auto" {
		language = "en-US"
	}

	seconds := float64(len(samples)) / float64(sampleRate)
	return &repositories.Transcript{
		Text:       fmt.Sprintf("mock transcript of a %.1fs utterance", seconds),
		Language:   language,
		Confidence: 0.9,
	}, nil
}

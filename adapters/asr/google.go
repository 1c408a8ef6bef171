// Package asr contains speech-recognition adapters behind the opaque
// recognizer interface.
package asr

import (
	"context"
	"encoding/binary"
	"fmt"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/satriahrh/lisan/server/domain/repositories"
)

const defaultLanguage = "en-US"

// GoogleRecognizer implements SpeechRecognizer using Google Cloud Speech.
type GoogleRecognizer struct {
	client *speech.Client
	logger *zap.Logger
}

var _ repositories.SpeechRecognizer = (*GoogleRecognizer)(nil)

// NewGoogleRecognizer creates a recognizer with a long-lived client.
// Credentials come from the ambient Google Cloud environment.
func NewGoogleRecognizer(ctx context.Context, logger *zap.Logger) (*GoogleRecognizer, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleRecognizer{client: client, logger: logger}, nil
}

// Transcribe runs synchronous recognition over one utterance.
func (g *GoogleRecognizer) Transcribe(ctx context.Context, samples []float32, sampleRate int, languageHint string) (*repositories.Transcript, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	language := languageHint
	if language == "" || language == "auto" {
		language = defaultLanguage
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(sampleRate),
			LanguageCode:    language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: encodePCM(samples)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("recognition failed: %w", err)
	}

	if len(resp.Results) == 0 || len(resp.Results[0].Alternatives) == 0 {
		g.logger.Debug("no speech recognized in utterance",
			zap.Int("samples", len(samples)))
		return nil, nil
	}

	best := resp.Results[0].Alternatives[0]
	transcript := &repositories.Transcript{
		Text:       best.Transcript,
		Language:   language,
		Confidence: float64(best.Confidence),
	}
	if resp.Results[0].LanguageCode != "" {
		transcript.Language = resp.Results[0].LanguageCode
	}
	return transcript, nil
}

// Close releases the underlying client.
func (g *GoogleRecognizer) Close() error {
	return g.client.Close()
}

// encodePCM converts float-normalized samples back to 16-bit little-endian
// PCM for the wire.
func encodePCM(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*32767)))
	}
	return out
}

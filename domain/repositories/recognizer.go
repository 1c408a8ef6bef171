package repositories

import "context"

// Transcript is the result of recognizing one utterance.
type Transcript struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// SpeechRecognizer abstracts the ASR engine: float-normalized samples in,
// transcript out. A nil transcript with a nil error means no speech was
// recognized in the utterance.
type SpeechRecognizer interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, languageHint string) (*Transcript, error)
}

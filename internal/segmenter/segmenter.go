package segmenter

import (
	"encoding/binary"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/lisan/server/domain/entities"
)

const (
	// DefaultSampleRate is the PCM sample rate the segmenter expects.
	DefaultSampleRate = 16000

	// DefaultFrameDuration is the fixed classification window.
	DefaultFrameDuration = 30 * time.Millisecond

	// DefaultSilenceThreshold is how much consecutive silence closes an
	// utterance.
	DefaultSilenceThreshold = 500 * time.Millisecond

	// DefaultMinSpeechDuration filters out short noise bursts.
	DefaultMinSpeechDuration = 800 * time.Millisecond

	// trailingSilenceFrames is how many silence frames are kept at the end of
	// an utterance for context.
	trailingSilenceFrames = 3
)

// Config tunes a Segmenter. Zero values fall back to the defaults above.
type Config struct {
	SampleRate        int
	FrameDuration     time.Duration
	SilenceThreshold  time.Duration
	MinSpeechDuration time.Duration
	Classifier        Classifier
}

// Stats is a snapshot of segmenter state for status reporting.
type Stats struct {
	SampleRate      int  `json:"sample_rate"`
	FrameDurationMs int  `json:"frame_duration_ms"`
	BufferedBytes   int  `json:"buffer_size"`
	SpeechFrames    int  `json:"speech_frames"`
	IsSpeaking      bool `json:"is_speaking"`
}

// Segmenter turns a raw 16-bit PCM stream into discrete utterances. It
// classifies fixed-duration frames as speech or silence and closes an
// utterance once enough consecutive silence follows speech. Not safe for
// concurrent use; each client session owns exactly one instance.
type Segmenter struct {
	sampleRate      int
	frameBytes      int
	frameDuration   time.Duration
	silenceFrameMax int
	minSpeechFrames int
	classifier      Classifier
	logger          *zap.Logger

	pending       []byte
	speechFrames  [][]byte
	silenceStreak int
	speechActive  bool
}

// New creates a segmenter. The classifier defaults to the strictest energy
// classifier to minimize false positives.
func New(cfg Config, logger *zap.Logger) *Segmenter {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.FrameDuration == 0 {
		cfg.FrameDuration = DefaultFrameDuration
	}
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = DefaultSilenceThreshold
	}
	if cfg.MinSpeechDuration == 0 {
		cfg.MinSpeechDuration = DefaultMinSpeechDuration
	}
	if cfg.Classifier == nil {
		cfg.Classifier, _ = NewEnergyClassifier(3)
	}

	frameSamples := int(cfg.SampleRate) * int(cfg.FrameDuration/time.Millisecond) / 1000

	return &Segmenter{
		sampleRate:      cfg.SampleRate,
		frameBytes:      frameSamples * 2,
		frameDuration:   cfg.FrameDuration,
		silenceFrameMax: int(cfg.SilenceThreshold / cfg.FrameDuration),
		minSpeechFrames: int(cfg.MinSpeechDuration / cfg.FrameDuration),
		classifier:      cfg.Classifier,
		logger:          logger,
	}
}

// AddAudio buffers raw PCM bytes, classifies every complete frame, and
// returns the utterances completed by this call. Partial trailing frames stay
// buffered for the next call.
func (s *Segmenter) AddAudio(data []byte) []*entities.Utterance {
	s.pending = append(s.pending, data...)

	var completed []*entities.Utterance
	for len(s.pending) >= s.frameBytes {
		frame := make([]byte, s.frameBytes)
		copy(frame, s.pending[:s.frameBytes])
		s.pending = s.pending[s.frameBytes:]

		if u := s.processFrame(frame); u != nil {
			completed = append(completed, u)
		}
	}
	return completed
}

// processFrame classifies one frame and advances the utterance state machine.
func (s *Segmenter) processFrame(frame []byte) *entities.Utterance {
	isSpeech, err := s.classifier.IsSpeech(frame, s.sampleRate)
	if err != nil {
		// Fail open: a misbehaving classifier must not stall the stream.
		s.logger.Warn("frame classification failed, treating as silence", zap.Error(err))
		isSpeech = false
	}

	if isSpeech {
		s.speechFrames = append(s.speechFrames, frame)
		s.silenceStreak = 0
		if !s.speechActive {
			s.speechActive = true
			s.logger.Debug("speech started")
		}
		return nil
	}

	if !s.speechActive {
		return nil
	}

	s.silenceStreak++
	if s.silenceStreak <= trailingSilenceFrames {
		s.speechFrames = append(s.speechFrames, frame)
	}

	if s.silenceStreak < s.silenceFrameMax {
		return nil
	}

	if len(s.speechFrames) >= s.minSpeechFrames {
		u := s.finalize()
		s.resetState()
		return u
	}

	s.logger.Debug("discarding short segment",
		zap.Int("frames", len(s.speechFrames)),
		zap.Int("minFrames", s.minSpeechFrames))
	s.resetState()
	return nil
}

// ForceFlush applies the finalize-or-discard decision immediately, regardless
// of the silence counter. Used when recording stops.
func (s *Segmenter) ForceFlush() *entities.Utterance {
	defer s.resetState()
	if len(s.speechFrames) >= s.minSpeechFrames {
		return s.finalize()
	}
	if len(s.speechFrames) > 0 {
		s.logger.Debug("force flush discarded short segment",
			zap.Int("frames", len(s.speechFrames)),
			zap.Int("minFrames", s.minSpeechFrames))
	}
	return nil
}

// Reset drops all in-flight state including partially buffered frames.
func (s *Segmenter) Reset() {
	s.pending = nil
	s.resetState()
}

// Stats returns a snapshot for status reporting.
func (s *Segmenter) Stats() Stats {
	return Stats{
		SampleRate:      s.sampleRate,
		FrameDurationMs: int(s.frameDuration / time.Millisecond),
		BufferedBytes:   len(s.pending),
		SpeechFrames:    len(s.speechFrames),
		IsSpeaking:      s.speechActive,
	}
}

// finalize converts the buffered frames into a float-normalized utterance.
func (s *Segmenter) finalize() *entities.Utterance {
	frames := len(s.speechFrames)
	samples := make([]float32, 0, frames*s.frameBytes/2)
	for _, frame := range s.speechFrames {
		for i := 0; i < len(frame); i += 2 {
			v := int16(binary.LittleEndian.Uint16(frame[i:]))
			samples = append(samples, float32(v)/32768.0)
		}
	}

	u := &entities.Utterance{
		Samples:    samples,
		SampleRate: s.sampleRate,
		FrameCount: frames,
	}
	s.logger.Info("finalized utterance",
		zap.Int("frames", frames),
		zap.Duration("duration", u.Duration()))
	return u
}

func (s *Segmenter) resetState() {
	s.speechFrames = nil
	s.silenceStreak = 0
	s.speechActive = false
}

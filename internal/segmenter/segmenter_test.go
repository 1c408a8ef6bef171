package segmenter

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

const testFrameBytes = 960 // 30ms at 16kHz, 16-bit mono

// testConfig yields min-speech-frames=4 and silence-threshold-frames=15.
func testConfig() Config {
	return Config{
		SampleRate:        16000,
		FrameDuration:     30 * time.Millisecond,
		SilenceThreshold:  450 * time.Millisecond,
		MinSpeechDuration: 120 * time.Millisecond,
	}
}

func makeFrame(amplitude int16) []byte {
	frame := make([]byte, testFrameBytes)
	for i := 0; i < len(frame); i += 2 {
		binary.LittleEndian.PutUint16(frame[i:], uint16(amplitude))
	}
	return frame
}

func speechFrame() []byte  { return makeFrame(10000) }
func silenceFrame() []byte { return makeFrame(0) }

func TestSegmenterSilenceOnlyProducesNothing(t *testing.T) {
	s := New(testConfig(), zap.NewNop())

	for i := 0; i < 20; i++ {
		if got := s.AddAudio(silenceFrame()); len(got) != 0 {
			t.Fatalf("silence frame %d produced %d utterances, want 0", i, len(got))
		}
	}

	if u := s.ForceFlush(); u != nil {
		t.Errorf("ForceFlush after silence returned an utterance with %d frames", u.FrameCount)
	}
}

func TestSegmenterSpeechThenSilenceEmitsOneUtterance(t *testing.T) {
	s := New(testConfig(), zap.NewNop())

	for i := 0; i < 5; i++ {
		if got := s.AddAudio(speechFrame()); len(got) != 0 {
			t.Fatalf("speech frame %d produced an utterance prematurely", i)
		}
	}

	var emittedAt int
	var total int
	for i := 0; i < 20; i++ {
		got := s.AddAudio(silenceFrame())
		total += len(got)
		if len(got) == 1 && emittedAt == 0 {
			emittedAt = i + 1

			u := got[0]
			// 5 speech frames plus up to 3 trailing silence frames.
			if u.FrameCount < 5 || u.FrameCount > 8 {
				t.Errorf("utterance frame count = %d, want between 5 and 8", u.FrameCount)
			}
			if len(u.Samples) != u.FrameCount*testFrameBytes/2 {
				t.Errorf("sample count = %d, want %d", len(u.Samples), u.FrameCount*testFrameBytes/2)
			}
			if u.SampleRate != 16000 {
				t.Errorf("sample rate = %d, want 16000", u.SampleRate)
			}
			if got := u.Samples[0]; got != float32(10000)/32768.0 {
				t.Errorf("first sample = %f, want %f", got, float32(10000)/32768.0)
			}
		}
	}

	if total != 1 {
		t.Fatalf("got %d utterances, want exactly 1", total)
	}
	if emittedAt != 15 {
		t.Errorf("utterance emitted at silence frame %d, want 15", emittedAt)
	}
}

func TestSegmenterShortBurstDiscardedAsNoise(t *testing.T) {
	s := New(testConfig(), zap.NewNop())

	for i := 0; i < 2; i++ {
		s.AddAudio(speechFrame())
	}
	for i := 0; i < 20; i++ {
		if got := s.AddAudio(silenceFrame()); len(got) != 0 {
			t.Fatalf("sub-threshold burst emitted an utterance")
		}
	}

	if st := s.Stats(); st.SpeechFrames != 0 || st.IsSpeaking {
		t.Errorf("state not reset after discard: %+v", st)
	}
}

func TestSegmenterForceFlush(t *testing.T) {
	t.Run("above threshold", func(t *testing.T) {
		s := New(testConfig(), zap.NewNop())
		for i := 0; i < 5; i++ {
			s.AddAudio(speechFrame())
		}

		u := s.ForceFlush()
		if u == nil {
			t.Fatal("ForceFlush returned nil for a valid segment")
		}
		if u.FrameCount != 5 {
			t.Errorf("FrameCount = %d, want 5", u.FrameCount)
		}

		if again := s.ForceFlush(); again != nil {
			t.Error("second ForceFlush should return nil")
		}
	})

	t.Run("below threshold", func(t *testing.T) {
		s := New(testConfig(), zap.NewNop())
		for i := 0; i < 3; i++ {
			s.AddAudio(speechFrame())
		}

		if u := s.ForceFlush(); u != nil {
			t.Errorf("ForceFlush returned a sub-threshold utterance of %d frames", u.FrameCount)
		}
	})
}

type failingClassifier struct{}

func (failingClassifier) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	return false, errors.New("classifier unavailable")
}

func TestSegmenterClassifierFailureTreatedAsSilence(t *testing.T) {
	cfg := testConfig()
	cfg.Classifier = failingClassifier{}
	s := New(cfg, zap.NewNop())

	for i := 0; i < 30; i++ {
		if got := s.AddAudio(speechFrame()); len(got) != 0 {
			t.Fatal("failing classifier should never yield utterances")
		}
	}

	if st := s.Stats(); st.IsSpeaking {
		t.Error("speech must not activate when classification fails")
	}
}

func TestSegmenterBuffersPartialFrames(t *testing.T) {
	s := New(testConfig(), zap.NewNop())

	half := speechFrame()[:testFrameBytes/2]
	s.AddAudio(half)
	if st := s.Stats(); st.BufferedBytes != testFrameBytes/2 {
		t.Errorf("BufferedBytes = %d, want %d", st.BufferedBytes, testFrameBytes/2)
	}

	s.AddAudio(speechFrame()[testFrameBytes/2:])
	st := s.Stats()
	if st.BufferedBytes != 0 {
		t.Errorf("BufferedBytes = %d after completing frame, want 0", st.BufferedBytes)
	}
	if st.SpeechFrames != 1 {
		t.Errorf("SpeechFrames = %d, want 1", st.SpeechFrames)
	}
}

func TestSegmenterEmptyInput(t *testing.T) {
	s := New(testConfig(), zap.NewNop())
	if got := s.AddAudio(nil); len(got) != 0 {
		t.Error("empty input produced utterances")
	}
}

func TestSegmenterReset(t *testing.T) {
	s := New(testConfig(), zap.NewNop())
	s.AddAudio(speechFrame())
	s.AddAudio(speechFrame()[:100])

	s.Reset()

	st := s.Stats()
	if st.BufferedBytes != 0 || st.SpeechFrames != 0 || st.IsSpeaking {
		t.Errorf("Reset left state behind: %+v", st)
	}
}

func TestEnergyClassifier(t *testing.T) {
	c, err := NewEnergyClassifier(3)
	if err != nil {
		t.Fatalf("NewEnergyClassifier(3) error: %v", err)
	}

	if speech, _ := c.IsSpeech(silenceFrame(), 16000); speech {
		t.Error("zero frame classified as speech")
	}
	if speech, _ := c.IsSpeech(speechFrame(), 16000); !speech {
		t.Error("loud frame classified as silence")
	}

	if _, err := c.IsSpeech([]byte{0x01}, 16000); err == nil {
		t.Error("odd-length frame should error")
	}
	if _, err := c.IsSpeech(nil, 16000); err == nil {
		t.Error("empty frame should error")
	}

	if _, err := NewEnergyClassifier(7); err == nil {
		t.Error("invalid mode should error")
	}
}

package segmenter

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Classifier decides whether a single fixed-size audio frame contains speech.
type Classifier interface {
	// IsSpeech classifies one frame of 16-bit little-endian PCM.
	IsSpeech(frame []byte, sampleRate int) (bool, error)
}

// Energy thresholds per aggressiveness mode, expressed as RMS amplitude over
// normalized samples. Higher modes demand louder signal before a frame counts
// as speech.
var energyThresholds = [...]float64{0.010, 0.020, 0.035, 0.050}

// EnergyClassifier is the default voice-activity classifier. It computes the
// RMS energy of each frame and compares it against a per-mode threshold.
type EnergyClassifier struct {
	threshold float64
}

// NewEnergyClassifier creates a classifier with the given aggressiveness mode
// (0 = most permissive, 3 = strictest).
func NewEnergyClassifier(mode int) (*EnergyClassifier, error) {
	if mode < 0 || mode >= len(energyThresholds) {
		return nil, fmt.Errorf("vad mode must be between 0 and %d, got %d", len(energyThresholds)-1, mode)
	}
	return &EnergyClassifier{threshold: energyThresholds[mode]}, nil
}

// IsSpeech reports whether the frame's RMS energy exceeds the mode threshold.
func (c *EnergyClassifier) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	if len(frame) == 0 || len(frame)%2 != 0 {
		return false, fmt.Errorf("frame must be non-empty 16-bit PCM, got %d bytes", len(frame))
	}

	var sum float64
	n := len(frame) / 2
	for i := 0; i < len(frame); i += 2 {
		s := int16(binary.LittleEndian.Uint16(frame[i:]))
		v := float64(s) / 32768.0
		sum += v * v
	}

	rms := math.Sqrt(sum / float64(n))
	return rms >= c.threshold, nil
}

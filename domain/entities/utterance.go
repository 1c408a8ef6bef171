package entities

import "time"

// Utterance is one contiguous speech segment extracted from a raw audio
// stream. Samples are float-normalized to [-1, 1) and immutable once the
// segmenter emits the utterance; ownership passes to whichever stage is
// currently processing it.
type Utterance struct {
	Samples    []float32
	SampleRate int
	FrameCount int
}

// Duration returns the playback length of the utterance.
func (u *Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

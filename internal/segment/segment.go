// Package segment implements the VAD-driven Segmenter (SPEC_FULL.md §4.3):
// it consumes audioio.Frame values from the ring buffer and emits Segment
// values on speech boundaries.
package segment

import (
	"time"
)

// Segment is an utterance carved from the capture stream, padded with
// pre-speech and post-speech audio.
type Segment struct {
	ID          int64
	StartTS     time.Time
	EndTS       time.Time
	PCM         []int16
	DurationSec float64
}

// Config holds the Segmenter's startup parameters, all named directly after
// the options enumerated in SPEC_FULL.md §6/§7.
type Config struct {
	SampleRate             int
	FrameSizeSamples       int
	SilenceThresholdSec    float64
	PreSpeechPadSec        float64
	PostSpeechPadSec       float64
	MinSpeechDurationSec   float64
	VADWindowSec           float64
	VADThreshold           float64
	VADConsecutiveErrLimit int
}

// DefaultConfig returns the parameter defaults named in SPEC_FULL.md §4.3.
func DefaultConfig(sampleRate, frameSizeSamples int) Config {
	return Config{
		SampleRate:             sampleRate,
		FrameSizeSamples:       frameSizeSamples,
		SilenceThresholdSec:    1.5,
		PreSpeechPadSec:        0.5,
		PostSpeechPadSec:       0.5,
		MinSpeechDurationSec:   0.5,
		VADWindowSec:           0.5,
		VADThreshold:           0.5,
		VADConsecutiveErrLimit: 10,
	}
}

func (c Config) frameDuration() time.Duration {
	return time.Duration(c.FrameSizeSamples) * time.Second / time.Duration(c.SampleRate)
}

func (c Config) framesFor(sec float64) int {
	n := int(sec*float64(c.SampleRate)/float64(c.FrameSizeSamples) + 0.5)
	if n < 0 {
		n = 0
	}
	return n
}

// Package vad implements the voice-activity detection seam consumed by the
// Segmenter (SPEC_FULL.md §4.3). The production engine (Silero or similar)
// is out of scope for this repository; Detector is the interface a native
// binding would satisfy, grounded on the Engine interface shape used by the
// retrieved Silero VAD plugin.
package vad

import (
	"errors"
	"math"
)

// ExpectedSampleRate is the sample rate a StubDetector uses when its Config
// leaves SampleRate unset. The Segmenter passes its configured sample rate
// to Detect, which rejects any other rate.
const ExpectedSampleRate = 16000

// ErrWrongSampleRate is returned by Detect when called with audio at a rate
// the detector was not configured for.
var ErrWrongSampleRate = errors.New("vad: unsupported sample rate")

// Result holds the outcome of classifying a single frame.
type Result struct {
	IsSpeech   bool
	Confidence float64
}

// Detector classifies frames of PCM audio as speech or non-speech.
type Detector interface {
	// Detect classifies one frame of samples at sampleRate.
	Detect(samples []int16, sampleRate int) (Result, error)
	// Reset clears any internal state between sessions.
	Reset()
	// Close releases resources held by the detector.
	Close() error
	// SetThreshold updates the speech-probability threshold used to derive
	// IsSpeech from the detector's internal score.
	SetThreshold(threshold float64)
	// SampleRate returns the sample rate this detector expects.
	SampleRate() int
}

// Config configures StubDetector.
type Config struct {
	SampleRate int
	// Threshold is the RMS energy level (as a fraction of int16 full scale,
	// 0..1) above which a frame is classified as speech.
	Threshold float64
}

// StubDetector is an energy-threshold VAD: it classifies a frame as speech
// when its RMS amplitude exceeds Threshold. It has no model dependency and
// exists so the rest of the pipeline (Segmenter, Pool, Hub) can be built,
// tested, and run end-to-end without a real inference engine wired in.
type StubDetector struct {
	sampleRate int
	threshold  float64
}

// NewStubDetector constructs a StubDetector. A zero Threshold defaults to
// 0.02, a level that treats digital silence and very faint room noise as
// non-speech while passing ordinary speech energy.
func NewStubDetector(cfg Config) *StubDetector {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = ExpectedSampleRate
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.02
	}
	return &StubDetector{sampleRate: cfg.SampleRate, threshold: cfg.Threshold}
}

func (d *StubDetector) Detect(samples []int16, sampleRate int) (Result, error) {
	if sampleRate != d.sampleRate {
		return Result{}, ErrWrongSampleRate
	}
	if len(samples) == 0 {
		return Result{}, nil
	}
	var sumSquares float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sumSquares += v * v
	}
	rms := math.Sqrt(sumSquares / float64(len(samples)))
	return Result{IsSpeech: rms >= d.threshold, Confidence: clamp01(rms / (d.threshold * 2))}, nil
}

func (d *StubDetector) Reset() {}

func (d *StubDetector) Close() error { return nil }

func (d *StubDetector) SetThreshold(threshold float64) { d.threshold = threshold }

func (d *StubDetector) SampleRate() int { return d.sampleRate }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

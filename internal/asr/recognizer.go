// Package asr implements the Transcription Pool's model-facing seam
// (SPEC_FULL.md §4.4): a synchronous per-segment Recognizer invoked by pool
// workers. The bounded worker pool and the reorder buffer that preserve
// segment-id emission order live in internal/transcribe.
package asr

import (
	"context"
	"errors"

	"voxstream/internal/segment"
)

// errRecognitionFailed is returned by Recognizer implementations to signal
// a model-side failure the Pool should retry once before skipping the
// segment's id.
var errRecognitionFailed = errors.New("asr: recognition failed")

// ModelProfile specifies the ASR model configuration a Recognizer should
// load before serving Recognize calls.
type ModelProfile string

const (
	ModelCPUBasic    ModelProfile = "cpu-basic"
	ModelCPUAdvanced ModelProfile = "cpu-advanced"
	ModelGPU         ModelProfile = "gpu-accelerated"
)

// HealthStatus reports whether a Recognizer is ready to serve requests.
type HealthStatus struct {
	Healthy     bool   `json:"healthy"`
	Message     string `json:"message,omitempty"`
	ModelLoaded bool   `json:"modelLoaded"`
}

// Result holds the model's output for one segment.
type Result struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Recognizer transcribes one segment's PCM at a time. Unlike a streaming
// transcription API, each call is self-contained: the Pool is responsible
// for fan-out across workers and for restoring segment-id order afterward.
type Recognizer interface {
	// Recognize transcribes a single segment and returns its result.
	Recognize(ctx context.Context, seg segment.Segment) (Result, error)

	// LoadModel loads a specific model profile. Must be called before
	// Recognize.
	LoadModel(profile ModelProfile) error

	// Health returns the current health status of the recognizer.
	Health() HealthStatus
}

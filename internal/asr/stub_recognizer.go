package asr

import (
	"context"
	"strconv"
	"time"

	"voxstream/internal/segment"
)

// StubRecognizerConfig configures the stub recognizer's behavior.
type StubRecognizerConfig struct {
	// ProcessingDelay simulates model inference time per segment.
	ProcessingDelay time.Duration
	// DefaultLanguage is the language reported for every transcript.
	DefaultLanguage string
	// Transcripts maps segment ids to predetermined text. If a segment's id
	// is absent, a deterministic placeholder is generated.
	Transcripts map[int64]string
	// ErrorOnIDs causes Recognize to fail for the listed segment ids,
	// exercising the Pool's retry-once-then-skip path.
	ErrorOnIDs map[int64]bool
}

// DefaultStubRecognizerConfig returns sensible defaults for testing.
func DefaultStubRecognizerConfig() *StubRecognizerConfig {
	return &StubRecognizerConfig{
		ProcessingDelay: 10 * time.Millisecond,
		DefaultLanguage: "en",
	}
}

// StubRecognizer is a deterministic test Recognizer with no model
// dependency.
type StubRecognizer struct {
	config      *StubRecognizerConfig
	modelLoaded bool
}

// NewStubRecognizer creates a StubRecognizer with the given config.
func NewStubRecognizer(config *StubRecognizerConfig) *StubRecognizer {
	if config == nil {
		config = DefaultStubRecognizerConfig()
	}
	return &StubRecognizer{config: config}
}

func (s *StubRecognizer) LoadModel(profile ModelProfile) error {
	s.modelLoaded = true
	return nil
}

func (s *StubRecognizer) Recognize(ctx context.Context, seg segment.Segment) (Result, error) {
	if s.config.ProcessingDelay > 0 {
		select {
		case <-time.After(s.config.ProcessingDelay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	if s.config.ErrorOnIDs[seg.ID] {
		return Result{}, errRecognitionFailed
	}

	text, ok := s.config.Transcripts[seg.ID]
	if !ok {
		text = "segment " + strconv.FormatInt(seg.ID, 10) + " transcribed"
	}

	return Result{
		Text:       text,
		Language:   s.config.DefaultLanguage,
		Confidence: 0.95,
	}, nil
}

func (s *StubRecognizer) Health() HealthStatus {
	return HealthStatus{Healthy: true, Message: "stub recognizer ready", ModelLoaded: s.modelLoaded}
}

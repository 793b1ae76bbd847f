package asr

import (
	"context"
	"testing"
	"time"

	"voxstream/internal/segment"
)

func TestStubRecognizer_ReturnsConfiguredText(t *testing.T) {
	rec := NewStubRecognizer(&StubRecognizerConfig{
		DefaultLanguage: "en",
		Transcripts:     map[int64]string{1: "hello world"},
	})
	if err := rec.LoadModel(ModelCPUBasic); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := rec.Recognize(context.Background(), segment.Segment{ID: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "hello world" || res.Language != "en" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !rec.Health().ModelLoaded {
		t.Fatalf("expected model to be marked loaded")
	}
}

func TestStubRecognizer_GeneratesPlaceholderForUnknownSegment(t *testing.T) {
	rec := NewStubRecognizer(nil)
	res, err := rec.Recognize(context.Background(), segment.Segment{ID: 42})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text == "" {
		t.Fatalf("expected a placeholder transcript")
	}
}

func TestStubRecognizer_ErrorOnIDs(t *testing.T) {
	rec := NewStubRecognizer(&StubRecognizerConfig{ErrorOnIDs: map[int64]bool{5: true}})
	_, err := rec.Recognize(context.Background(), segment.Segment{ID: 5})
	if err == nil {
		t.Fatalf("expected an error for segment 5")
	}
}

func TestStubRecognizer_RespectsContextCancellation(t *testing.T) {
	rec := NewStubRecognizer(&StubRecognizerConfig{ProcessingDelay: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := rec.Recognize(ctx, segment.Segment{ID: 1})
	if err == nil {
		t.Fatalf("expected context cancellation error")
	}
}

package persistence

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"voxstream/internal/segment"
	"voxstream/internal/status"
	"voxstream/internal/transcribe"
)

func TestStore_RunSegmentsThenFinalizeProducesCombinedRecording(t *testing.T) {
	dir := t.TempDir()
	counters := &status.Counters{}
	store, err := New(Config{DataDir: dir, SessionID: "sess-3", SampleRate: 16000}, counters, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	segments := make(chan segment.Segment, 3)
	segments <- segment.Segment{ID: 1, PCM: []int16{1, 2}}
	segments <- segment.Segment{ID: 2, PCM: []int16{3, 4, 5}}
	close(segments)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	store.RunSegments(ctx, segments)

	combinedPath, n, err := store.Finalize(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 segments combined, got %d", n)
	}

	got := readWAVSamples(t, combinedPath)
	want := []int16{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("combined samples mismatch: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("combined samples mismatch at %d: got %v want %v", i, got, want)
		}
	}
	if counters.PersistenceErrors.Load() != 0 {
		t.Fatalf("expected no persistence errors")
	}
}

func TestStore_RunEventsWritesTranscripts(t *testing.T) {
	dir := t.TempDir()
	counters := &status.Counters{}
	store, err := New(Config{DataDir: dir, SessionID: "sess-4", SampleRate: 16000}, counters, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events := make(chan transcribe.Event, 1)
	events <- transcribe.Event{ID: 1, Language: "en", Text: "hi"}
	close(events)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	store.RunEvents(ctx, events)

	if counters.PersistenceErrors.Load() != 0 {
		t.Fatalf("expected no persistence errors")
	}
}

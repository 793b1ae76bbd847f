package translate

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"voxstream/internal/transcribe"
)

func TestTranslator_FallsBackToSecondaryBackend(t *testing.T) {
	primary := NewStubBackend("primary", StubBackendConfig{AlwaysFail: true})
	secondary := NewStubBackend("secondary", StubBackendConfig{
		Dictionary: map[string]map[string]string{"pt": {"hello": "OLÁ"}},
	})

	cfg := Config{Enabled: true, SourcePolicy: SourcePolicyDetected, TargetLanguage: "pt"}
	in := make(chan transcribe.Event, 1)
	out := make(chan transcribe.Event, 1)
	tr := New(cfg, []Backend{primary, secondary}, in, out, zap.NewNop().Sugar())

	ctx, cancel := testContext()
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	in <- transcribe.Event{ID: 1, Text: "hello", Language: "en"}
	close(in)

	select {
	case ev := <-out:
		if ev.Translation == nil {
			t.Fatalf("expected a translation to be attached")
		}
		if ev.Translation.Text != "OLÁ" || ev.Translation.Language != "pt" || ev.Translation.Backend != "secondary" {
			t.Fatalf("unexpected translation: %+v", ev.Translation)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for translated event")
	}

	cancel()
	<-done

	if tr.Counters().TranslationFailed != 0 {
		t.Fatalf("expected no translation_failed increment on fallback success, got %d", tr.Counters().TranslationFailed)
	}
}

func TestTranslator_AllBackendsFailForwardsUnchanged(t *testing.T) {
	primary := NewStubBackend("primary", StubBackendConfig{AlwaysFail: true})
	secondary := NewStubBackend("secondary", StubBackendConfig{AlwaysFail: true})

	cfg := Config{Enabled: true, SourcePolicy: SourcePolicyDetected, TargetLanguage: "pt"}
	in := make(chan transcribe.Event, 1)
	out := make(chan transcribe.Event, 1)
	tr := New(cfg, []Backend{primary, secondary}, in, out, zap.NewNop().Sugar())

	ctx, cancel := testContext()
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	in <- transcribe.Event{ID: 1, Text: "hello", Language: "en"}
	close(in)

	select {
	case ev := <-out:
		if ev.Translation != nil {
			t.Fatalf("expected no translation attached, got %+v", ev.Translation)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for passthrough event")
	}

	cancel()
	<-done

	if tr.Counters().TranslationFailed != 1 {
		t.Fatalf("expected TranslationFailed==1, got %d", tr.Counters().TranslationFailed)
	}
}

func TestTranslator_SameLanguagePassesThroughUnchanged(t *testing.T) {
	cfg := Config{Enabled: true, SourcePolicy: SourcePolicyDetected, TargetLanguage: "en"}
	in := make(chan transcribe.Event, 1)
	out := make(chan transcribe.Event, 1)
	tr := New(cfg, nil, in, out, zap.NewNop().Sugar())

	ctx, cancel := testContext()
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	in <- transcribe.Event{ID: 1, Text: "hello", Language: "en"}
	close(in)

	select {
	case ev := <-out:
		if ev.Translation != nil {
			t.Fatalf("expected passthrough, got translation %+v", ev.Translation)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}

	cancel()
	<-done
}

func TestTranslator_PreservesInputOrderAcrossConcurrency(t *testing.T) {
	slow := NewStubBackend("slow", StubBackendConfig{
		ProcessingDelay: 30 * time.Millisecond,
		Dictionary:      map[string]map[string]string{"pt": {}},
	})

	cfg := Config{Enabled: true, SourcePolicy: SourcePolicyDetected, TargetLanguage: "pt", Concurrency: 4}
	in := make(chan transcribe.Event, 5)
	out := make(chan transcribe.Event, 5)
	tr := New(cfg, []Backend{slow}, in, out, zap.NewNop().Sugar())

	ctx, cancel := testContext()
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	for i := int64(1); i <= 5; i++ {
		in <- transcribe.Event{ID: i, Text: "hi", Language: "en"}
	}
	close(in)

	var got []int64
	for i := 0; i < 5; i++ {
		select {
		case ev := <-out:
			got = append(got, ev.ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	for i, id := range got {
		if id != int64(i+1) {
			t.Fatalf("expected strict input order, got %v", got)
		}
	}

	cancel()
	<-done
}

package transcribe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"voxstream/internal/asr"
	"voxstream/internal/hallucination"
	"voxstream/internal/segment"
)

// fakeRecognizer returns scripted text per segment id and can be told to
// fail the first attempt for specific ids, exercising the Pool's
// retry-once-then-skip path.
type fakeRecognizer struct {
	mu         sync.Mutex
	text       map[int64]string
	failFirst  map[int64]bool
	alwaysFail map[int64]bool
	attempts   map[int64]int
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{
		text:       map[int64]string{},
		failFirst:  map[int64]bool{},
		alwaysFail: map[int64]bool{},
		attempts:   map[int64]int{},
	}
}

func (r *fakeRecognizer) Recognize(ctx context.Context, seg segment.Segment) (asr.Result, error) {
	r.mu.Lock()
	r.attempts[seg.ID]++
	attempt := r.attempts[seg.ID]
	failFirst := r.failFirst[seg.ID]
	alwaysFail := r.alwaysFail[seg.ID]
	text := r.text[seg.ID]
	r.mu.Unlock()

	if alwaysFail || (failFirst && attempt == 1) {
		return asr.Result{}, errors.New("model unavailable")
	}
	return asr.Result{Text: text, Language: "en", Confidence: 0.9}, nil
}

func (r *fakeRecognizer) LoadModel(profile asr.ModelProfile) error { return nil }
func (r *fakeRecognizer) Health() asr.HealthStatus                 { return asr.HealthStatus{Healthy: true} }

func TestPool_EmitsInStrictSegmentIDOrder(t *testing.T) {
	rec := newFakeRecognizer()
	for i := int64(1); i <= 5; i++ {
		rec.text[i] = "hello world number"
	}
	// segment 3 takes longer to process than the others, exercising the
	// reorder buffer.
	in := make(chan segment.Segment, 5)
	out := make(chan Event, 5)
	pool := New(Config{Workers: 3}, &slowFor3{rec}, in, out, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	for i := int64(1); i <= 5; i++ {
		in <- segment.Segment{ID: i}
	}
	close(in)

	var got []int64
	for i := 0; i < 5; i++ {
		select {
		case e := <-out:
			got = append(got, e.ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	for i, id := range got {
		if id != int64(i+1) {
			t.Fatalf("expected strict order, got %v", got)
		}
	}

	cancel()
	<-done
}

// slowFor3 wraps a Recognizer and adds latency to segment id 3 so it
// completes after segments 4 and 5, forcing the reorder buffer to hold
// their results until 3 arrives.
type slowFor3 struct{ inner asr.Recognizer }

func (s *slowFor3) Recognize(ctx context.Context, seg segment.Segment) (asr.Result, error) {
	if seg.ID == 3 {
		time.Sleep(50 * time.Millisecond)
	}
	return s.inner.Recognize(ctx, seg)
}
func (s *slowFor3) LoadModel(profile asr.ModelProfile) error { return s.inner.LoadModel(profile) }
func (s *slowFor3) Health() asr.HealthStatus                 { return s.inner.Health() }

func TestPool_RetriesOnceThenSucceeds(t *testing.T) {
	rec := newFakeRecognizer()
	rec.text[1] = "hello"
	rec.text[2] = "world"
	rec.failFirst[2] = true

	in := make(chan segment.Segment, 2)
	out := make(chan Event, 2)
	pool := New(Config{Workers: 1}, rec, in, out, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	in <- segment.Segment{ID: 1}
	in <- segment.Segment{ID: 2}
	close(in)

	events := map[int64]Event{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-out:
			events[e.ID] = e
		case <-time.After(time.Second):
		}
	}
	if len(events) != 2 {
		t.Fatalf("expected both segments emitted after retry, got %v", events)
	}

	cancel()
	<-done

	if pool.Counters().ModelErrors != 0 {
		t.Fatalf("expected no permanent model errors, got %d", pool.Counters().ModelErrors)
	}
}

func TestPool_SkipsPersistentlyFailingSegmentWithoutStalling(t *testing.T) {
	rec := newFakeRecognizer()
	rec.text[1] = "hello"
	rec.alwaysFail[2] = true
	rec.text[3] = "goodbye"

	in := make(chan segment.Segment, 3)
	out := make(chan Event, 3)
	pool := New(Config{Workers: 1}, rec, in, out, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	in <- segment.Segment{ID: 1}
	in <- segment.Segment{ID: 2}
	in <- segment.Segment{ID: 3}
	close(in)

	var got []int64
	for i := 0; i < 2; i++ {
		select {
		case e := <-out:
			got = append(got, e.ID)
		case <-time.After(time.Second):
			t.Fatalf("emitter stalled behind permanently failing segment 2")
		}
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("expected events for ids 1 and 3 only, got %v", got)
	}

	cancel()
	<-done

	if pool.Counters().ModelErrors != 1 {
		t.Fatalf("expected ModelErrors==1, got %d", pool.Counters().ModelErrors)
	}
}

func TestPool_HallucinationRejectedButDoesNotStallEmitter(t *testing.T) {
	rec := newFakeRecognizer()
	rec.text[1] = "hello there"
	rec.text[2] = "no no no no no no"
	rec.text[3] = "goodbye now"

	in := make(chan segment.Segment, 3)
	out := make(chan Event, 3)
	pool := New(Config{Workers: 1, Hallucination: hallucination.DefaultConfig()}, rec, in, out, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	in <- segment.Segment{ID: 1}
	in <- segment.Segment{ID: 2}
	in <- segment.Segment{ID: 3}
	close(in)

	var got []int64
	for i := 0; i < 2; i++ {
		select {
		case e := <-out:
			got = append(got, e.ID)
		case <-time.After(time.Second):
			t.Fatalf("emitter stalled behind skipped segment 2")
		}
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("expected events for ids 1 and 3 only, got %v", got)
	}

	cancel()
	<-done

	if pool.Counters().RejectedHallucination != 1 {
		t.Fatalf("expected RejectedHallucination==1, got %d", pool.Counters().RejectedHallucination)
	}
}

package transcribe

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"voxstream/internal/asr"
	"voxstream/internal/hallucination"
	"voxstream/internal/segment"
)

// Counters tracks session-wide Pool statistics.
type Counters struct {
	Emitted               atomic.Int64
	ModelErrors           atomic.Int64
	RejectedHallucination atomic.Int64
}

// CountersSnapshot is a point-in-time copy of Counters, safe to log or
// report without further synchronization.
type CountersSnapshot struct {
	Emitted               int64
	ModelErrors           int64
	RejectedHallucination int64
}

func (c *Counters) snapshot() CountersSnapshot {
	return CountersSnapshot{
		Emitted:               c.Emitted.Load(),
		ModelErrors:           c.ModelErrors.Load(),
		RejectedHallucination: c.RejectedHallucination.Load(),
	}
}

type reorderEntry struct {
	skip  bool
	event Event
}

// Pool draws segments from in with Workers concurrent recognizer calls, and
// emits Events on out in strict segment-id order (SPEC_FULL.md §4.4).
type Pool struct {
	workers          int
	recognizer       asr.Recognizer
	hallucinationCfg hallucination.Config
	in               <-chan segment.Segment
	out              chan<- Event
	logger           *zap.SugaredLogger

	counters Counters

	mu           sync.Mutex
	pending      map[int64]reorderEntry
	nextExpected int64
	notify       chan struct{}
}

// Config configures a Pool.
type Config struct {
	Workers                int
	Hallucination          hallucination.Config
	FirstExpectedSegmentID int64
}

// New constructs a Pool reading segments from in and writing Events to out.
func New(cfg Config, recognizer asr.Recognizer, in <-chan segment.Segment, out chan<- Event, logger *zap.SugaredLogger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	first := cfg.FirstExpectedSegmentID
	if first == 0 {
		first = 1
	}
	return &Pool{
		workers:          cfg.Workers,
		recognizer:       recognizer,
		hallucinationCfg: cfg.Hallucination,
		in:               in,
		out:              out,
		logger:           logger,
		pending:          make(map[int64]reorderEntry),
		nextExpected:     first,
		notify:           make(chan struct{}),
	}
}

// Counters returns a snapshot of session statistics.
func (p *Pool) Counters() CountersSnapshot { return p.counters.snapshot() }

// Run drives Workers concurrent recognizers plus the order-preserving
// emitter until in is closed and every already enqueued segment has been
// processed and emitted, then closes out. Closing in is the orderly drain
// (SPEC_FULL.md §4.8, §5): every segment sitting in in when it closes is
// processed and emitted. Cancelling ctx instead stops the workers and the
// emitter at once, abandoning queued and in-flight segments.
func (p *Pool) Run(ctx context.Context) error {
	defer close(p.out)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workerLoop(ctx)
		}()
	}

	workersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(workersDone)
	}()

	p.emit(ctx, workersDone)
	return nil
}

func (p *Pool) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case seg, ok := <-p.in:
			if !ok {
				return
			}
			p.process(ctx, seg)
		}
	}
}

func (p *Pool) process(ctx context.Context, seg segment.Segment) {
	result, err := p.recognizer.Recognize(ctx, seg)
	if err != nil {
		result, err = p.recognizer.Recognize(ctx, seg)
	}
	if err != nil {
		p.counters.ModelErrors.Add(1)
		p.logger.Warnw("recognition failed twice, skipping segment", "id", seg.ID, "error", err)
		p.deposit(seg.ID, reorderEntry{skip: true})
		return
	}

	if hallucination.IsHallucination(result.Text, p.hallucinationCfg) {
		p.counters.RejectedHallucination.Add(1)
		p.logger.Warnw("rejected hallucinated transcript", "id", seg.ID)
		p.deposit(seg.ID, reorderEntry{skip: true})
		return
	}

	p.deposit(seg.ID, reorderEntry{event: Event{
		ID:            seg.ID,
		Timestamp:     seg.EndTS,
		Text:          result.Text,
		Language:      result.Language,
		Confidence:    result.Confidence,
		HasConfidence: true,
	}})
}

func (p *Pool) deposit(id int64, entry reorderEntry) {
	p.mu.Lock()
	p.pending[id] = entry
	close(p.notify)
	p.notify = make(chan struct{})
	p.mu.Unlock()
}

func (p *Pool) currentNotify() chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.notify
}

// drainAvailable releases every contiguous entry starting at nextExpected.
func (p *Pool) drainAvailable(ctx context.Context) {
	for {
		p.mu.Lock()
		entry, ok := p.pending[p.nextExpected]
		if !ok {
			p.mu.Unlock()
			return
		}
		delete(p.pending, p.nextExpected)
		p.nextExpected++
		p.mu.Unlock()

		if entry.skip {
			continue
		}
		select {
		case p.out <- entry.event:
			p.counters.Emitted.Add(1)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) emit(ctx context.Context, workersDone <-chan struct{}) {
	for {
		p.drainAvailable(ctx)
		wait := p.currentNotify()
		select {
		case <-wait:
		case <-ctx.Done():
			return
		case <-workersDone:
			p.drainAvailable(ctx)
			return
		}
	}
}

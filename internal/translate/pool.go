package translate

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"voxstream/internal/transcribe"
)

// CountersSnapshot is a point-in-time copy of Translator statistics.
type CountersSnapshot struct {
	TranslationFailed int64
}

// Translator attaches translations to transcription events, trying backends
// in order and preserving input order on output (SPEC_FULL.md §4.5).
type Translator struct {
	cfg         Config
	backends    []Backend
	in          <-chan transcribe.Event
	out         chan<- transcribe.Event
	logger      *zap.SugaredLogger
	concurrency int

	translationFailed atomic.Int64

	mu           sync.Mutex
	pending      map[int64]transcribe.Event
	nextExpected int64
	notify       chan struct{}
}

// New constructs a Translator. backends is tried in order for every event;
// with an empty list every event is forwarded without a translation and
// counted as a translation failure.
func New(cfg Config, backends []Backend, in <-chan transcribe.Event, out chan<- transcribe.Event, logger *zap.SugaredLogger) *Translator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Translator{
		cfg:          cfg,
		backends:     backends,
		in:           in,
		out:          out,
		logger:       logger,
		concurrency:  cfg.Concurrency,
		pending:      make(map[int64]transcribe.Event),
		nextExpected: 1,
		notify:       make(chan struct{}),
	}
}

// Counters returns a snapshot of session statistics.
func (t *Translator) Counters() CountersSnapshot {
	return CountersSnapshot{TranslationFailed: t.translationFailed.Load()}
}

// Run drives the Translator until in is closed (or ctx is cancelled) and
// every already-enqueued event has been processed and emitted, closing out
// on return so a cascaded shutdown never drops events already in flight
// (SPEC_FULL.md §4.8, §5).
func (t *Translator) Run(ctx context.Context) error {
	defer close(t.out)

	var wg sync.WaitGroup
	sem := make(chan struct{}, t.concurrency)
	dispatchDone := make(chan struct{})

	go func() {
		defer close(dispatchDone)
		seq := int64(1)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-t.in:
				if !ok {
					return
				}
				mySeq := seq
				seq++
				sem <- struct{}{}
				wg.Add(1)
				go func(ev transcribe.Event, s int64) {
					defer wg.Done()
					defer func() { <-sem }()
					t.deposit(s, t.processEvent(ctx, ev))
				}(ev, mySeq)
			}
		}
	}()

	workersDone := make(chan struct{})
	go func() {
		<-dispatchDone
		wg.Wait()
		close(workersDone)
	}()

	t.emit(ctx, workersDone)
	return nil
}

func (t *Translator) processEvent(ctx context.Context, ev transcribe.Event) transcribe.Event {
	if !t.cfg.Enabled {
		return ev
	}
	sourceLang := ev.Language
	if t.cfg.SourcePolicy == SourcePolicyExplicit && t.cfg.SourceLanguage != "" {
		sourceLang = t.cfg.SourceLanguage
	}
	if sourceLang == t.cfg.TargetLanguage {
		return ev
	}

	for _, backend := range t.backends {
		res, err := backend.Translate(ctx, ev.Text, sourceLang, t.cfg.TargetLanguage)
		if err != nil {
			t.logger.Warnw("translation backend failed, trying next", "backend", backend.Name(), "event_id", ev.ID, "error", err)
			continue
		}
		return ev.WithTranslation(transcribe.Translation{
			Text:     res.Text,
			Language: t.cfg.TargetLanguage,
			Backend:  backend.Name(),
		})
	}

	t.translationFailed.Add(1)
	t.logger.Warnw("all translation backends failed", "event_id", ev.ID)
	return ev
}

func (t *Translator) deposit(seq int64, ev transcribe.Event) {
	t.mu.Lock()
	t.pending[seq] = ev
	close(t.notify)
	t.notify = make(chan struct{})
	t.mu.Unlock()
}

func (t *Translator) currentNotify() chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notify
}

func (t *Translator) drainAvailable(ctx context.Context) {
	for {
		t.mu.Lock()
		ev, ok := t.pending[t.nextExpected]
		if !ok {
			t.mu.Unlock()
			return
		}
		delete(t.pending, t.nextExpected)
		t.nextExpected++
		t.mu.Unlock()

		select {
		case t.out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (t *Translator) emit(ctx context.Context, workersDone <-chan struct{}) {
	for {
		t.drainAvailable(ctx)
		wait := t.currentNotify()
		select {
		case <-wait:
		case <-ctx.Done():
			return
		case <-workersDone:
			t.drainAvailable(ctx)
			return
		}
	}
}

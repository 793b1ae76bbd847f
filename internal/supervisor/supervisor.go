// Package supervisor owns the pipeline lifecycle (SPEC_FULL.md §4.8):
// startup order, orderly shutdown draining, and the final session summary.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"voxstream/internal/audioio"
	"voxstream/internal/di"
	"voxstream/internal/hallucination"
	"voxstream/internal/hub"
	"voxstream/internal/persistence"
	"voxstream/internal/ring"
	"voxstream/internal/segment"
	"voxstream/internal/session"
	"voxstream/internal/status"
	"voxstream/internal/transcribe"
	"voxstream/internal/translate"
)

// StatusEmitter receives a lifecycle progress event per stage transition,
// grounded on the teacher's emit(statuspkg.SessionStatusEvent) idiom.
type StatusEmitter func(status.Event)

// Supervisor wires and drives the pipeline for a single session.
type Supervisor struct {
	container *di.Container
	logger    *zap.SugaredLogger
	emit      StatusEmitter
	sessionID string

	counters *status.Counters
	session  session.State

	ringBuf    *ring.Buffer
	segmenter  *segment.Segmenter
	pool       *transcribe.Pool
	translator *translate.Translator
	hub        *hub.Hub
	hubServer  *http.Server
	store      *persistence.Store
	capture    *audioio.Capture

	segOut       chan segment.Segment
	poolIn       chan segment.Segment
	persistSegIn chan segment.Segment
	transcribed  chan transcribe.Event
	hubIn        chan transcribe.Event
	persistEvIn  chan transcribe.Event

	faults chan error
	wg     sync.WaitGroup

	captureCancel  context.CancelFunc
	pipelineCancel context.CancelFunc
	captureDone    chan struct{}
}

// New constructs a Supervisor for sessionID using container's wired
// dependencies. emit may be nil.
func New(container *di.Container, sessionID string, emit StatusEmitter) *Supervisor {
	if emit == nil {
		emit = func(status.Event) {}
	}
	return &Supervisor{
		container: container,
		logger:    container.Logger,
		emit:      emit,
		sessionID: sessionID,
		counters:  &status.Counters{},
		faults:    make(chan error, 4),
	}
}

func (s *Supervisor) emitStatus(stage, state, detail string) {
	s.emit(status.Event{
		SessionID: s.sessionID,
		Stage:     stage,
		State:     state,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}

// Run assembles the pipeline in startup order and blocks until ctx is
// cancelled, a fatal fault is reported, or a component fails to start.
func (s *Supervisor) Run(ctx context.Context) error {
	cfg := s.container.Config

	// captureCtx and pipelineCtx are deliberately rooted at
	// context.Background(), not ctx: ctx is cancelled by the caller the
	// moment it wants Run to return (e.g. a shutdown signal), but tearing
	// the pipeline down is Shutdown's job, run on its own timeline, so that
	// segments and events already enqueued when shutdown begins are still
	// drained to completion rather than abandoned the instant ctx fires.
	// Not deferred: cancelling either is Shutdown's responsibility, invoked
	// deliberately on its own timeline rather than the instant Run returns.
	pipelineCtx, pipelineCancel := context.WithCancel(context.Background())
	s.pipelineCancel = pipelineCancel

	captureCtx, captureCancel := context.WithCancel(context.Background())
	s.captureCancel = captureCancel
	s.captureDone = make(chan struct{})

	s.emitStatus("startup", "running", "opening output directories")
	store, err := persistence.New(persistence.Config{
		DataDir:      cfg.Persistence.DataDir,
		SessionID:    s.sessionID,
		SampleRate:   cfg.SampleRate,
		KeepSegments: cfg.Persistence.KeepSegments,
	}, s.counters, s.logger)
	if err != nil {
		s.emitStatus("startup", "failed", err.Error())
		return fmt.Errorf("supervisor: %w", err)
	}
	s.store = store

	startedAt := time.Now().UTC()
	frameSizeSamples := cfg.SampleRate * cfg.FrameSizeMs / 1000

	backendOrder := make([]string, len(cfg.Translation.Backends))
	for i, b := range cfg.Translation.Backends {
		backendOrder[i] = b.Kind
	}
	s.session = session.New(
		s.sessionID, startedAt,
		session.OutputPaths{
			Root:         cfg.Persistence.DataDir,
			Recordings:   cfg.Persistence.DataDir + "/recordings",
			Transcripts:  cfg.Persistence.DataDir + "/transcripts",
			Translations: cfg.Persistence.DataDir + "/translations",
		},
		cfg.SampleRate, frameSizeSamples,
		session.LanguagePair{Source: cfg.Translation.SourceLanguage, Target: cfg.Translation.TargetLanguage},
		backendOrder, cfg.Hub.Addr(),
	)
	s.logger.Infow("session initialized", "session_id", s.session.ID, "output_root", s.session.Output.Root)

	s.emitStatus("startup", "running", "starting hub listener")
	s.hub = hub.New(hub.Config{
		BindAddress:        cfg.Hub.Addr(),
		HistoryCap:         cfg.Hub.HistoryCap,
		QueueCapacity:      cfg.Hub.SubscriberQueue,
		SlowClientGraceSec: cfg.Hub.SlowClientGraceSec,
		MaxSubscribers:     cfg.Hub.MaxSubscribers,
	}, s.sessionID, startedAt, s.counters, s.logger)

	s.hubServer = &http.Server{
		Addr:              cfg.Hub.Addr(),
		Handler:           s.hub.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.hubServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("hub listener failed", "error", err)
			select {
			case s.faults <- fmt.Errorf("supervisor: hub listener: %w", err):
			default:
			}
		}
	}()

	ringCapacity := int(cfg.RingCapacitySec * float64(cfg.SampleRate) / float64(frameSizeSamples))
	s.ringBuf = ring.New(ringCapacity)

	s.emitStatus("startup", "running", "starting segmenter, pool, translator, persistence")
	segCfg := segment.Config{
		SampleRate:             cfg.SampleRate,
		FrameSizeSamples:       frameSizeSamples,
		SilenceThresholdSec:    cfg.SilenceThresholdSec,
		PreSpeechPadSec:        cfg.PreSpeechPadSec,
		PostSpeechPadSec:       cfg.PostSpeechPadSec,
		MinSpeechDurationSec:   cfg.MinSpeechDurationSec,
		VADWindowSec:           cfg.VADWindowSec,
		VADThreshold:           cfg.VADThreshold,
		VADConsecutiveErrLimit: 10,
	}
	s.segOut = make(chan segment.Segment, cfg.Workers*2)
	s.segmenter = segment.New(segCfg, s.ringBuf, s.container.Detector, s.segOut, s.faults, s.logger)

	s.poolIn = make(chan segment.Segment, cfg.Workers*2)
	s.persistSegIn = make(chan segment.Segment, 16)

	s.transcribed = make(chan transcribe.Event, 16)
	poolCfg := transcribe.Config{
		Workers: cfg.Workers,
		Hallucination: hallucination.Config{
			Enabled:     cfg.Hallucination.Enabled,
			RunLength:   cfg.Hallucination.MinTokenRun,
			RepeatCount: cfg.Hallucination.MinRepeatCount,
		},
	}
	s.pool = transcribe.New(poolCfg, s.container.Recognizer, s.poolIn, s.transcribed, s.logger)

	s.hubIn = make(chan transcribe.Event, 16)
	s.persistEvIn = make(chan transcribe.Event, 16)

	finalEvents := s.transcribed
	if cfg.Translation.Enabled {
		translateOut := make(chan transcribe.Event, 16)
		s.translator = translate.New(translate.Config{
			Enabled:        cfg.Translation.Enabled,
			SourcePolicy:   translate.SourcePolicy(cfg.Translation.SourcePolicy),
			SourceLanguage: cfg.Translation.SourceLanguage,
			TargetLanguage: cfg.Translation.TargetLanguage,
			Concurrency:    cfg.Translation.Concurrency,
		}, s.container.Backends, s.transcribed, translateOut, s.logger)
		finalEvents = translateOut
	}

	s.startBackground(pipelineCtx)
	s.fanOutSegments(pipelineCtx)
	s.fanOutEvents(pipelineCtx, finalEvents)

	s.emitStatus("startup", "running", "starting capture")
	capCfg := audioio.Config{SampleRate: cfg.SampleRate, FrameSizeSamples: frameSizeSamples, SessionStart: startedAt}
	s.capture = audioio.New(capCfg, s.container.Source, s.ringBuf, s.logger, s.faults)
	s.startCaptureMetricsPump(captureCtx)

	go func() {
		defer close(s.captureDone)
		if err := s.capture.Run(captureCtx); err != nil {
			s.logger.Errorw("capture exited with error", "error", err)
		}
	}()

	s.emitStatus("startup", "completed", "pipeline running")

	select {
	case <-ctx.Done():
		return nil
	case err := <-s.faults:
		s.emitStatus("runtime", "fault", err.Error())
		return err
	}
}

func (s *Supervisor) startBackground(ctx context.Context) {
	s.wg.Add(1)
	go func() { defer s.wg.Done(); _ = s.segmenter.Run(ctx) }()

	s.wg.Add(1)
	go func() { defer s.wg.Done(); _ = s.pool.Run(ctx) }()

	if s.translator != nil {
		s.wg.Add(1)
		go func() { defer s.wg.Done(); _ = s.translator.Run(ctx) }()
	}

	s.wg.Add(1)
	go func() { defer s.wg.Done(); s.store.RunSegments(ctx, s.persistSegIn) }()

	s.wg.Add(1)
	go func() { defer s.wg.Done(); s.store.RunEvents(ctx, s.persistEvIn) }()

	s.wg.Add(1)
	go func() { defer s.wg.Done(); _ = s.hub.Run(ctx, s.hubIn) }()
}

// fanOutSegments duplicates each Segmenter output to both the
// Transcription Pool and Persistence, since a Segment has exactly one
// producer but two consumers.
func (s *Supervisor) fanOutSegments(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.poolIn)
		defer close(s.persistSegIn)
		for {
			select {
			case <-ctx.Done():
				return
			case seg, ok := <-s.segOut:
				if !ok {
					return
				}
				s.counters.SegmentsEmitted.Add(1)
				select {
				case s.poolIn <- seg:
				case <-ctx.Done():
					return
				}
				select {
				case s.persistSegIn <- seg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// fanOutEvents duplicates each post-translation event to both the
// Broadcast Hub and Persistence.
func (s *Supervisor) fanOutEvents(ctx context.Context, in <-chan transcribe.Event) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.hubIn)
		defer close(s.persistEvIn)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-in:
				if !ok {
					return
				}
				select {
				case s.hubIn <- ev:
				case <-ctx.Done():
					return
				}
				select {
				case s.persistEvIn <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// startCaptureMetricsPump periodically copies Capture's internal counters
// into the shared status.Counters, since Capture tracks its own atomics
// privately (mirroring the teacher's ingestion.streamCounters isolation).
func (s *Supervisor) startCaptureMetricsPump(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.pumpCaptureMetrics()
				return
			case <-ticker.C:
				s.pumpCaptureMetrics()
			}
		}
	}()
}

func (s *Supervisor) pumpCaptureMetrics() {
	if s.capture == nil {
		return
	}
	m := s.capture.Metrics()
	s.counters.FramesCaptured.Store(m.SamplesRead)
	s.counters.FramesOverwritten.Store(s.ringBuf.Overwritten())
}

// Shutdown drains the pipeline in the order the Supervisor started it,
// in reverse: Capture first, then Segmenter, Pool, Translator, then the
// Hub, then Persistence's final combined-recording write. The Hub sends bye
// and closes every subscriber at once; events still queued for a subscriber
// are not delivered. Only the hub listener's graceful shutdown waits, for up
// to shutdown_drain_sec, before being forced closed.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.emitStatus("shutdown", "running", "stopping capture")

	drain := time.Duration(s.container.Config.Hub.ShutdownDrainSec * float64(time.Second))
	drainCtx, cancel := context.WithTimeout(context.Background(), drain+2*time.Second)
	defer cancel()

	if s.captureCancel != nil {
		s.captureCancel()
	}
	select {
	case <-s.captureDone:
	case <-drainCtx.Done():
		s.logger.Warnw("capture did not stop before drain timeout")
	}

	s.emitStatus("shutdown", "running", "draining segmenter, pool, translator, persistence")
	// Close the ring buffer rather than cancelling pipelineCtx: the Segmenter
	// notices the closed, drained buffer, flushes its in-flight segment, and
	// closes its own output channel, which cascades a close through the
	// Pool, Translator, Hub, and Persistence in turn. Every segment and
	// event already enqueued when shutdown begins is still processed and
	// delivered (SPEC_FULL.md §4.8, §5), unlike cancelling the shared
	// context, which every stage's select also watches and could abandon
	// queued work the instant it fires.
	if s.ringBuf != nil {
		s.ringBuf.Close()
	}

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-drainCtx.Done():
		s.logger.Warnw("shutdown drain timed out, forcing close")
		if s.pipelineCancel != nil {
			s.pipelineCancel()
		}
		<-done
	}

	if s.segmenter != nil {
		s.counters.RejectedShort.Store(s.segmenter.Counters().RejectedShort)
	}
	if s.pool != nil {
		pc := s.pool.Counters()
		s.counters.ModelErrors.Store(pc.ModelErrors)
		s.counters.RejectedHallucination.Store(pc.RejectedHallucination)
	}
	if s.translator != nil {
		s.counters.TranslationFailed.Store(s.translator.Counters().TranslationFailed)
	}

	s.emitStatus("shutdown", "running", "closing hub subscribers")
	hubCtx, hubCancel := context.WithTimeout(context.Background(), drain)
	defer hubCancel()
	if s.hub != nil {
		_ = s.hub.Shutdown(hubCtx)
	}
	if s.hubServer != nil {
		if err := s.hubServer.Shutdown(hubCtx); err != nil {
			s.logger.Warnw("hub listener graceful shutdown failed, forcing close", "error", err)
			_ = s.hubServer.Close()
		}
	}

	s.emitStatus("shutdown", "running", "writing combined recording")
	if s.store != nil {
		if path, n, err := s.store.Finalize(time.Now()); err != nil {
			s.logger.Errorw("failed to finalize combined recording", "error", err)
		} else {
			s.logger.Infow("wrote combined recording", "path", path, "segments", n)
		}
	}

	summary := s.counters.Snapshot()
	fmt.Fprintln(os.Stdout, summary.String())
	s.emitStatus("shutdown", "completed", "session summary reported")
	return nil
}

// Package persistence implements SPEC_FULL.md §4.7: it taps the Segmenter's
// emitted segments and the post-translation event stream in parallel,
// writing per-segment WAV files and append-only transcript/translation
// text files, and concatenates everything into a combined recording on
// supervisor shutdown. Persistence failures are logged and counted but
// never back-pressure the live pipeline or suppress broadcast.
package persistence

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"voxstream/internal/segment"
	"voxstream/internal/status"
	"voxstream/internal/transcribe"
)

// Config configures the Persistence stage.
type Config struct {
	DataDir      string
	SessionID    string
	SampleRate   int
	KeepSegments bool
}

// Store owns the recordings and transcript/translation writers, and runs
// the two tap loops.
type Store struct {
	cfg      Config
	recs     *RecordingsWriter
	texts    *TranscriptWriter
	counters *status.Counters
	logger   *zap.SugaredLogger
}

// New creates the data_dir subdirectories (recordings/, transcripts/,
// translations/) and returns a ready Store.
func New(cfg Config, counters *status.Counters, logger *zap.SugaredLogger) (*Store, error) {
	recs, err := NewRecordingsWriter(filepath.Join(cfg.DataDir, "recordings"), cfg.SampleRate, logger)
	if err != nil {
		return nil, err
	}
	texts, err := NewTranscriptWriter(
		filepath.Join(cfg.DataDir, "transcripts"),
		filepath.Join(cfg.DataDir, "translations"),
		cfg.SessionID,
	)
	if err != nil {
		return nil, err
	}
	return &Store{cfg: cfg, recs: recs, texts: texts, counters: counters, logger: logger}, nil
}

// RunSegments drains segments, writing each to its per-segment WAV file,
// until ctx is cancelled or segments is closed.
func (s *Store) RunSegments(ctx context.Context, segments <-chan segment.Segment) {
	for {
		select {
		case <-ctx.Done():
			return
		case seg, ok := <-segments:
			if !ok {
				return
			}
			if err := s.recs.WriteSegment(seg); err != nil {
				s.counters.PersistenceErrors.Add(1)
				s.logger.Warnw("failed to persist segment recording", "segment_id", seg.ID, "error", err)
			}
		}
	}
}

// RunEvents drains events, appending transcript/translation lines for
// each, until ctx is cancelled or events is closed.
func (s *Store) RunEvents(ctx context.Context, events <-chan transcribe.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.texts.WriteEvent(ev); err != nil {
				s.counters.PersistenceErrors.Add(1)
				s.logger.Warnw("failed to persist transcript/translation", "event_id", ev.ID, "error", err)
			}
		}
	}
}

// Finalize concatenates every alive segment WAV into a timestamped
// combined recording and, unless KeepSegments is set, removes the
// per-segment files. Call once, after RunSegments has drained.
func (s *Store) Finalize(at time.Time) (string, int, error) {
	combinedPath := filepath.Join(
		s.cfg.DataDir,
		fmt.Sprintf("combined_recording_%s.wav", at.UTC().Format("20060102_150405")),
	)
	n, err := s.recs.Combine(combinedPath, s.cfg.KeepSegments)
	if err != nil {
		s.counters.PersistenceErrors.Add(1)
		return "", 0, err
	}
	return combinedPath, n, nil
}

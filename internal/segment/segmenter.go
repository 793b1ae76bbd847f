package segment

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"voxstream/internal/audioio"
	"voxstream/internal/vad"
)

// FrameSource is the consumer-side seam the Segmenter pulls frames from. The
// ring buffer satisfies this.
type FrameSource interface {
	PopOrWait(ctx context.Context) (audioio.Frame, error)
	SnapshotLast(n int) []audioio.Frame
}

// state is the Segmenter's internal lifecycle, mirroring the Listening /
// Recording / Silence_Pending machine in SPEC_FULL.md §4.3.
type state int

const (
	stateListening state = iota
	stateRecording
	stateSilencePending
)

// Counters tracks session-wide Segmenter statistics.
type Counters struct {
	Emitted            int64
	RejectedShort       int64
	DroppedFrameClosed int64
	VADErrors          int64
}

// Segmenter consumes frames from a FrameSource and emits Segments onto out.
// Sending to out is the system's only back-pressure path: if out is full,
// Run blocks (SPEC_FULL.md §5 "Back-pressure").
type Segmenter struct {
	cfg      Config
	src      FrameSource
	detector vad.Detector
	out      chan<- Segment
	faults   chan<- error
	logger   *zap.SugaredLogger

	windowFrames int
	preFrames    int
	postFrames   int

	counters Counters
}

// New constructs a Segmenter. faults receives an error when consecutive VAD
// failures reach cfg.VADConsecutiveErrLimit.
func New(cfg Config, src FrameSource, detector vad.Detector, out chan<- Segment, faults chan<- error, logger *zap.SugaredLogger) *Segmenter {
	detector.SetThreshold(cfg.VADThreshold)
	return &Segmenter{
		cfg:          cfg,
		src:          src,
		detector:     detector,
		out:          out,
		faults:       faults,
		logger:       logger,
		windowFrames: maxInt(1, cfg.framesFor(cfg.VADWindowSec)),
		preFrames:    cfg.framesFor(cfg.PreSpeechPadSec),
		postFrames:   cfg.framesFor(cfg.PostSpeechPadSec),
	}
}

// Counters returns a snapshot of session statistics.
func (s *Segmenter) Counters() Counters { return s.counters }

type runState struct {
	st               state
	segBuf           []int16
	startTS          time.Time
	lastFrameIndex   int64
	haveLastIndex    bool
	windowBuf        []int16
	windowFrameCount int
	silenceAccumSec  float64
	silenceStartLen  int
	consecutiveVADErr int
	nextID           int64
}

// Run drives the Segmenter until its FrameSource reports io.EOF (the ring
// buffer has been closed and drained) or ctx is cancelled, flushing any
// in-flight segment before returning. Either way it closes out, so
// downstream stages can drain their own inputs to completion rather than
// being cancelled mid-segment (SPEC_FULL.md §4.8).
func (s *Segmenter) Run(ctx context.Context) error {
	rs := &runState{st: stateListening, nextID: 1}
	defer close(s.out)

	for {
		frame, err := s.src.PopOrWait(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.flush(rs)
				return nil
			}
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				s.flush(rs)
				return nil
			}
			continue
		}

		if rs.haveLastIndex && frame.Index != rs.lastFrameIndex+1 && rs.st != stateListening {
			s.counters.DroppedFrameClosed++
			s.closeSegment(rs, false)
		}
		rs.lastFrameIndex = frame.Index
		rs.haveLastIndex = true

		if err := s.processFrame(rs, frame); err != nil {
			return err
		}
	}
}

func (s *Segmenter) processFrame(rs *runState, frame audioio.Frame) error {
	switch rs.st {
	case stateListening:
		rs.windowBuf = append(rs.windowBuf, frame.Samples...)
		rs.windowFrameCount++
		if rs.windowFrameCount < s.windowFrames {
			return nil
		}
		speech, err := s.detect(rs, rs.windowBuf)
		windowSamples := rs.windowBuf
		rs.windowBuf = nil
		rs.windowFrameCount = 0
		if err != nil {
			return nil
		}
		if speech {
			pre := s.src.SnapshotLast(s.preFrames)
			rs.segBuf = rs.segBuf[:0]
			if len(pre) > 0 {
				rs.startTS = pre[0].CapturedAt
				for _, f := range pre {
					rs.segBuf = append(rs.segBuf, f.Samples...)
				}
			} else {
				rs.startTS = frame.CapturedAt
			}
			rs.segBuf = append(rs.segBuf, windowSamples...)
			rs.st = stateRecording
		}
		return nil

	case stateRecording:
		rs.segBuf = append(rs.segBuf, frame.Samples...)
		rs.windowBuf = append(rs.windowBuf, frame.Samples...)
		rs.windowFrameCount++
		if rs.windowFrameCount < s.windowFrames {
			return nil
		}
		speech, err := s.detect(rs, rs.windowBuf)
		rs.windowBuf = nil
		rs.windowFrameCount = 0
		if err != nil {
			return nil
		}
		if !speech {
			rs.st = stateSilencePending
			rs.silenceAccumSec = s.cfg.VADWindowSec
			rs.silenceStartLen = len(rs.segBuf) - s.windowFrames*s.cfg.FrameSizeSamples
			if rs.silenceStartLen < 0 {
				rs.silenceStartLen = 0
			}
		}
		return nil

	case stateSilencePending:
		rs.segBuf = append(rs.segBuf, frame.Samples...)
		rs.windowBuf = append(rs.windowBuf, frame.Samples...)
		rs.windowFrameCount++
		if rs.windowFrameCount < s.windowFrames {
			return nil
		}
		speech, err := s.detect(rs, rs.windowBuf)
		rs.windowBuf = nil
		rs.windowFrameCount = 0
		if err != nil {
			return nil
		}
		if speech {
			rs.st = stateRecording
			rs.silenceAccumSec = 0
			return nil
		}
		rs.silenceAccumSec += s.cfg.VADWindowSec
		if rs.silenceAccumSec >= s.cfg.SilenceThresholdSec {
			s.closeSegment(rs, true)
		}
		return nil
	}
	return nil
}

func (s *Segmenter) detect(rs *runState, samples []int16) (bool, error) {
	res, err := s.detector.Detect(samples, s.cfg.SampleRate)
	if err != nil {
		rs.consecutiveVADErr++
		s.counters.VADErrors++
		s.logger.Warnw("vad error, treating window as non-speech", "error", err, "consecutive", rs.consecutiveVADErr)
		if rs.consecutiveVADErr >= s.cfg.VADConsecutiveErrLimit {
			s.reportFault(errors.New("segmenter: too many consecutive VAD errors"))
		}
		return false, err
	}
	rs.consecutiveVADErr = 0
	return res.IsSpeech, nil
}

// closeSegment finalizes the in-flight segment. When trimPad is true, the
// trailing silence accumulated during Silence_Pending is trimmed down to
// post_speech_pad_sec before emission (the normal close path). When false,
// the segment is emitted as-is (a frame-drop forced close).
func (s *Segmenter) closeSegment(rs *runState, trimPad bool) {
	if trimPad {
		postSamples := s.postFrames * s.cfg.FrameSizeSamples
		keepTo := rs.silenceStartLen + postSamples
		if keepTo < len(rs.segBuf) {
			rs.segBuf = rs.segBuf[:keepTo]
		}
	}

	durationSec := float64(len(rs.segBuf)) / float64(s.cfg.SampleRate)
	if durationSec < s.cfg.MinSpeechDurationSec {
		s.counters.RejectedShort++
	} else {
		seg := Segment{
			ID:          rs.nextID,
			StartTS:     rs.startTS,
			EndTS:       rs.startTS.Add(time.Duration(durationSec * float64(time.Second))),
			PCM:         append([]int16(nil), rs.segBuf...),
			DurationSec: durationSec,
		}
		rs.nextID++
		s.counters.Emitted++
		s.out <- seg
	}

	rs.st = stateListening
	rs.segBuf = nil
	rs.windowBuf = nil
	rs.windowFrameCount = 0
	rs.silenceAccumSec = 0
}

func (s *Segmenter) flush(rs *runState) {
	if rs.st != stateListening && len(rs.segBuf) > 0 {
		s.closeSegment(rs, false)
	}
}

func (s *Segmenter) reportFault(err error) {
	if s.faults == nil {
		return
	}
	select {
	case s.faults <- err:
	default:
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

package audioio

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is the lifecycle state of a Capture instance.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrUnrecoverable wraps a Source error that Capture has decided is fatal.
// A Source implementation signals fatal errors by returning an error that
// satisfies errors.Is(err, ErrUnrecoverable) — see UnrecoverableError.
var ErrUnrecoverable = errors.New("capture: unrecoverable device error")

// UnrecoverableError marks a Source error as fatal rather than transient.
type UnrecoverableError struct{ Err error }

func (e *UnrecoverableError) Error() string { return "unrecoverable: " + e.Err.Error() }
func (e *UnrecoverableError) Unwrap() error { return e.Err }
func (e *UnrecoverableError) Is(target error) bool { return target == ErrUnrecoverable }

// counters tracks capture-side statistics with atomics, matching the
// teacher's ingestion.streamCounters pattern.
type counters struct {
	framesCaptured atomic.Int64
	underrunPads   atomic.Int64
	shortReads     atomic.Int64
	errors         atomic.Int64
}

func (c *counters) snapshot() Metrics {
	return Metrics{
		SamplesRead:  c.framesCaptured.Load(),
		ShortReads:   c.shortReads.Load(),
		UnderrunPads: c.underrunPads.Load(),
		ErrorCount:   c.errors.Load(),
	}
}

// Sink receives frames produced by Capture. In production this is the ring
// buffer's Push method; tests may pass any implementation.
type Sink interface {
	Push(f Frame) (overwritten int)
}

// Config configures a Capture instance.
type Config struct {
	SampleRate       int
	FrameSizeSamples int
	SessionStart     time.Time
}

// Capture drives a Source through Idle -> Running -> (Draining -> Stopped |
// Failed), producing a gap-free monotonic Frame sequence into a Sink.
type Capture struct {
	cfg    Config
	source Source
	sink   Sink
	logger *zap.SugaredLogger
	faults chan<- error

	state    atomic.Int32
	counters counters

	nextIndex int64
}

// New constructs a Capture. faults is the Supervisor's fault channel; a
// fatal device error is sent on it exactly once before Capture exits.
func New(cfg Config, source Source, sink Sink, logger *zap.SugaredLogger, faults chan<- error) *Capture {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameSizeSamples <= 0 {
		cfg.FrameSizeSamples = cfg.SampleRate * 20 / 1000
	}
	if cfg.SessionStart.IsZero() {
		cfg.SessionStart = time.Now().UTC()
	}
	c := &Capture{cfg: cfg, source: source, sink: sink, logger: logger, faults: faults}
	c.state.Store(int32(StateIdle))
	return c
}

// State returns the current lifecycle state.
func (c *Capture) State() State { return State(c.state.Load()) }

// Metrics returns a snapshot of capture counters.
func (c *Capture) Metrics() Metrics { return c.counters.snapshot() }

// Run drives the capture loop until ctx is cancelled or a fatal error
// occurs. It never blocks on the sink: Push is expected to be non-blocking
// (the ring buffer overwrites the oldest frame rather than stalling).
func (c *Capture) Run(ctx context.Context) error {
	c.state.Store(int32(StateRunning))
	buf := make([]int16, c.cfg.FrameSizeSamples)
	frameDuration := time.Duration(c.cfg.FrameSizeSamples) * time.Second / time.Duration(c.cfg.SampleRate)

	for {
		select {
		case <-ctx.Done():
			c.drainFinalFrame(buf, frameDuration)
			c.state.Store(int32(StateStopped))
			return nil
		default:
		}

		n, err := c.source.ReadInto(buf)
		if err != nil {
			var unrecoverable *UnrecoverableError
			if errors.As(err, &unrecoverable) {
				c.counters.errors.Add(1)
				c.state.Store(int32(StateFailed))
				c.logger.Errorw("capture device failed", "error", err)
				c.reportFault(err)
				return err
			}
			c.counters.errors.Add(1)
			c.logger.Warnw("transient capture read error, continuing with zero-fill", "error", err)
			n = 0
		}

		if n < len(buf) {
			c.counters.shortReads.Add(1)
			c.counters.underrunPads.Add(1)
			for i := n; i < len(buf); i++ {
				buf[i] = 0
			}
		}

		c.emit(buf, frameDuration)
	}
}

func (c *Capture) drainFinalFrame(buf []int16, frameDuration time.Duration) {
	c.state.Store(int32(StateDraining))
	for i := range buf {
		buf[i] = 0
	}
	c.emit(buf, frameDuration)
}

func (c *Capture) emit(buf []int16, frameDuration time.Duration) {
	samples := make([]int16, len(buf))
	copy(samples, buf)
	frame := Frame{
		Index:      c.nextIndex,
		Samples:    samples,
		CapturedAt: c.cfg.SessionStart.Add(time.Duration(c.nextIndex) * frameDuration),
	}
	c.nextIndex++
	c.counters.framesCaptured.Add(1)
	if overwritten := c.sink.Push(frame); overwritten > 0 {
		c.logger.Warnw("ring buffer overwrote frames; segmenter may be stalled", "overwritten", overwritten)
	}
}

func (c *Capture) reportFault(err error) {
	if c.faults == nil {
		return
	}
	select {
	case c.faults <- err:
	default:
	}
}

// Close releases the underlying source.
func (c *Capture) Close() error {
	return c.source.Close()
}

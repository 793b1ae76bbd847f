// Package status tracks session-wide counters and lifecycle events for the
// Supervisor's final report (SPEC_FULL.md §4.8 "Report the session summary
// to standard output").
package status

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Event is a lifecycle progress update, grounded on the teacher's
// SessionStatusEvent shape. The Supervisor emits one per startup/shutdown
// stage transition.
type Event struct {
	SessionID string    `json:"session_id"`
	Stage     string    `json:"stage"`
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Counters aggregates every session-wide statistic named across
// SPEC_FULL.md's components. Every field is an atomic since the Supervisor,
// Hub and Persistence update it while the pipeline runs concurrently; the
// Segmenter, Pool and Translator keep their own counters, which the
// Supervisor copies in here once the pipeline has drained at shutdown.
type Counters struct {
	FramesCaptured        atomic.Int64
	FramesOverwritten     atomic.Int64
	SegmentsEmitted       atomic.Int64
	RejectedShort         atomic.Int64
	RejectedHallucination atomic.Int64
	ModelErrors           atomic.Int64
	TranslationFailed     atomic.Int64
	SubscribersConnected  atomic.Int64
	SlowClientDrops       atomic.Int64
	PersistenceErrors     atomic.Int64
}

// Summary is a point-in-time copy of Counters safe to print or log without
// further synchronization.
type Summary struct {
	FramesCaptured        int64
	FramesOverwritten     int64
	SegmentsEmitted       int64
	RejectedShort         int64
	RejectedHallucination int64
	ModelErrors           int64
	TranslationFailed     int64
	SubscribersConnected  int64
	SlowClientDrops       int64
	PersistenceErrors     int64
}

// Snapshot copies the current counter values.
func (c *Counters) Snapshot() Summary {
	return Summary{
		FramesCaptured:        c.FramesCaptured.Load(),
		FramesOverwritten:     c.FramesOverwritten.Load(),
		SegmentsEmitted:       c.SegmentsEmitted.Load(),
		RejectedShort:         c.RejectedShort.Load(),
		RejectedHallucination: c.RejectedHallucination.Load(),
		ModelErrors:           c.ModelErrors.Load(),
		TranslationFailed:     c.TranslationFailed.Load(),
		SubscribersConnected:  c.SubscribersConnected.Load(),
		SlowClientDrops:       c.SlowClientDrops.Load(),
		PersistenceErrors:     c.PersistenceErrors.Load(),
	}
}

// String renders the summary the way the Supervisor prints it to standard
// output on shutdown.
func (s Summary) String() string {
	return fmt.Sprintf(
		"frames_captured=%d frames_overwritten=%d segments_emitted=%d rejected_short=%d "+
			"rejected_hallucination=%d model_errors=%d translation_failed=%d "+
			"subscribers_connected=%d slow_client_drops=%d persistence_errors=%d",
		s.FramesCaptured, s.FramesOverwritten, s.SegmentsEmitted, s.RejectedShort,
		s.RejectedHallucination, s.ModelErrors, s.TranslationFailed,
		s.SubscribersConnected, s.SlowClientDrops, s.PersistenceErrors,
	)
}

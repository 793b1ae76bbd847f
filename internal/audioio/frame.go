// Package audioio owns the Capture stage: it turns a raw sample source into
// a gap-free, monotonically indexed stream of Frames.
package audioio

import "time"

// Frame is a contiguous block of signed 16-bit PCM samples captured at a
// single point in the session timeline. Frames are the only currency
// exchanged between Capture and the Segmenter.
type Frame struct {
	// Index is the gap-free, monotonically increasing frame number,
	// starting at zero for the first frame of the session.
	Index int64
	// Samples holds one channel of signed 16-bit PCM. Capture gives every
	// emitted Frame its own copy, so a Frame from Capture may be retained
	// without copying.
	Samples []int16
	// CapturedAt is the wall-clock time this frame was captured, derived
	// from the session start plus Index*frame duration rather than
	// sampled fresh, so that drift is a function of clock discipline and
	// not accumulated per-frame error (see SPEC_FULL.md §9).
	CapturedAt time.Time
}

// Clone returns a Frame with its own copy of Samples, safe to retain.
func (f Frame) Clone() Frame {
	samples := make([]int16, len(f.Samples))
	copy(samples, f.Samples)
	return Frame{Index: f.Index, Samples: samples, CapturedAt: f.CapturedAt}
}

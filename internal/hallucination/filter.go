// Package hallucination implements the Transcription Pool's optional
// post-model filter (SPEC_FULL.md §4.4), grounded on the n-gram repetition
// detector in the retrieved Whisper capture module.
package hallucination

import "strings"

// Config controls the filter's repetition thresholds.
type Config struct {
	// Enabled turns the filter on. Default true.
	Enabled bool
	// RunLength is the token-sequence length (L) checked for contiguous
	// repetition. Default 3.
	RunLength int
	// RepeatCount is the minimum number of contiguous repetitions (R) that
	// marks a run as a hallucination. Default 3.
	RepeatCount int
}

// DefaultConfig returns the L=3, R=3 defaults named in SPEC_FULL.md §4.4.
func DefaultConfig() Config {
	return Config{Enabled: true, RunLength: 3, RepeatCount: 3}
}

// IsHallucination reports whether text should be rejected under cfg. It
// implements two rules:
//  1. A token sequence of length cfg.RunLength repeats contiguously at
//     least cfg.RepeatCount times.
//  2. The whitespace-normalized text is a single token repeated at least
//     cfg.RepeatCount times.
func IsHallucination(text string, cfg Config) bool {
	if !cfg.Enabled {
		return false
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return false
	}

	if isSingleTokenRepeat(tokens, cfg.RepeatCount) {
		return true
	}
	return hasRepeatedRun(tokens, cfg.RunLength, cfg.RepeatCount)
}

func isSingleTokenRepeat(tokens []string, repeatCount int) bool {
	if repeatCount <= 0 {
		return false
	}
	first := tokens[0]
	for _, t := range tokens {
		if t != first {
			return false
		}
	}
	return len(tokens) >= repeatCount
}

func hasRepeatedRun(tokens []string, runLength, repeatCount int) bool {
	if runLength <= 0 || repeatCount <= 0 || len(tokens) < runLength*repeatCount {
		return false
	}
	for start := 0; start+runLength*repeatCount <= len(tokens); start++ {
		run := tokens[start : start+runLength]
		repeats := 1
		for next := start + runLength; next+runLength <= len(tokens); next += runLength {
			if !equalRun(tokens[next:next+runLength], run) {
				break
			}
			repeats++
		}
		if repeats >= repeatCount {
			return true
		}
	}
	return false
}

func equalRun(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

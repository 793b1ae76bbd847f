// Package session defines the process-wide SessionState created once at
// startup and destroyed only at supervisor shutdown (SPEC_FULL.md data
// model).
package session

import "time"

// LanguagePair names the source/target languages configured for a session's
// Translator.
type LanguagePair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// OutputPaths collects the output directories a session writes into.
type OutputPaths struct {
	Root         string `json:"root"`
	Recordings   string `json:"recordings"`
	Transcripts  string `json:"transcripts"`
	Translations string `json:"translations"`
}

// State is the process-wide session record: session id, start time, output
// paths, and the configured parameters that shaped this run.
type State struct {
	ID               string       `json:"id"`
	StartedAt        time.Time    `json:"started_at"`
	Output           OutputPaths  `json:"output"`
	SampleRate       int          `json:"sample_rate"`
	FrameSizeSamples int          `json:"frame_size_samples"`
	Languages        LanguagePair `json:"languages"`
	BackendOrder     []string     `json:"backend_order"`
	HubBindAddress   string       `json:"hub_bind_address"`
}

// New constructs a SessionState. startedAt is accepted as a parameter
// rather than computed internally so callers (and tests) control the
// session clock.
func New(id string, startedAt time.Time, output OutputPaths, sampleRate, frameSizeSamples int, languages LanguagePair, backendOrder []string, hubBindAddress string) State {
	return State{
		ID:               id,
		StartedAt:        startedAt,
		Output:           output,
		SampleRate:       sampleRate,
		FrameSizeSamples: frameSizeSamples,
		Languages:        languages,
		BackendOrder:     append([]string(nil), backendOrder...),
		HubBindAddress:   hubBindAddress,
	}
}

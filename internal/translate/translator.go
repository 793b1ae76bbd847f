// Package translate implements the Translator stage (SPEC_FULL.md §4.5): an
// ordered fallback chain of backends, each protected by a per-backend
// token-bucket rate limiter, that optionally attaches a translation to each
// transcription event while preserving input order.
package translate

import (
	"context"
	"errors"
)

// BackendKind names the recognized backend categories from SPEC_FULL.md
// §4.5. "none" is always a valid entry: the binary builds no backend for
// it, so it never produces a translation.
type BackendKind string

const (
	BackendLocalREST           BackendKind = "local_rest"
	BackendRemoteRESTPrimary   BackendKind = "remote_rest_primary"
	BackendRemoteRESTSecondary BackendKind = "remote_rest_secondary"
	BackendNone                BackendKind = "none"
)

// ErrBackendUnavailable is returned by a Backend when it cannot serve a
// request: network error, non-success status, empty response, or timeout
// are all folded into this single sentinel from the Translator's
// perspective (SPEC_FULL.md §4.5 algorithm step 2).
var ErrBackendUnavailable = errors.New("translate: backend unavailable")

// ErrRateLimited is returned when a backend's token bucket is exhausted.
// The Translator treats this identically to ErrBackendUnavailable.
var ErrRateLimited = errors.New("translate: backend rate limited")

// Result is what a Backend returns on success.
type Result struct {
	Text     string
	Language string
}

// Backend translates one piece of text. Implementations wrap a specific
// transport (local REST inference server, remote managed API, ...).
type Backend interface {
	Name() string
	Translate(ctx context.Context, text, sourceLang, targetLang string) (Result, error)
}

// SourcePolicy selects how the Translator determines a text's source
// language for a given event.
type SourcePolicy string

const (
	SourcePolicyDetected SourcePolicy = "detected"
	SourcePolicyExplicit SourcePolicy = "explicit"
)

// Config configures a Translator.
type Config struct {
	Enabled        bool
	SourcePolicy   SourcePolicy
	SourceLanguage string
	TargetLanguage string
	Concurrency    int
}

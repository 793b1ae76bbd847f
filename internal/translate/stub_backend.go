package translate

import (
	"context"
	"time"
)

// StubBackendConfig configures a StubBackend.
type StubBackendConfig struct {
	// ProcessingDelay simulates network/inference latency.
	ProcessingDelay time.Duration
	// Dictionary maps targetLang -> sourceText -> translatedText. A miss
	// returns the source text unchanged as the translation.
	Dictionary map[string]map[string]string
	// AlwaysFail makes every call return ErrBackendUnavailable, for
	// exercising the fallback chain.
	AlwaysFail bool
}

// StubBackend is a deterministic test Backend with no network dependency,
// grounded on the teacher's stub translator dictionary idiom.
type StubBackend struct {
	name   string
	config StubBackendConfig
}

// NewStubBackend constructs a StubBackend identified by name.
func NewStubBackend(name string, config StubBackendConfig) *StubBackend {
	return &StubBackend{name: name, config: config}
}

func (b *StubBackend) Name() string { return b.name }

func (b *StubBackend) Translate(ctx context.Context, text, sourceLang, targetLang string) (Result, error) {
	if b.config.ProcessingDelay > 0 {
		select {
		case <-time.After(b.config.ProcessingDelay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if b.config.AlwaysFail {
		return Result{}, ErrBackendUnavailable
	}

	translated := text
	if langDict, ok := b.config.Dictionary[targetLang]; ok {
		if t, ok := langDict[text]; ok {
			translated = t
		}
	}
	return Result{Text: translated, Language: targetLang}, nil
}

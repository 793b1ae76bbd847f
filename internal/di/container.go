// Package di wires voxstream's components together, adapted from the
// teacher's functional-options Container pattern.
package di

import (
	"go.uber.org/zap"

	"voxstream/internal/asr"
	"voxstream/internal/audioio"
	"voxstream/internal/config"
	"voxstream/internal/translate"
	"voxstream/internal/vad"
)

// Container holds every pluggable dependency the Supervisor needs to
// assemble a pipeline. Production code builds one with NewContainer and
// the With* options below; tests use NewTestContainer.
type Container struct {
	Config     config.Config
	Logger     *zap.SugaredLogger
	Source     audioio.Source
	Detector   vad.Detector
	Recognizer asr.Recognizer
	Backends   []translate.Backend
}

// ContainerOption configures a Container during construction.
type ContainerOption func(*Container)

// WithConfig sets the resolved startup configuration.
func WithConfig(cfg config.Config) ContainerOption {
	return func(c *Container) { c.Config = cfg }
}

// WithLogger sets the structured logger shared by every component.
func WithLogger(logger *zap.SugaredLogger) ContainerOption {
	return func(c *Container) { c.Logger = logger }
}

// WithSource sets the audio capture source.
func WithSource(s audioio.Source) ContainerOption {
	return func(c *Container) { c.Source = s }
}

// WithDetector sets the voice activity detector.
func WithDetector(d vad.Detector) ContainerOption {
	return func(c *Container) { c.Detector = d }
}

// WithRecognizer sets the ASR recognizer.
func WithRecognizer(r asr.Recognizer) ContainerOption {
	return func(c *Container) { c.Recognizer = r }
}

// WithTranslatorBackends sets the ordered translation backend chain.
func WithTranslatorBackends(backends ...translate.Backend) ContainerOption {
	return func(c *Container) { c.Backends = backends }
}

// NewContainer builds a Container from the given options. Any dependency
// left unset by the caller is the caller's responsibility: NewContainer
// does not fill in production defaults, unlike NewTestContainer.
func NewContainer(opts ...ContainerOption) *Container {
	c := &Container{Logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewTestContainer wires every stub implementation (silence-free tone
// source, RMS-threshold VAD, templated ASR, dictionary translation) so the
// full pipeline can run end-to-end in tests without a real model, device,
// or network dependency.
func NewTestContainer() *Container {
	cfg := config.Default()
	cfg.Translation.Enabled = true
	cfg.Translation.TargetLanguage = "pt"
	cfg.Translation.Backends = []config.BackendConfig{{Kind: "local_rest"}}

	logger := zap.NewNop().Sugar()
	backend := translate.NewStubBackend("local_rest", translate.StubBackendConfig{})

	return &Container{
		Config:     cfg,
		Logger:     logger,
		Source:     audioio.NewToneSource(20000, 50),
		Detector:   vad.NewStubDetector(vad.Config{SampleRate: cfg.SampleRate, Threshold: cfg.VADThreshold}),
		Recognizer: asr.NewStubRecognizer(nil),
		Backends:   []translate.Backend{backend},
	}
}

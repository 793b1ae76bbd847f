// Package main contains the voxstream service entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voxstream/internal/asr"
	"voxstream/internal/audioio"
	"voxstream/internal/config"
	"voxstream/internal/di"
	"voxstream/internal/status"
	"voxstream/internal/supervisor"
	"voxstream/internal/translate"
	"voxstream/internal/vad"
)

const defaultConfigPath = "voxstream.json"

func main() {
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		logger.Fatalw("configuration error, refusing to start", "error", err)
	}

	container := buildContainer(cfg, logger)
	sessionID := uuid.NewString()

	sup := supervisor.New(container, sessionID, func(ev status.Event) {
		logger.Infow("stage transition", "stage", ev.Stage, "state", ev.State, "detail", ev.Detail)
	})

	logger.Infow("voxstream starting", "session_id", sessionID)

	runErr := make(chan error, 1)
	go func() { runErr <- sup.Run(ctx) }()

	select {
	case <-signals:
		logger.Infow("shutdown signal received")
	case err := <-runErr:
		if err != nil {
			logger.Errorw("pipeline exited with fault", "error", err)
		}
	}

	cancel()

	drain := time.Duration(cfg.Hub.ShutdownDrainSec*float64(time.Second)) + 5*time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), drain)
	defer shutdownCancel()

	if err := sup.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("graceful shutdown failed", "error", err)
	}

	logger.Infow("voxstream stopped")
}

func getConfigPath() string {
	if path := os.Getenv("VOXSTREAM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildContainer wires the components the binary runs with. No real capture
// device, VAD model, recognizer or translation client is implemented
// (SPEC_FULL.md §1 non-goal): Source is silence, and the detector,
// recognizer and translation backends are the stub implementations.
// "none" backend entries are skipped, so they never produce a translation.
func buildContainer(cfg config.Config, logger *zap.SugaredLogger) *di.Container {
	var backends []translate.Backend
	for _, b := range cfg.Translation.Backends {
		if translate.BackendKind(b.Kind) == translate.BackendNone {
			continue
		}
		backends = append(backends, translate.NewRateLimitedBackend(
			translate.NewStubBackend(b.Kind, translate.StubBackendConfig{}),
			b.RateLimitPerSec,
		))
	}

	return di.NewContainer(
		di.WithConfig(cfg),
		di.WithLogger(logger),
		di.WithSource(audioio.NewSilenceSource()),
		di.WithDetector(vad.NewStubDetector(vad.Config{SampleRate: cfg.SampleRate, Threshold: cfg.VADThreshold})),
		di.WithRecognizer(asr.NewStubRecognizer(nil)),
		di.WithTranslatorBackends(backends...),
	)
}

func newLogger() *zap.SugaredLogger {
	zapCfg := zap.NewProductionConfig()
	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	return logger.Sugar()
}

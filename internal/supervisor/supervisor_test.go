package supervisor

import (
	"context"
	"testing"
	"time"

	"voxstream/internal/di"
	"voxstream/internal/status"
)

func TestSupervisor_RunProducesSegmentsAndShutsDownCleanly(t *testing.T) {
	container := di.NewTestContainer()
	container.Config.Persistence.DataDir = t.TempDir()
	container.Config.SilenceThresholdSec = 0.1
	container.Config.MinSpeechDurationSec = 0.02
	container.Config.PreSpeechPadSec = 0.02
	container.Config.PostSpeechPadSec = 0.02
	container.Config.VADWindowSec = 0.02
	container.Config.Hub.BindAddress = "127.0.0.1"
	container.Config.Hub.Port = 0

	var events []status.Event
	sup := New(container, "sess-test", func(ev status.Event) { events = append(events, ev) })

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- sup.Run(ctx) }()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := sup.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}

	foundStartup, foundShutdown := false, false
	for _, ev := range events {
		if ev.Stage == "startup" && ev.State == "completed" {
			foundStartup = true
		}
		if ev.Stage == "shutdown" && ev.State == "completed" {
			foundShutdown = true
		}
	}
	if !foundStartup {
		t.Fatalf("expected a startup completed event, got %+v", events)
	}
	if !foundShutdown {
		t.Fatalf("expected a shutdown completed event, got %+v", events)
	}
	if got := sup.counters.SegmentsEmitted.Load(); got == 0 {
		t.Fatalf("expected the tone source to produce at least one segment, got %d", got)
	}
}

package ring

import (
	"context"
	"io"
	"testing"
	"time"

	"voxstream/internal/audioio"
)

func TestBuffer_PushOverwritesOldestAndCounts(t *testing.T) {
	b := New(2)
	b.Push(audioio.Frame{Index: 0})
	b.Push(audioio.Frame{Index: 1})
	overwritten := b.Push(audioio.Frame{Index: 2})

	if overwritten != 1 {
		t.Fatalf("expected overwritten=1, got %d", overwritten)
	}
	if b.Overwritten() != 1 {
		t.Fatalf("expected Overwritten() == 1, got %d", b.Overwritten())
	}

	snap := b.SnapshotLast(2)
	if len(snap) != 2 || snap[0].Index != 1 || snap[1].Index != 2 {
		t.Fatalf("unexpected snapshot contents: %+v", snap)
	}
}

func TestBuffer_PopOrWaitBlocksThenReturns(t *testing.T) {
	b := New(4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan audioio.Frame, 1)
	go func() {
		f, err := b.PopOrWait(ctx)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		done <- f
	}()

	time.Sleep(10 * time.Millisecond)
	b.Push(audioio.Frame{Index: 42})

	select {
	case f := <-done:
		if f.Index != 42 {
			t.Fatalf("expected index 42, got %d", f.Index)
		}
	case <-time.After(time.Second):
		t.Fatal("PopOrWait never returned")
	}
}

func TestBuffer_PopOrWaitTimesOut(t *testing.T) {
	b := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := b.PopOrWait(ctx)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestBuffer_CloseDrainsBufferedFramesThenReturnsEOF(t *testing.T) {
	b := New(4)
	b.Push(audioio.Frame{Index: 1})
	b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	f, err := b.PopOrWait(ctx)
	if err != nil {
		t.Fatalf("expected buffered frame before EOF, got error: %v", err)
	}
	if f.Index != 1 {
		t.Fatalf("expected index 1, got %d", f.Index)
	}

	if _, err := b.PopOrWait(ctx); err != io.EOF {
		t.Fatalf("expected io.EOF once drained and closed, got %v", err)
	}
}

func TestBuffer_CloseWakesBlockedWaiter(t *testing.T) {
	b := New(4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := b.PopOrWait(ctx)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case err := <-done:
		if err != io.EOF {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("PopOrWait never woke after Close")
	}
}

func TestBuffer_SnapshotLastFewerThanCapacity(t *testing.T) {
	b := New(10)
	b.Push(audioio.Frame{Index: 0})
	snap := b.SnapshotLast(5)
	if len(snap) != 1 {
		t.Fatalf("expected 1 frame snapshot, got %d", len(snap))
	}
}

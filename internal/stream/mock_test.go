package stream

import (
	"context"
	"testing"
	"time"

	"github.com/e7canasta/replay-sensor/internal/types"
)

func TestMockSource_EmitsValidFrames(t *testing.T) {
	src := NewMockSource(8, 6, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer src.Stop()

	var frames []types.Frame
	deadline := time.After(2 * time.Second)
	for len(frames) < 5 {
		select {
		case f, ok := <-src.Frames():
			if !ok {
				t.Fatal("frame channel closed early")
			}
			frames = append(frames, f)
		case <-deadline:
			t.Fatalf("timed out after %d frames", len(frames))
		}
	}

	prev := uint64(0)
	for i, f := range frames {
		if err := f.Validate(); err != nil {
			t.Errorf("frame %d invalid: %v", i, err)
		}
		if f.Seq <= prev {
			t.Errorf("sequence not monotonic: %d after %d", f.Seq, prev)
		}
		prev = f.Seq
		if f.TraceID == "" {
			t.Errorf("frame %d missing trace id", i)
		}
	}
}

func TestMockSource_StopClosesChannel(t *testing.T) {
	src := NewMockSource(4, 4, 100)
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// Idempotent.
	if err := src.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-src.Frames():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("frame channel not closed after Stop")
		}
	}
}

func TestMockSource_ExhaustionClosesChannel(t *testing.T) {
	src := NewMockSource(4, 4, 200)
	src.MaxFrames = 3

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer src.Stop()

	count := 0
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-src.Frames():
			if !ok {
				if count != 3 {
					t.Errorf("frames before exhaustion: got %d, want 3", count)
				}
				return
			}
			count++
		case <-deadline:
			t.Fatal("source did not exhaust")
		}
	}
}

func TestMockSource_FPSFallback(t *testing.T) {
	src := NewMockSource(4, 4, 0)
	if src.FPS() != DefaultFPS {
		t.Errorf("fps fallback: got %v, want %v", src.FPS(), DefaultFPS)
	}
}

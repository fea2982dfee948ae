package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/e7canasta/replay-sensor/internal/events"
	"github.com/e7canasta/replay-sensor/internal/replay"
	"github.com/e7canasta/replay-sensor/internal/types"
)

// scriptSource is a hand-fed frame source for driving the loop in tests.
type scriptSource struct {
	ch  chan types.Frame
	fps float64
}

func newScriptSource(fps float64) *scriptSource {
	return &scriptSource{ch: make(chan types.Frame, 64), fps: fps}
}

func (s *scriptSource) Start(ctx context.Context) error  { return nil }
func (s *scriptSource) Frames() <-chan types.Frame       { return s.ch }
func (s *scriptSource) Stop() error                      { return nil }
func (s *scriptSource) FPS() float64                     { return s.fps }
func (s *scriptSource) Stats() (st types.StreamStats)    { return }

func rgbFrame(seq uint64, width, height int) types.Frame {
	return types.Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     width,
		Height:    height,
		Format:    types.FormatRGB24,
		Data:      make([]byte, width*height*3),
	}
}

func runDriver(t *testing.T, d *Driver) (chan error, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()
	return errCh, cancel
}

func TestDriver_IngestsAndNormalizes(t *testing.T) {
	src := newScriptSource(30)
	buf := replay.New(30, 5)
	bus := events.New()
	d := New(Config{Width: 8, Height: 8, PreviewWidth: 4, PreviewHeight: 4}, src, buf, bus)

	errCh, cancel := runDriver(t, d)

	// Mismatched resolution gets stretched to target before the push.
	for i := 1; i <= 10; i++ {
		src.ch <- rgbFrame(uint64(i), 16, 8)
	}

	waitFor(t, func() bool { return buf.Len() == 10 })

	snap := buf.Snapshot()
	for i, f := range snap.Frames {
		if f.Width != 8 || f.Height != 8 {
			t.Errorf("frame %d not normalized: %dx%d", i, f.Width, f.Height)
		}
		if f.Seq != uint64(i+1) {
			t.Errorf("frame order broken at %d: seq %d", i, f.Seq)
		}
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("cancelled run should return nil, got %v", err)
	}
}

func TestDriver_DropsMalformedFrames(t *testing.T) {
	src := newScriptSource(30)
	buf := replay.New(30, 5)
	bus := events.New()
	d := New(Config{Width: 8, Height: 8, PreviewWidth: 4, PreviewHeight: 4}, src, buf, bus)

	errCh, cancel := runDriver(t, d)
	defer cancel()

	src.ch <- types.Frame{Seq: 1, Width: 8, Height: 8, Format: types.FormatRGB24, Data: []byte{1, 2, 3}}
	src.ch <- types.Frame{Seq: 2, Width: 8, Height: 8, Format: types.FormatJPEG, Data: []byte("not a jpeg")}
	src.ch <- rgbFrame(3, 8, 8)

	waitFor(t, func() bool { return buf.Len() == 1 })

	stats := d.Stats()
	if stats.FramesIn != 1 || stats.FramesBad != 2 {
		t.Errorf("stats: got in=%d bad=%d, want 1/2", stats.FramesIn, stats.FramesBad)
	}

	cancel()
	<-errCh
}

func TestDriver_SourceExhaustionIsTerminal(t *testing.T) {
	src := newScriptSource(30)
	buf := replay.New(30, 5)
	bus := events.New()

	sink := make(chan events.Event, 16)
	if err := bus.Subscribe("test", sink); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	d := New(Config{Width: 8, Height: 8, PreviewWidth: 4, PreviewHeight: 4}, src, buf, bus)
	errCh, cancel := runDriver(t, d)
	defer cancel()

	src.ch <- rgbFrame(1, 8, 8)
	close(src.ch)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrSourceUnavailable) {
			t.Fatalf("run returned %v, want ErrSourceUnavailable", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not terminate on source exhaustion")
	}

	// Already-buffered frames survive the loop's death.
	if buf.Len() != 1 {
		t.Errorf("buffered frames after source loss: got %d, want 1", buf.Len())
	}

	found := false
	for len(sink) > 0 {
		if ev := <-sink; ev.Type == events.TypeSourceLost {
			found = true
		}
	}
	if !found {
		t.Error("no source_lost event published")
	}
}

func TestDriver_ThrottledEmissions(t *testing.T) {
	src := newScriptSource(30)
	buf := replay.New(30, 5)
	bus := events.New()

	sink := make(chan events.Event, 256)
	if err := bus.Subscribe("test", sink); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Generous intervals so a fast burst yields exactly one of each.
	d := New(Config{
		Width: 8, Height: 8,
		PreviewWidth: 4, PreviewHeight: 4,
		PreviewInterval: time.Hour,
		StatusInterval:  time.Hour,
	}, src, buf, bus)

	errCh, cancel := runDriver(t, d)
	defer cancel()

	for i := 1; i <= 50; i++ {
		src.ch <- rgbFrame(uint64(i), 8, 8)
	}
	waitFor(t, func() bool { return buf.Len() == 50 })

	cancel()
	<-errCh

	var statusCount, previewCount int
	for len(sink) > 0 {
		switch ev := <-sink; ev.Type {
		case events.TypeBuffer:
			statusCount++
			if ev.BufferFrames < 1 {
				t.Errorf("buffer event missing frame count: %+v", ev)
			}
		case events.TypePreview:
			previewCount++
			if ev.Preview == nil || ev.Preview.Width != 4 || ev.Preview.Height != 4 {
				t.Errorf("preview not downscaled: %+v", ev.Preview)
			}
		}
	}
	if statusCount != 1 {
		t.Errorf("status events in one interval: got %d, want 1", statusCount)
	}
	if previewCount != 1 {
		t.Errorf("preview events in one interval: got %d, want 1", previewCount)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

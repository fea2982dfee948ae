// Package capture runs the ingestion loop: frames are pulled from the
// source, normalized to the target resolution, and pushed into the rolling
// buffer. Status and preview emissions are wall-clock throttled and go
// through the non-blocking event bus, so nothing downstream can slow
// ingestion.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/e7canasta/replay-sensor/internal/events"
	"github.com/e7canasta/replay-sensor/internal/imaging"
	"github.com/e7canasta/replay-sensor/internal/replay"
	"github.com/e7canasta/replay-sensor/internal/stream"
	"github.com/e7canasta/replay-sensor/internal/types"
)

// ErrSourceUnavailable is returned by Run when the source stops delivering
// frames. Terminal: no reconnection is attempted, the operator restarts.
var ErrSourceUnavailable = errors.New("frame source unavailable")

// Config holds capture settings.
type Config struct {
	// Width and Height are the target resolution frames are normalized to
	// before entering the buffer. Mismatched frames are stretched.
	Width  int
	Height int

	// PreviewWidth and PreviewHeight size the throttled preview copies.
	PreviewWidth  int
	PreviewHeight int

	// PreviewInterval gates preview emissions (default 1/30 s).
	PreviewInterval time.Duration

	// StatusInterval gates buffer-fill emissions (default 100 ms).
	StatusInterval time.Duration
}

// Stats is a snapshot of driver counters.
type Stats struct {
	// FramesIn is the number of frames pushed into the buffer
	FramesIn uint64
	// FramesBad is the number of malformed frames dropped
	FramesBad uint64
}

// Driver owns the ingestion loop. One driver writes to one buffer.
type Driver struct {
	cfg Config
	src stream.Source
	buf *replay.Buffer
	bus *events.Bus
	fps float64

	framesIn  atomic.Uint64
	framesBad atomic.Uint64

	// Throttle clocks, touched only by the Run goroutine.
	lastPreview time.Time
	lastStatus  time.Time
}

// New creates a capture driver. Zero intervals get the defaults from the
// original deployment: 1/30 s preview, 100 ms status.
func New(cfg Config, src stream.Source, buf *replay.Buffer, bus *events.Bus) *Driver {
	if cfg.PreviewInterval <= 0 {
		cfg.PreviewInterval = time.Second / 30
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 100 * time.Millisecond
	}
	return &Driver{
		cfg: cfg,
		src: src,
		buf: buf,
		bus: bus,
		fps: buf.FPS(),
	}
}

// Run consumes frames until the context is cancelled or the source ends.
// Source exhaustion or failure returns ErrSourceUnavailable after a
// source_lost event; cancellation returns nil.
//
// Per frame: normalize outside the lock, push under the lock (O(copy) hold
// time only), then the throttled fire-and-forget emissions.
func (d *Driver) Run(ctx context.Context) error {
	slog.Info("capture loop starting",
		"target_resolution", d.cfg.Width,
		"target_height", d.cfg.Height,
		"fps", d.fps,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("capture loop cancelled")
			return nil

		case raw, ok := <-d.src.Frames():
			if !ok {
				slog.Error("frame source ended, capture loop terminating",
					"frames_ingested", d.framesIn.Load(),
				)
				d.bus.Publish(events.Event{Type: events.TypeSourceLost})
				return ErrSourceUnavailable
			}
			d.ingest(raw)
		}
	}
}

func (d *Driver) ingest(raw types.Frame) {
	if err := raw.Validate(); err != nil {
		d.dropBad(raw, err)
		return
	}

	frame, err := imaging.Normalize(raw, d.cfg.Width, d.cfg.Height)
	if err != nil {
		d.dropBad(raw, err)
		return
	}

	seconds := d.buf.Push(frame)
	d.framesIn.Add(1)

	now := time.Now()
	if now.Sub(d.lastStatus) >= d.cfg.StatusInterval {
		d.lastStatus = now
		d.bus.Publish(events.Event{
			Type:          events.TypeBuffer,
			BufferSeconds: seconds,
			BufferFrames:  int(math.Round(seconds * d.fps)),
		})
	}

	if now.Sub(d.lastPreview) >= d.cfg.PreviewInterval {
		d.lastPreview = now
		d.emitPreview(frame)
	}
}

// emitPreview publishes a downscaled copy of the latest frame. Compression
// happens in the sink, not here.
func (d *Driver) emitPreview(frame types.Frame) {
	scaled, err := imaging.ScaleRGB24(frame.Data, frame.Width, frame.Height,
		d.cfg.PreviewWidth, d.cfg.PreviewHeight)
	if err != nil {
		slog.Warn("preview downscale failed", "error", err, "seq", frame.Seq)
		return
	}

	preview := types.Frame{
		Seq:       frame.Seq,
		Timestamp: frame.Timestamp,
		Width:     d.cfg.PreviewWidth,
		Height:    d.cfg.PreviewHeight,
		Format:    types.FormatRGB24,
		Data:      scaled,
		TraceID:   frame.TraceID,
	}
	d.bus.Publish(events.Event{Type: events.TypePreview, Preview: &preview})
}

func (d *Driver) dropBad(raw types.Frame, err error) {
	d.framesBad.Add(1)
	slog.Warn("dropping malformed frame",
		"seq", raw.Seq,
		"format", raw.Format,
		"error", err,
	)
}

// Stats returns a snapshot of driver counters.
func (d *Driver) Stats() Stats {
	return Stats{
		FramesIn:  d.framesIn.Load(),
		FramesBad: d.framesBad.Load(),
	}
}

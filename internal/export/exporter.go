// Package export persists buffer snapshots as video files.
//
// The exporter is a two-state machine: Idle and Exporting. A trigger while
// an export is running is silently ignored; a trigger on an empty buffer is
// rejected synchronously. The buffer lock is held only for the snapshot:
// encoding runs on a private copy in its own goroutine, so an export of any
// duration cannot block ingestion.
package export

import (
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/replay-sensor/internal/events"
	"github.com/e7canasta/replay-sensor/internal/replay"
	"github.com/e7canasta/replay-sensor/internal/types"
)

// ErrEmptyBuffer is returned when a trigger arrives with no frames buffered.
var ErrEmptyBuffer = errors.New("no frames in buffer to export")

// filenameLayout names clips by the capture time of their first frame.
const filenameLayout = "2006-01-02_15-04-05"

// Job is an immutable unit of export work: a snapshot's frames plus the
// parameters needed to encode them. Created once per accepted trigger,
// consumed exactly once, then discarded.
type Job struct {
	// ID identifies the job in logs and events
	ID string
	// Frames oldest-to-newest, already captured at trigger time
	Frames []types.Frame
	// FPS is the playback rate, captured with the snapshot
	FPS float64
	// Width and Height are the target export resolution
	Width  int
	Height int
	// Path is the output file
	Path string
	// Start is the nominal capture time of the first frame
	Start time.Time
}

// Encoder writes a job's frames to its output path.
type Encoder interface {
	Encode(job *Job) error
}

// Exporter coordinates triggers against a single in-flight export.
type Exporter struct {
	buf       *replay.Buffer
	enc       Encoder
	bus       *events.Bus
	outputDir string
	width     int
	height    int

	exporting atomic.Bool
	wg        sync.WaitGroup
}

// Config holds exporter settings.
type Config struct {
	// OutputDir receives the clip files
	OutputDir string
	// Width and Height are the export resolution
	Width  int
	Height int
}

// New creates an exporter writing clips with enc.
func New(cfg Config, buf *replay.Buffer, enc Encoder, bus *events.Bus) *Exporter {
	return &Exporter{
		buf:       buf,
		enc:       enc,
		bus:       bus,
		outputDir: cfg.OutputDir,
		width:     cfg.Width,
		height:    cfg.Height,
	}
}

// Trigger requests that the current buffer contents be persisted.
//
// While an export is in flight the call is a silent no-op (nil). An empty
// buffer rejects the trigger with ErrEmptyBuffer and never leaves Idle.
// Otherwise the snapshot is taken, the job is built, and encoding proceeds
// asynchronously; completion is reported on the event bus.
func (e *Exporter) Trigger() error {
	if !e.exporting.CompareAndSwap(false, true) {
		slog.Debug("export already in progress, trigger ignored")
		return nil
	}

	snap := e.buf.Snapshot()
	if len(snap.Frames) == 0 {
		e.exporting.Store(false)
		e.bus.Publish(events.Event{
			Type: events.TypeExportRejected,
			Err:  ErrEmptyBuffer.Error(),
		})
		return ErrEmptyBuffer
	}

	// Label the clip by when its first frame was captured, not by when the
	// export started.
	start := snap.Taken.Add(-snap.Duration())
	job := &Job{
		ID:     uuid.New().String(),
		Frames: snap.Frames,
		FPS:    snap.FPS,
		Width:  e.width,
		Height: e.height,
		Path:   filepath.Join(e.outputDir, start.Format(filenameLayout)+".avi"),
		Start:  start,
	}

	slog.Info("export starting",
		"job_id", job.ID,
		"frames", len(job.Frames),
		"fps", job.FPS,
		"path", job.Path,
	)
	e.bus.Publish(events.Event{
		Type:   events.TypeExportStarted,
		JobID:  job.ID,
		Frames: len(job.Frames),
	})

	e.wg.Add(1)
	go e.run(job)
	return nil
}

// run encodes the job entirely outside the buffer lock, then returns the
// exporter to Idle regardless of outcome.
func (e *Exporter) run(job *Job) {
	defer e.wg.Done()
	defer e.exporting.Store(false)

	started := time.Now()
	if err := e.enc.Encode(job); err != nil {
		slog.Error("export failed",
			"job_id", job.ID,
			"path", job.Path,
			"error", err,
		)
		e.bus.Publish(events.Event{
			Type:  events.TypeExportFailed,
			JobID: job.ID,
			Err:   err.Error(),
		})
		return
	}

	slog.Info("export finished",
		"job_id", job.ID,
		"path", job.Path,
		"frames", len(job.Frames),
		"elapsed", time.Since(started),
	)
	e.bus.Publish(events.Event{
		Type:     events.TypeExportFinished,
		JobID:    job.ID,
		Filename: filepath.Base(job.Path),
		Frames:   len(job.Frames),
	})
}

// Exporting reports whether an export is currently in flight.
func (e *Exporter) Exporting() bool {
	return e.exporting.Load()
}

// Wait blocks until any in-flight export completes. Used during shutdown.
func (e *Exporter) Wait() {
	e.wg.Wait()
}

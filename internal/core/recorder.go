// Package core wires the replay sensor together: source, rolling buffer,
// capture driver, exporter, event sinks, MQTT emitter, and control plane.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/e7canasta/replay-sensor/internal/capture"
	"github.com/e7canasta/replay-sensor/internal/config"
	"github.com/e7canasta/replay-sensor/internal/control"
	"github.com/e7canasta/replay-sensor/internal/emitter"
	"github.com/e7canasta/replay-sensor/internal/events"
	"github.com/e7canasta/replay-sensor/internal/export"
	"github.com/e7canasta/replay-sensor/internal/imaging"
	"github.com/e7canasta/replay-sensor/internal/replay"
	"github.com/e7canasta/replay-sensor/internal/stream"
	"github.com/e7canasta/replay-sensor/internal/types"
)

// Recorder is the main service orchestrator
type Recorder struct {
	cfg *config.Config

	source         stream.Source
	buffer         *replay.Buffer
	bus            *events.Bus
	driver         *capture.Driver
	exporter       *export.Exporter
	emitter        *emitter.MQTTEmitter
	controlHandler *control.Handler
	status         *StatusTracker

	started   time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
	cancelCtx context.CancelFunc // for the MQTT shutdown command
}

// NewRecorder creates a recorder from a configuration file.
func NewRecorder(configPath string) (*Recorder, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"instance_id", cfg.InstanceID,
		"resolution", cfg.Capture.Resolution,
		"retention_s", cfg.Capture.RetentionSeconds,
	)

	return &Recorder{
		cfg: cfg,
		bus: events.New(),
	}, nil
}

// newSource picks the frame source from the camera config. A V4L2 device
// wins over an RTSP URL; with neither a synthetic source is used.
func (r *Recorder) newSource(width, height int) (stream.Source, error) {
	switch {
	case r.cfg.Camera.Device != "":
		src, err := stream.NewV4L2Source(stream.V4L2Config{
			DevicePath: r.cfg.Camera.Device,
			Width:      width,
			Height:     height,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open v4l2 device: %w", err)
		}
		slog.Info("using v4l2 source", "device", r.cfg.Camera.Device)
		return src, nil

	case r.cfg.Camera.RTSPURL != "":
		src, err := stream.NewRTSPSource(stream.RTSPConfig{
			URL:    r.cfg.Camera.RTSPURL,
			Width:  width,
			Height: height,
			FPS:    float64(r.cfg.Capture.FPS),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create rtsp source: %w", err)
		}
		slog.Info("using rtsp source", "url", r.cfg.Camera.RTSPURL)
		return src, nil

	default:
		slog.Info("using mock source (no camera configured)")
		return stream.NewMockSource(width, height, float64(r.cfg.Capture.FPS)), nil
	}
}

// Run starts the recorder and blocks until the context is cancelled or the
// frame source dies. Source loss is fatal: the error propagates to main.
func (r *Recorder) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	r.isRunning = true
	r.started = time.Now()
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancelCtx = cancel
	r.mu.Unlock()

	slog.Info("replay sensor starting", "instance_id", r.cfg.InstanceID)

	if err := os.MkdirAll(r.cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	width, height := config.Dimensions(r.cfg.Capture.Resolution)

	src, err := r.newSource(width, height)
	if err != nil {
		return err
	}
	r.source = src

	if err := r.source.Start(ctx); err != nil {
		return fmt.Errorf("failed to start source: %w", err)
	}

	// The buffer is sized from the rate the source actually delivers, not
	// the configured guess.
	fps := r.source.FPS()
	r.buffer = replay.New(fps, r.cfg.Capture.RetentionSeconds)
	slog.Info("rolling buffer created",
		"fps", fps,
		"retention_s", r.cfg.Capture.RetentionSeconds,
		"capacity_frames", r.buffer.Capacity(),
	)

	r.driver = capture.New(capture.Config{
		Width:           width,
		Height:          height,
		PreviewWidth:    r.cfg.Preview.Width,
		PreviewHeight:   r.cfg.Preview.Height,
		PreviewInterval: time.Duration(r.cfg.Preview.IntervalMS) * time.Millisecond,
		StatusInterval:  time.Duration(r.cfg.Preview.StatusIntervalMS) * time.Millisecond,
	}, r.source, r.buffer, r.bus)

	r.exporter = export.New(export.Config{
		OutputDir: r.cfg.Output.Dir,
		Width:     width,
		Height:    height,
	}, r.buffer, export.NewAVIEncoder(r.cfg.Output.JPEGQuality), r.bus)

	r.emitter = emitter.NewMQTTEmitter(r.cfg)
	if err := r.emitter.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect mqtt: %w", err)
	}

	r.status = NewStatusTracker(
		func(s types.Status) {
			if err := r.emitter.PublishStatus(s); err != nil {
				slog.Debug("status publish failed", "error", err)
			}
		},
		r.buffer.Retention,
		r.exporter.Exporting,
	)

	r.controlHandler = control.NewHandler(r.cfg, r.emitter.Client, control.CommandCallbacks{
		OnGetStatus:    r.getStatus,
		OnExport:       r.exporter.Trigger,
		OnSetRetention: r.setRetention,
		OnShutdown:     r.shutdownViaControl,
	})
	if err := r.controlHandler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start control plane: %w", err)
	}

	sink := make(chan events.Event, 64)
	if err := r.bus.Subscribe("recorder", sink); err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	r.wg.Add(1)
	go r.consumeEvents(ctx, sink)

	r.wg.Add(1)
	go r.publishHealth(ctx)

	errCh := make(chan error, 1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		errCh <- r.driver.Run(ctx)
	}()

	slog.Info("replay sensor running",
		"buffer_capacity", r.buffer.Capacity(),
		"output_dir", r.cfg.Output.Dir,
	)

	select {
	case <-ctx.Done():
		slog.Info("recorder run loop exiting")
		return nil
	case err := <-errCh:
		if errors.Is(err, capture.ErrSourceUnavailable) {
			slog.Error("frame source lost, service terminating")
		}
		return err
	}
}

// consumeEvents dispatches bus events: previews go to MQTT as msgpack, the
// rest feed the status tracker.
func (r *Recorder) consumeEvents(ctx context.Context, sink chan events.Event) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sink:
			if !ok {
				return
			}
			if ev.Type == events.TypePreview {
				r.emitPreview(ev.Preview)
				continue
			}
			r.status.Apply(ev)
		}
	}
}

// emitPreview compresses a preview frame and publishes it. Compression is
// done here so a slow broker can only cost preview freshness, never
// ingestion throughput.
func (r *Recorder) emitPreview(frame *types.Frame) {
	if frame == nil {
		return
	}
	jpeg, err := imaging.EncodeJPEG(frame.Data, frame.Width, frame.Height, r.cfg.Output.JPEGQuality)
	if err != nil {
		slog.Warn("preview jpeg encode failed", "seq", frame.Seq, "error", err)
		return
	}
	payload := types.NewPreviewPayload(frame.Seq, frame.Timestamp, frame.Width, frame.Height, jpeg)
	if err := r.emitter.PublishPreview(payload); err != nil {
		slog.Debug("preview publish failed", "error", err)
	}
}

// publishHealth reports service health on MQTT every 30 s.
func (r *Recorder) publishHealth(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := r.HealthCheck().Marshal()
			if err != nil {
				slog.Error("failed to marshal health report", "error", err)
				continue
			}
			if err := r.emitter.PublishHealth(payload); err != nil {
				slog.Debug("health publish failed", "error", err)
			}
		}
	}
}

// getStatus backs the get_status control command.
func (r *Recorder) getStatus() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := map[string]interface{}{
		"instance_id": r.cfg.InstanceID,
		"uptime_s":    time.Since(r.started).Seconds(),
		"running":     r.isRunning,
	}
	if r.buffer != nil {
		status["buffer_seconds"] = r.buffer.Seconds()
		status["buffer_frames"] = r.buffer.Len()
		status["retention_seconds"] = r.buffer.Retention()
	}
	if r.exporter != nil {
		status["exporting"] = r.exporter.Exporting()
	}
	if r.driver != nil {
		stats := r.driver.Stats()
		status["frames_ingested"] = stats.FramesIn
		status["frames_dropped"] = stats.FramesBad
	}
	return status
}

// setRetention backs the set_retention control command: bounds-checked,
// then applied live without interrupting capture.
func (r *Recorder) setRetention(seconds int) error {
	if err := r.cfg.ValidateRetention(seconds); err != nil {
		return err
	}

	capacity := r.buffer.SetRetention(seconds)
	slog.Info("retention window changed",
		"retention_s", seconds,
		"capacity_frames", capacity,
	)
	return nil
}

// shutdownViaControl backs the shutdown control command.
func (r *Recorder) shutdownViaControl() error {
	r.mu.RLock()
	cancel := r.cancelCtx
	r.mu.RUnlock()

	if cancel == nil {
		return fmt.Errorf("service not running")
	}
	cancel()
	return nil
}

// Shutdown performs graceful shutdown of all components.
//
// Order matters: the source stops first so the driver drains and exits, the
// exporter finishes any in-flight clip, then the control plane and MQTT go
// down last so the final status still reaches the broker.
func (r *Recorder) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	slog.Info("shutting down replay sensor")

	if r.cancelCtx != nil {
		r.cancelCtx()
	}

	if r.source != nil {
		if err := r.source.Stop(); err != nil {
			slog.Error("failed to stop source", "error", err)
		}
	}

	if r.exporter != nil {
		slog.Info("waiting for in-flight export")
		r.exporter.Wait()
	}

	if r.status != nil {
		r.status.Stop()
	}

	if r.controlHandler != nil {
		if err := r.controlHandler.Stop(); err != nil {
			slog.Error("failed to stop control handler", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("shutdown timeout, goroutines still running")
	}

	if r.bus != nil {
		if err := r.bus.Close(); err != nil {
			slog.Error("failed to close event bus", "error", err)
		}
	}

	if r.emitter != nil {
		if err := r.emitter.Disconnect(); err != nil {
			slog.Error("failed to disconnect mqtt", "error", err)
		}
	}

	r.mu.Lock()
	uptime := time.Since(r.started)
	r.isRunning = false
	r.mu.Unlock()

	slog.Info("replay sensor shutdown complete", "uptime", uptime)
	return nil
}

// HealthPort returns the configured health server port.
func (r *Recorder) HealthPort() string {
	return r.cfg.HealthPort
}

// ShutdownTimeout returns the configured graceful shutdown timeout.
func (r *Recorder) ShutdownTimeout() time.Duration {
	timeout := time.Duration(r.cfg.ShutdownTimeoutS) * time.Second
	if timeout == 0 {
		return 5 * time.Second
	}
	return timeout
}

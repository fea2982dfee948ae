package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"github.com/e7canasta/replay-sensor/internal/types"
)

// V4L2Source captures MJPEG frames from a USB webcam via the V4L2 API.
// Frames are delivered compressed (FormatJPEG); the capture driver decodes
// and normalizes them outside the buffer lock.
type V4L2Source struct {
	devicePath string
	width      int
	height     int

	cam *device.Device
	fps float64

	framesCh chan types.Frame
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu          sync.Mutex
	started     bool
	stopped     bool
	seq         atomic.Uint64
	dropped     atomic.Uint64
	bytesRead   atomic.Uint64
	lastFrameAt atomic.Int64
}

// V4L2Config configures the webcam source.
type V4L2Config struct {
	// DevicePath is the device node, e.g. /dev/video0
	DevicePath string
	// Width and Height are the requested capture resolution. The camera may
	// negotiate a different size; frames carry the negotiated dimensions.
	Width  int
	Height int
}

// NewV4L2Source opens the webcam and negotiates the pixel format. The
// device's reported frame rate becomes the buffer's FPS, falling back to
// DefaultFPS when the driver reports nothing usable.
func NewV4L2Source(cfg V4L2Config) (*V4L2Source, error) {
	if cfg.DevicePath == "" {
		return nil, fmt.Errorf("device path is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid resolution: %dx%d", cfg.Width, cfg.Height)
	}

	cam, err := device.Open(
		cfg.DevicePath,
		device.WithBufferSize(2),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtMJPEG,
			Width:       uint32(cfg.Width),
			Height:      uint32(cfg.Height),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %s: %w", cfg.DevicePath, err)
	}

	fps := DefaultFPS
	if rate, err := cam.GetFrameRate(); err == nil && rate > 0 {
		fps = float64(rate)
	} else {
		slog.Warn("camera did not report a frame rate, using default",
			"device", cfg.DevicePath,
			"default_fps", DefaultFPS,
		)
	}

	negotiated, err := cam.GetPixFormat()
	if err == nil {
		slog.Info("camera opened",
			"device", cfg.DevicePath,
			"resolution", fmt.Sprintf("%dx%d", negotiated.Width, negotiated.Height),
			"requested", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
			"fps", fps,
		)
		cfg.Width = int(negotiated.Width)
		cfg.Height = int(negotiated.Height)
	}

	return &V4L2Source{
		devicePath: cfg.DevicePath,
		width:      cfg.Width,
		height:     cfg.Height,
		cam:        cam,
		fps:        fps,
		framesCh:   make(chan types.Frame, 10),
	}, nil
}

// Start begins streaming from the camera.
func (s *V4L2Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("source already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	if err := s.cam.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start camera: %w", err)
	}
	s.cancel = cancel
	s.started = true

	s.wg.Add(1)
	go s.pump(ctx)

	slog.Info("v4l2 source started", "device", s.devicePath)
	return nil
}

// pump copies camera buffers into owned frames until the device stops
// delivering. Channel closure is the terminal signal to the consumer.
func (s *V4L2Source) pump(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.framesCh)

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-s.cam.GetOutput():
			if !ok {
				slog.Error("camera stopped delivering frames", "device", s.devicePath)
				return
			}
			if len(raw) == 0 {
				continue
			}

			// The device recycles its buffers; frames must own their data.
			data := make([]byte, len(raw))
			copy(data, raw)

			frame := types.Frame{
				Seq:       s.seq.Add(1),
				Timestamp: time.Now(),
				Width:     s.width,
				Height:    s.height,
				Format:    types.FormatJPEG,
				Data:      data,
				TraceID:   uuid.New().String(),
			}
			s.bytesRead.Add(uint64(len(data)))
			s.lastFrameAt.Store(frame.Timestamp.UnixNano())

			select {
			case s.framesCh <- frame:
			default:
				s.dropped.Add(1)
			}
		}
	}
}

// Frames returns the frame channel.
func (s *V4L2Source) Frames() <-chan types.Frame {
	return s.framesCh
}

// Stop shuts down the camera and closes the frame channel. Idempotent.
func (s *V4L2Source) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	if err := s.cam.Close(); err != nil {
		return fmt.Errorf("failed to close camera: %w", err)
	}

	slog.Info("v4l2 source stopped",
		"device", s.devicePath,
		"frames", s.seq.Load(),
		"dropped", s.dropped.Load(),
	)
	return nil
}

// FPS reports the device frame rate.
func (s *V4L2Source) FPS() float64 {
	return s.fps
}

// Stats returns source statistics.
func (s *V4L2Source) Stats() types.StreamStats {
	s.mu.Lock()
	connected := s.started && !s.stopped
	s.mu.Unlock()

	var latency int64
	if last := s.lastFrameAt.Load(); last > 0 {
		latency = time.Since(time.Unix(0, last)).Milliseconds()
	}

	return types.StreamStats{
		FrameCount:    s.seq.Load(),
		FramesDropped: s.dropped.Load(),
		FPS:           s.fps,
		LatencyMS:     latency,
		Resolution:    fmt.Sprintf("%dx%d", s.width, s.height),
		BytesRead:     s.bytesRead.Load(),
		IsConnected:   connected,
	}
}

package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/replay-sensor/internal/types"
)

// RTSPSource captures frames from an RTSP stream via GStreamer, decoded
// and scaled to RGB24 at the requested resolution by the pipeline itself.
//
// Stream end or pipeline failure is terminal: the frame channel is closed
// and no reconnection is attempted.
type RTSPSource struct {
	rtspURL string
	width   int
	height  int
	fps     float64

	pipeline *gst.Pipeline
	appsink  *app.Sink

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
	connected   atomic.Bool
}

// RTSPConfig configures the RTSP source.
type RTSPConfig struct {
	// URL is the rtsp:// stream URL (required)
	URL string
	// Width and Height are the decoded output resolution
	Width  int
	Height int
	// FPS is the stream frame rate; DefaultFPS when non-positive
	FPS float64
}

// NewRTSPSource creates an RTSP source.
func NewRTSPSource(cfg RTSPConfig) (*RTSPSource, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rtsp url is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid resolution: %dx%d", cfg.Width, cfg.Height)
	}
	fps := cfg.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}

	return &RTSPSource{
		rtspURL:  cfg.URL,
		width:    cfg.Width,
		height:   cfg.Height,
		fps:      fps,
		framesCh: make(chan types.Frame, 10),
	}, nil
}

// Start initializes GStreamer and runs the pipeline.
func (s *RTSPSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("source already started")
	}

	gst.Init(nil)

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	s.wg.Add(1)
	go s.runPipeline(ctx)

	slog.Info("rtsp source starting",
		"url", s.rtspURL,
		"resolution", fmt.Sprintf("%dx%d", s.width, s.height),
		"fps", s.fps,
	)
	return nil
}

// runPipeline builds and runs the pipeline until EOS, error, or shutdown.
// The frame channel closes on exit; the consumer treats that as terminal.
func (s *RTSPSource) runPipeline(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.framesCh)
	defer s.connected.Store(false)

	if err := s.connectAndStream(ctx); err != nil {
		slog.Error("rtsp pipeline terminated", "error", err)
	}
}

func (s *RTSPSource) connectAndStream(ctx context.Context) error {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	s.pipeline = pipeline

	// protocols=4 forces TCP transport
	rtspsrc, err := gst.NewElement("rtspsrc")
	if err != nil {
		return fmt.Errorf("failed to create rtspsrc: %w", err)
	}
	rtspsrc.SetProperty("location", s.rtspURL)
	rtspsrc.SetProperty("protocols", 4)
	rtspsrc.SetProperty("latency", 200)

	rtph264depay, _ := gst.NewElement("rtph264depay")
	avdecH264, _ := gst.NewElement("avdec_h264")
	videoconvert, _ := gst.NewElement("videoconvert")
	videoscale, _ := gst.NewElement("videoscale")

	capsfilter, _ := gst.NewElement("capsfilter")
	caps := gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,format=RGB,width=%d,height=%d",
		s.width, s.height,
	))
	capsfilter.SetProperty("caps", caps)

	appsink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("failed to create appsink: %w", err)
	}
	s.appsink = appsink
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)
	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return s.onNewSample(sink)
		},
	})

	pipeline.AddMany(rtspsrc, rtph264depay, avdecH264, videoconvert, videoscale, capsfilter, appsink.Element)
	gst.ElementLinkMany(rtph264depay, avdecH264, videoconvert, videoscale, capsfilter, appsink.Element)

	// rtspsrc pads appear only once the stream is negotiated.
	rtspsrc.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		sinkPad := rtph264depay.GetStaticPad("sink")
		if sinkPad != nil {
			srcPad.Link(sinkPad)
		}
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to set pipeline to playing: %w", err)
	}

	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			pipeline.SetState(gst.StateNull)
			return nil
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Error("rtsp stream ended")
			pipeline.SetState(gst.StateNull)
			return fmt.Errorf("end of stream")

		case gst.MessageError:
			gerr := msg.ParseError()
			pipeline.SetState(gst.StateNull)
			return fmt.Errorf("pipeline error: %w", gerr)

		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				_, newState := msg.ParseStateChanged()
				if newState == gst.StatePlaying {
					s.connected.Store(true)
					slog.Info("rtsp stream connected")
				}
			}
		}
	}
}

// onNewSample copies a decoded sample out of GStreamer's buffer into an
// owned frame.
func (s *RTSPSource) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowError
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	defer buffer.Unmap()

	if len(data) == 0 {
		return gst.FlowOK
	}

	frameData := make([]byte, len(data))
	copy(frameData, data)

	frame := types.Frame{
		Seq:       s.seq.Add(1),
		Timestamp: time.Now(),
		Width:     s.width,
		Height:    s.height,
		Format:    types.FormatRGB24,
		Data:      frameData,
		TraceID:   uuid.New().String(),
	}
	s.bytesRead.Add(uint64(len(frameData)))
	s.lastFrameAt.Store(frame.Timestamp.UnixNano())

	select {
	case s.framesCh <- frame:
	default:
		s.dropped.Add(1)
	}
	return gst.FlowOK
}

// Frames returns the frame channel.
func (s *RTSPSource) Frames() <-chan types.Frame {
	return s.framesCh
}

// Stop shuts down the pipeline and closes the frame channel. Idempotent.
func (s *RTSPSource) Stop() error {
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

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("rtsp source stopped", "frames", s.seq.Load(), "dropped", s.dropped.Load())
	case <-time.After(3 * time.Second):
		slog.Warn("rtsp source stop timeout, pipeline may still be running")
	}
	return nil
}

// FPS reports the configured stream frame rate.
func (s *RTSPSource) FPS() float64 {
	return s.fps
}

// Stats returns source statistics.
func (s *RTSPSource) Stats() types.StreamStats {
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
		IsConnected:   s.connected.Load(),
	}
}

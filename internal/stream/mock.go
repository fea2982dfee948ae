package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/replay-sensor/internal/types"
)

// MockSource generates synthetic RGB24 frames at a fixed rate. Used when no
// camera is configured and throughout the tests.
type MockSource struct {
	width  int
	height int
	fps    float64

	// MaxFrames, when > 0, ends the stream after that many frames. This
	// simulates source exhaustion for the terminal-failure path.
	MaxFrames uint64

	framesCh chan types.Frame
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu          sync.Mutex
	isRunning   bool
	startTime   time.Time
	seq         atomic.Uint64
	emitted     atomic.Uint64
	lastFrameAt atomic.Int64
}

// NewMockSource creates a mock source emitting width x height frames at fps.
func NewMockSource(width, height int, fps float64) *MockSource {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &MockSource{
		width:    width,
		height:   height,
		fps:      fps,
		framesCh: make(chan types.Frame, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start begins generating frames.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return fmt.Errorf("source already running")
	}
	m.isRunning = true
	m.startTime = time.Now()
	m.mu.Unlock()

	slog.Info("mock source starting",
		"width", m.width,
		"height", m.height,
		"fps", m.fps,
	)

	m.wg.Add(1)
	go m.generate(ctx)
	return nil
}

// Frames returns the frame channel.
func (m *MockSource) Frames() <-chan types.Frame {
	return m.framesCh
}

// Stop ends frame generation and closes the frame channel.
func (m *MockSource) Stop() error {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()

	m.mu.Lock()
	m.isRunning = false
	m.mu.Unlock()
	return nil
}

// FPS reports the configured frame rate.
func (m *MockSource) FPS() float64 {
	return m.fps
}

// Stats returns source statistics.
func (m *MockSource) Stats() types.StreamStats {
	m.mu.Lock()
	running := m.isRunning
	m.mu.Unlock()

	var latency int64
	if last := m.lastFrameAt.Load(); last > 0 {
		latency = time.Since(time.Unix(0, last)).Milliseconds()
	}

	return types.StreamStats{
		FrameCount:  m.emitted.Load(),
		FPS:         m.fps,
		LatencyMS:   latency,
		Resolution:  fmt.Sprintf("%dx%d", m.width, m.height),
		IsConnected: running,
	}
}

func (m *MockSource) generate(ctx context.Context) {
	defer m.wg.Done()
	defer close(m.framesCh)

	interval := time.Duration(float64(time.Second) / m.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			if m.MaxFrames > 0 && m.emitted.Load() >= m.MaxFrames {
				slog.Info("mock source exhausted", "frames", m.emitted.Load())
				return
			}
			frame := m.createFrame()
			select {
			case m.framesCh <- frame:
				m.emitted.Add(1)
				m.lastFrameAt.Store(frame.Timestamp.UnixNano())
			default:
				// Consumer behind, drop rather than queue.
			}
		}
	}
}

// createFrame builds a gray gradient frame so previews show motion.
func (m *MockSource) createFrame() types.Frame {
	seq := m.seq.Add(1)
	data := make([]byte, m.width*m.height*3)
	shade := byte(seq % 256)
	for i := range data {
		data[i] = shade
	}

	return types.Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     m.width,
		Height:    m.height,
		Format:    types.FormatRGB24,
		Data:      data,
		TraceID:   uuid.New().String(),
	}
}

package types

import (
	"fmt"
	"time"
)

// Pixel formats carried by Frame.Format.
const (
	// FormatRGB24 is packed RGB, 3 bytes per pixel.
	FormatRGB24 = "RGB24"
	// FormatJPEG is a compressed JPEG image (V4L2 webcams deliver this).
	FormatJPEG = "JPEG"
)

// Frame represents a single video frame.
//
// Frames are immutable once created: Data is never modified after a frame
// has been handed to the buffer, only copied out or discarded.
type Frame struct {
	// Seq is the monotonic sequence number assigned by the source
	Seq uint64
	// Timestamp is when the frame was captured/decoded
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Format is the pixel format (FormatRGB24 after normalization)
	Format string
	// Data contains the frame data
	Data []byte
	// TraceID is a unique identifier for tracing a frame through the pipeline
	TraceID string
}

// Validate checks that Data is consistent with the declared dimensions.
// Only RGB24 frames have a computable expected size; compressed frames
// merely need a non-empty payload.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions: %dx%d", f.Width, f.Height)
	}
	switch f.Format {
	case FormatRGB24:
		expected := f.Width * f.Height * 3
		if len(f.Data) != expected {
			return fmt.Errorf("invalid RGB24 data size: got %d, expected %d", len(f.Data), expected)
		}
	default:
		if len(f.Data) == 0 {
			return fmt.Errorf("empty %s frame data", f.Format)
		}
	}
	return nil
}

// StreamStats contains source statistics
type StreamStats struct {
	// FrameCount is the total number of frames produced
	FrameCount uint64
	// FramesDropped is the total number of frames dropped (channel full)
	FramesDropped uint64
	// FPS is the native frame rate the source reports
	FPS float64
	// LatencyMS is the time since the last frame in milliseconds
	LatencyMS int64
	// Resolution is the frame resolution (e.g., "1920x1080")
	Resolution string
	// BytesRead is the total bytes read from the source
	BytesRead uint64
	// IsConnected indicates if the source is currently delivering frames
	IsConnected bool
}

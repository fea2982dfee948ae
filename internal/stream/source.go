// Package stream provides frame sources for the replay recorder: a V4L2
// webcam source (the usual deployment), an RTSP/GStreamer source, and a
// synthetic mock for development and tests.
//
// All sources share the same contract: Start returns immediately, frames
// arrive asynchronously on the Frames channel, and the channel is closed
// exactly once when the source ends, whether by Stop, end-of-stream, or a
// read failure. There is no automatic reconnect: a dead source is terminal
// and the operator restarts the service.
package stream

import (
	"context"

	"github.com/e7canasta/replay-sensor/internal/types"
)

// DefaultFPS is assumed when a device reports no usable frame rate.
const DefaultFPS = 30.0

// Source is the contract for frame acquisition.
//
// Implementations must guarantee:
//   - Start() returns immediately (non-blocking)
//   - Frames() never delivers after the channel is closed
//   - a full channel drops the frame rather than blocking the device
//   - Stop() is idempotent
//   - Stats() and FPS() are safe from any goroutine
type Source interface {
	// Start begins frame acquisition. Frames arrive asynchronously on the
	// Frames channel once the device is delivering.
	Start(ctx context.Context) error

	// Frames returns the frame channel. It is closed when the source ends
	// for any reason; consumers treat closure as terminal.
	Frames() <-chan types.Frame

	// Stop shuts the source down and closes the frame channel. Idempotent.
	Stop() error

	// FPS reports the native frame rate, with DefaultFPS substituted when
	// the device reports nothing usable.
	FPS() float64

	// Stats returns current source statistics.
	Stats() types.StreamStats
}

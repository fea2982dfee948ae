package types

import "time"

// Recorder states surfaced to operators.
const (
	StateReady       = "ready"
	StateExporting   = "exporting"
	StateSaved       = "saved"
	StateError       = "error"
	StateEmptyBuffer = "empty_buffer"
	StateSourceLost  = "source_lost"
)

// Status is the operator-facing snapshot published on the status topic.
type Status struct {
	State            string  `json:"state"`
	Message          string  `json:"message"`
	BufferSeconds    float64 `json:"buffer_seconds"`
	BufferFrames     int     `json:"buffer_frames"`
	RetentionSeconds int     `json:"retention_seconds"`
	IsExporting      bool    `json:"is_exporting"`
	Timestamp        string  `json:"timestamp"`
}

// PreviewPayload is the downscaled live frame published on the preview
// topic, msgpack-encoded to keep the payload compact.
type PreviewPayload struct {
	Seq       uint64 `msgpack:"seq"`
	Timestamp int64  `msgpack:"ts_ms"`
	Width     int    `msgpack:"width"`
	Height    int    `msgpack:"height"`
	JPEG      []byte `msgpack:"jpeg"`
}

// NewPreviewPayload builds a preview payload from an already-downscaled
// JPEG rendition of a frame.
func NewPreviewPayload(seq uint64, ts time.Time, width, height int, jpeg []byte) PreviewPayload {
	return PreviewPayload{
		Seq:       seq,
		Timestamp: ts.UnixMilli(),
		Width:     width,
		Height:    height,
		JPEG:      jpeg,
	}
}

package export

import (
	"fmt"
	"math"

	"github.com/icza/mjpeg"

	"github.com/e7canasta/replay-sensor/internal/imaging"
)

// AVIEncoder writes frames as an MJPEG-in-AVI file: each frame is
// JPEG-compressed and appended at the job's captured FPS. Pure Go, no
// external encoder process.
type AVIEncoder struct {
	// JPEGQuality is the per-frame compression quality (1-100).
	JPEGQuality int
}

// NewAVIEncoder creates an encoder with the given JPEG quality
// (80 when non-positive).
func NewAVIEncoder(quality int) *AVIEncoder {
	if quality <= 0 {
		quality = 80
	}
	return &AVIEncoder{JPEGQuality: quality}
}

// Encode writes the job's frames to job.Path. Every frame is re-normalized
// to the export resolution first; a mid-stream resolution change must not
// corrupt the container.
func (e *AVIEncoder) Encode(job *Job) error {
	if len(job.Frames) == 0 {
		return fmt.Errorf("no frames reached the encoder")
	}

	fps := int32(math.Round(job.FPS))
	if fps < 1 {
		fps = 1
	}

	aw, err := mjpeg.New(job.Path, int32(job.Width), int32(job.Height), fps)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", job.Path, err)
	}

	for i, frame := range job.Frames {
		normalized, err := imaging.Normalize(frame, job.Width, job.Height)
		if err != nil {
			aw.Close()
			return fmt.Errorf("frame %d (seq %d) unusable: %w", i, frame.Seq, err)
		}
		jpg, err := imaging.EncodeJPEG(normalized.Data, normalized.Width, normalized.Height, e.JPEGQuality)
		if err != nil {
			aw.Close()
			return fmt.Errorf("frame %d (seq %d) compression failed: %w", i, frame.Seq, err)
		}
		if err := aw.AddFrame(jpg); err != nil {
			aw.Close()
			return fmt.Errorf("failed to write frame %d: %w", i, err)
		}
	}

	if err := aw.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", job.Path, err)
	}
	return nil
}

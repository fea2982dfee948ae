// Package imaging converts between the pipeline's packed RGB24 frames and
// image.Image, and provides the stretch scaling used for normalization and
// preview downscale. Scaling is a deterministic stretch to the target size;
// no aspect-ratio correction is applied.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/nfnt/resize"

	"github.com/e7canasta/replay-sensor/internal/types"
)

// FromRGB24 converts packed RGB bytes (3 bytes/pixel) to image.RGBA.
func FromRGB24(data []byte, width, height int) (*image.RGBA, error) {
	expected := width * height * 3
	if len(data) != expected {
		return nil, fmt.Errorf("invalid RGB24 data size: got %d, expected %d", len(data), expected)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		img.Pix[i*4+0] = data[i*3+0]
		img.Pix[i*4+1] = data[i*3+1]
		img.Pix[i*4+2] = data[i*3+2]
		img.Pix[i*4+3] = 255
	}
	return img, nil
}

// ToRGB24 converts an image to packed RGB bytes, dropping alpha.
func ToRGB24(img image.Image) []byte {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	out := make([]byte, width*height*3)
	for i := 0; i < width*height; i++ {
		out[i*3+0] = rgba.Pix[i*4+0]
		out[i*3+1] = rgba.Pix[i*4+1]
		out[i*3+2] = rgba.Pix[i*4+2]
	}
	return out
}

// ScaleRGB24 stretches packed RGB data to the target dimensions.
func ScaleRGB24(data []byte, width, height, targetWidth, targetHeight int) ([]byte, error) {
	if width == targetWidth && height == targetHeight {
		return data, nil
	}
	img, err := FromRGB24(data, width, height)
	if err != nil {
		return nil, err
	}
	scaled := resize.Resize(uint(targetWidth), uint(targetHeight), img, resize.Bilinear)
	return ToRGB24(scaled), nil
}

// EncodeJPEG compresses packed RGB data to JPEG at the given quality (1-100).
func EncodeJPEG(data []byte, width, height, quality int) ([]byte, error) {
	img, err := FromRGB24(data, width, height)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("JPEG encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeJPEG decompresses a JPEG image to packed RGB data.
func DecodeJPEG(data []byte) (rgb []byte, width, height int, err error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("JPEG decode failed: %w", err)
	}
	bounds := img.Bounds()
	return ToRGB24(img), bounds.Dx(), bounds.Dy(), nil
}

// Normalize returns a frame decoded to RGB24 and stretched to the target
// resolution. Frames that already match are returned unchanged; metadata
// (Seq, Timestamp, TraceID) is always preserved.
func Normalize(f types.Frame, targetWidth, targetHeight int) (types.Frame, error) {
	data := f.Data
	width, height := f.Width, f.Height

	if f.Format == types.FormatJPEG {
		var err error
		data, width, height, err = DecodeJPEG(f.Data)
		if err != nil {
			return types.Frame{}, err
		}
	}

	if width == targetWidth && height == targetHeight {
		if f.Format == types.FormatRGB24 {
			return f, nil
		}
	} else {
		var err error
		data, err = ScaleRGB24(data, width, height, targetWidth, targetHeight)
		if err != nil {
			return types.Frame{}, err
		}
	}

	return types.Frame{
		Seq:       f.Seq,
		Timestamp: f.Timestamp,
		Width:     targetWidth,
		Height:    targetHeight,
		Format:    types.FormatRGB24,
		Data:      data,
		TraceID:   f.TraceID,
	}, nil
}

package imaging

import (
	"testing"

	"github.com/e7canasta/replay-sensor/internal/types"
)

// solidRGB builds a packed RGB frame of one color.
func solidRGB(width, height int, r, g, b byte) []byte {
	data := make([]byte, width*height*3)
	for i := 0; i < width*height; i++ {
		data[i*3+0] = r
		data[i*3+1] = g
		data[i*3+2] = b
	}
	return data
}

func TestRGB24RoundTrip(t *testing.T) {
	data := solidRGB(4, 3, 10, 200, 77)

	img, err := FromRGB24(data, 4, 3)
	if err != nil {
		t.Fatalf("FromRGB24: %v", err)
	}
	back := ToRGB24(img)

	if len(back) != len(data) {
		t.Fatalf("round-trip size: got %d, want %d", len(back), len(data))
	}
	for i := range data {
		if back[i] != data[i] {
			t.Fatalf("round-trip byte %d: got %d, want %d", i, back[i], data[i])
		}
	}
}

func TestFromRGB24_SizeMismatch(t *testing.T) {
	if _, err := FromRGB24(make([]byte, 10), 4, 3); err == nil {
		t.Error("expected error for truncated RGB data")
	}
}

func TestScaleRGB24_Stretch(t *testing.T) {
	cases := []struct {
		name                   string
		w, h, targetW, targetH int
	}{
		{"downscale", 8, 8, 4, 4},
		{"upscale", 4, 4, 8, 8},
		{"aspect change stretches", 8, 4, 4, 8},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := ScaleRGB24(solidRGB(tc.w, tc.h, 50, 100, 150), tc.w, tc.h, tc.targetW, tc.targetH)
			if err != nil {
				t.Fatalf("ScaleRGB24: %v", err)
			}
			if len(out) != tc.targetW*tc.targetH*3 {
				t.Fatalf("scaled size: got %d, want %d", len(out), tc.targetW*tc.targetH*3)
			}
		})
	}
}

func TestScaleRGB24_NoopWhenMatching(t *testing.T) {
	data := solidRGB(4, 4, 1, 2, 3)
	out, err := ScaleRGB24(data, 4, 4, 4, 4)
	if err != nil {
		t.Fatalf("ScaleRGB24: %v", err)
	}
	if &out[0] != &data[0] {
		t.Error("matching dimensions should not copy the frame")
	}
}

func TestJPEGRoundTrip(t *testing.T) {
	jpg, err := EncodeJPEG(solidRGB(16, 16, 200, 30, 30), 16, 16, 90)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	if len(jpg) == 0 {
		t.Fatal("empty JPEG output")
	}

	rgb, w, h, err := DecodeJPEG(jpg)
	if err != nil {
		t.Fatalf("DecodeJPEG: %v", err)
	}
	if w != 16 || h != 16 {
		t.Errorf("decoded dimensions: got %dx%d, want 16x16", w, h)
	}
	if len(rgb) != 16*16*3 {
		t.Errorf("decoded size: got %d, want %d", len(rgb), 16*16*3)
	}
}

func TestDecodeJPEG_Malformed(t *testing.T) {
	if _, _, _, err := DecodeJPEG([]byte("not a jpeg")); err == nil {
		t.Error("expected error for malformed JPEG")
	}
}

func TestNormalize(t *testing.T) {
	t.Run("matching RGB frame is returned unchanged", func(t *testing.T) {
		f := types.Frame{
			Seq: 7, Width: 4, Height: 4, Format: types.FormatRGB24,
			Data: solidRGB(4, 4, 9, 9, 9), TraceID: "t-7",
		}
		out, err := Normalize(f, 4, 4)
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if &out.Data[0] != &f.Data[0] {
			t.Error("matching frame should not be copied")
		}
	})

	t.Run("mismatched frame is stretched", func(t *testing.T) {
		f := types.Frame{
			Seq: 8, Width: 8, Height: 4, Format: types.FormatRGB24,
			Data: solidRGB(8, 4, 9, 9, 9), TraceID: "t-8",
		}
		out, err := Normalize(f, 4, 4)
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if out.Width != 4 || out.Height != 4 {
			t.Errorf("dimensions: got %dx%d, want 4x4", out.Width, out.Height)
		}
		if out.Seq != 8 || out.TraceID != "t-8" {
			t.Error("normalization must preserve frame metadata")
		}
	})

	t.Run("JPEG frame is decoded", func(t *testing.T) {
		jpg, err := EncodeJPEG(solidRGB(8, 8, 1, 2, 3), 8, 8, 90)
		if err != nil {
			t.Fatalf("EncodeJPEG: %v", err)
		}
		f := types.Frame{Seq: 9, Width: 8, Height: 8, Format: types.FormatJPEG, Data: jpg}
		out, err := Normalize(f, 4, 4)
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if out.Format != types.FormatRGB24 {
			t.Errorf("format: got %s, want RGB24", out.Format)
		}
		if len(out.Data) != 4*4*3 {
			t.Errorf("data size: got %d, want %d", len(out.Data), 4*4*3)
		}
	})

	t.Run("undecodable frame fails", func(t *testing.T) {
		f := types.Frame{Seq: 10, Width: 8, Height: 8, Format: types.FormatJPEG, Data: []byte("garbage")}
		if _, err := Normalize(f, 4, 4); err == nil {
			t.Error("expected error for undecodable frame")
		}
	})
}

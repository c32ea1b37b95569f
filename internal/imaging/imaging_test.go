package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/your-org/classguard/internal/models"
)

func solidImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 100, 255})
		}
	}
	return img
}

func TestDecode_RoundTrip(t *testing.T) {
	src := solidImage(32, 24)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "png", data: EncodePNG(src)},
		{name: "jpeg", data: EncodeJPEG(src, 90)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Decode(tt.data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 24 {
				t.Errorf("decoded bounds %v, want 32x24", img.Bounds())
			}
		})
	}
}

func TestDecode_CorruptInput(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"))
	if err == nil {
		t.Fatal("expected error for corrupt input")
	}
	if !models.IsKind(err, models.KindDecodeError) {
		t.Errorf("expected decode_error kind, got %v", err)
	}
}

func TestDetectFormat(t *testing.T) {
	src := solidImage(16, 16)

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{name: "png", data: EncodePNG(src), want: "image/png"},
		{name: "jpeg", data: EncodeJPEG(src, 90), want: "image/jpeg"},
		{name: "garbage falls back to jpeg", data: []byte("???"), want: "image/jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.data); got != tt.want {
				t.Errorf("DetectFormat = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBoundPixelArea(t *testing.T) {
	tests := []struct {
		name      string
		w, h      int
		maxArea   int
		wantScale bool
	}{
		{name: "under ceiling untouched", w: 100, h: 100, maxArea: 20000, wantScale: false},
		{name: "exactly at ceiling untouched", w: 100, h: 100, maxArea: 10000, wantScale: false},
		{name: "over ceiling downscaled", w: 200, h: 200, maxArea: 10000, wantScale: true},
		{name: "zero ceiling disables bounding", w: 200, h: 200, maxArea: 0, wantScale: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, scale := BoundPixelArea(solidImage(tt.w, tt.h), tt.maxArea)

			if !tt.wantScale {
				if scale != 1.0 {
					t.Errorf("scale = %v, want 1.0", scale)
				}
				if out.Bounds().Dx() != tt.w {
					t.Errorf("image resized when it should not be")
				}
				return
			}

			if scale >= 1.0 {
				t.Errorf("scale = %v, want < 1.0", scale)
			}
			area := out.Bounds().Dx() * out.Bounds().Dy()
			if area > tt.maxArea {
				t.Errorf("area %d still exceeds ceiling %d", area, tt.maxArea)
			}
			// Aspect ratio preserved for a square input.
			if out.Bounds().Dx() != out.Bounds().Dy() {
				t.Errorf("aspect ratio not preserved: %v", out.Bounds())
			}
		})
	}
}

func TestToRGBA_FreshBuffer(t *testing.T) {
	src := solidImage(10, 10)
	dst := ToRGBA(src)

	dst.Set(0, 0, color.RGBA{1, 2, 3, 255})
	if src.RGBAAt(0, 0) == dst.RGBAAt(0, 0) {
		t.Error("mutation of the copy reached the source")
	}
}

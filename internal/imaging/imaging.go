package imaging

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"

	"github.com/your-org/classguard/internal/models"
)

// Decode parses JPEG or PNG bytes. Unreadable input fails with a
// decode_error; nothing else in the pipeline runs after that.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, models.WrapError(models.KindDecodeError, "unsupported or corrupt image", err)
	}
	return img, nil
}

// DetectFormat reports the MIME type of encoded image bytes by sniffing the
// header, without a full decode. Unrecognized input falls back to JPEG.
func DetectFormat(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil && format == "png" {
		return "image/png"
	}
	return "image/jpeg"
}

// BoundPixelArea downscales img so its pixel area does not exceed maxArea,
// keeping aspect ratio. It returns the (possibly original) image and the
// applied scale factor (1.0 when untouched). Bounding the area bounds
// detector latency on pathological uploads.
func BoundPixelArea(img image.Image, maxArea int) (image.Image, float64) {
	b := img.Bounds()
	area := b.Dx() * b.Dy()
	if maxArea <= 0 || area <= maxArea {
		return img, 1.0
	}

	scale := math.Sqrt(float64(maxArea) / float64(area))
	w := int(float64(b.Dx()) * scale)
	h := int(float64(b.Dy()) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, float64(w) / float64(b.Dx())
}

// ToRGBA copies img into a fresh RGBA buffer. Callers mutate the copy, never
// the decoded source.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(dst, image.Point{}, img, b, draw.Src, nil)
	return dst
}

// EncodeJPEG encodes an image as JPEG with the given quality.
func EncodeJPEG(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	return buf.Bytes()
}

// EncodePNG encodes an image as PNG. Redacted outputs stay lossless so an
// obscured region cannot leak detail through recompression artifacts.
func EncodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

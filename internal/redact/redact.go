// Package redact irreversibly obscures face regions in an image.
//
// Two transforms are supported: a strong Gaussian blur (the sigma grows with
// the box, so large faces are obscured as thoroughly as small ones) and
// block pixelation (block size scaled to the box). Reversible tricks like
// downscale+upscale are deliberately not offered.
package redact

import (
	"image"
	"image/color"
	"math"

	"github.com/your-org/classguard/internal/imaging"
	"github.com/your-org/classguard/internal/models"
)

// Mode selects the obscuring transform.
type Mode string

const (
	ModeGaussian Mode = "gaussian"
	ModePixelate Mode = "pixelate"
)

// Options tune the engine. Zero values fall back to defaults.
type Options struct {
	Mode Mode
	// MarginPct expands each box by this fraction of its size on every
	// side, to cover hairline and edge pixels.
	MarginPct float64
	// SigmaDivisor: blur sigma = max(box side) / SigmaDivisor.
	SigmaDivisor float64
	// BlockDivisor: pixel block = max(box side) / BlockDivisor.
	BlockDivisor int
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeGaussian
	}
	if o.MarginPct <= 0 {
		o.MarginPct = 0.1
	}
	if o.SigmaDivisor <= 0 {
		o.SigmaDivisor = 8
	}
	if o.BlockDivisor <= 0 {
		o.BlockDivisor = 12
	}
	return o
}

// Engine applies the obscuring transform to selected boxes.
type Engine struct {
	opts Options
}

func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts.withDefaults()}
}

// Apply renders a new image with every box in boxes obscured. The source
// image is never mutated; pixels outside the margin-expanded boxes are
// copied bit for bit.
func (e *Engine) Apply(src image.Image, boxes []models.Rect) *image.RGBA {
	out := imaging.ToRGBA(src)
	w := out.Bounds().Dx()
	h := out.Bounds().Dy()

	for _, box := range boxes {
		r := box.Expand(e.opts.MarginPct, w, h)
		if r.Width() <= 0 || r.Height() <= 0 {
			continue
		}
		switch e.opts.Mode {
		case ModePixelate:
			e.pixelate(out, r)
		default:
			e.blur(out, r)
		}
	}
	return out
}

// ExpandBox exposes the margin expansion used by Apply so callers can report
// the exact redacted region.
func (e *Engine) ExpandBox(box models.Rect, imgW, imgH int) models.Rect {
	return box.Expand(e.opts.MarginPct, imgW, imgH)
}

// blur applies a separable Gaussian blur to the region in place. Sigma is
// scaled to the box so the result is unrecoverable at any face size.
func (e *Engine) blur(img *image.RGBA, r models.Rect) {
	side := r.Width()
	if r.Height() > side {
		side = r.Height()
	}
	sigma := float64(side) / e.opts.SigmaDivisor
	if sigma < 3 {
		sigma = 3
	}
	kernel := gaussianKernel(sigma)

	// Horizontal pass into a scratch buffer, vertical pass back into img.
	tmp := image.NewRGBA(image.Rect(0, 0, r.Width(), r.Height()))
	radius := len(kernel) / 2

	for y := r.Y1; y < r.Y2; y++ {
		for x := r.X1; x < r.X2; x++ {
			var cr, cg, cb, sum float64
			for k := -radius; k <= radius; k++ {
				sx := clampInt(x+k, r.X1, r.X2-1)
				px := img.RGBAAt(sx, y)
				wk := kernel[k+radius]
				cr += float64(px.R) * wk
				cg += float64(px.G) * wk
				cb += float64(px.B) * wk
				sum += wk
			}
			tmp.Set(x-r.X1, y-r.Y1, rgba(cr/sum, cg/sum, cb/sum))
		}
	}

	for y := r.Y1; y < r.Y2; y++ {
		for x := r.X1; x < r.X2; x++ {
			var cr, cg, cb, sum float64
			for k := -radius; k <= radius; k++ {
				sy := clampInt(y-r.Y1+k, 0, r.Height()-1)
				px := tmp.RGBAAt(x-r.X1, sy)
				wk := kernel[k+radius]
				cr += float64(px.R) * wk
				cg += float64(px.G) * wk
				cb += float64(px.B) * wk
				sum += wk
			}
			img.Set(x, y, rgba(cr/sum, cg/sum, cb/sum))
		}
	}
}

// pixelate replaces each block with its average color.
func (e *Engine) pixelate(img *image.RGBA, r models.Rect) {
	side := r.Width()
	if r.Height() > side {
		side = r.Height()
	}
	block := side / e.opts.BlockDivisor
	if block < 4 {
		block = 4
	}

	for by := r.Y1; by < r.Y2; by += block {
		for bx := r.X1; bx < r.X2; bx += block {
			x2 := clampInt(bx+block, r.X1, r.X2)
			y2 := clampInt(by+block, r.Y1, r.Y2)

			var cr, cg, cb float64
			n := 0
			for y := by; y < y2; y++ {
				for x := bx; x < x2; x++ {
					px := img.RGBAAt(x, y)
					cr += float64(px.R)
					cg += float64(px.G)
					cb += float64(px.B)
					n++
				}
			}
			if n == 0 {
				continue
			}
			avg := rgba(cr/float64(n), cg/float64(n), cb/float64(n))
			for y := by; y < y2; y++ {
				for x := bx; x < x2; x++ {
					img.Set(x, y, avg)
				}
			}
		}
	}
}

// gaussianKernel returns a normalized 1D kernel with radius 3*sigma.
func gaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(sigma * 3))
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func rgba(r, g, b float64) color.RGBA {
	return color.RGBA{R: clampByte(r), G: clampByte(g), B: clampByte(b), A: 255}
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

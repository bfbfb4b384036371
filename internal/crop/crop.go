// Package crop computes the cover-crop that maps an arbitrary camera frame
// onto the fixed-aspect kiosk canvas without letterboxing.
package crop

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// PortraitRatio is the kiosk canvas aspect (width / height)
const PortraitRatio = 9.0 / 16.0

// ErrInvalidSize is returned for non-positive source dimensions or ratios
var ErrInvalidSize = errors.New("invalid crop dimensions")

// Rect is the region of the source frame, in source pixels, that maps 1:1
// onto the output canvas
type Rect struct {
	SX, SY          float64
	SWidth, SHeight float64
}

// Compute returns the cover-crop of a vW x vH source for the target ratio.
// A source wider than the target loses its sides, otherwise it loses top
// and bottom.
func Compute(vW, vH int, ratio float64) (Rect, error) {
	if vW <= 0 || vH <= 0 || ratio <= 0 || math.IsInf(ratio, 0) || math.IsNaN(ratio) {
		return Rect{}, fmt.Errorf("%w: %dx%d ratio %v", ErrInvalidSize, vW, vH, ratio)
	}

	w, h := float64(vW), float64(vH)
	if w/h > ratio {
		sW := h * ratio
		return Rect{SX: (w - sW) / 2, SY: 0, SWidth: sW, SHeight: h}, nil
	}

	sH := w / ratio
	return Rect{SX: 0, SY: (h - sH) / 2, SWidth: w, SHeight: sH}, nil
}

// Identity returns the crop that covers the whole source
func Identity(vW, vH int) Rect {
	return Rect{SWidth: float64(vW), SHeight: float64(vH)}
}

// Ratio returns width / height of the crop
func (r Rect) Ratio() float64 {
	if r.SHeight == 0 {
		return 0
	}
	return r.SWidth / r.SHeight
}

// Image rounds the crop to whole pixels, clamped to a vW x vH source, for
// use as a Mat region
func (r Rect) Image(vW, vH int) image.Rectangle {
	x0 := int(math.Round(r.SX))
	y0 := int(math.Round(r.SY))
	x1 := int(math.Round(r.SX + r.SWidth))
	y1 := int(math.Round(r.SY + r.SHeight))

	rect := image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, vW, vH))
	if rect.Empty() {
		return image.Rect(0, 0, vW, vH)
	}
	return rect
}

// Transformer caches the crop for the current source dimensions
type Transformer struct {
	ratio  float64
	width  int
	height int
	rect   Rect
	valid  bool
}

// NewTransformer creates a transformer for the given canvas ratio
func NewTransformer(ratio float64) *Transformer {
	return &Transformer{ratio: ratio}
}

// NewCanvasTransformer creates a transformer for a canvasW x canvasH canvas
func NewCanvasTransformer(canvasW, canvasH int) *Transformer {
	return NewTransformer(float64(canvasW) / float64(canvasH))
}

// Update recomputes the crop only when the source dimensions changed.
// changed is true when callers must resize buffers derived from the crop.
func (t *Transformer) Update(vW, vH int) (rect Rect, changed bool, err error) {
	if t.valid && vW == t.width && vH == t.height {
		return t.rect, false, nil
	}

	rect, err = Compute(vW, vH, t.ratio)
	if err != nil {
		return Rect{}, false, err
	}

	t.width, t.height = vW, vH
	t.rect = rect
	t.valid = true
	return rect, true, nil
}

// Rect returns the last computed crop
func (t *Transformer) Rect() (Rect, bool) {
	return t.rect, t.valid
}

// Ratio returns the target ratio
func (t *Transformer) Ratio() float64 {
	return t.ratio
}

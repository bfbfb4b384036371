package overlay

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// RasterWidthFactor scales the eye distance to the width of a raster asset
const RasterWidthFactor = 2.2

// Canvas is the drawing surface overlays render onto. *gg.Context
// satisfies it.
type Canvas interface {
	Push()
	Pop()
	Translate(x, y float64)
	Rotate(angle float64)
	DrawImageAnchored(im image.Image, x, y int, ax, ay float64)
	DrawRoundedRectangle(x, y, w, h, r float64)
	DrawEllipse(x, y, rx, ry float64)
	DrawCircle(x, y, r float64)
	DrawLine(x1, y1, x2, y2 float64)
	SetColor(c color.Color)
	SetLineWidth(lineWidth float64)
	Fill()
	FillPreserve()
	Stroke()
}

// Renderer draws one style inside a placement
type Renderer interface {
	Draw(c Canvas, p Placement)
}

// draw runs fn in the placement's rotated frame and restores the transform
func draw(c Canvas, p Placement, fn func()) {
	c.Push()
	defer c.Pop()
	c.Translate(p.Anchor.X, p.Anchor.Y)
	c.Rotate(p.Angle)
	fn()
}

// Raster draws an image asset centered on the eye line
type Raster struct {
	img    image.Image
	aspect float64

	// last resize, reused while the face stays the same size
	cached  image.Image
	cachedW int
	cachedH int
}

// NewRaster wraps an eyewear image
func NewRaster(img image.Image) *Raster {
	b := img.Bounds()
	aspect := 1.0
	if b.Dx() > 0 {
		aspect = float64(b.Dy()) / float64(b.Dx())
	}
	return &Raster{img: img, aspect: aspect}
}

// Draw implements Renderer
func (r *Raster) Draw(c Canvas, p Placement) {
	w, h := p.Size(RasterWidthFactor, r.aspect)
	iw, ih := int(math.Round(w)), int(math.Round(h))
	if iw <= 0 || ih <= 0 {
		return
	}

	if r.cached == nil || r.cachedW != iw || r.cachedH != ih {
		r.cached = imaging.Resize(r.img, iw, ih, imaging.Linear)
		r.cachedW, r.cachedH = iw, ih
	}

	draw(c, p, func() {
		c.DrawImageAnchored(r.cached,
			int(math.Round(p.Offset.X)),
			int(math.Round(p.Offset.Y)),
			0.5, 0.5)
	})
}

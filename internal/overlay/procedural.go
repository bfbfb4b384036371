package overlay

import (
	"image/color"
)

// ProceduralWidthFactor scales the eye distance to the width of a vector style
const ProceduralWidthFactor = 2.2

// ShapeKind is a vector primitive
type ShapeKind int

const (
	ShapeRoundedRect ShapeKind = iota
	ShapeEllipse
	ShapeCircle
	ShapeLine
)

// Shape is a primitive placed in the overlay box. X, Y, W, H and R are
// fractions of the box width (X, W, R) and height (Y, H) measured from the
// box center; for lines (X, Y) and (W, H) are the two end points.
type Shape struct {
	Kind       ShapeKind
	X, Y, W, H float64
	R          float64
}

// Procedural draws a style from vector primitives
type Procedural struct {
	Aspect    float64 // box height / width
	Fill      color.Color
	Stroke    color.Color
	LineWidth float64 // fraction of box width
	Shapes    []Shape
}

// Draw implements Renderer
func (s *Procedural) Draw(c Canvas, p Placement) {
	w, h := p.Size(ProceduralWidthFactor, s.Aspect)
	if w <= 0 || h <= 0 {
		return
	}
	cx, cy := p.Offset.X, p.Offset.Y

	draw(c, p, func() {
		c.SetLineWidth(s.LineWidth * w)
		for _, sh := range s.Shapes {
			switch sh.Kind {
			case ShapeRoundedRect:
				rw, rh := sh.W*w, sh.H*h
				c.DrawRoundedRectangle(cx+sh.X*w-rw/2, cy+sh.Y*h-rh/2, rw, rh, sh.R*w)
			case ShapeEllipse:
				c.DrawEllipse(cx+sh.X*w, cy+sh.Y*h, sh.W*w/2, sh.H*h/2)
			case ShapeCircle:
				c.DrawCircle(cx+sh.X*w, cy+sh.Y*h, sh.R*w)
			case ShapeLine:
				c.DrawLine(cx+sh.X*w, cy+sh.Y*h, cx+sh.W*w, cy+sh.H*h)
				c.SetColor(s.Stroke)
				c.Stroke()
				continue
			}
			if s.Fill != nil {
				c.SetColor(s.Fill)
				c.FillPreserve()
			}
			c.SetColor(s.Stroke)
			c.Stroke()
		}
	})
}

// builtin vector drawings, used for any style without a raster asset
func proceduralStyles() map[Style]*Procedural {
	frame := color.NRGBA{R: 20, G: 20, B: 28, A: 255}
	tint := color.NRGBA{R: 40, G: 40, B: 60, A: 110}

	return map[Style]*Procedural{
		StyleCyber: {
			Aspect:    0.3,
			Fill:      color.NRGBA{R: 0, G: 220, B: 255, A: 120},
			Stroke:    color.NRGBA{R: 120, G: 240, B: 255, A: 255},
			LineWidth: 0.012,
			Shapes: []Shape{
				{Kind: ShapeRoundedRect, W: 0.95, H: 0.8, R: 0.06},
			},
		},
		StyleClassic: {
			Aspect:    0.36,
			Fill:      tint,
			Stroke:    frame,
			LineWidth: 0.02,
			Shapes: []Shape{
				{Kind: ShapeRoundedRect, X: -0.24, W: 0.4, H: 0.85, R: 0.05},
				{Kind: ShapeRoundedRect, X: 0.24, W: 0.4, H: 0.85, R: 0.05},
				{Kind: ShapeLine, X: -0.04, Y: -0.15, W: 0.04, H: -0.15},
			},
		},
		StyleAviator: {
			Aspect:    0.42,
			Fill:      color.NRGBA{R: 70, G: 50, B: 20, A: 140},
			Stroke:    color.NRGBA{R: 190, G: 160, B: 90, A: 255},
			LineWidth: 0.012,
			Shapes: []Shape{
				{Kind: ShapeEllipse, X: -0.23, Y: 0.05, W: 0.42, H: 0.9},
				{Kind: ShapeEllipse, X: 0.23, Y: 0.05, W: 0.42, H: 0.9},
				{Kind: ShapeLine, X: -0.04, Y: -0.3, W: 0.04, H: -0.3},
				{Kind: ShapeLine, X: -0.42, Y: -0.4, W: 0.42, H: -0.4},
			},
		},
		StyleRetro: {
			Aspect:    0.4,
			Fill:      tint,
			Stroke:    color.NRGBA{R: 150, G: 30, B: 40, A: 255},
			LineWidth: 0.02,
			Shapes: []Shape{
				{Kind: ShapeCircle, X: -0.23, R: 0.18},
				{Kind: ShapeCircle, X: 0.23, R: 0.18},
				{Kind: ShapeLine, X: -0.05, W: 0.05},
			},
		},
		StyleMonocle: {
			Aspect:    0.4,
			Fill:      color.NRGBA{R: 220, G: 220, B: 240, A: 60},
			Stroke:    color.NRGBA{R: 200, G: 170, B: 60, A: 255},
			LineWidth: 0.015,
			Shapes: []Shape{
				{Kind: ShapeCircle, X: 0.23, R: 0.19},
				{Kind: ShapeLine, X: 0.23, Y: 0.48, W: 0.32, H: 1.4},
			},
		},
	}
}

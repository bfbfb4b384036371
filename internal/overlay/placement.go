package overlay

import (
	"math"

	"github.com/dudu/biokiosk/internal/landmark"
)

// Placement is the rotated frame an overlay is drawn in.
// Coordinates are canvas pixels; Offset is expressed in the overlay's
// rotated frame, relative to Anchor.
type Placement struct {
	Anchor landmark.Point // nasal bridge
	Dist   float64        // distance between outer eye corners
	Angle  float64        // radians, 0 when the eyes are level
	Offset landmark.Point // bridge -> eye midpoint, rotated by -Angle
}

// Place computes the overlay frame from crop-space landmarks on a w x h canvas.
// ok is false when an eye or the bridge is missing, or the eyes coincide.
func Place(set *landmark.Set, w, h int) (Placement, bool) {
	left, right, bridge, ok := set.Eyes()
	if !ok {
		return Placement{}, false
	}

	l := left.Scale(w, h)
	r := right.Scale(w, h)
	b := bridge.Scale(w, h)

	// 33 sits on the image's left, 263 on its right
	eyeLine := l.Sub(r)
	dist := eyeLine.Len()
	if dist == 0 || math.IsNaN(dist) {
		return Placement{}, false
	}
	angle := eyeLine.Angle()

	mid := landmark.Point{X: (l.X + r.X) / 2, Y: (l.Y + r.Y) / 2}
	d := mid.Sub(b)
	cos, sin := math.Cos(angle), math.Sin(angle)

	return Placement{
		Anchor: b,
		Dist:   dist,
		Angle:  angle,
		Offset: landmark.Point{
			X: d.X*cos + d.Y*sin,
			Y: -d.X*sin + d.Y*cos,
		},
	}, true
}

// Size returns the overlay box for a width factor and a height/width aspect
func (p Placement) Size(widthFactor, aspect float64) (w, h float64) {
	w = p.Dist * widthFactor
	return w, w * aspect
}

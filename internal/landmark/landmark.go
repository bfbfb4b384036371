// Package landmark holds face-mesh landmark sets and maps them from camera
// space into crop space.
package landmark

import (
	"math"

	"github.com/dudu/biokiosk/internal/crop"
)

// Face-mesh indices used by the compositor
const (
	LeftEyeOuter  = 263
	RightEyeOuter = 33
	NoseBridge    = 168

	// MeshSize is the landmark count of the refined face mesh (with irises)
	MeshSize = 478
	// MinMeshSize is the count without iris refinement, still accepted
	MinMeshSize = 468
)

// JawContour runs from one ear, down across the chin, to the other ear
var JawContour = [21]int{
	234, 93, 132, 58, 172, 136, 150, 149, 176, 148, 152,
	377, 400, 378, 379, 365, 397, 288, 361, 323, 454,
}

// Space tells which frame of reference normalized points are relative to
type Space int

const (
	SpaceCamera Space = iota
	SpaceCrop
)

func (s Space) String() string {
	switch s {
	case SpaceCamera:
		return "camera"
	case SpaceCrop:
		return "crop"
	default:
		return "unknown"
	}
}

// Point is a normalized 2D landmark
type Point struct {
	X, Y float64
}

// Scale converts a normalized point to pixels of a w x h canvas
func (p Point) Scale(w, h int) Point {
	return Point{X: p.X * float64(w), Y: p.Y * float64(h)}
}

// Sub returns p - q
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Len returns the Euclidean length of p as a vector
func (p Point) Len() float64 {
	return math.Hypot(p.X, p.Y)
}

// Angle returns the arc tangent of Y/X
func (p Point) Angle() float64 {
	return math.Atan2(p.Y, p.X)
}

// Set is one face's landmarks in a known space
type Set struct {
	Points []Point
	Space  Space
}

// NewCameraSet wraps points produced by a detector in camera space
func NewCameraSet(points []Point) *Set {
	return &Set{Points: points, Space: SpaceCamera}
}

// Len returns the number of points
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// At returns point i if present
func (s *Set) At(i int) (Point, bool) {
	if s == nil || i < 0 || i >= len(s.Points) {
		return Point{}, false
	}
	return s.Points[i], true
}

// Eyes returns the outer eye corners and the nasal bridge
func (s *Set) Eyes() (left, right, bridge Point, ok bool) {
	var okL, okR, okB bool
	left, okL = s.At(LeftEyeOuter)
	right, okR = s.At(RightEyeOuter)
	bridge, okB = s.At(NoseBridge)
	return left, right, bridge, okL && okR && okB
}

// Jaw returns the jaw contour in order, or false if any index is missing
func (s *Set) Jaw() ([]Point, bool) {
	pts := make([]Point, len(JawContour))
	for i, idx := range JawContour {
		p, ok := s.At(idx)
		if !ok {
			return nil, false
		}
		pts[i] = p
	}
	return pts, true
}

// ToCrop maps camera-normalized points into the crop's normalized space.
// Points outside the crop land outside [0,1] and are kept as-is.
func (s *Set) ToCrop(r crop.Rect, vW, vH int) *Set {
	if s == nil {
		return nil
	}
	if s.Space == SpaceCrop {
		return s
	}

	w, h := float64(vW), float64(vH)
	mapped := make([]Point, len(s.Points))
	for i, p := range s.Points {
		mapped[i] = Point{
			X: (p.X*w - r.SX) / r.SWidth,
			Y: (p.Y*h - r.SY) / r.SHeight,
		}
	}
	return &Set{Points: mapped, Space: SpaceCrop}
}

// Package detector finds a face in a camera frame and fits the face mesh
// the overlay and jaw clip are placed from.
package detector

import "math"

// Point is a 2D point in frame pixels
type Point struct {
	X, Y float32
}

// BoundingBox is an axis-aligned box in frame pixels
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Center returns box center point
func (b BoundingBox) Center() Point {
	return Point{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// Area returns box area
func (b BoundingBox) Area() float32 {
	if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
		return 0
	}
	return b.Width() * b.Height()
}

// IoU returns intersection over union with o
func (b BoundingBox) IoU(o BoundingBox) float32 {
	inter := BoundingBox{
		X1: float32(math.Max(float64(b.X1), float64(o.X1))),
		Y1: float32(math.Max(float64(b.Y1), float64(o.Y1))),
		X2: float32(math.Min(float64(b.X2), float64(o.X2))),
		Y2: float32(math.Min(float64(b.Y2), float64(o.Y2))),
	}.Area()
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Keypoints are the detector's five coarse points
type Keypoints struct {
	LeftEye    Point // image-left
	RightEye   Point
	Nose       Point
	LeftMouth  Point
	RightMouth Point
}

// Roll returns the in-plane rotation of the eye line in radians
func (k Keypoints) Roll() float64 {
	return math.Atan2(float64(k.RightEye.Y-k.LeftEye.Y), float64(k.RightEye.X-k.LeftEye.X))
}

// Face is one detection
type Face struct {
	Box       BoundingBox
	Keypoints Keypoints
	Score     float32
}

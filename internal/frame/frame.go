package frame

import (
	"time"

	"gocv.io/x/gocv"
)

// Frame is one snapshot of the camera feed.
// The Mat is owned by the source and is overwritten by the next Read, so a
// frame must not be kept past the tick that read it.
type Frame struct {
	Mat       gocv.Mat      // BGR pixels
	Width     int
	Height    int
	Timestamp time.Duration // monotonic offset from source start
}

// New wraps a Mat as a frame stamped with ts
func New(mat gocv.Mat, ts time.Duration) *Frame {
	return &Frame{
		Mat:       mat,
		Width:     mat.Cols(),
		Height:    mat.Rows(),
		Timestamp: ts,
	}
}

// Empty reports whether the frame carries no pixels
func (f *Frame) Empty() bool {
	return f == nil || f.Mat.Empty() || f.Width == 0 || f.Height == 0
}

package pipeline

import (
	"github.com/dudu/biokiosk/internal/frame"
	"github.com/dudu/biokiosk/internal/landmark"
	"github.com/dudu/biokiosk/internal/mask"
)

// LandmarkDetector finds the face mesh of at most one face. A nil set with
// a nil error means no face.
type LandmarkDetector interface {
	Detect(f *frame.Frame) (*landmark.Set, error)
	Close() error
}

// Segmenter classifies subject pixels. A nil category with a nil error
// means the model produced no mask for this frame.
type Segmenter interface {
	Segment(f *frame.Frame) (*mask.Category, error)
	Close() error
}

// FrameSource yields camera frames
type FrameSource interface {
	Read() (*frame.Frame, error)
	Close() error
}

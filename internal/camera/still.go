package camera

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/biokiosk/internal/frame"
)

// Still serves the same image on every read. It stands in for a webcam on
// machines without one and drives the pipeline tests.
type Still struct {
	img     gocv.Mat
	closed  bool
	started time.Time
	mu      sync.Mutex
}

// NewStill loads an image file as a frame source
func NewStill(path string) (*Still, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("failed to load image: %s", path)
	}
	return &Still{img: img, started: time.Now()}, nil
}

// NewStillFromMat serves a copy of mat
func NewStillFromMat(mat gocv.Mat) *Still {
	return &Still{img: mat.Clone(), started: time.Now()}
}

// Read returns the still image stamped with the elapsed time
func (s *Still) Read() (*frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	return frame.New(s.img, time.Since(s.started)), nil
}

// Close releases the image
func (s *Still) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.img.Close()
}

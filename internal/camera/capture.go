package camera

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/biokiosk/internal/frame"
)

// ErrClosed is returned by Read after Close
var ErrClosed = errors.New("camera closed")

// ErrNoFrame is returned when the device produced no pixels for a read
var ErrNoFrame = errors.New("camera returned an empty frame")

// Capture manages webcam capture
type Capture struct {
	webcam    *gocv.VideoCapture
	buf       gocv.Mat
	deviceID  int
	targetFPS int
	width     int
	height    int
	started   time.Time
	mu        sync.Mutex
}

// NewCapture opens a camera asking for full HD, the resolution the kiosk
// crops its 9:16 portrait from
func NewCapture(deviceID int, targetFPS int) (*Capture, error) {
	return NewCaptureWithResolution(deviceID, targetFPS, 1920, 1080)
}

// NewCaptureWithResolution creates a new camera capture with specified resolution
func NewCaptureWithResolution(deviceID int, targetFPS int, width, height int) (*Capture, error) {
	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", deviceID, err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return nil, fmt.Errorf("camera %d is not available", deviceID)
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	webcam.Set(gocv.VideoCaptureFPS, float64(targetFPS))

	// Camera may not support requested resolution
	actualWidth := int(webcam.Get(gocv.VideoCaptureFrameWidth))
	actualHeight := int(webcam.Get(gocv.VideoCaptureFrameHeight))

	return &Capture{
		webcam:    webcam,
		buf:       gocv.NewMat(),
		deviceID:  deviceID,
		targetFPS: targetFPS,
		width:     actualWidth,
		height:    actualHeight,
		started:   time.Now(),
	}, nil
}

// Read grabs the next frame. The returned frame shares the capture buffer.
func (c *Capture) Read() (*frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return nil, ErrClosed
	}
	if !c.webcam.Read(&c.buf) || c.buf.Empty() {
		return nil, ErrNoFrame
	}

	// Source dimensions can change mid-session (device renegotiation)
	c.width = c.buf.Cols()
	c.height = c.buf.Rows()

	return frame.New(c.buf, time.Since(c.started)), nil
}

// Width returns frame width
func (c *Capture) Width() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width
}

// Height returns frame height
func (c *Capture) Height() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Close releases the camera
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam != nil {
		err := c.webcam.Close()
		c.webcam = nil
		c.buf.Close()
		return err
	}
	return nil
}

// Package ui shows the kiosk canvas in an OpenCV window with a small
// heads-up display: countdown, start-up progress, frame rate and the most
// recent log lines.
package ui

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"
)

var (
	green  = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	white  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	cyan   = color.RGBA{R: 0, G: 220, B: 255, A: 255}
	dimmed = color.RGBA{R: 40, G: 40, B: 40, A: 255}
)

// Key codes returned by WaitKey
const (
	KeyNone   = -1
	KeyEscape = 27
	KeyQuit   = 'q'
)

// HUD is the text drawn over the canvas
type HUD struct {
	Countdown    int    // seconds left, hidden when zero
	Style        string // overlay style name
	Segmentation string // segmentation status
	Timing       string // per-stage pipeline timing, hidden when empty
}

// Window manages the kiosk display
type Window struct {
	window     *gocv.Window
	name       string
	height     int
	logs       *LogRing
	lastFrame  time.Time
	frameCount int
	fps        float64
}

// NewWindow creates a window showing the canvas scaled to height pixels.
// logs may be nil.
func NewWindow(name string, height int, logs *LogRing) *Window {
	if height <= 0 {
		height = 960
	}
	window := gocv.NewWindow(name)
	window.MoveWindow(100, 0)
	return &Window{
		window:    window,
		name:      name,
		height:    height,
		logs:      logs,
		lastFrame: time.Now(),
	}
}

// ShowCanvas displays the live canvas with the HUD and updates the FPS counter
func (w *Window) ShowCanvas(img image.Image, hud HUD) error {
	if img == nil {
		return nil
	}
	w.tick()

	mat, err := w.fit(img)
	if err != nil {
		return err
	}
	defer mat.Close()

	gocv.PutText(&mat, fmt.Sprintf("FPS: %.1f", w.fps), image.Pt(10, 30),
		gocv.FontHersheyPlain, 1.6, green, 2)
	for i, line := range hudLines(hud) {
		gocv.PutText(&mat, line, image.Pt(10, 56+22*i),
			gocv.FontHersheyPlain, 1.2, white, 1)
	}

	if hud.Countdown > 0 {
		text := fmt.Sprintf("%d", hud.Countdown)
		size := gocv.GetTextSize(text, gocv.FontHersheyDuplex, 4, 6)
		at := image.Pt((mat.Cols()-size.X)/2, mat.Rows()/6+size.Y/2)
		gocv.PutText(&mat, text, at, gocv.FontHersheyDuplex, 4, cyan, 6)
	}

	w.drawLogs(&mat)
	w.window.IMShow(mat)
	return nil
}

// ShowStatus displays a start-up screen with a progress bar
func (w *Window) ShowStatus(title string, progress float64) {
	width := w.height * 9 / 16
	mat := gocv.Zeros(w.height, width, gocv.MatTypeCV8UC3)
	defer mat.Close()

	gocv.PutText(&mat, title, image.Pt(20, w.height/2-30),
		gocv.FontHersheyPlain, 1.6, white, 2)

	bar := image.Rect(20, w.height/2, width-20, w.height/2+16)
	gocv.Rectangle(&mat, bar, dimmed, -1)
	fill := bar
	fill.Max.X = bar.Min.X + int(float64(bar.Dx())*clamp(progress/100))
	if fill.Dx() > 0 {
		gocv.Rectangle(&mat, fill, cyan, -1)
	}
	gocv.PutText(&mat, fmt.Sprintf("%.0f%%", progress), image.Pt(20, w.height/2+44),
		gocv.FontHersheyPlain, 1.4, white, 1)

	w.drawLogs(&mat)
	w.window.IMShow(mat)
}

// ShowImage displays a still image, such as the captured pass, with a caption
func (w *Window) ShowImage(img image.Image, caption string) error {
	mat, err := w.fit(img)
	if err != nil {
		return err
	}
	defer mat.Close()

	if caption != "" {
		gocv.PutText(&mat, caption, image.Pt(10, mat.Rows()-20),
			gocv.FontHersheyPlain, 1.6, green, 2)
	}
	w.window.IMShow(mat)
	return nil
}

// WaitKey waits for key press, returns key code or -1
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// Close closes the window
func (w *Window) Close() error {
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}

func (w *Window) tick() {
	w.frameCount++
	now := time.Now()

	elapsed := now.Sub(w.lastFrame)
	if elapsed >= time.Second {
		w.fps = float64(w.frameCount) / elapsed.Seconds()
		w.frameCount = 0
		w.lastFrame = now
	}
}

// fit converts img to BGR and scales it to the window height
func (w *Window) fit(img image.Image) (gocv.Mat, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to convert canvas: %w", err)
	}
	if src.Rows() == w.height || src.Rows() == 0 {
		return src, nil
	}
	defer src.Close()

	width := src.Cols() * w.height / src.Rows()
	dst := gocv.NewMat()
	gocv.Resize(src, &dst, image.Pt(width, w.height), 0, 0, gocv.InterpolationArea)
	return dst, nil
}

func (w *Window) drawLogs(mat *gocv.Mat) {
	if w.logs == nil {
		return
	}
	lines := w.logs.Lines()
	y := mat.Rows() - 16*len(lines) - 40
	for _, line := range lines {
		gocv.PutText(mat, line, image.Pt(10, y), gocv.FontHersheyPlain, 1, white, 1)
		y += 16
	}
}

// hudLines returns the text rows drawn under the FPS counter
func hudLines(h HUD) []string {
	lines := []string{statusLine(h)}
	if h.Timing != "" {
		lines = append(lines, h.Timing)
	}
	return lines
}

func statusLine(h HUD) string {
	style := h.Style
	if style == "" {
		style = "NONE"
	}
	seg := h.Segmentation
	if seg == "" {
		seg = "LOADING"
	}
	return fmt.Sprintf("STYLE %s  SEG %s", style, seg)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

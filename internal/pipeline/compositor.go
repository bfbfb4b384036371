package pipeline

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"gocv.io/x/gocv"

	"github.com/dudu/biokiosk/internal/crop"
	"github.com/dudu/biokiosk/internal/frame"
	"github.com/dudu/biokiosk/internal/landmark"
	"github.com/dudu/biokiosk/internal/logging"
	"github.com/dudu/biokiosk/internal/mask"
	"github.com/dudu/biokiosk/internal/overlay"
)

// Compositor renders cover-cropped video with eyewear onto the portrait
// canvas. It is owned by the render goroutine.
type Compositor struct {
	width   int
	height  int
	crop    *crop.Transformer
	masks   *mask.Compositor
	library *overlay.Library

	// live preview; the gg context draws straight into liveImg
	liveImg  *image.RGBA
	live     *gg.Context
	rendered bool

	scaled gocv.Mat
	rgba   gocv.Mat
}

// NewCompositor creates a compositor for a width x height canvas
func NewCompositor(width, height int, library *overlay.Library) *Compositor {
	if library == nil {
		library = overlay.NewLibrary()
	}
	liveImg := image.NewRGBA(image.Rect(0, 0, width, height))
	return &Compositor{
		width:   width,
		height:  height,
		crop:    crop.NewCanvasTransformer(width, height),
		masks:   mask.NewCompositor(width, height),
		library: library,
		liveImg: liveImg,
		live:    gg.NewContextForRGBA(liveImg),
		scaled:  gocv.NewMat(),
		rgba:    gocv.NewMat(),
	}
}

// Size returns the canvas dimensions
func (c *Compositor) Size() (int, int) {
	return c.width, c.height
}

// Geometry refreshes the crop for the frame's dimensions
func (c *Compositor) Geometry(f *frame.Frame) (crop.Rect, error) {
	r, changed, err := c.crop.Update(f.Width, f.Height)
	if err != nil {
		return crop.Rect{}, err
	}
	if changed {
		logging.Debug(logging.Fields{
			"video": fmt.Sprintf("%dx%d", f.Width, f.Height),
			"crop":  fmt.Sprintf("%.0f,%.0f %.0fx%.0f", r.SX, r.SY, r.SWidth, r.SHeight),
		}, "[pipeline.Geometry] crop updated")
	}
	return r, nil
}

// cropped returns the frame's crop scaled to the canvas as RGBA pixels
func (c *Compositor) cropped(f *frame.Frame, r crop.Rect) []byte {
	region := f.Mat.Region(r.Image(f.Width, f.Height))
	defer region.Close()

	gocv.Resize(region, &c.scaled, image.Pt(c.width, c.height), 0, 0, gocv.InterpolationLinear)
	gocv.CvtColor(c.scaled, &c.rgba, gocv.ColorBGRToRGBA)
	return c.rgba.ToBytes()
}

// Preview redraws the live canvas: video, then the overlay when a face is
// known. The video covers every pixel, so nothing from the previous frame
// survives.
func (c *Compositor) Preview(f *frame.Frame, r crop.Rect, set *landmark.Set, style overlay.Style) {
	copy(c.liveImg.Pix, c.cropped(f, r))
	c.rendered = true

	if set != nil {
		c.library.Draw(c.live, style, set, c.width, c.height)
	}
}

// Render draws video and overlay into a fresh offscreen image. When alpha is
// set the result is gated by it onto a transparent canvas. The live canvas is
// left untouched.
func (c *Compositor) Render(f *frame.Frame, r crop.Rect, set *landmark.Set, style overlay.Style, alpha *mask.Alpha) (image.Image, error) {
	off := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	copy(off.Pix, c.cropped(f, r))

	if set != nil {
		c.library.Draw(gg.NewContextForRGBA(off), style, set, c.width, c.height)
	}
	if alpha == nil {
		return off, nil
	}

	out := gg.NewContext(c.width, c.height)
	if err := out.SetMask(alpha.Image()); err != nil {
		return nil, fmt.Errorf("failed to apply head mask: %w", err)
	}
	out.DrawImage(off, 0, 0)
	return out.Image(), nil
}

// Snapshot copies the live canvas. ok is false before the first preview.
func (c *Compositor) Snapshot() (image.Image, bool) {
	if !c.rendered {
		return nil, false
	}
	cp := image.NewRGBA(c.liveImg.Rect)
	copy(cp.Pix, c.liveImg.Pix)
	return cp, true
}

// Live exposes the live canvas for display. It is overwritten by the next
// Preview.
func (c *Compositor) Live() *image.RGBA {
	return c.liveImg
}

// Masks returns the matte builder sized to this canvas
func (c *Compositor) Masks() *mask.Compositor {
	return c.masks
}

// Close releases scratch buffers
func (c *Compositor) Close() error {
	c.scaled.Close()
	c.rgba.Close()
	return nil
}

// EncodePNG encodes a composited image
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

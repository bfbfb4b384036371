// Package mask merges segmentation masks into one alpha matte that keeps
// the subject's head and hair, cuts the neck and torso below the jaw line
// and softens the edge.
package mask

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/dudu/biokiosk/internal/crop"
	"github.com/dudu/biokiosk/internal/landmark"
)

// FeatherSigma is the blur radius, in canvas pixels, used to soften edges
const FeatherSigma = 4.0

// ErrNoMasks signals that no segmentation was available; callers fall back
// to unmasked compositing
var ErrNoMasks = errors.New("no segmentation masks available")

var opaque = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Category is a per-pixel classification from one segmenter in camera
// space. Nonzero marks the subject.
type Category struct {
	Mat    gocv.Mat // CV8U, frame dimensions
	Source string   // segmenter name, e.g. "body" or "hair"
}

// Close releases the mask
func (c *Category) Close() error {
	if c == nil {
		return nil
	}
	return c.Mat.Close()
}

// Alpha is the merged matte in canvas dimensions
type Alpha struct {
	mat gocv.Mat
}

// Mat exposes the CV8U matte
func (a *Alpha) Mat() gocv.Mat {
	return a.mat
}

// Size returns the matte width and height
func (a *Alpha) Size() (int, int) {
	return a.mat.Cols(), a.mat.Rows()
}

// Image copies the matte into an *image.Alpha for masked drawing
func (a *Alpha) Image() *image.Alpha {
	w, h := a.Size()
	return &image.Alpha{
		Pix:    a.mat.ToBytes(),
		Stride: w,
		Rect:   image.Rect(0, 0, w, h),
	}
}

// Close releases the matte
func (a *Alpha) Close() error {
	if a == nil {
		return nil
	}
	return a.mat.Close()
}

// Compositor builds alpha mattes for a fixed canvas size
type Compositor struct {
	width  int
	height int
	sigma  float64
}

// NewCompositor creates a compositor producing width x height mattes
func NewCompositor(width, height int) *Compositor {
	return &Compositor{width: width, height: height, sigma: FeatherSigma}
}

// Size returns the canvas dimensions the compositor produces
func (c *Compositor) Size() (int, int) {
	return c.width, c.height
}

// Resample crops a camera-space mask with the crop rectangle used for the
// video and scales it onto the canvas. Nearest neighbour keeps it binary.
func (c *Compositor) Resample(cat *Category, r crop.Rect) gocv.Mat {
	region := cat.Mat.Region(r.Image(cat.Mat.Cols(), cat.Mat.Rows()))
	defer region.Close()

	dst := gocv.NewMat()
	gocv.Resize(region, &dst, image.Pt(c.width, c.height), 0, 0, gocv.InterpolationNearestNeighbor)
	return dst
}

// Combine ORs canvas-sized masks: any nonzero pixel in any mask is 255.
// With no masks it returns ErrNoMasks.
func (c *Compositor) Combine(masks []gocv.Mat) (*Alpha, error) {
	if len(masks) == 0 {
		return nil, ErrNoMasks
	}

	out := gocv.Zeros(c.height, c.width, gocv.MatTypeCV8U)
	bin := gocv.NewMat()
	defer bin.Close()

	for i, m := range masks {
		if m.Cols() != c.width || m.Rows() != c.height {
			out.Close()
			return nil, fmt.Errorf("mask %d is %dx%d, want %dx%d", i, m.Cols(), m.Rows(), c.width, c.height)
		}
		gocv.Threshold(m, &bin, 0, 255, gocv.ThresholdBinary)
		gocv.BitwiseOr(out, bin, &out)
	}

	return &Alpha{mat: out}, nil
}

// JawPolygon returns the keep region above the jaw line in canvas pixels:
// across the top edge, down the right edge to the last jaw point, back
// along the jaw to the first point, then up the left edge. Vertices are
// kept within one canvas size of the canvas.
func (c *Compositor) JawPolygon(jaw []landmark.Point) []image.Point {
	w, h := c.width, c.height
	first := jaw[0].Scale(w, h)
	last := jaw[len(jaw)-1].Scale(w, h)

	poly := make([]image.Point, 0, len(jaw)+4)
	poly = append(poly,
		image.Pt(0, 0),
		image.Pt(w, 0),
		image.Pt(w, pixel(last.Y, h)),
	)
	for i := len(jaw) - 1; i >= 0; i-- {
		p := jaw[i].Scale(w, h)
		poly = append(poly, image.Pt(pixel(p.X, w), pixel(p.Y, h)))
	}
	poly = append(poly, image.Pt(0, pixel(first.Y, h)))
	return poly
}

// ClipJaw zeroes everything outside the region above the jaw contour.
// A contour shorter than the full jaw, or with a non-finite point, is
// ignored.
func (c *Compositor) ClipJaw(a *Alpha, jaw []landmark.Point) {
	if len(jaw) < len(landmark.JawContour) || !finite(jaw) {
		return
	}

	keep := gocv.Zeros(c.height, c.width, gocv.MatTypeCV8U)
	defer keep.Close()

	pts := gocv.NewPointsVectorFromPoints([][]image.Point{c.JawPolygon(jaw)})
	defer pts.Close()
	gocv.FillPoly(&keep, pts, opaque)

	gocv.BitwiseAnd(a.mat, keep, &a.mat)
}

// Feather softens the inside of the matte edge. A blurred duplicate is
// laid over the matte and only the lower of the two values is kept, so
// the matte never grows past its own boundary.
func (c *Compositor) Feather(a *Alpha) {
	blurred := gocv.NewMat()
	defer blurred.Close()

	gocv.GaussianBlur(a.mat, &blurred, image.Pt(0, 0), c.sigma, c.sigma, gocv.BorderDefault)
	gocv.Min(a.mat, blurred, &a.mat)
}

// Build runs the whole matte: resample each category mask into the crop,
// OR them, cut below the jaw when a contour is given, and feather.
func (c *Compositor) Build(cats []*Category, jaw []landmark.Point, r crop.Rect) (*Alpha, error) {
	resampled := make([]gocv.Mat, 0, len(cats))
	defer func() {
		for _, m := range resampled {
			m.Close()
		}
	}()

	for _, cat := range cats {
		if cat == nil || cat.Mat.Empty() {
			continue
		}
		resampled = append(resampled, c.Resample(cat, r))
	}

	alpha, err := c.Combine(resampled)
	if err != nil {
		return nil, err
	}
	if jaw != nil {
		c.ClipJaw(alpha, jaw)
	}
	c.Feather(alpha)
	return alpha, nil
}

// pixel rounds v, clamped to [-size, 2*size]
func pixel(v float64, size int) int {
	return int(math.Round(math.Max(-float64(size), math.Min(v, 2*float64(size)))))
}

func finite(pts []landmark.Point) bool {
	for _, p := range pts {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return false
		}
	}
	return true
}

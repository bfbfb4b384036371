package mask

import (
	"errors"
	"image"
	"math"
	"testing"

	"gocv.io/x/gocv"

	"github.com/dudu/biokiosk/internal/crop"
	"github.com/dudu/biokiosk/internal/landmark"
)

func filled(w, h int, v uint8) gocv.Mat {
	m := gocv.Zeros(h, w, gocv.MatTypeCV8U)
	if v != 0 {
		m.SetTo(gocv.NewScalar(float64(v), 0, 0, 0))
	}
	return m
}

// parabolaJaw is a chin-down contour from (0.1, 0.5) through (0.5, 0.8) to (0.9, 0.5)
func parabolaJaw() []landmark.Point {
	n := len(landmark.JawContour)
	pts := make([]landmark.Point, n)
	for i := range pts {
		x := 0.1 + 0.8*float64(i)/float64(n-1)
		u := (x - 0.5) / 0.4
		pts[i] = landmark.Point{X: x, Y: 0.5 + 0.3*(1-u*u)}
	}
	return pts
}

func TestCombineOr(t *testing.T) {
	c := NewCompositor(4, 2)

	body := filled(4, 2, 0)
	defer body.Close()
	body.SetUCharAt(0, 0, 1)
	body.SetUCharAt(1, 3, 200)

	hair := filled(4, 2, 0)
	defer hair.Close()
	hair.SetUCharAt(0, 0, 7)
	hair.SetUCharAt(0, 2, 255)

	alpha, err := c.Combine([]gocv.Mat{body, hair})
	if err != nil {
		t.Fatalf("Combine() error = %v", err)
	}
	defer alpha.Close()

	want := [2][4]uint8{
		{255, 0, 255, 0},
		{0, 0, 0, 255},
	}
	m := alpha.Mat()
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			if got := m.GetUCharAt(y, x); got != want[y][x] {
				t.Errorf("pixel (%d,%d) = %d, want %d", x, y, got, want[y][x])
			}
		}
	}
}

func TestCombineNoMasks(t *testing.T) {
	c := NewCompositor(4, 4)
	if _, err := c.Combine(nil); !errors.Is(err, ErrNoMasks) {
		t.Errorf("Combine(nil) error = %v, want ErrNoMasks", err)
	}
	if _, err := c.Build(nil, parabolaJaw(), crop.Identity(4, 4)); !errors.Is(err, ErrNoMasks) {
		t.Errorf("Build(nil) error = %v, want ErrNoMasks", err)
	}
}

func TestCombineRejectsWrongSize(t *testing.T) {
	c := NewCompositor(4, 4)
	m := filled(3, 4, 255)
	defer m.Close()
	if _, err := c.Combine([]gocv.Mat{m}); err == nil {
		t.Error("Combine() accepted a mask of the wrong size")
	}
}

func TestClipJaw(t *testing.T) {
	c := NewCompositor(100, 100)
	alpha := &Alpha{mat: filled(100, 100, 255)}
	defer alpha.Close()

	c.ClipJaw(alpha, parabolaJaw())

	tests := []struct {
		name string
		x, y int
		want uint8
	}{
		{"Forehead", 50, 20, 255},
		{"Cheek above jaw", 50, 70, 255},
		{"Top right corner", 98, 2, 255},
		{"Below chin", 50, 90, 0},
		{"Neck", 50, 99, 0},
		{"Left of first jaw point, below its y", 3, 70, 0},
		{"Right of last jaw point, below its y", 97, 70, 0},
	}
	m := alpha.Mat()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.GetUCharAt(tt.y, tt.x); got != tt.want {
				t.Errorf("pixel (%d,%d) = %d, want %d", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestClipJawIgnoresShortContour(t *testing.T) {
	c := NewCompositor(20, 20)
	alpha := &Alpha{mat: filled(20, 20, 255)}
	defer alpha.Close()

	c.ClipJaw(alpha, parabolaJaw()[:5])

	if n := gocv.CountNonZero(alpha.Mat()); n != 400 {
		t.Errorf("nonzero pixels = %d, want 400", n)
	}
}

func TestClipJawIgnoresNonFiniteContour(t *testing.T) {
	for name, bad := range map[string]float64{"NaN": math.NaN(), "Inf": math.Inf(1)} {
		t.Run(name, func(t *testing.T) {
			c := NewCompositor(20, 20)
			alpha := &Alpha{mat: filled(20, 20, 255)}
			defer alpha.Close()

			jaw := parabolaJaw()
			jaw[10].Y = bad
			c.ClipJaw(alpha, jaw)

			if n := gocv.CountNonZero(alpha.Mat()); n != 400 {
				t.Errorf("nonzero pixels = %d, want 400", n)
			}
		})
	}
}

func TestJawPolygonClampsFarPoints(t *testing.T) {
	c := NewCompositor(100, 200)
	jaw := parabolaJaw()
	jaw[0] = landmark.Point{X: -1e9, Y: 1e12}
	jaw[len(jaw)-1] = landmark.Point{X: 1e9, Y: -1e12}

	for _, p := range c.JawPolygon(jaw) {
		if p.X < -100 || p.X > 200 || p.Y < -200 || p.Y > 400 {
			t.Errorf("vertex %v outside the clamp range", p)
		}
	}
}

func TestJawPolygonOrder(t *testing.T) {
	c := NewCompositor(100, 200)
	jaw := parabolaJaw()
	poly := c.JawPolygon(jaw)

	if len(poly) != len(jaw)+4 {
		t.Fatalf("polygon has %d points, want %d", len(poly), len(jaw)+4)
	}
	if poly[0] != image.Pt(0, 0) || poly[1] != image.Pt(100, 0) {
		t.Errorf("polygon does not start along the top edge: %v", poly[:2])
	}
	if poly[2] != image.Pt(100, 100) {
		t.Errorf("right edge stop = %v, want (100,100)", poly[2])
	}
	if poly[3] != image.Pt(90, 100) {
		t.Errorf("first contour point = %v, want the last jaw point (90,100)", poly[3])
	}
	if last := poly[len(poly)-1]; last != image.Pt(0, 100) {
		t.Errorf("left edge stop = %v, want (0,100)", last)
	}
}

func TestFeather(t *testing.T) {
	c := NewCompositor(64, 64)
	m := filled(64, 64, 0)
	square := m.Region(image.Rect(16, 16, 48, 48))
	square.SetTo(gocv.NewScalar(255, 0, 0, 0))
	square.Close()

	alpha := &Alpha{mat: m}
	defer alpha.Close()
	c.Feather(alpha)

	out := alpha.Mat()
	if got := out.GetUCharAt(32, 32); got != 255 {
		t.Errorf("center = %d, want 255", got)
	}
	if got := out.GetUCharAt(32, 16); got == 0 || got == 255 {
		t.Errorf("edge = %d, want a partial value", got)
	}
	if got := out.GetUCharAt(32, 14); got != 0 {
		t.Errorf("outside = %d, want 0", got)
	}
}

func TestResampleUsesCrop(t *testing.T) {
	// 16x9 camera mask, subject on the right half only
	cam := filled(16, 9, 0)
	right := cam.Region(image.Rect(8, 0, 16, 9))
	right.SetTo(gocv.NewScalar(1, 0, 0, 0))
	right.Close()
	cat := &Category{Mat: cam, Source: "body"}
	defer cat.Close()

	c := NewCompositor(9, 16)
	r := crop.Rect{SX: 8, SY: 0, SWidth: 8, SHeight: 9}

	got := c.Resample(cat, r)
	defer got.Close()

	if got.Cols() != 9 || got.Rows() != 16 {
		t.Fatalf("Resample() size = %dx%d, want 9x16", got.Cols(), got.Rows())
	}
	if n := gocv.CountNonZero(got); n != 9*16 {
		t.Errorf("nonzero = %d, want the whole canvas", n)
	}
}

func TestBuildAlwaysCanvasSized(t *testing.T) {
	cam := filled(1280, 720, 1)
	cat := &Category{Mat: cam, Source: "hair"}
	defer cat.Close()

	c := NewCompositor(90, 160)
	r, err := crop.Compute(1280, 720, crop.PortraitRatio)
	if err != nil {
		t.Fatal(err)
	}

	alpha, err := c.Build([]*Category{cat, nil}, nil, r)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer alpha.Close()

	if w, h := alpha.Size(); w != 90 || h != 160 {
		t.Errorf("alpha size = %dx%d, want 90x160", w, h)
	}
	img := alpha.Image()
	if img.Bounds() != image.Rect(0, 0, 90, 160) || img.AlphaAt(45, 80).A != 255 {
		t.Errorf("Image() bounds %v, center %v", img.Bounds(), img.AlphaAt(45, 80))
	}
}

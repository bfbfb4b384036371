package crop

import (
	"errors"
	"image"
	"math"
	"testing"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name   string
		vW, vH int
		want   Rect
	}{
		{
			name: "Landscape 1080p crops sides",
			vW:   1920, vH: 1080,
			want: Rect{SX: (1920 - 607.5) / 2, SY: 0, SWidth: 607.5, SHeight: 1080},
		},
		{
			name: "Tall source crops top and bottom",
			vW:   1080, vH: 2400,
			want: Rect{SX: 0, SY: (2400 - 1920) / 2.0, SWidth: 1080, SHeight: 1920},
		},
		{
			name: "Exact ratio is identity",
			vW:   900, vH: 1600,
			want: Rect{SX: 0, SY: 0, SWidth: 900, SHeight: 1600},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.vW, tt.vH, PortraitRatio)
			if err != nil {
				t.Fatalf("Compute() error = %v", err)
			}
			if !rectNear(got, tt.want) {
				t.Errorf("Compute() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestComputeInsideBoundsWithTargetRatio(t *testing.T) {
	sizes := []int{1, 2, 3, 7, 9, 16, 240, 320, 480, 607, 640, 720, 1080, 1280, 1920, 3840, 4001}
	for _, vW := range sizes {
		for _, vH := range sizes {
			r, err := Compute(vW, vH, PortraitRatio)
			if err != nil {
				t.Fatalf("Compute(%d, %d) error = %v", vW, vH, err)
			}
			const eps = 1e-9
			if r.SX < -eps || r.SY < -eps ||
				r.SX+r.SWidth > float64(vW)+eps || r.SY+r.SHeight > float64(vH)+eps {
				t.Errorf("Compute(%d, %d) = %+v escapes source bounds", vW, vH, r)
			}
			if math.Abs(r.Ratio()-PortraitRatio) > 1e-9 {
				t.Errorf("Compute(%d, %d) ratio = %v, want %v", vW, vH, r.Ratio(), PortraitRatio)
			}
		}
	}
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	cases := [][2]int{{0, 10}, {10, 0}, {-5, 10}}
	for _, c := range cases {
		if _, err := Compute(c[0], c[1], PortraitRatio); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("Compute(%d, %d) error = %v, want ErrInvalidSize", c[0], c[1], err)
		}
	}
	if _, err := Compute(10, 10, 0); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Compute with zero ratio error = %v, want ErrInvalidSize", err)
	}
}

func TestTransformerRecomputesOnlyOnChange(t *testing.T) {
	tr := NewCanvasTransformer(1080, 1920)

	if _, ok := tr.Rect(); ok {
		t.Fatal("fresh transformer should have no rect")
	}

	r1, changed, err := tr.Update(1920, 1080)
	if err != nil || !changed {
		t.Fatalf("first Update() changed = %v, err = %v", changed, err)
	}

	r2, changed, err := tr.Update(1920, 1080)
	if err != nil || changed {
		t.Fatalf("same-size Update() changed = %v, err = %v", changed, err)
	}
	if r1 != r2 {
		t.Errorf("cached rect %+v differs from %+v", r2, r1)
	}

	_, changed, _ = tr.Update(1280, 720)
	if !changed {
		t.Error("Update() after resize should report change")
	}
}

func TestRectImage(t *testing.T) {
	r, _ := Compute(1920, 1080, PortraitRatio)
	got := r.Image(1920, 1080)
	want := image.Rect(656, 0, 1264, 1080)
	if got != want {
		t.Errorf("Image() = %v, want %v", got, want)
	}

	wild := Rect{SX: -50, SY: -50, SWidth: 5000, SHeight: 5000}
	if got := wild.Image(640, 480); got != image.Rect(0, 0, 640, 480) {
		t.Errorf("Image() clamp = %v", got)
	}
}

func rectNear(a, b Rect) bool {
	const eps = 1e-9
	return math.Abs(a.SX-b.SX) < eps && math.Abs(a.SY-b.SY) < eps &&
		math.Abs(a.SWidth-b.SWidth) < eps && math.Abs(a.SHeight-b.SHeight) < eps
}

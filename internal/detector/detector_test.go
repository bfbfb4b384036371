package detector

import (
	"math"
	"testing"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestCropTransformRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		roll float64
	}{
		{"Upright", 0},
		{"Tilted", 0.3},
		{"Tilted other way", -0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct := newCropTransform(640, 360, 300, tt.roll, 192)
			M := ct.matrix()
			defer M.Close()

			for _, p := range [][2]float64{{640, 360}, {500, 300}, {790, 510}} {
				qx := M.GetDoubleAt(0, 0)*p[0] + M.GetDoubleAt(0, 1)*p[1] + M.GetDoubleAt(0, 2)
				qy := M.GetDoubleAt(1, 0)*p[0] + M.GetDoubleAt(1, 1)*p[1] + M.GetDoubleAt(1, 2)
				x, y := ct.toSource(qx, qy)
				if !near(x, p[0]) || !near(y, p[1]) {
					t.Errorf("round trip of %v = (%v, %v)", p, x, y)
				}
			}
		})
	}
}

func TestCropTransformCenter(t *testing.T) {
	ct := newCropTransform(640, 360, 300, 0.4, 192)
	x, y := ct.toSource(96, 96)
	if !near(x, 640) || !near(y, 360) {
		t.Errorf("input center maps to (%v, %v), want (640, 360)", x, y)
	}
}

func TestDecodeMesh(t *testing.T) {
	// upright 200px square centered in a 400x200 frame, on a 100px input
	ct := newCropTransform(200, 100, 200, 0, 100)
	raw := []float32{
		50, 50, 0,  // input center
		0, 0, -3,   // input top-left
		100, 50, 1, // input right edge
	}

	pts, err := decodeMesh(raw, 3, ct, 400, 200)
	if err != nil {
		t.Fatalf("decodeMesh() error = %v", err)
	}
	want := [][2]float64{{0.5, 0.5}, {0.25, 0}, {0.75, 0.5}}
	for i, w := range want {
		if !near(pts[i].X, w[0]) || !near(pts[i].Y, w[1]) {
			t.Errorf("point %d = %+v, want %v", i, pts[i], w)
		}
	}

	if _, err := decodeMesh(raw, 4, ct, 400, 200); err == nil {
		t.Error("decodeMesh() accepted a short output")
	}
}

func TestIoU(t *testing.T) {
	a := BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10}
	tests := []struct {
		name string
		b    BoundingBox
		want float32
	}{
		{"Same", a, 1},
		{"Disjoint", BoundingBox{X1: 20, Y1: 20, X2: 30, Y2: 30}, 0},
		{"Half", BoundingBox{X1: 5, Y1: 0, X2: 15, Y2: 10}, 50.0 / 150.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.IoU(tt.b); math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("IoU() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNMSAndPrimary(t *testing.T) {
	faces := []Face{
		{Box: BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10}, Score: 0.6},
		{Box: BoundingBox{X1: 1, Y1: 1, X2: 11, Y2: 11}, Score: 0.9},
		{Box: BoundingBox{X1: 50, Y1: 50, X2: 90, Y2: 90}, Score: 0.7},
	}

	kept := nms(faces, 0.4)
	if len(kept) != 2 {
		t.Fatalf("nms kept %d faces, want 2", len(kept))
	}
	if kept[0].Score != 0.9 {
		t.Errorf("best overlapping face dropped: %+v", kept)
	}

	p, ok := primary(kept)
	if !ok || p.Score != 0.7 {
		t.Errorf("primary() = %+v, want the largest face", p)
	}
	if _, ok := primary(nil); ok {
		t.Error("primary(nil) reported a face")
	}
}

func TestSCRFDDecode(t *testing.T) {
	s := &SCRFD{inputSize: 32, confThreshold: 0.5, featureStrides: []int{8, 16, 32}, numAnchors: 2}

	scores := [][]float32{make([]float32, 32), make([]float32, 8), make([]float32, 2)}
	boxes := [][]float32{make([]float32, 32*4), make([]float32, 8*4), make([]float32, 2*4)}
	kps := [][]float32{make([]float32, 32*10), make([]float32, 8*10), make([]float32, 2*10)}

	// stride 8, cell (1,1), first anchor
	idx := (1*4 + 1) * 2
	scores[0][idx] = 0.9
	copy(boxes[0][idx*4:], []float32{1, 1, 1, 1})
	copy(kps[0][idx*10:], []float32{-0.5, 0, 0.5, 0})

	faces := s.decode(scores, boxes, kps, 0.5, 100, 100)
	if len(faces) != 1 {
		t.Fatalf("decode() found %d faces, want 1", len(faces))
	}
	f := faces[0]
	if f.Box != (BoundingBox{X1: 0, Y1: 0, X2: 32, Y2: 32}) {
		t.Errorf("box = %+v", f.Box)
	}
	if f.Keypoints.LeftEye != (Point{X: 8, Y: 16}) || f.Keypoints.RightEye != (Point{X: 24, Y: 16}) {
		t.Errorf("eyes = %+v %+v", f.Keypoints.LeftEye, f.Keypoints.RightEye)
	}
	if f.Keypoints.Roll() != 0 {
		t.Errorf("Roll() = %v, want 0", f.Keypoints.Roll())
	}
}

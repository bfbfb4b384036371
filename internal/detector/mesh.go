package detector

import (
	"errors"
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/biokiosk/internal/frame"
	"github.com/dudu/biokiosk/internal/inference"
	"github.com/dudu/biokiosk/internal/landmark"
)

// MeshConfig describes the face mesh model and the optional face detector
// that frames it
type MeshConfig struct {
	ModelPath       string
	InputName       string
	LandmarksOutput string
	ScoreOutput     string
	InputSize       int
	Points          int
	ScoreThreshold  float32

	// DetectorPath is an SCRFD model; without it the mesh runs on the
	// central square of the frame
	DetectorPath    string
	DetectorSize    int
	DetectThreshold float32

	// Expand grows the detected box into the mesh crop
	Expand float32
}

// DefaultMeshConfig matches the 192x192 MediaPipe face mesh export
func DefaultMeshConfig() MeshConfig {
	return MeshConfig{
		InputName:       "input_1",
		LandmarksOutput: "conv2d_21",
		ScoreOutput:     "conv2d_31",
		InputSize:       192,
		Points:          landmark.MinMeshSize,
		ScoreThreshold:  0.5,
		DetectorSize:    640,
		DetectThreshold: 0.5,
		Expand:          1.5,
	}
}

// FaceMesh produces camera-space face meshes
type FaceMesh struct {
	cfg     MeshConfig
	session *inference.Session
	faces   *SCRFD
}

// NewFaceMesh loads the mesh model and, when configured, the face detector
func NewFaceMesh(cfg MeshConfig) (*FaceMesh, error) {
	def := DefaultMeshConfig()
	if cfg.InputSize <= 0 {
		cfg.InputSize = def.InputSize
	}
	if cfg.Points < landmark.MinMeshSize {
		cfg.Points = def.Points
	}
	if cfg.Expand <= 0 {
		cfg.Expand = def.Expand
	}
	if cfg.DetectorSize <= 0 {
		cfg.DetectorSize = def.DetectorSize
	}

	session, err := inference.NewSession(cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.LandmarksOutput, cfg.ScoreOutput},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create face mesh session: %w", err)
	}

	m := &FaceMesh{cfg: cfg, session: session}
	if cfg.DetectorPath != "" {
		faces, err := NewSCRFD(cfg.DetectorPath, cfg.DetectorSize, cfg.DetectThreshold, 0.4)
		if err != nil {
			session.Destroy()
			return nil, err
		}
		m.faces = faces
	}
	return m, nil
}

// Detect implements pipeline.LandmarkDetector. It returns nil when no face
// is present.
func (m *FaceMesh) Detect(f *frame.Frame) (*landmark.Set, error) {
	if f.Empty() {
		return nil, nil
	}

	crop, ok, err := m.locate(f)
	if err != nil || !ok {
		return nil, err
	}

	input, err := m.preprocess(f.Mat, crop)
	if err != nil {
		return nil, err
	}
	inputTensor, err := inference.CreateTensor(
		[]int64{1, int64(m.cfg.InputSize), int64(m.cfg.InputSize), 3}, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	// let the runtime allocate outputs; exports disagree on their rank
	outputs := []ort.Value{nil, nil}
	if err := m.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("face mesh inference failed: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	raw, ok1 := outputs[0].(*ort.Tensor[float32])
	score, ok2 := outputs[1].(*ort.Tensor[float32])
	if !ok1 || !ok2 {
		return nil, errors.New("face mesh outputs are not float32 tensors")
	}
	if s := score.GetData(); len(s) == 0 || sigmoid(s[0]) < m.cfg.ScoreThreshold {
		return nil, nil
	}

	points, err := decodeMesh(raw.GetData(), m.cfg.Points, crop, f.Width, f.Height)
	if err != nil {
		return nil, err
	}
	return landmark.NewCameraSet(points), nil
}

// locate picks the square the mesh runs on
func (m *FaceMesh) locate(f *frame.Frame) (cropTransform, bool, error) {
	size := float64(m.cfg.InputSize)
	if m.faces == nil {
		side := math.Min(float64(f.Width), float64(f.Height))
		return newCropTransform(float64(f.Width)/2, float64(f.Height)/2, side, 0, size), true, nil
	}

	faces, err := m.faces.Detect(f.Mat)
	if err != nil {
		return cropTransform{}, false, err
	}
	face, ok := primary(faces)
	if !ok {
		return cropTransform{}, false, nil
	}
	c := face.Box.Center()
	side := float64(max(face.Box.Width(), face.Box.Height()) * m.cfg.Expand)
	return newCropTransform(float64(c.X), float64(c.Y), side, face.Keypoints.Roll(), size), true, nil
}

// preprocess warps the crop upright into an NHWC float tensor in [0, 1]
func (m *FaceMesh) preprocess(img gocv.Mat, t cropTransform) ([]float32, error) {
	M := t.matrix()
	defer M.Close()

	aligned := gocv.NewMat()
	defer aligned.Close()
	gocv.WarpAffine(img, &aligned, M, image.Pt(m.cfg.InputSize, m.cfg.InputSize))

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(aligned, &rgb, gocv.ColorBGRToRGB)

	floatMat := gocv.NewMat()
	defer floatMat.Close()
	rgb.ConvertToWithParams(&floatMat, gocv.MatTypeCV32FC3, 1.0/255.0, 0)

	data := inference.BytesToFloat32(floatMat.ToBytes())
	if len(data) != m.cfg.InputSize*m.cfg.InputSize*3 {
		return nil, fmt.Errorf("face mesh input has %d values, want %d", len(data), m.cfg.InputSize*m.cfg.InputSize*3)
	}
	return data, nil
}

// Close releases detector resources
func (m *FaceMesh) Close() error {
	var errs []error
	if err := m.session.Destroy(); err != nil {
		errs = append(errs, err)
	}
	if m.faces != nil {
		if err := m.faces.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// cropTransform maps a rotated square of the frame onto the model input:
// q = scale * R(-roll) * (p - center) + size/2
type cropTransform struct {
	cx, cy   float64
	scale    float64
	cos, sin float64
	half     float64
}

func newCropTransform(cx, cy, side, roll, size float64) cropTransform {
	return cropTransform{
		cx:    cx,
		cy:    cy,
		scale: size / side,
		cos:   math.Cos(roll),
		sin:   math.Sin(roll),
		half:  size / 2,
	}
}

// matrix returns the 2x3 affine for WarpAffine
func (t cropTransform) matrix() gocv.Mat {
	s, c, n := t.scale, t.cos, t.sin
	M := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	M.SetDoubleAt(0, 0, s*c)
	M.SetDoubleAt(0, 1, s*n)
	M.SetDoubleAt(0, 2, t.half-s*(c*t.cx+n*t.cy))
	M.SetDoubleAt(1, 0, -s*n)
	M.SetDoubleAt(1, 1, s*c)
	M.SetDoubleAt(1, 2, t.half-s*(-n*t.cx+c*t.cy))
	return M
}

// toSource maps a model-input point back to frame pixels
func (t cropTransform) toSource(qx, qy float64) (float64, float64) {
	dx, dy := (qx-t.half)/t.scale, (qy-t.half)/t.scale
	return t.cx + t.cos*dx - t.sin*dy, t.cy + t.sin*dx + t.cos*dy
}

// decodeMesh converts x, y, z triples in model-input pixels into points
// normalized to the frame
func decodeMesh(raw []float32, points int, t cropTransform, width, height int) ([]landmark.Point, error) {
	if len(raw) < points*3 {
		return nil, fmt.Errorf("face mesh output has %d values, want %d", len(raw), points*3)
	}
	w, h := float64(width), float64(height)
	out := make([]landmark.Point, points)
	for i := range out {
		x, y := t.toSource(float64(raw[i*3]), float64(raw[i*3+1]))
		out[i] = landmark.Point{X: x / w, Y: y / h}
	}
	return out, nil
}

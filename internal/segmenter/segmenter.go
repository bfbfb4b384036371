// Package segmenter runs person and hair segmentation models and turns
// their scores into category masks.
package segmenter

import (
	"errors"
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/biokiosk/internal/frame"
	"github.com/dudu/biokiosk/internal/inference"
	"github.com/dudu/biokiosk/internal/mask"
)

// Config describes one segmentation model
type Config struct {
	Name        string // mask source label
	ModelPath   string
	InputName   string
	OutputName  string
	InputWidth  int
	InputHeight int
	Channels    int     // 3 for RGB; a 4th channel is fed zeros
	Class       int     // output channel that marks the subject
	Threshold   float32 // subject when the class probability exceeds it
}

// BodyConfig matches the 256x256 selfie segmentation export
func BodyConfig(modelPath string) Config {
	return Config{
		Name:        "body",
		ModelPath:   modelPath,
		InputName:   "input_1",
		OutputName:  "activation_10",
		InputWidth:  256,
		InputHeight: 256,
		Channels:    3,
		Class:       0,
		Threshold:   0.5,
	}
}

// HairConfig matches the 512x512 hair segmentation export, which takes
// RGB plus a previous-mask channel and scores background and hair
func HairConfig(modelPath string) Config {
	return Config{
		Name:        "hair",
		ModelPath:   modelPath,
		InputName:   "input_1",
		OutputName:  "conv2d_transpose_4",
		InputWidth:  512,
		InputHeight: 512,
		Channels:    4,
		Class:       1,
		Threshold:   0.5,
	}
}

// ONNX is a segmentation model session
type ONNX struct {
	cfg     Config
	session *inference.Session
}

// New loads a segmentation model
func New(cfg Config) (*ONNX, error) {
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		return nil, fmt.Errorf("segmenter %s: invalid input size %dx%d", cfg.Name, cfg.InputWidth, cfg.InputHeight)
	}
	if cfg.Channels != 3 && cfg.Channels != 4 {
		return nil, fmt.Errorf("segmenter %s: unsupported channel count %d", cfg.Name, cfg.Channels)
	}
	session, err := inference.NewSession(cfg.ModelPath, []string{cfg.InputName}, []string{cfg.OutputName})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s segmenter session: %w", cfg.Name, err)
	}
	return &ONNX{cfg: cfg, session: session}, nil
}

// Name returns the mask source label
func (s *ONNX) Name() string {
	return s.cfg.Name
}

// Segment implements pipeline.Segmenter. The mask has the frame's size.
func (s *ONNX) Segment(f *frame.Frame) (*mask.Category, error) {
	if f.Empty() {
		return nil, nil
	}
	w, h := s.cfg.InputWidth, s.cfg.InputHeight

	input, err := s.preprocess(f.Mat)
	if err != nil {
		return nil, err
	}
	inputTensor, err := inference.CreateTensor([]int64{1, int64(h), int64(w), int64(s.cfg.Channels)}, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("%s segmentation failed: %w", s.cfg.Name, err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("segmentation output is not a float32 tensor")
	}
	scores := out.GetData()
	if len(scores) == 0 || len(scores)%(w*h) != 0 {
		return nil, fmt.Errorf("%s segmentation output has %d values for %dx%d", s.cfg.Name, len(scores), w, h)
	}

	cat, err := Categorize(scores, w, h, len(scores)/(w*h), s.cfg.Class, s.cfg.Threshold)
	if err != nil {
		return nil, err
	}
	small, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, cat)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap %s mask: %w", s.cfg.Name, err)
	}
	defer small.Close()

	full := gocv.NewMat()
	gocv.Resize(small, &full, image.Pt(f.Width, f.Height), 0, 0, gocv.InterpolationNearestNeighbor)
	return &mask.Category{Mat: full, Source: s.cfg.Name}, nil
}

// preprocess stretches the frame to the model input as NHWC RGB in [0, 1]
func (s *ONNX) preprocess(img gocv.Mat) ([]float32, error) {
	w, h, c := s.cfg.InputWidth, s.cfg.InputHeight, s.cfg.Channels

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)

	pix := rgb.ToBytes()
	if len(pix) != w*h*3 {
		return nil, fmt.Errorf("segmenter input has %d bytes, want %d", len(pix), w*h*3)
	}
	data := make([]float32, w*h*c)
	for i := 0; i < w*h; i++ {
		data[i*c] = float32(pix[i*3]) / 255
		data[i*c+1] = float32(pix[i*3+1]) / 255
		data[i*c+2] = float32(pix[i*3+2]) / 255
	}
	return data, nil
}

// Close releases the session
func (s *ONNX) Close() error {
	return s.session.Destroy()
}

// Categorize thresholds NHWC scores into a 0/1 mask. One channel is read
// as a probability; several are soft-maxed per pixel first.
func Categorize(scores []float32, w, h, classes, class int, threshold float32) ([]byte, error) {
	if classes <= 0 || class < 0 || class >= classes {
		return nil, fmt.Errorf("class %d out of range for %d classes", class, classes)
	}
	if len(scores) < w*h*classes {
		return nil, fmt.Errorf("got %d scores, want %d", len(scores), w*h*classes)
	}

	out := make([]byte, w*h)
	for i := range out {
		px := scores[i*classes : (i+1)*classes]
		var p float32
		if classes == 1 {
			p = px[0]
		} else {
			p = softmax(px, class)
		}
		if p > threshold {
			out[i] = 1
		}
	}
	return out, nil
}

func softmax(v []float32, i int) float32 {
	hi := v[0]
	for _, x := range v[1:] {
		if x > hi {
			hi = x
		}
	}
	var sum float64
	for _, x := range v {
		sum += math.Exp(float64(x - hi))
	}
	return float32(math.Exp(float64(v[i]-hi)) / sum)
}

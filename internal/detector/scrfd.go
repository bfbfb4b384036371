package detector

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/biokiosk/internal/inference"
)

// SCRFD implements the SCRFD face detector
type SCRFD struct {
	session        *inference.Session
	inputSize      int
	confThreshold  float32
	nmsThreshold   float32
	featureStrides []int
	numAnchors     int
}

// NewSCRFD creates a new SCRFD detector
func NewSCRFD(modelPath string, inputSize int, confThreshold, nmsThreshold float32) (*SCRFD, error) {
	// 3 levels x (score, bbox, kps)
	inputNames := []string{"input.1"}
	outputNames := []string{
		"score_8", "score_16", "score_32",
		"bbox_8", "bbox_16", "bbox_32",
		"kps_8", "kps_16", "kps_32",
	}

	session, err := inference.NewSession(modelPath, inputNames, outputNames)
	if err != nil {
		return nil, fmt.Errorf("failed to create SCRFD session: %w", err)
	}

	return &SCRFD{
		session:        session,
		inputSize:      inputSize,
		confThreshold:  confThreshold,
		nmsThreshold:   nmsThreshold,
		featureStrides: []int{8, 16, 32},
		numAnchors:     2,
	}, nil
}

// Detect finds faces in a BGR image
func (s *SCRFD) Detect(img gocv.Mat) ([]Face, error) {
	inputBlob, scale := s.preprocess(img)
	defer inputBlob.Close()

	inputTensor, err := inference.CreateTensor(
		[]int64{1, 3, int64(s.inputSize), int64(s.inputSize)},
		inference.BytesToFloat32(inputBlob.ToBytes()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := make([]ort.Value, 9)
	outputTensors := make([]*ort.Tensor[float32], 9)
	defer func() {
		for _, t := range outputTensors {
			if t != nil {
				t.Destroy()
			}
		}
	}()

	for i, stride := range s.featureStrides {
		fm := s.inputSize / stride
		n := int64(fm * fm * s.numAnchors)
		for j, width := range []int64{1, 4, 10} {
			t, err := inference.CreateEmptyTensor[float32]([]int64{n, width})
			if err != nil {
				return nil, fmt.Errorf("failed to create output tensor: %w", err)
			}
			outputs[i+3*j] = t
			outputTensors[i+3*j] = t
		}
	}

	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	scores := make([][]float32, 3)
	boxes := make([][]float32, 3)
	kps := make([][]float32, 3)
	for i := range s.featureStrides {
		scores[i] = outputTensors[i].GetData()
		boxes[i] = outputTensors[i+3].GetData()
		kps[i] = outputTensors[i+6].GetData()
	}

	faces := s.decode(scores, boxes, kps, scale, img.Cols(), img.Rows())
	return nms(faces, s.nmsThreshold), nil
}

// preprocess letterboxes the image into the top-left of a square input and
// normalizes it to NCHW float
func (s *SCRFD) preprocess(img gocv.Mat) (gocv.Mat, float32) {
	scale := float32(s.inputSize) / float32(max(img.Rows(), img.Cols()))
	newWidth := int(float32(img.Cols()) * scale)
	newHeight := int(float32(img.Rows()) * scale)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(newWidth, newHeight), 0, 0, gocv.InterpolationLinear)

	padded := gocv.Zeros(s.inputSize, s.inputSize, gocv.MatTypeCV8UC3)
	defer padded.Close()
	roi := padded.Region(image.Rect(0, 0, newWidth, newHeight))
	resized.CopyTo(&roi)
	roi.Close()

	// (x - 127.5) / 128, BGR -> RGB
	blob := gocv.BlobFromImage(padded, 1.0/128.0, image.Pt(s.inputSize, s.inputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	return blob, scale
}

// decode turns the per-level anchor outputs into faces in source pixels
func (s *SCRFD) decode(scores, boxes, kps [][]float32, scale float32, width, height int) []Face {
	var faces []Face

	for level, stride := range s.featureStrides {
		fm := s.inputSize / stride
		st := float32(stride)

		anchor := 0
		for y := 0; y < fm; y++ {
			for x := 0; x < fm; x++ {
				for a := 0; a < s.numAnchors; a++ {
					idx := anchor
					anchor++
					if idx >= len(scores[level]) {
						continue
					}
					// SCRFD exports already apply the sigmoid
					score := scores[level][idx]
					if score <= s.confThreshold {
						continue
					}

					cx := float32(x) * st
					cy := float32(y) * st
					b := boxes[level][idx*4 : idx*4+4]
					k := kps[level][idx*10 : idx*10+10]

					pt := func(i int) Point {
						return Point{X: (cx + k[i*2]*st) / scale, Y: (cy + k[i*2+1]*st) / scale}
					}

					faces = append(faces, Face{
						Box: BoundingBox{
							X1: clamp((cx-b[0]*st)/scale, 0, float32(width)),
							Y1: clamp((cy-b[1]*st)/scale, 0, float32(height)),
							X2: clamp((cx+b[2]*st)/scale, 0, float32(width)),
							Y2: clamp((cy+b[3]*st)/scale, 0, float32(height)),
						},
						Keypoints: Keypoints{
							LeftEye:    pt(0),
							RightEye:   pt(1),
							Nose:       pt(2),
							LeftMouth:  pt(3),
							RightMouth: pt(4),
						},
						Score: score,
					})
				}
			}
		}
	}

	return faces
}

// Close releases detector resources
func (s *SCRFD) Close() error {
	return s.session.Destroy()
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

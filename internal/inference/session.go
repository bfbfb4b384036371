// Package inference owns the process-wide ONNX Runtime environment and
// wraps model sessions.
package inference

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/biokiosk/internal/logging"
)

// Provider selects the execution provider sessions are created with
type Provider string

const (
	ProviderCPU    Provider = "cpu"
	ProviderCoreML Provider = "coreml"
)

// ErrNotInitialized is returned when a session is created before Initialize
var ErrNotInitialized = errors.New("ONNX Runtime not initialized, call Initialize() first")

// Options configures the runtime environment
type Options struct {
	LibraryPath string // shared library; DefaultLibraryPath when empty
	Provider    Provider
}

var (
	initialized bool
	provider    Provider
	initMu      sync.Mutex
)

// DefaultLibraryPath returns where the shared library is expected on this OS
func DefaultLibraryPath() string {
	switch runtime.GOOS {
	case "darwin":
		return "lib/libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "lib/libonnxruntime.so"
	}
}

// Initialize sets up ONNX Runtime environment (call once at startup)
func Initialize(opts Options) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	lib := opts.LibraryPath
	if lib == "" {
		lib = DefaultLibraryPath()
	}
	ort.SetSharedLibraryPath(lib)

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime from %s: %w", lib, err)
	}

	provider = opts.Provider
	if provider == "" {
		provider = ProviderCPU
	}
	initialized = true
	logging.Info(logging.Fields{"library": lib, "provider": string(provider)}, "[inference.Initialize] runtime ready")
	return nil
}

// Initialized reports whether the environment is up
func Initialized() bool {
	initMu.Lock()
	defer initMu.Unlock()
	return initialized
}

// Shutdown cleans up ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Session wraps an ONNX Runtime inference session
type Session struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputNames  []string
	outputNames []string
}

// NewSession creates a session for an ONNX model with the configured provider
func NewSession(modelPath string, inputNames, outputNames []string) (*Session, error) {
	initMu.Lock()
	ready, p := initialized, provider
	initMu.Unlock()
	if !ready {
		return nil, ErrNotInitialized
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if p == ProviderCoreML {
		// Flag 0 = default settings, use Neural Engine + GPU
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			logging.Warn(logging.Fields{"model": modelPath, "error": err.Error()}, "[inference.NewSession] CoreML unavailable, running on CPU")
		} else {
			logging.Debug(logging.Fields{"model": modelPath}, "[inference.NewSession] CoreML enabled")
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		outputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	return &Session{
		session:     session,
		modelPath:   modelPath,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// ModelPath returns the file the session was loaded from
func (s *Session) ModelPath() string {
	return s.modelPath
}

// Run executes inference with the given inputs
func (s *Session) Run(inputs []ort.Value, outputs []ort.Value) error {
	return s.session.Run(inputs, outputs)
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		return err
	}
	return nil
}

// CreateTensor creates a tensor with the given shape and data
func CreateTensor[T ort.TensorData](shape []int64, data []T) (*ort.Tensor[T], error) {
	return ort.NewTensor(ort.NewShape(shape...), data)
}

// CreateEmptyTensor creates a zeroed tensor for output
func CreateEmptyTensor[T ort.TensorData](shape []int64) (*ort.Tensor[T], error) {
	size := int64(1)
	for _, dim := range shape {
		size *= dim
	}
	data := make([]T, size)
	return ort.NewTensor(ort.NewShape(shape...), data)
}

// BytesToFloat32 reinterprets little-endian float32 Mat bytes
func BytesToFloat32(data []byte) []float32 {
	result := make([]float32, len(data)/4)
	for i := range result {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		result[i] = math.Float32frombits(bits)
	}
	return result
}

// ModelInfo describes a model file as ONNX Runtime sees it
type ModelInfo struct {
	Inputs      []ort.InputOutputInfo
	Outputs     []ort.InputOutputInfo
	Producer    string
	Domain      string
	Description string
	Version     int64
}

// Inspect reads a model's inputs, outputs and metadata without creating a
// session
func Inspect(modelPath string) (*ModelInfo, error) {
	if !Initialized() {
		return nil, ErrNotInitialized
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info for %s: %w", modelPath, err)
	}
	info := &ModelInfo{Inputs: inputs, Outputs: outputs}

	metadata, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		logging.Debug(logging.Fields{"model": modelPath, "error": err.Error()}, "[inference.Inspect] no metadata")
		return info, nil
	}
	defer metadata.Destroy()

	if producer, err := metadata.GetProducerName(); err == nil {
		info.Producer = producer
	}
	if domain, err := metadata.GetDomain(); err == nil {
		info.Domain = domain
	}
	if desc, err := metadata.GetDescription(); err == nil {
		info.Description = desc
	}
	if version, err := metadata.GetVersion(); err == nil {
		info.Version = version
	}
	return info, nil
}

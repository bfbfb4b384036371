// Package config loads kiosk settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/dudu/biokiosk/internal/overlay"
)

// EnvPrefix prefixes every variable read by Load
const EnvPrefix = "BIOKIOSK_"

// Config holds every kiosk setting
type Config struct {
	// camera; a non-empty StillImage replaces the device
	CameraID     int    `validate:"gte=0"`
	CameraWidth  int    `validate:"gte=0"`
	CameraHeight int    `validate:"gte=0"`
	StillImage   string `validate:"omitempty,file"`

	CanvasWidth  int     `validate:"gt=0"`
	CanvasHeight int     `validate:"gt=0"`
	FPS          float64 `validate:"gt=0,lte=120"`
	Countdown    int     `validate:"gt=0,lte=300"`
	Style        string  `validate:"oneof=NONE CYBER CLASSIC AVIATOR RETRO MONOCLE"`
	AssetsDir    string

	OnnxLibrary       string
	Provider          string `validate:"oneof=cpu coreml"`
	MeshModel         string `validate:"required"`
	FaceDetectorModel string
	BodyModel         string
	HairModel         string

	OutputDir string `validate:"required"`
	Thumbnail int    `validate:"gte=0"`
	S3Bucket  string
	S3Region  string `validate:"required_with=S3Bucket"`
	S3Prefix  string

	// Sessions is how many captures to take before exiting; 0 runs forever
	Sessions   int           `validate:"gte=0"`
	ResultHold time.Duration `validate:"gte=0"`
	Headless   bool

	LogLevel string `validate:"oneof=trace debug info warn warning error"`
	LogDir   string
}

// Default returns the settings of a stock 1080x1920 kiosk
func Default() Config {
	return Config{
		CameraWidth:  1920,
		CameraHeight: 1080,
		CanvasWidth:  1080,
		CanvasHeight: 1920,
		FPS:          30,
		Countdown:    15,
		Style:        "CYBER",
		AssetsDir:    "assets/glasses",
		Provider:     "cpu",
		MeshModel:    "models/face_landmark.onnx",
		OutputDir:    "captures",
		Thumbnail:    360,
		ResultHold:   8 * time.Second,
		LogLevel:     "info",
		LogDir:       "storage/logs",
	}
}

// Load reads envFile when it exists, then applies BIOKIOSK_* variables over
// the defaults
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	c := Default()
	e := &envReader{}
	e.int("CAMERA", &c.CameraID)
	e.int("CAMERA_WIDTH", &c.CameraWidth)
	e.int("CAMERA_HEIGHT", &c.CameraHeight)
	e.str("STILL_IMAGE", &c.StillImage)
	e.int("CANVAS_WIDTH", &c.CanvasWidth)
	e.int("CANVAS_HEIGHT", &c.CanvasHeight)
	e.float("FPS", &c.FPS)
	e.int("COUNTDOWN", &c.Countdown)
	e.str("STYLE", &c.Style)
	e.str("ASSETS_DIR", &c.AssetsDir)
	e.str("ONNX_LIBRARY", &c.OnnxLibrary)
	e.str("PROVIDER", &c.Provider)
	e.str("MESH_MODEL", &c.MeshModel)
	e.str("FACE_DETECTOR_MODEL", &c.FaceDetectorModel)
	e.str("BODY_MODEL", &c.BodyModel)
	e.str("HAIR_MODEL", &c.HairModel)
	e.str("OUTPUT_DIR", &c.OutputDir)
	e.int("THUMBNAIL", &c.Thumbnail)
	e.str("S3_BUCKET", &c.S3Bucket)
	e.str("S3_REGION", &c.S3Region)
	e.str("S3_PREFIX", &c.S3Prefix)
	e.int("SESSIONS", &c.Sessions)
	e.duration("RESULT_HOLD", &c.ResultHold)
	e.bool("HEADLESS", &c.Headless)
	e.str("LOG_LEVEL", &c.LogLevel)
	e.str("LOG_DIR", &c.LogDir)

	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}
	c.Style = strings.ToUpper(c.Style)
	c.Provider = strings.ToLower(c.Provider)
	return c, nil
}

// Validate checks the settings
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// OverlayStyle returns the configured eyewear
func (c Config) OverlayStyle() overlay.Style {
	s, err := overlay.ParseStyle(c.Style)
	if err != nil {
		return overlay.StyleNone
	}
	return s
}

// envReader collects parse errors so one bad variable does not hide others
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = f
	}
}

func (e *envReader) bool(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = d
	}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/dudu/biokiosk/internal/crop"
	"github.com/dudu/biokiosk/internal/frame"
	"github.com/dudu/biokiosk/internal/landmark"
	"github.com/dudu/biokiosk/internal/logging"
	"github.com/dudu/biokiosk/internal/mask"
	"github.com/dudu/biokiosk/internal/overlay"
)

var (
	// ErrNotReady is returned when frames are requested before start-up
	// finished
	ErrNotReady = errors.New("pipeline not ready")

	// ErrFatal wraps start-up failures that leave the kiosk unusable
	ErrFatal = errors.New("fatal pipeline error")

	// ErrNoFrame is returned when a capture finds no pixels to work with
	ErrNoFrame = errors.New("no frame available")
)

// Config holds pipeline configuration
type Config struct {
	Width  int
	Height int

	// Style is read once per rendered frame; nil means no overlay
	Style func() overlay.Style
}

// Loaders build the pipeline's collaborators, one per start-up stage.
// Landmarks and Camera are required; a nil Assets uses the builtin
// drawings and a nil segmenter loader is treated as a failed one.
type Loaders struct {
	Assets        func(ctx context.Context) (*overlay.Library, error)
	Landmarks     func(ctx context.Context) (LandmarkDetector, error)
	BodySegmenter func(ctx context.Context) (Segmenter, error)
	HairSegmenter func(ctx context.Context) (Segmenter, error)
	Camera        func(ctx context.Context) (FrameSource, error)
}

// Timing holds performance timing information
type Timing struct {
	Read      time.Duration
	Detection time.Duration
	Segment   time.Duration
	Render    time.Duration
	Total     time.Duration
}

// String formats the timing like the on-screen readout:
// detection, segmentation, render and total, plus the rate Total allows
func (t Timing) String() string {
	fps := 0.0
	if t.Total > 0 {
		fps = float64(time.Second) / float64(t.Total)
	}
	return fmt.Sprintf("D:%3.0fms S:%3.0fms R:%3.0fms T:%3.0fms (%.1f FPS)",
		ms(t.Detection), ms(t.Segment), ms(t.Render), ms(t.Total), fps)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Result is one composited capture
type Result struct {
	PNG    []byte
	Image  image.Image
	Style  overlay.Style
	Masked bool
}

// Pipeline orchestrates detection, masking and rendering of the kiosk canvas.
// Load may run on any goroutine; Tick, Capture and Snapshot belong to the
// render goroutine.
type Pipeline struct {
	config  Config
	machine *Machine

	mu         sync.RWMutex
	status     SegmentationStatus
	detector   LandmarkDetector
	body       Segmenter
	hair       Segmenter
	source     FrameSource
	compositor *Compositor

	lastTiming Timing
	closed     bool
}

// New creates a pipeline in StageInitializing
func New(config Config) *Pipeline {
	if config.Width <= 0 || config.Height <= 0 {
		config.Width, config.Height = 1080, 1920
	}
	p := &Pipeline{config: config, status: SegmentationLoading}
	p.machine = NewMachine(func(s Stage) {
		logging.Info(logging.Fields{
			"stage":    s.String(),
			"progress": fmt.Sprintf("%.0f%%", s.Progress()),
		}, "[pipeline.Load] stage")
	})
	return p
}

// Stage returns the current start-up stage
func (p *Pipeline) Stage() Stage {
	return p.machine.Stage()
}

// Segmentation reports whether captures can isolate the head
func (p *Pipeline) Segmentation() SegmentationStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Load walks the start-up stages. A landmark model or camera failure is
// fatal and leaves the pipeline in StageFailed; segmenter failures only
// disable head isolation.
func (p *Pipeline) Load(ctx context.Context, loaders Loaders) error {
	if err := p.load(ctx, loaders); err != nil {
		p.machine.Fail(err)
		logging.Error(logging.Fields{"error": err.Error()}, "[pipeline.Load] start-up failed")
		return err
	}
	return nil
}

func (p *Pipeline) load(ctx context.Context, loaders Loaders) error {
	if err := p.machine.Advance(StageResolvingAssets); err != nil {
		return err
	}
	library := overlay.NewLibrary()
	if loaders.Assets != nil {
		lib, err := loaders.Assets(ctx)
		if err != nil {
			logging.Warn(logging.Fields{"error": err.Error()}, "[pipeline.Load] overlay assets unavailable, using builtin drawings")
		} else if lib != nil {
			library = lib
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.machine.Advance(StageLoadingLandmarkModel); err != nil {
		return err
	}
	if loaders.Landmarks == nil {
		return fmt.Errorf("%w: no landmark model configured", ErrFatal)
	}
	det, err := loaders.Landmarks(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to load landmark model: %w", ErrFatal, err)
	}
	p.mu.Lock()
	p.detector = det
	p.mu.Unlock()

	if err := p.machine.Advance(StageLoadingBodySegmenter); err != nil {
		return err
	}
	body := p.loadSegmenter(ctx, "body", loaders.BodySegmenter)

	if err := p.machine.Advance(StageLoadingHairSegmenter); err != nil {
		return err
	}
	hair := p.loadSegmenter(ctx, "hair", loaders.HairSegmenter)

	p.mu.Lock()
	p.body, p.hair = body, hair
	if body != nil || hair != nil {
		p.status = SegmentationActive
	} else {
		p.status = SegmentationOffline
	}
	status := p.status
	p.mu.Unlock()
	logging.Info(logging.Fields{"segmentation": status.String()}, "[pipeline.Load] segmentation")

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.machine.Advance(StageRequestingCamera); err != nil {
		return err
	}
	if loaders.Camera == nil {
		return fmt.Errorf("%w: no camera configured", ErrFatal)
	}
	src, err := loaders.Camera(ctx)
	if err != nil {
		return fmt.Errorf("%w: camera unavailable: %w", ErrFatal, err)
	}

	p.mu.Lock()
	p.source = src
	p.compositor = NewCompositor(p.config.Width, p.config.Height, library)
	p.mu.Unlock()

	return p.machine.Advance(StageReady)
}

func (p *Pipeline) loadSegmenter(ctx context.Context, name string, load func(context.Context) (Segmenter, error)) Segmenter {
	if load == nil {
		logging.Warn(logging.Fields{"segmenter": name}, "[pipeline.Load] segmenter not configured")
		return nil
	}
	seg, err := load(ctx)
	if err != nil {
		logging.Warn(logging.Fields{"segmenter": name, "error": err.Error()}, "[pipeline.Load] segmenter failed to load")
		return nil
	}
	return seg
}

func (p *Pipeline) ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed && p.machine.Ready()
}

func (p *Pipeline) style() overlay.Style {
	if p.config.Style == nil {
		return overlay.StyleNone
	}
	return p.config.Style()
}

// read pulls a frame and updates the crop. A nil frame with a nil error
// means the camera has nothing to show yet.
func (p *Pipeline) read() (*frame.Frame, crop.Rect, error) {
	f, err := p.source.Read()
	if err != nil {
		return nil, crop.Rect{}, fmt.Errorf("failed to read frame: %w", err)
	}
	if f.Empty() {
		return nil, crop.Rect{}, nil
	}
	r, err := p.compositor.Geometry(f)
	if err != nil {
		return nil, crop.Rect{}, err
	}
	return f, r, nil
}

// detect returns crop-space landmarks, or nil when there is no usable face
func (p *Pipeline) detect(f *frame.Frame, r crop.Rect) *landmark.Set {
	set, err := p.detector.Detect(f)
	if err != nil {
		logging.Debug(logging.Fields{"error": err.Error()}, "[pipeline.detect] landmark detection failed")
		return nil
	}
	if set == nil {
		return nil
	}
	return set.ToCrop(r, f.Width, f.Height)
}

// Tick renders one preview frame onto the live canvas: video and overlay,
// no segmentation. Frames without a face are drawn without eyewear.
func (p *Pipeline) Tick() error {
	if !p.ready() {
		return ErrNotReady
	}
	start := time.Now()
	var timing Timing

	f, r, err := p.read()
	timing.Read = time.Since(start)
	if err != nil || f == nil {
		return err
	}

	detectStart := time.Now()
	set := p.detect(f, r)
	timing.Detection = time.Since(detectStart)

	renderStart := time.Now()
	p.compositor.Preview(f, r, set, p.style())
	timing.Render = time.Since(renderStart)

	timing.Total = time.Since(start)
	p.mu.Lock()
	p.lastTiming = timing
	p.mu.Unlock()
	return nil
}

// Capture takes a fresh frame and composites it offscreen. When at least one
// segmenter produces a mask the head is isolated on a transparent
// background; otherwise the full cropped frame is returned.
func (p *Pipeline) Capture() (*Result, error) {
	if !p.ready() {
		return nil, ErrNotReady
	}
	style := p.style()
	start := time.Now()
	var timing Timing

	f, r, err := p.read()
	timing.Read = time.Since(start)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrNoFrame
	}

	detectStart := time.Now()
	set := p.detect(f, r)
	timing.Detection = time.Since(detectStart)

	segStart := time.Now()
	alpha := p.headMask(f, r, set)
	defer alpha.Close()
	timing.Segment = time.Since(segStart)

	renderStart := time.Now()
	img, err := p.compositor.Render(f, r, set, style, alpha)
	if err != nil {
		return nil, err
	}
	png, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}
	timing.Render = time.Since(renderStart)

	timing.Total = time.Since(start)
	p.mu.Lock()
	p.lastTiming = timing
	p.mu.Unlock()
	logging.Debug(logging.Fields{"timing": timing.String()}, "[pipeline.Capture] composited")
	return &Result{PNG: png, Image: img, Style: style, Masked: alpha != nil}, nil
}

// headMask builds the capture matte, or nil when no segmenter produced one
func (p *Pipeline) headMask(f *frame.Frame, r crop.Rect, set *landmark.Set) *mask.Alpha {
	if p.Segmentation() != SegmentationActive {
		return nil
	}

	var cats []*mask.Category
	for _, seg := range []Segmenter{p.body, p.hair} {
		if seg == nil {
			continue
		}
		cat, err := seg.Segment(f)
		if err != nil {
			logging.Warn(logging.Fields{"error": err.Error()}, "[pipeline.Capture] segmentation failed")
			continue
		}
		if cat != nil {
			cats = append(cats, cat)
		}
	}
	defer func() {
		for _, c := range cats {
			c.Close()
		}
	}()

	var jaw []landmark.Point
	if set != nil {
		jaw, _ = set.Jaw()
	}

	alpha, err := p.compositor.Masks().Build(cats, jaw, r)
	if err != nil {
		if !errors.Is(err, mask.ErrNoMasks) {
			logging.Warn(logging.Fields{"error": err.Error()}, "[pipeline.Capture] head mask failed")
		}
		return nil
	}
	return alpha
}

// Snapshot encodes the live canvas as it was last drawn
func (p *Pipeline) Snapshot() (*Result, error) {
	if !p.ready() {
		return nil, ErrNotReady
	}
	img, ok := p.compositor.Snapshot()
	if !ok {
		return nil, ErrNoFrame
	}
	png, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}
	return &Result{PNG: png, Image: img, Style: p.style()}, nil
}

// Live returns the live canvas, or nil before start-up finished
func (p *Pipeline) Live() image.Image {
	if !p.ready() {
		return nil
	}
	return p.compositor.Live()
}

// LastTiming returns timing from the last Tick or Capture. It is safe to call from
// any goroutine.
func (p *Pipeline) LastTiming() Timing {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastTiming
}

// Close releases pipeline resources
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var errs []error
	if p.detector != nil {
		if err := p.detector.Close(); err != nil {
			errs = append(errs, fmt.Errorf("landmark detector: %w", err))
		}
		p.detector = nil
	}
	for _, seg := range []Segmenter{p.body, p.hair} {
		if seg == nil {
			continue
		}
		if err := seg.Close(); err != nil {
			errs = append(errs, fmt.Errorf("segmenter: %w", err))
		}
	}
	p.body, p.hair = nil, nil
	if p.source != nil {
		if err := p.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("frame source: %w", err))
		}
		p.source = nil
	}
	if p.compositor != nil {
		p.compositor.Close()
		p.compositor = nil
	}

	return errors.Join(errs...)
}

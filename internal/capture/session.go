// Package capture runs a kiosk session: a paced preview loop and a
// countdown that triggers exactly one capture, handed to a Consumer.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dudu/biokiosk/internal/logging"
	"github.com/dudu/biokiosk/internal/pipeline"
)

// maxTickFailures consecutive failed preview frames end the session
const maxTickFailures = 90

// ErrHandOff marks a capture that succeeded but was not accepted by the
// consumer. Run still returns the artifact with it.
var ErrHandOff = errors.New("capture hand-off failed")

// Renderer is the part of the pipeline a session drives
type Renderer interface {
	Tick() error
	Capture() (*pipeline.Result, error)
	Snapshot() (*pipeline.Result, error)
}

// Options configures a session
type Options struct {
	Seconds  int           // countdown length, DefaultSeconds when zero
	FPS      float64       // preview rate, 30 when zero
	Interval time.Duration // countdown step, one second when zero

	// Progress receives a countdown bar; nil disables it
	Progress io.Writer

	// OnTick is called from the countdown goroutine with the seconds left
	OnTick func(remaining int)

	// OnFrame is called from the render goroutine after every preview frame
	OnFrame func()

	// Status, when set, is appended to the progress bar description on
	// every countdown step
	Status func() string
}

// Session is one countdown-to-capture cycle
type Session struct {
	id        string
	renderer  Renderer
	consumer  Consumer
	opts      Options
	countdown *Countdown
	requests  chan struct{}
}

// NewSession creates a session; consumer may be nil
func NewSession(r Renderer, consumer Consumer, opts Options) *Session {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	return &Session{
		id:        uuid.NewString(),
		renderer:  r,
		consumer:  consumer,
		opts:      opts,
		countdown: NewCountdown(opts.Seconds),
		requests:  make(chan struct{}, 1),
	}
}

// ID identifies the session in logs
func (s *Session) ID() string {
	return s.id
}

// Countdown exposes the session's countdown
func (s *Session) Countdown() *Countdown {
	return s.countdown
}

// Run previews until the countdown fires, captures once and hands the
// artifact to the consumer. The preview loop runs on the calling goroutine,
// which may own the display thread; the countdown runs beside it. Cancelling
// ctx stops both.
func (s *Session) Run(ctx context.Context) (*Artifact, error) {
	log := logging.WithSession(s.id)
	log.WithField("seconds", s.countdown.Total()).Info("[capture.Run] session started")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.countdownLoop(gctx)
	})

	artifact, err := s.renderLoop(gctx)
	cancel()
	if werr := g.Wait(); err == nil && werr != nil && !errors.Is(werr, context.Canceled) {
		err = werr
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("[capture.Run] session cancelled")
		} else {
			log.WithError(err).Error("[capture.Run] session failed")
		}
		return artifact, err
	}
	return artifact, nil
}

// renderLoop owns the pipeline: it ticks the preview at the target rate and
// serves the capture request between ticks
func (s *Session) renderLoop(ctx context.Context) (*Artifact, error) {
	limiter := rate.NewLimiter(rate.Limit(s.opts.FPS), 1)
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.requests:
			return s.capture(ctx)
		default:
		}

		if err := limiter.Wait(ctx); err != nil {
			// Wait also refuses a delay that would pass the deadline
			<-ctx.Done()
			return nil, ctx.Err()
		}

		if err := s.renderer.Tick(); err != nil {
			failures++
			logging.Debug(logging.Fields{"error": err.Error(), "failures": failures}, "[capture.renderLoop] preview frame failed")
			if failures >= maxTickFailures {
				return nil, fmt.Errorf("preview failed %d times in a row: %w", failures, err)
			}
			continue
		}
		failures = 0

		if s.opts.OnFrame != nil {
			s.opts.OnFrame()
		}
	}
}

// countdownLoop only signals; the capture itself runs on the render loop
func (s *Session) countdownLoop(ctx context.Context) error {
	w := s.opts.Progress
	if w == nil {
		w = io.Discard
	}
	bar := progressbar.NewOptions(s.countdown.Total(),
		progressbar.OptionSetDescription("Capture in"),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
	)
	defer bar.Finish()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fire := s.countdown.Tick()
			if s.opts.Status != nil {
				bar.Describe("Capture in [" + s.opts.Status() + "]")
			}
			bar.Add(1)
			if s.opts.OnTick != nil {
				s.opts.OnTick(s.countdown.Remaining())
			}
			if fire {
				s.requests <- struct{}{}
				return nil
			}
		}
	}
}

// capture composites the final image, falling back to the live canvas when
// the capture path fails
func (s *Session) capture(ctx context.Context) (*Artifact, error) {
	log := logging.WithSession(s.id)

	res, err := s.renderer.Capture()
	fallback := false
	if err != nil {
		log.WithError(err).Error("[capture.capture] capture failed, using live preview")
		res, err = s.renderer.Snapshot()
		if err != nil {
			return nil, fmt.Errorf("capture failed and no preview to fall back to: %w", err)
		}
		fallback = true
	}

	a, err := NewArtifact(res, fallback, time.Now())
	if err != nil {
		return nil, err
	}
	log.WithFields(logging.Fields{
		"artifact": a.ID().String(),
		"style":    a.Style().String(),
		"masked":   a.Masked(),
		"fallback": a.Fallback(),
		"bytes":    a.Size(),
	}).Info("[capture.capture] captured")

	if s.consumer == nil {
		return a, nil
	}
	if err := s.consumer.Consume(ctx, a); err != nil {
		return a, fmt.Errorf("%w for %s: %w", ErrHandOff, a.ID(), err)
	}
	return a, nil
}
